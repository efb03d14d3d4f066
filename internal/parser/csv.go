package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"wayve-go-srv/internal/models"
)

// canonical header mapping
var headerAliases = map[string]string{
	"title":       "title",
	"track":       "title",
	"track_title": "title",
	"song":        "title",
	"name":        "title",

	"artist":      "artist",
	"artist_name": "artist",
	"performer":   "artist",

	"time": "time",
	"date": "date",

	"favorited": "favorited",
	"favorite":  "favorited",

	"albumart":  "albumart",
	"album_art": "albumart",
	"artwork":   "albumart",

	"captured_on_page": "page",
	"page":             "page",
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseCSV handles multipart history uploads from the Web API
func ParseCSV(r *http.Request) ([]models.Track, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// ---- Read header row ----
	rawHeaders, err := reader.Read()
	if err != nil {
		return nil, "", err
	}

	columnMap := make(map[int]string)

	for i, h := range rawHeaders {
		if canonical, ok := headerAliases[normalize(h)]; ok {
			columnMap[i] = canonical
		}
	}

	if len(columnMap) == 0 {
		return nil, "", errors.New("CSV has no recognizable columns")
	}

	var tracks []models.Track

	// ---- Read rows ----
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}

		var t models.Track

		for i, v := range record {
			field, ok := columnMap[i]
			if !ok {
				continue
			}

			val := strings.TrimSpace(v)
			if val == "" {
				continue
			}

			switch field {
			case "title":
				t.Title = val
			case "artist":
				t.Artist = val
			case "time":
				t.Time = val
			case "date":
				t.Date = val
			case "favorited":
				t.Favorited = truthy(val)
			case "albumart":
				t.AlbumArt = val
			case "page":
				t.CapturedOnPage = val
			}
		}

		// Skip totally empty rows
		if t.Title == "" {
			continue
		}
		if t.Artist == "" {
			t.Artist = models.UnknownArtist
		}

		tracks = append(tracks, t)
	}

	return tracks, header.Filename, nil
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}
