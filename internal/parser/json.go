package parser

import (
	"encoding/json"
	"errors"
	"io"

	"wayve-go-srv/internal/models"
)

// ParseHistoryJSON reads an exported history document. Unknown fields are
// ignored so documents from newer builds still import.
func ParseHistoryJSON(r io.Reader) ([]models.Track, string, error) {
	var doc models.History
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, "", err
	}
	if len(doc.Tracks) == 0 {
		return nil, "", errors.New("document contains no tracks")
	}

	for i := range doc.Tracks {
		if doc.Tracks[i].Artist == "" {
			doc.Tracks[i].Artist = models.UnknownArtist
		}
	}

	label := doc.Source
	if label == "" {
		label = "JSON import"
	}
	return doc.Tracks, label, nil
}
