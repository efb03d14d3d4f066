package parser

import (
	"regexp"
	"strings"

	"wayve-go-srv/internal/models"
)

var (
	// Noise reduction regex
	noiseRegex = regexp.MustCompile(`(?i)\((official video|official audio|audio|video|lyrics|visualizer|HD|Remaster(ed)?)\)|\[(official video|official audio|audio|video|lyrics|visualizer|HD|Remaster(ed)?)\]`)
	featRegex  = regexp.MustCompile(`(?i)\bfeat\.?\b`)
	spaceRegex = regexp.MustCompile(`\s{2,}`)
	splitRegex = regexp.MustCompile(`\s+[-|–—|:]\s+`)
)

// SplitVideoTitle turns a raw video title into an (artist, title) pair.
// Uploader channel name is the artist of last resort.
func SplitVideoTitle(rawTitle string, uploader string) (string, string) {
	t := rawTitle

	t = noiseRegex.ReplaceAllString(t, "")
	t = featRegex.ReplaceAllString(t, "ft.")
	t = spaceRegex.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)

	// "Artist - Title" and friends
	parts := splitRegex.Split(t, 2)
	if len(parts) == 2 {
		left, right := parts[0], parts[1]
		if looksLikeArtist(left, right) {
			return capWords(left), capWords(right)
		}
		return capWords(right), capWords(left)
	}

	// No clear split: the uploader is the best artist guess we have.
	if uploader != "" {
		return capWords(uploader), capWords(t)
	}

	return models.UnknownArtist, capWords(t)
}

// looksLikeArtist: artist halves tend to be short or carry feature credits.
func looksLikeArtist(left, right string) bool {
	leftLower := strings.ToLower(left)
	if strings.Contains(left, ",") || strings.Contains(leftLower, "ft.") || strings.Contains(leftLower, "feat.") {
		return true
	}

	leftWords := len(strings.Fields(left))
	rightWords := len(strings.Fields(right))

	return leftWords <= 4 && rightWords >= 2
}

// capWords title-cases each word but preserves short acronyms (DJ, MF, ISRC).
func capWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == strings.ToUpper(w) && len(w) <= 4 {
			continue
		}
		words[i] = strings.Title(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}
