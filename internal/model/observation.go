package model

import (
	"net/url"
	"strings"
)

// Observation is everything the detector knows about one page visit.
// Hostname is expected to be the authority component of URL; the extractor
// never re-derives one from the other.
type Observation struct {
	URL        string   `json:"url"`
	Hostname   string   `json:"hostname"`
	Path       string   `json:"path,omitempty"`
	Title      string   `json:"title,omitempty"`
	Hyperlinks []string `json:"hyperlinks,omitempty"`
}

// ObservationFromURL builds an Observation, deriving hostname and path from rawURL.
// An unparseable URL yields empty hostname and path rather than an error.
func ObservationFromURL(rawURL, title string, hyperlinks []string) Observation {
	obs := Observation{
		URL:        rawURL,
		Title:      title,
		Hyperlinks: hyperlinks,
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return obs
	}

	obs.Hostname = parsed.Hostname()
	obs.Path = parsed.EscapedPath()
	return obs
}
