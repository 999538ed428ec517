// Package explain picks the features worth surfacing for a scan and describes them.
// Its output is for display only and never feeds back into the risk score.
package explain

import (
	"strings"

	"github.com/ppiankov/phishlens/internal/extract"
	"github.com/ppiankov/phishlens/internal/model"
)

// ratioFloor is the value a ratio feature must exceed to be significant
const ratioFloor = 0.3

// Descriptions maps every feature name to a human-readable description
var Descriptions = map[string]string{
	"length_url":          "Length of the full URL",
	"length_hostname":     "Length of the hostname",
	"ip":                  "Hostname is an IP address",
	"nb_dots":             "Number of dots in the URL",
	"nb_qm":               "Number of question marks in the URL",
	"nb_eq":               "Number of equals signs in the URL",
	"nb_slash":            "Number of slashes in the URL",
	"nb_www":              "Occurrences of \"www.\" in the URL",
	"ratio_digits_url":    "Share of digits in the URL",
	"ratio_digits_host":   "Share of digits in the hostname",
	"tld_in_subdomain":    "Top-level domain repeated in a subdomain",
	"prefix_suffix":       "Hyphen in the hostname",
	"shortest_word_host":  "Shortest word in the hostname",
	"longest_words_raw":   "Longest word in the URL",
	"longest_word_path":   "Longest word in the path",
	"phish_hints":         "Phishing keywords in the URL (login, secure, account, ...)",
	"nb_hyperlinks":       "Number of links on the page",
	"ratio_intHyperlinks": "Share of links pointing to the same host",
	"empty_title":         "Page has no title",
	"domain_in_title":     "Domain name missing from the page title",
}

type rule func(v float64) bool

var (
	ratioRule   rule = func(v float64) bool { return v > ratioFloor }
	flagRule    rule = func(v float64) bool { return v == 1 }
	invertRule  rule = func(v float64) bool { return v == 0 }
	presentRule rule = func(v float64) bool { return v > 0 }
)

// rules is indexed by feature position
var rules = func() [extract.NumFeatures]rule {
	var r [extract.NumFeatures]rule
	for i, name := range extract.Names {
		switch {
		case strings.HasPrefix(name, "ratio_"):
			r[i] = ratioRule
		case i == extract.IP, i == extract.TLDInSubdomain, i == extract.PrefixSuffix, i == extract.EmptyTitle:
			r[i] = flagRule
		case i == extract.DomainInTitle:
			// absence of the domain from the title is the suspicious condition
			r[i] = invertRule
		default:
			r[i] = presentRule
		}
	}
	return r
}()

// SignificantFeatures returns the noteworthy features with their raw values, in canonical order.
// Every slot is judged independently.
func SignificantFeatures(v extract.Vector) model.FeatureMap {
	out := make(model.FeatureMap, 0, extract.NumFeatures)
	for i, value := range v {
		if rules[i](value) {
			out = append(out, model.FeatureValue{Name: extract.Names[i], Value: value})
		}
	}
	return out
}

// Explanation is a significant feature ready for display
type Explanation struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

// Explain pairs each significant feature with its description
func Explain(features model.FeatureMap) []Explanation {
	out := make([]Explanation, 0, len(features))
	for _, f := range features {
		desc, ok := Descriptions[f.Name]
		if !ok {
			desc = f.Name
		}
		out = append(out, Explanation{Name: f.Name, Value: f.Value, Description: desc})
	}
	return out
}
