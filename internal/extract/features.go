package extract

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/phishlens/internal/model"
)

// NumFeatures is the fixed length of every feature vector
const NumFeatures = 20

// Canonical feature order. The trained model and the scaler depend on it.
const (
	LengthURL = iota
	LengthHostname
	IP
	NbDots
	NbQm
	NbEq
	NbSlash
	NbWWW
	RatioDigitsURL
	RatioDigitsHost
	TLDInSubdomain
	PrefixSuffix
	ShortestWordHost
	LongestWordsRaw
	LongestWordPath
	PhishHints
	NbHyperlinks
	RatioIntHyperlinks
	EmptyTitle
	DomainInTitle
)

// Names lists feature names in canonical order
var Names = [NumFeatures]string{
	"length_url",
	"length_hostname",
	"ip",
	"nb_dots",
	"nb_qm",
	"nb_eq",
	"nb_slash",
	"nb_www",
	"ratio_digits_url",
	"ratio_digits_host",
	"tld_in_subdomain",
	"prefix_suffix",
	"shortest_word_host",
	"longest_words_raw",
	"longest_word_path",
	"phish_hints",
	"nb_hyperlinks",
	"ratio_intHyperlinks",
	"empty_title",
	"domain_in_title",
}

// phishHintKeywords are counted once each when present anywhere in the URL
var phishHintKeywords = []string{"secure", "account", "webscr", "login", "ebayisapi", "signin", "banking", "confirm"}

// wordDelimiters split raw URLs and paths into words
const wordDelimiters = "/?=&.-"

// Vector is a raw feature vector in canonical order
type Vector [NumFeatures]float64

// Slice returns a copy of the vector as a slice
func (v Vector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Get returns a feature by name
func (v Vector) Get(name string) (float64, bool) {
	idx := Index(name)
	if idx < 0 {
		return 0, false
	}
	return v[idx], true
}

// Map returns every feature as an ordered map
func (v Vector) Map() model.FeatureMap {
	out := make(model.FeatureMap, NumFeatures)
	for i, name := range Names {
		out[i] = model.FeatureValue{Name: name, Value: v[i]}
	}
	return out
}

// Index returns the canonical position of a feature name, or -1
func Index(name string) int {
	for i, n := range Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Extract computes the feature vector for an observation.
// It never fails: malformed input degrades to zero-valued features.
func Extract(obs model.Observation) Vector {
	var v Vector

	rawURL := obs.URL
	host := obs.Hostname

	v[LengthURL] = float64(charLen(rawURL))
	v[LengthHostname] = float64(charLen(host))
	v[IP] = boolFeature(isNumericHost(host))

	v[NbDots] = float64(strings.Count(rawURL, "."))
	v[NbQm] = float64(strings.Count(rawURL, "?"))
	v[NbEq] = float64(strings.Count(rawURL, "="))
	v[NbSlash] = float64(strings.Count(rawURL, "/"))
	v[NbWWW] = float64(strings.Count(rawURL, "www."))

	v[RatioDigitsURL] = ratio(countDigits(rawURL), charLen(rawURL))
	v[RatioDigitsHost] = ratio(countDigits(host), charLen(host))

	v[TLDInSubdomain] = boolFeature(tldInSubdomain(host))
	v[PrefixSuffix] = boolFeature(strings.Contains(host, "-"))

	if host != "" {
		v[ShortestWordHost] = float64(shortestWord(host, ".-"))
	}
	v[LongestWordsRaw] = float64(longestWord(rawURL, wordDelimiters))
	v[LongestWordPath] = float64(longestWord(obs.Path, wordDelimiters))

	v[PhishHints] = float64(countPhishHints(rawURL))

	v[NbHyperlinks] = float64(len(obs.Hyperlinks))
	v[RatioIntHyperlinks] = internalLinkRatio(obs.Hyperlinks, host)

	v[EmptyTitle] = boolFeature(strings.TrimSpace(obs.Title) == "")
	v[DomainInTitle] = boolFeature(titleMentionsDomain(obs.Title, host))

	return v
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ratio divides and maps a zero denominator to 0
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	r := float64(num) / float64(den)
	return math.Min(math.Max(r, 0), 1)
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

// titleMentionsDomain reports whether title contains the hostname or its
// primary label: "example" for www.example.com, "paypal" for login.paypal.co.
// Numeric hosts only match in full.
func titleMentionsDomain(title, host string) bool {
	title = strings.ToLower(title)
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || strings.TrimSpace(title) == "" {
		return false
	}
	if strings.Contains(title, host) {
		return true
	}
	if isNumericHost(host) {
		return false
	}
	label := primaryLabel(host)
	return label != "" && strings.Contains(title, label)
}

// primaryLabel drops a leading "www." and the TLD and returns the label left of it
func primaryLabel(host string) string {
	labels := strings.Split(strings.TrimPrefix(host, "www."), ".")
	if len(labels) < 2 {
		return labels[0]
	}
	return labels[len(labels)-2]
}

// isNumericHost reports whether every dot-separated label is a number.
// Hex and octal labels count (0x7f.0.0.1 is a valid way to write an IP).
func isNumericHost(host string) bool {
	if host == "" {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if !isNumber(label) {
			return false
		}
	}
	return true
}

func isNumber(label string) bool {
	if label == "" {
		return false
	}
	if _, err := strconv.ParseInt(label, 0, 64); err == nil {
		return true
	}
	f, err := strconv.ParseFloat(label, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// tldInSubdomain reports whether the last label reappears among the labels left of the registrable part
func tldInSubdomain(host string) bool {
	labels := strings.Split(strings.ToLower(host), ".")
	if len(labels) < 3 {
		return false
	}
	tld := labels[len(labels)-1]
	if tld == "" {
		return false
	}
	for _, label := range labels[:len(labels)-2] {
		if label == tld {
			return true
		}
	}
	return false
}

func splitAny(s, delimiters string) []string {
	// strings.FieldsFunc drops empty fields; empty words still count as length 0
	var words []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(delimiters, r) {
			words = append(words, s[start:i])
			start = i + utf8.RuneLen(r)
		}
	}
	return append(words, s[start:])
}

func shortestWord(s, delimiters string) int {
	shortest := -1
	for _, w := range splitAny(s, delimiters) {
		if n := charLen(w); shortest < 0 || n < shortest {
			shortest = n
		}
	}
	return shortest
}

func longestWord(s, delimiters string) int {
	longest := 0
	for _, w := range splitAny(s, delimiters) {
		if n := charLen(w); n > longest {
			longest = n
		}
	}
	return longest
}

func countPhishHints(rawURL string) int {
	lower := strings.ToLower(rawURL)
	n := 0
	for _, kw := range phishHintKeywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

// internalLinkRatio is the share of hyperlinks that mention the page's own host
func internalLinkRatio(links []string, host string) float64 {
	if len(links) == 0 || host == "" {
		return 0
	}
	internal := 0
	for _, link := range links {
		if strings.Contains(link, host) {
			internal++
		}
	}
	return ratio(internal, len(links))
}
