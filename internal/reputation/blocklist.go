package reputation

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/score"
)

// SourceBlocklist names the local blocklist as a detection source
const SourceBlocklist = "Local Blocklist"

// Blocklist matches URLs against configured domains and path patterns
type Blocklist struct {
	domains  map[string]bool
	patterns []*regexp.Regexp
	boost    int
}

// NewBlocklist compiles the configured list. Invalid patterns are returned as an error.
func NewBlocklist(cfg model.BlocklistConfig) (*Blocklist, error) {
	b := &Blocklist{
		domains: make(map[string]bool, len(cfg.Domains)),
		boost:   cfg.Boost,
	}

	for _, domain := range cfg.Domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			b.domains[strings.TrimPrefix(domain, ".")] = true
		}
	}

	for _, p := range cfg.PathPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("blocklist pattern %q: %w", p, err)
		}
		b.patterns = append(b.patterns, re)
	}

	return b, nil
}

// Empty reports whether the list has nothing to match
func (b *Blocklist) Empty() bool {
	return len(b.domains) == 0 && len(b.patterns) == 0
}

func (b *Blocklist) Name() string {
	return SourceBlocklist
}

// Match returns a description of the first rule that matches rawURL
func (b *Blocklist) Match(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())

	// exact host, then every parent domain (login.evil.example -> evil.example -> example)
	for h := host; h != ""; {
		if b.domains[h] {
			return "domain " + h, true
		}
		idx := strings.Index(h, ".")
		if idx < 0 {
			break
		}
		h = h[idx+1:]
	}

	for _, re := range b.patterns {
		if re.MatchString(parsed.Path) {
			return "path pattern " + re.String(), true
		}
	}

	return "", false
}

// Signals returns one signal when rawURL is listed
func (b *Blocklist) Signals(_ context.Context, rawURL string) ([]score.Signal, error) {
	rule, ok := b.Match(rawURL)
	if !ok {
		return nil, nil
	}
	return []score.Signal{{
		Contribution: b.boost,
		Threat:       "Matched local blocklist (" + rule + ")",
		Source:       SourceBlocklist,
	}}, nil
}
