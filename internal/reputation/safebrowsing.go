package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/score"
)

// SourceSafeBrowsing names the remote lookup as a detection source
const SourceSafeBrowsing = "Safe Browsing"

var threatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
}

// Verdict is the outcome of one lookup
type Verdict struct {
	Flagged     bool     `json:"flagged"`
	ThreatTypes []string `json:"threat_types,omitempty"`
}

// Client queries a Safe Browsing v4 compatible threatMatches:find endpoint.
// Verdicts are cached and requests are rate limited.
type Client struct {
	endpoint   string
	apiKey     string
	clientID   string
	version    string
	boost      int
	httpClient *http.Client
	limiter    *rate.Limiter
	verdicts   *gocache.Cache
	logger     *slog.Logger
}

// NewClient creates a reputation client from config
func NewClient(cfg model.ReputationConfig, version string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		clientID:   cfg.ClientID,
		version:    version,
		boost:      cfg.Boost,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		verdicts:   gocache.New(ttl, 2*ttl),
		logger:     logger,
	}
}

func (c *Client) Name() string {
	return SourceSafeBrowsing
}

type lookupRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string      `json:"threatTypes"`
		PlatformTypes    []string      `json:"platformTypes"`
		ThreatEntryTypes []string      `json:"threatEntryTypes"`
		ThreatEntries    []threatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type lookupResponse struct {
	Matches []struct {
		ThreatType string      `json:"threatType"`
		Threat     threatEntry `json:"threat"`
	} `json:"matches"`
}

// Lookup returns the verdict for rawURL, from cache when possible
func (c *Client) Lookup(ctx context.Context, rawURL string) (Verdict, error) {
	if v, ok := c.verdicts.Get(rawURL); ok {
		return v.(Verdict), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Verdict{}, fmt.Errorf("rate limit: %w", err)
	}

	var body lookupRequest
	body.Client.ClientID = c.clientID
	body.Client.ClientVersion = c.version
	body.ThreatInfo.ThreatTypes = threatTypes
	body.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	body.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	body.ThreatInfo.ThreatEntries = []threatEntry{{URL: rawURL}}

	payload, err := json.Marshal(body)
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.endpoint
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Verdict{}, fmt.Errorf("lookup returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, fmt.Errorf("decode response: %w", err)
	}

	var verdict Verdict
	seen := make(map[string]bool)
	for _, m := range out.Matches {
		verdict.Flagged = true
		if m.ThreatType != "" && !seen[m.ThreatType] {
			seen[m.ThreatType] = true
			verdict.ThreatTypes = append(verdict.ThreatTypes, m.ThreatType)
		}
	}

	c.verdicts.Set(rawURL, verdict, gocache.DefaultExpiration)
	c.logger.Debug("reputation lookup", "url", rawURL, "flagged", verdict.Flagged)
	return verdict, nil
}

// Signals returns one signal when the URL is flagged
func (c *Client) Signals(ctx context.Context, rawURL string) ([]score.Signal, error) {
	verdict, err := c.Lookup(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !verdict.Flagged {
		return nil, nil
	}

	threat := "URL flagged by " + SourceSafeBrowsing
	if len(verdict.ThreatTypes) > 0 {
		threat += " (" + strings.Join(verdict.ThreatTypes, ", ") + ")"
	}
	return []score.Signal{{
		Contribution: c.boost,
		Threat:       threat,
		Source:       SourceSafeBrowsing,
	}}, nil
}
