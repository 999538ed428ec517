package classify

import (
	"context"
	"embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/phishlens/internal/util"
)

//go:embed assets/network.json assets/scaler.json
var assets embed.FS

const (
	defaultNetworkAsset = "assets/network.json"
	defaultScalerAsset  = "assets/scaler.json"
	maxResourceBytes    = 8 << 20
)

// Loader produces a classifier and its scaler. Called at most once per
// successful load by Service.
type Loader interface {
	Load(ctx context.Context) (Classifier, *Scaler, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (Classifier, *Scaler, error)

func (f LoaderFunc) Load(ctx context.Context) (Classifier, *Scaler, error) {
	return f(ctx)
}

// ResourceLoader reads network weights and scaler parameters from
// the embedded defaults, a file path, or an http(s) URL.
type ResourceLoader struct {
	NetworkLocation string
	ScalerLocation  string
	HTTPClient      *http.Client
}

// NewResourceLoader creates a loader. Empty locations select the embedded artefacts.
func NewResourceLoader(networkLocation, scalerLocation string, timeout time.Duration) *ResourceLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ResourceLoader{
		NetworkLocation: networkLocation,
		ScalerLocation:  scalerLocation,
		HTTPClient:      &http.Client{Timeout: timeout},
	}
}

// Load reads both artefacts
func (l *ResourceLoader) Load(ctx context.Context) (Classifier, *Scaler, error) {
	rc, err := l.open(ctx, l.NetworkLocation, defaultNetworkAsset)
	if err != nil {
		return nil, nil, fmt.Errorf("open network: %w", err)
	}
	network, err := ReadNetwork(io.LimitReader(rc, maxResourceBytes))
	_ = rc.Close()
	if err != nil {
		return nil, nil, err
	}

	rc, err = l.open(ctx, l.ScalerLocation, defaultScalerAsset)
	if err != nil {
		return nil, nil, fmt.Errorf("open scaler: %w", err)
	}
	scaler, err := ReadScaler(io.LimitReader(rc, maxResourceBytes))
	_ = rc.Close()
	if err != nil {
		return nil, nil, err
	}

	return network, scaler, nil
}

func (l *ResourceLoader) open(ctx context.Context, location, embedded string) (io.ReadCloser, error) {
	switch {
	case location == "" || location == "embedded":
		return assets.Open(embedded)
	case strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://"):
		return l.fetch(ctx, location)
	default:
		return os.Open(util.ExpandHome(location))
	}
}

func (l *ResourceLoader) fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := l.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}
