// Package reputation supplies external risk signals: a remote URL reputation
// lookup and a local blocklist. Neither feeds the classifier.
package reputation

import (
	"context"

	"github.com/ppiankov/phishlens/internal/score"
)

// Source produces zero or more signals for a URL
type Source interface {
	Name() string
	Signals(ctx context.Context, rawURL string) ([]score.Signal, error)
}
