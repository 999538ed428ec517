package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/phishlens/internal/model"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistory_SaveAndLast(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &model.ScanResult{
		ID: "one", URL: "http://phish.example/login", RiskScore: 40, RiskTier: model.TierLow,
		ClassifierProbability: 0.4, Timestamp: base,
	}
	second := &model.ScanResult{
		ID: "two", URL: "http://phish.example/login", RiskScore: 100, RiskTier: model.TierHigh,
		ClassifierProbability: 0.8, Blocked: true,
		SignificantFeatures: model.FeatureMap{{Name: "ip", Value: 1}, {Name: "phish_hints", Value: 1}},
		Threats:             []string{"URL flagged by Safe Browsing"},
		Sources:             []string{"Safe Browsing"},
		Timestamp:           base.Add(time.Minute),
	}
	require.NoError(t, h.Save(ctx, first))
	require.NoError(t, h.Save(ctx, second))

	got, err := h.Last(ctx, "http://phish.example/login")
	require.NoError(t, err)
	assert.Equal(t, "two", got.ID)
	assert.Equal(t, 100, got.RiskScore)
	assert.Equal(t, model.TierHigh, got.RiskTier)
	assert.True(t, got.Blocked)
	assert.Equal(t, []string{"ip", "phish_hints"}, got.SignificantFeatures.Names())
	assert.Equal(t, []string{"Safe Browsing"}, got.Sources)
	assert.True(t, got.Timestamp.Equal(second.Timestamp))
}

func TestHistory_LastNotFound(t *testing.T) {
	h := openTestHistory(t)

	_, err := h.Last(context.Background(), "https://never.example")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHistory_RecentNewestFirst(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, tier := range []model.RiskTier{model.TierLow, model.TierMedium, model.TierHigh, model.TierLow} {
		require.NoError(t, h.Save(ctx, &model.ScanResult{
			URL: "https://example.com", RiskTier: tier, RiskScore: i * 10, Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 30, recent[0].RiskScore)
	assert.Equal(t, 20, recent[1].RiskScore)
	assert.NotEmpty(t, recent[0].ID)

	counts, err := h.TierCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.TierLow])
	assert.Equal(t, 1, counts[model.TierHigh])
}

func TestHistory_SaveNil(t *testing.T) {
	h := openTestHistory(t)
	assert.Error(t, h.Save(context.Background(), nil))
}
