package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/phishlens/internal/model"
)

func TestKey_Canonical(t *testing.T) {
	a := Key("HTTPS://Example.COM/Login?x=1#top")
	b := Key("https://example.com/Login?x=1")
	if a != b {
		t.Errorf("Expected scheme/host case and fragment to be ignored")
	}
	if Key("https://example.com/login") == Key("https://example.com/Login") {
		t.Errorf("Expected path case to matter")
	}
	if !strings.HasPrefix(a, "phishlens:v1:") {
		t.Errorf("Expected versioned prefix, got %s", a)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	value := []byte("hello")
	if err := c.Set("k", value, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'j'

	got, ok := c.Get("k")
	if !ok || string(got) != "hello" {
		t.Errorf("Expected stored copy 'hello', got %q (found=%v)", got, ok)
	}

	c.Set("short", []byte("x"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("Expected entry to expire")
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry to be deleted")
	}
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(filepath.Join(dir, "cache"), time.Hour)

	key := Key("https://example.com")
	if err := c.Set(key, []byte("payload"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get(key)
	if !ok || string(got) != "payload" {
		t.Errorf("Expected 'payload', got %q (found=%v)", got, ok)
	}

	if err := c.Set("expired", []byte("x"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get("expired"); ok {
		t.Error("Expected expired entry to miss")
	}

	if err := c.Delete("missing"); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := os.WriteFile(c.path("bad"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("Expected corrupt entry to miss")
	}
	if _, err := os.Stat(c.path("bad")); !os.IsNotExist(err) {
		t.Error("Expected corrupt entry to be removed")
	}
}

func TestDiskCache_PruneAndClear(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	c.Set("fresh", []byte("1"), time.Hour)
	c.Set("stale", []byte("2"), -time.Minute)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644)

	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("Expected fresh entry to survive prune")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.Get("fresh"); ok {
		t.Error("Expected cleared entry to miss")
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("Expected foreign files to survive Clear")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	layered := NewLayeredCache(time.Minute, dir, time.Hour)

	// write through a second instance so only the disk layer has it
	other := NewLayeredCache(time.Minute, dir, time.Hour)
	if err := other.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := layered.memory.Get("k"); ok {
		t.Fatal("Expected memory layer to start empty")
	}
	got, ok := layered.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("Expected disk hit 'v', got %q", got)
	}
	if _, ok := layered.memory.Get("k"); !ok {
		t.Error("Expected disk hit to be promoted to memory")
	}

	if err := layered.Delete("k"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if _, ok := layered.Get("k"); ok {
		t.Error("Expected entry deleted from both layers")
	}
}

func TestResultStore(t *testing.T) {
	store := NewResultStore(NewMemoryCache(time.Minute, time.Minute), 0)

	result := &model.ScanResult{
		ID:                    "abc",
		URL:                   "https://example.com/login",
		RiskScore:             62,
		RiskTier:              model.TierMedium,
		ClassifierProbability: 0.62,
		SignificantFeatures: model.FeatureMap{
			{Name: "phish_hints", Value: 1},
			{Name: "domain_in_title", Value: 0},
		},
		Threats:   []string{"ML model detected phishing patterns (62% confidence)"},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := store.Put(result); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := store.Get("HTTPS://EXAMPLE.com/login#frag")
	if !ok {
		t.Fatal("Expected cached result")
	}
	if got.RiskScore != 62 || got.RiskTier != model.TierMedium {
		t.Errorf("Unexpected result: %+v", got)
	}
	names := got.SignificantFeatures.Names()
	if len(names) != 2 || names[0] != "phish_hints" || names[1] != "domain_in_title" {
		t.Errorf("Expected feature order preserved, got %v", names)
	}

	store.Forget(result.URL)
	if _, ok := store.Get(result.URL); ok {
		t.Error("Expected forgotten result to miss")
	}
}

func TestResultStore_SkipsDegradedResults(t *testing.T) {
	store := NewResultStore(NewMemoryCache(time.Minute, time.Minute), 0)

	store.Put(&model.ScanResult{URL: "https://example.com", Error: "model unavailable"})
	if _, ok := store.Get("https://example.com"); ok {
		t.Error("Expected degraded result not to be cached")
	}
}
