package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/phishlens/internal/model"
)

// Scanner scans a single URL
type Scanner interface {
	ScanURL(ctx context.Context, rawURL string) (*model.ScanResult, error)
}

// ScanJob scans one URL after waiting for its host's rate limit
type ScanJob struct {
	URL     string
	Scanner Scanner
	Limiter *Limiter
}

// Execute runs the scan
func (j *ScanJob) Execute(ctx context.Context) Result {
	if j.Limiter != nil {
		if err := j.Limiter.Wait(ctx, j.URL); err != nil {
			return &BatchResult{URL: j.URL, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	result, err := j.Scanner.ScanURL(ctx, j.URL)
	return &BatchResult{URL: j.URL, Result: result, Err: err}
}

// BatchResult is the outcome of one URL in a batch
type BatchResult struct {
	URL    string
	Result *model.ScanResult
	Err    error
}

// GetError returns the scan error
func (r *BatchResult) GetError() error {
	return r.Err
}

// BatchProcessor scans many URLs concurrently
type BatchProcessor struct {
	scanner     Scanner
	concurrency int
	limiter     *Limiter
}

// NewBatchProcessor creates a batch processor. A non-positive rps disables per-host limiting.
func NewBatchProcessor(scanner Scanner, concurrency int, rps float64, burst int) *BatchProcessor {
	var limiter *Limiter
	if rps > 0 {
		limiter = NewLimiter(rps, burst)
	}
	return &BatchProcessor{
		scanner:     scanner,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// ProcessURLs scans urls and returns one result per URL, in input order
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*BatchResult {
	if len(urls) == 0 {
		return []*BatchResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, u := range urls {
		if !pool.Submit(&ScanJob{URL: u, Scanner: b.scanner, Limiter: b.limiter}) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*BatchResult, len(urls))
	for i, u := range urls {
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*BatchResult)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("not scanned")
		}
		out[i] = &BatchResult{URL: u, Err: err}
	}
	return out
}

// ProcessFile reads URLs from a file and scans them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*BatchResult, error) {
	urls, err := ReadURLsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read URLs: %w", err)
	}

	return b.ProcessURLs(ctx, urls), nil
}

// ReadURLsFromFile reads one URL per line; "-" reads stdin
func ReadURLsFromFile(filePath string) ([]string, error) {
	if filePath == "-" {
		return ReadURLs(os.Stdin)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadURLs(file)
}

// ReadURLs reads one URL per line, skipping blanks, # comments and duplicates
func ReadURLs(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}

	return urls, nil
}

// Summary counts batch outcomes
type Summary struct {
	Total   int
	Failed  int
	Blocked int
	ByTier  map[model.RiskTier]int
}

// Summarize tallies results. Degraded results count as failed.
func Summarize(results []*BatchResult) Summary {
	s := Summary{Total: len(results), ByTier: make(map[model.RiskTier]int)}
	for _, r := range results {
		if r.Err != nil || r.Result == nil || r.Result.Error != "" {
			s.Failed++
			continue
		}
		s.ByTier[r.Result.RiskTier]++
		if r.Result.Blocked {
			s.Blocked++
		}
	}
	return s
}
