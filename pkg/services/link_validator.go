package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// LinkValidator probes candidate URLs and drops unreachable ones before
// they reach the model. A dead listing link wastes an evaluation call and
// produces a proposal the reviewer cannot verify.
type LinkValidator struct {
	httpClient    *http.Client
	maxConcurrent int
	timeout       time.Duration
	logger        *zap.Logger
}

// NewLinkValidator creates a validator with bounded probe concurrency.
func NewLinkValidator(maxConcurrent int, timeout time.Duration, logger *zap.Logger) *LinkValidator {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &LinkValidator{
		httpClient:    &http.Client{Timeout: timeout},
		maxConcurrent: maxConcurrent,
		timeout:       timeout,
		logger:        logger.Named("link_validator"),
	}
}

// Validate probes every candidate URL concurrently and returns the
// reachable subset in the original order. Unreachable candidates are
// dropped silently; probe failures never fail the run.
func (v *LinkValidator) Validate(ctx context.Context, candidates []models.Candidate) []models.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	alive := make([]bool, len(candidates))
	var mu sync.Mutex

	g, probeCtx := errgroup.WithContext(ctx)
	g.SetLimit(v.maxConcurrent)

	for i, candidate := range candidates {
		g.Go(func() error {
			ok := v.probe(probeCtx, candidate.URL)
			mu.Lock()
			alive[i] = ok
			mu.Unlock()
			return nil
		})
	}

	// Probe goroutines never return errors; Wait only orders the writes.
	_ = g.Wait()

	var reachable []models.Candidate
	for i, candidate := range candidates {
		if alive[i] {
			reachable = append(reachable, candidate)
		} else {
			v.logger.Debug("dropping unreachable candidate",
				zap.String("url", candidate.URL),
				zap.String("title", candidate.Title))
		}
	}

	if dropped := len(candidates) - len(reachable); dropped > 0 {
		v.logger.Info("link validation dropped candidates",
			zap.Int("probed", len(candidates)),
			zap.Int("dropped", dropped))
	}

	return reachable
}

// probe checks a URL with HEAD, falling back to GET for servers that
// reject HEAD. Any network error or 4xx/5xx status counts as dead.
func (v *LinkValidator) probe(ctx context.Context, rawURL string) bool {
	if rawURL == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	status, err := v.request(probeCtx, http.MethodHead, rawURL)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = v.request(probeCtx, http.MethodGet, rawURL)
	}
	if err != nil {
		return false
	}

	return status < http.StatusBadRequest
}

func (v *LinkValidator) request(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
