package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"retryrelay/internal/platform/httpclient"
	"retryrelay/internal/shared"
)

// ProbeResult is the latest outcome of probing one target.
type ProbeResult struct {
	Target    string    `json:"target"`
	OK        bool      `json:"ok"`
	Status    int       `json:"status,omitempty"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ProbeBook keeps the latest ProbeResult per target.
type ProbeBook struct {
	mu      sync.RWMutex
	results map[string]ProbeResult
}

// NewProbeBook returns an empty book.
func NewProbeBook() *ProbeBook {
	return &ProbeBook{results: make(map[string]ProbeResult)}
}

// Record replaces the result stored for r.Target.
func (b *ProbeBook) Record(r ProbeResult) {
	b.mu.Lock()
	b.results[r.Target] = r
	b.mu.Unlock()
}

// Get returns the result for target.
func (b *ProbeBook) Get(target string) (ProbeResult, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.results[target]
	return r, ok
}

// Snapshot returns all results ordered by target.
func (b *ProbeBook) Snapshot() []ProbeResult {
	b.mu.RLock()
	out := make([]ProbeResult, 0, len(b.results))
	for _, r := range b.results {
		out = append(out, r)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Requester is the part of httpclient.Client a Prober needs.
type Requester interface {
	Request(ctx context.Context, cfg httpclient.RequestConfig) (*httpclient.Response, error)
}

// ProbeConfig configures a Prober.
type ProbeConfig struct {
	Targets []string
	// Code is the envelope code expected from healthy targets
	Code string
	// Raw accepts any 2xx response without decoding an envelope
	Raw   bool
	Retry httpclient.RetryOptions
	Now   func() time.Time
}

// Prober checks upstream targets through the retrying client and records the
// outcome in a ProbeBook.
type Prober struct {
	client Requester
	book   *ProbeBook
	cfg    ProbeConfig
	log    *slog.Logger
}

// NewProber builds a prober writing into book.
func NewProber(client Requester, book *ProbeBook, cfg ProbeConfig, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Prober{client: client, book: book, cfg: cfg, log: log.With("component", "prober")}
}

// Run probes every target concurrently. It returns an error joining the
// failures so the scheduler reports the run as failed.
func (p *Prober) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, target := range p.cfg.Targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			res := p.probe(ctx, target)
			p.book.Record(res)
			if !res.OK {
				mu.Lock()
				errs = append(errs, errors.New(target+": "+res.Error))
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (p *Prober) probe(ctx context.Context, target string) ProbeResult {
	var retries atomic.Int32
	opts := p.cfg.Retry
	opts.OnRetry = func(int, error, time.Duration) { retries.Add(1) }

	resp, err := p.client.Request(ctx, httpclient.RequestConfig{
		URL:            target,
		Code:           p.cfg.Code,
		UseRawResponse: p.cfg.Raw,
		Retry:          &opts,
	})

	res := ProbeResult{
		Target:    target,
		Attempts:  int(retries.Load()) + 1,
		CheckedAt: p.cfg.Now(),
	}
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			res.Status = se.Status
		}
		res.Error = err.Error()
		p.log.Warn("probe failed", "target", target, "attempts", res.Attempts, "kind", shared.KindOf(err).String(), "error", err)
		return res
	}
	res.OK = true
	res.Status = resp.Status
	p.log.Debug("probe ok", "target", target, "status", resp.Status, "attempts", res.Attempts)
	return res
}
