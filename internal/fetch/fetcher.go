// Package fetch implements the per-identifier fetch pipeline: one colly
// request, secret-code and fragment extraction, asset localization, and
// artifact persistence.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/codefetch/harvester/internal/harvest"
)

// Localizer resolves an absolute asset URL to a local relative path,
// downloading it at most once. ok is false when the asset is unavailable and
// the remote reference should be kept.
type Localizer interface {
	Localize(ctx context.Context, rawURL string) (string, bool)
}

// ArtifactSink persists one extracted document per identifier.
type ArtifactSink interface {
	Save(ctx context.Context, name string, body []byte) (string, error)
}

// Config controls Fetcher behavior.
type Config struct {
	// BaseURL is a printf template with a single %s for the padded identifier.
	BaseURL string
	// PadWidth is the zero-padding width applied to identifiers.
	PadWidth int
	// UserAgent is sent on every page request.
	UserAgent string
	// Timeout bounds one page request.
	Timeout time.Duration
	// Concurrency sizes the transport connection pool.
	Concurrency int
}

// Fetcher performs one attempt per identifier via a shared colly collector.
// It never returns an error: transport and parse failures become status 0
// outcomes with the "Error" sentinel. Safe for concurrent use; the only
// shared mutable state is the injected asset cache.
type Fetcher struct {
	cfg       Config
	base      *colly.Collector
	assets    Localizer
	artifacts ArtifactSink
	logger    *zap.Logger
}

// New constructs a configured colly-based Fetcher.
func New(cfg Config, assets Localizer, artifacts ArtifactSink, logger *zap.Logger) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL template must be set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	)
	// Retry rounds revisit the same URL.
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       maxInt(2, cfg.Concurrency*2),
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:       cfg,
		base:      base,
		assets:    assets,
		artifacts: artifacts,
		logger:    logger,
	}, nil
}

// Fetch performs one attempt for id and folds every failure into the
// returned Outcome.
func (f *Fetcher) Fetch(ctx context.Context, id harvest.ID) harvest.Outcome {
	padded := id.Padded(f.cfg.PadWidth)
	target := fmt.Sprintf(f.cfg.BaseURL, padded)

	out := harvest.Outcome{ID: id, SecretCode: harvest.CodeNotFound}

	status, body, err := f.get(ctx, target)
	out.Status = status
	if status == 0 {
		out.SecretCode = harvest.CodeError
		f.logger.Debug("page fetch failed",
			zap.String("url", target),
			zap.Error(err),
		)
		return out
	}
	if status != http.StatusOK {
		return out
	}

	f.process(ctx, target, padded, body, &out)
	return out
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// get issues one request through a collector clone and waits for the single
// response or error callback.
func (f *Fetcher) get(ctx context.Context, target string) (int, []byte, error) {
	collector := f.base.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})
	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{
			status: r.StatusCode,
			body:   append([]byte{}, r.Body...),
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{status: status, err: err})
	})

	if err := collector.Visit(target); err != nil {
		return 0, nil, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		return res.status, res.body, res.err
	default:
		return 0, nil, errors.New("fetch produced no result")
	}
}

// process extracts the secret code and, when the instruction card is
// present, builds and saves the self-contained document. Extraction failure
// leaves the sentinel payload in place; a parse failure downgrades the
// attempt to a transport error.
func (f *Fetcher) process(ctx context.Context, pageURL, padded string, body []byte, out *harvest.Outcome) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		out.Status = 0
		out.SecretCode = harvest.CodeError
		f.logger.Debug("page parse failed", zap.String("url", pageURL), zap.Error(err))
		return
	}

	if code, ok := extractSecretCode(doc); ok {
		out.SecretCode = code
	}

	fragment := doc.Find(fragmentSelector).First()
	if fragment.Length() == 0 {
		return
	}
	rendered, err := f.buildDocument(ctx, pageURL, doc, fragment)
	if err != nil {
		f.logger.Warn("document build failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	if f.artifacts == nil {
		return
	}
	if _, err := f.artifacts.Save(ctx, padded+".html", rendered); err != nil {
		f.logger.Warn("artifact save failed", zap.String("id", padded), zap.Error(err))
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
