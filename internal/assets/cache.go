// Package assets downloads page assets into a shared directory, deduplicated
// by source URL, and yields the relative paths documents should reference.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/codefetch/harvester/internal/hash/sha256"
)

var (
	// downloads counts asset bodies actually written to disk.
	downloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_asset_downloads_total",
		Help: "The total number of asset files downloaded.",
	})
	// cacheHits counts Localize calls answered from the in-memory map.
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_asset_cache_hits_total",
		Help: "The total number of asset lookups served from the dedup cache.",
	})
	// failures counts asset fetches that fell back to the remote URL.
	failures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_asset_failures_total",
		Help: "The total number of asset downloads that failed.",
	})
)

const hashSuffixLen = 8

// Cache is the URL→local-path dedup store shared by all concurrent fetches.
// Lookups and inserts are guarded by a mutex; the download itself happens
// outside the lock, so two goroutines racing on a brand-new URL may both
// download it. That race is accepted: both write the same bytes to the same
// name, and the file-exists check keeps it rare.
type Cache struct {
	dir       string
	relPrefix string
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	paths map[string]string
}

// New creates the asset directory and returns a Cache. dir is the on-disk
// location; relPrefix is the path prefix documents use to reference assets
// (typically the subdirectory name).
func New(dir, relPrefix, userAgent string, timeout time.Duration, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create assets dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		dir:       dir,
		relPrefix: relPrefix,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
		paths:     make(map[string]string),
	}, nil
}

// Localize ensures the asset at rawURL exists locally and returns the
// relative path documents should use. ok is false when the asset could not
// be fetched; callers keep the original remote reference in that case.
// Safe for concurrent use.
func (c *Cache) Localize(ctx context.Context, rawURL string) (string, bool) {
	c.mu.Lock()
	if rel, ok := c.paths[rawURL]; ok {
		c.mu.Unlock()
		cacheHits.Inc()
		return rel, true
	}
	c.mu.Unlock()

	name, err := localName(rawURL)
	if err != nil {
		failures.Inc()
		return "", false
	}
	target := filepath.Join(c.dir, name)
	rel := path.Join(c.relPrefix, name)

	// Best-effort exists check; a lost race means one redundant download.
	if _, err := os.Stat(target); err != nil {
		if err := c.download(ctx, rawURL, target); err != nil {
			failures.Inc()
			c.logger.Debug("asset download failed, keeping remote reference",
				zap.String("url", rawURL),
				zap.Error(err),
			)
			return "", false
		}
		downloads.Inc()
	}

	c.mu.Lock()
	c.paths[rawURL] = rel
	c.mu.Unlock()
	return rel, true
}

func (c *Cache) download(ctx context.Context, rawURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build asset request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch asset: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read asset body: %w", err)
	}
	if err := os.WriteFile(target, body, 0o600); err != nil {
		return fmt.Errorf("write asset %s: %w", target, err)
	}
	return nil
}

// localName derives a stable file name for an asset URL: the URL path's base
// name plus a short URL digest, so identical base names from different paths
// do not collide.
func localName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		base = "index.html"
	}
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if i := strings.IndexByte(ext, '?'); i >= 0 {
		ext = ext[:i]
	}
	digest := sha256.SumString(rawURL, hashSuffixLen)
	return fmt.Sprintf("%s_%s%s", stem, digest, ext), nil
}
