package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ArtifactSink saves extracted documents to disk.
type ArtifactSink struct {
	root     string
	maxBytes int64
	logger   *zap.Logger
}

// NewArtifactSink returns a sink rooted at dir.
func NewArtifactSink(root string, maxBytes int64, logger *zap.Logger) (*ArtifactSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactSink{
		root:     root,
		maxBytes: maxBytes,
		logger:   logger,
	}, nil
}

// Root returns the directory artifacts are written to.
func (s *ArtifactSink) Root() string {
	return s.root
}

// Save writes one document under the sink root and returns its path.
func (s *ArtifactSink) Save(ctx context.Context, name string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty document body")
	}
	if s.maxBytes > 0 && int64(len(body)) > s.maxBytes {
		return "", fmt.Errorf("document size %d exceeds max %d", len(body), s.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	target := filepath.Join(s.root, name)
	if err := os.WriteFile(target, body, 0o600); err != nil {
		return "", fmt.Errorf("writing document to %s: %w", target, err)
	}
	return target, nil
}
