package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const archiveContentType = "text/html; charset=utf-8"

// PageArchive keeps a copy of every fetched record page in a BlobStore,
// keyed by the digest of its body. Failures are logged and never interrupt a crawl.
type PageArchive struct {
	store  BlobStore
	hasher Hasher
	prefix string
	logger *zap.Logger
}

// NewPageArchive returns an archive writing under prefix.
func NewPageArchive(store BlobStore, hasher Hasher, prefix string, logger *zap.Logger) *PageArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageArchive{
		store:  store,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Store writes page and returns the blob URI, or "" when it could not be archived.
func (a *PageArchive) Store(ctx context.Context, page Page) string {
	uri, err := a.put(ctx, page)
	if err != nil {
		a.logger.Warn("archive record page failed", zap.String("url", page.URL), zap.Error(err))
		return ""
	}
	a.logger.Debug("archived record page", zap.String("url", page.URL), zap.String("uri", uri))
	return uri
}

func (a *PageArchive) put(ctx context.Context, page Page) (string, error) {
	if len(page.Body) == 0 {
		return "", fmt.Errorf("empty page body")
	}
	digest, err := a.hasher.Hash(page.Body)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}
	path := digest + ".html"
	if a.prefix != "" {
		path = a.prefix + "/" + path
	}
	uri, err := a.store.PutObject(ctx, path, archiveContentType, bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	return uri, nil
}
