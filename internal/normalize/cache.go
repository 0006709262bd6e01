package normalize

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgard/instabridge/internal/config"
)

// MediaCache stores downloaded media files under a content-addressed
// layout: the filename derives from the media type and a hash of the
// source URL, so the same media is never downloaded twice.
type MediaCache struct {
	dir         string
	maxFileSize int64
	httpClient  *http.Client
	logger      *slog.Logger
}

// CacheStats summarizes the on-disk cache.
type CacheStats struct {
	FileCount   int     `json:"file_count"`
	TotalSizeMB float64 `json:"total_size_mb"`
	CacheDir    string  `json:"cache_dir"`
}

// NewMediaCache creates the cache, ensuring its directory exists.
func NewMediaCache(cfg config.MediaConfig, logger *slog.Logger) (*MediaCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media cache dir: %w", err)
	}
	return &MediaCache{
		dir:         cfg.CacheDir,
		maxFileSize: cfg.MaxFileSize,
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		logger:      logger.With("component", "media_cache"),
	}, nil
}

// CachePath returns the deterministic local path for a source URL. The
// path depends only on the media type and URL, never on download order.
func (c *MediaCache) CachePath(sourceURL, mediaType string) string {
	sum := md5.Sum([]byte(sourceURL))
	name := mediaType + "_" + hex.EncodeToString(sum[:]) + extensionFromURL(sourceURL)
	return filepath.Join(c.dir, name)
}

// Fetch downloads the media unless it is already cached, returning the
// local path either way.
func (c *MediaCache) Fetch(ctx context.Context, sourceURL, mediaType string) (string, error) {
	cachePath := c.CachePath(sourceURL, mediaType)

	if _, err := os.Stat(cachePath); err == nil {
		c.logger.Debug("Media already cached", "path", cachePath)
		return cachePath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build media request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}

	// Write through a temp file so a partial download never becomes a
	// cache hit.
	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, io.LimitReader(resp.Body, c.maxFileSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if written > c.maxFileSize {
		return "", fmt.Errorf("media exceeds size limit of %d bytes", c.maxFileSize)
	}

	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		return "", fmt.Errorf("failed to move media into cache: %w", err)
	}

	c.logger.Debug("Media cached", "path", cachePath, "size", written)
	return cachePath, nil
}

// Cleanup removes cached files older than maxAge. Returns the number of
// files removed.
func (c *MediaCache) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
				c.logger.Warn("Failed to remove cached media", "file", entry.Name(), "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("Cleaned up media cache", "removed", removed)
	}
	return removed, nil
}

// Stats reports the current cache footprint.
func (c *MediaCache) Stats() (CacheStats, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return CacheStats{}, fmt.Errorf("failed to read cache dir: %w", err)
	}

	stats := CacheStats{CacheDir: c.dir}
	var totalBytes int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.FileCount++
		totalBytes += info.Size()
	}
	stats.TotalSizeMB = float64(totalBytes) / (1024 * 1024)
	return stats, nil
}

// extensionFromURL pulls the file extension from the URL path, falling
// back to .bin when the path carries none.
func extensionFromURL(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return ".bin"
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if ext == "" {
		return ".bin"
	}
	return ext
}
