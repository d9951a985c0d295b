package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tileview/internal/logging"
)

// Cache loads scene resources from local paths or http(s) URLs. Remote
// resources are kept on disk and concurrent fetches of one URL share a
// single request.
type Cache struct {
	cacheDir string
	client   *http.Client
	group    singleflight.Group
}

// NewCache creates a cache rooted at cacheDir.
func NewCache(cacheDir string, timeout time.Duration) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Cache{
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// IsRemote reports whether ref names an http(s) resource.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Fetch returns the bytes of ref.
func (c *Cache) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if !IsRemote(ref) {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ref, err)
		}
		return data, nil
	}
	if data, err := os.ReadFile(c.cachePath(ref)); err == nil {
		return data, nil
	}
	return c.download(ctx, ref)
}

// IsCached reports whether a remote ref is already on disk.
func (c *Cache) IsCached(ref string) bool {
	_, err := os.Stat(c.cachePath(ref))
	return err == nil
}

// cachePath returns the file path for a cached URL.
func (c *Cache) cachePath(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	ext := path.Ext(strings.SplitN(ref, "?", 2)[0])
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:16])+ext)
}

func (c *Cache) download(ctx context.Context, ref string) ([]byte, error) {
	v, err, shared := c.group.Do(ref, func() (any, error) {
		// A request that finished since the caller's cache check.
		if data, err := os.ReadFile(c.cachePath(ref)); err == nil {
			return data, nil
		}
		return c.get(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Logger().Debug("asset request shared", "url", ref)
	}
	return v.([]byte), nil
}

// get downloads ref and stores it on disk. A failed cache write is logged
// and the downloaded bytes are still returned.
func (c *Cache) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "tileview/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: server returned status %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}

	if err := c.store(c.cachePath(ref), data); err != nil {
		logging.Logger().Warn("asset cache write failed", "url", ref, "err", err)
	}
	logging.Logger().Debug("asset fetched", "url", ref, "bytes", len(data))
	return data, nil
}

// store writes data through a temporary file so readers never see a
// partial entry.
func (c *Cache) store(p string, data []byte) error {
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}
