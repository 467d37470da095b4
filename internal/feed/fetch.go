// Package feed fetches remote event payloads with HTTP caching (ETag /
// Last-Modified) and a disk copy of the last good body, so an event backend
// that is briefly down still yields the list it served last.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "eventcal/internal/log"
)

const defaultTimeout = 15 * time.Second

// Result contains the outcome of fetching one URL.
type Result struct {
	URL       string
	Body      []byte
	FromCache bool // true if the body came from disk (304 or backend failure)
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher performs conditional GETs. With an empty cacheDir it degrades to
// plain GETs without a disk fallback.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher storing per-URL cache subdirectories under
// cacheDir, e.g. "/var/lib/eventcal/feed-cache".
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// Fetch GETs rawURL, honoring cached validators. accept sets the Accept
// header when non-empty.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, accept string) (Result, error) {
	if rawURL == "" {
		return Result{}, errors.New("feed: URL is empty")
	}

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(rawURL)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return Result{}, err
		}
		meta, _ = loadCacheMeta(cachePath)
		cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "url", RedactURL(rawURL))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch network error, using cached body", err, "url", RedactURL(rawURL))
			return Result{URL: rawURL, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Result{}, readErr
		}

		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          rawURL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				// The fresh body is still good.
				appLog.Error("feed cache save failed", err, "url", RedactURL(rawURL))
			}
		}

		appLog.Debug("feed fetch success", "url", RedactURL(rawURL), "bytes", len(body))
		return Result{URL: rawURL, Body: body}, nil

	case resp.StatusCode == http.StatusNotModified && len(cachedBody) > 0:
		appLog.Debug("feed not modified; using cache", "url", RedactURL(rawURL))
		return Result{URL: rawURL, Body: cachedBody, FromCache: true}, nil

	default:
		statusErr := fmt.Errorf("feed: %s", resp.Status)
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch non-OK, using cached body", statusErr, "url", RedactURL(rawURL))
			return Result{URL: rawURL, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, statusErr
	}
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// RedactURL keeps scheme and host only; script endpoints carry deployment
// ids and tokens in the path and query.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "feed://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}
	return u[:j] + redactedSuffix
}
