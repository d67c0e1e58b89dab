package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	billyutil "github.com/go-git/go-billy/v5/util"

	appLog "pcal/internal/log"
)

// maxFeedSize bounds a downloaded feed.
const maxFeedSize = 16 << 20

// FetchResult is the body of a remote calendar feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool // reused the cached body after a 304 or a failed request
}

// cacheEntry holds the validators of the last successful download.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads iCalendar feeds, keeping the last body per URL on fs so
// conditional requests and offline imports work.
type Fetcher struct {
	client *http.Client
	fs     billy.Filesystem
}

// NewFetcher returns a Fetcher caching under the root of fs. A nil client
// uses a 15 second timeout.
func NewFetcher(fs billy.Filesystem, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, fs: fs}
}

// IsRemote reports whether ref names an http(s) or webcal feed rather than a
// local file.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "webcal":
		return u.Host != ""
	}
	return false
}

// Fetch downloads rawURL, honoring ETag and Last-Modified from the cache.
// When the server is unreachable or answers with an error, a cached body is
// returned instead if one exists.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return FetchResult{}, err
	}
	dir := cacheDir(target)
	meta, _ := f.loadMeta(dir)
	cached, _ := billyutil.ReadFile(f.fs, path.Join(dir, "body.ics"))
	fallback := func(cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, cause
		}
		appLog.Error("ics fetch failed, using cached body", cause, "url", redactURL(target))
		return FetchResult{URL: target, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "url", redactURL(target))
	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
		if err != nil {
			return fallback(err)
		}
		if len(body) > maxFeedSize {
			return FetchResult{}, fmt.Errorf("feed %s exceeds %d bytes", redactURL(target), maxFeedSize)
		}
		entry := cacheEntry{
			URL:          target,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := f.saveCache(dir, entry, body); err != nil {
			appLog.Error("ics cache save failed", err, "url", redactURL(target))
		}
		appLog.Info("ics fetch success", "url", redactURL(target), "bytes", len(body))
		return FetchResult{URL: target, Body: body}, nil
	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "url", redactURL(target))
		return FetchResult{URL: target, Body: cached, FromCache: true}, nil
	default:
		return fallback(fmt.Errorf("fetch %s: %s", redactURL(target), resp.Status))
	}
}

// normalizeURL maps webcal:// to https://.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "webcal":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported feed scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("feed url has no host")
	}
	return u.String(), nil
}

func cacheDir(target string) string {
	sum := sha256.Sum256([]byte(target))
	return hex.EncodeToString(sum[:8])
}

func (f *Fetcher) loadMeta(dir string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := billyutil.ReadFile(f.fs, path.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(dir string, meta cacheEntry, body []byte) error {
	if err := f.fs.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Body first so meta never points at a missing body.
	if err := billyutil.WriteFile(f.fs, path.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return billyutil.WriteFile(f.fs, path.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only the scheme and host; feed paths often carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
