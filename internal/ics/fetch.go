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
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "relcal/internal/log"
)

// Feed is one ICS subscription. URL may be http(s), file:// or a plain
// filesystem path.
type Feed struct {
	ID  string
	URL string
}

// cacheMeta is stored next to the cached body of a feed.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last
// good body on disk so a flaky network still yields an agenda.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher returns a Fetcher caching under cacheDir. A nil client uses
// one with a 15 second timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch returns the body of feed, from the network or the cache.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]byte, error) {
	if feed.URL == "" {
		return nil, fmt.Errorf("ics: feed %s: empty url", feed.ID)
	}
	if path, ok := localPath(feed.URL); ok {
		return os.ReadFile(path)
	}

	dir := f.cachePath(feed.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("ics fetch failed, using cache", "feed", feed.ID, "url", redactURL(feed.URL), "err", err)
			return cached, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		meta := cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, meta, body); err != nil {
			appLog.Error("ics cache save failed", err, "feed", feed.ID)
		}
		appLog.Debug("ics fetched", "feed", feed.ID, "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, errors.New("ics: 304 without cached body")
		}
		appLog.Debug("ics not modified", "feed", feed.ID)
		return cached, nil

	default:
		if len(cached) > 0 {
			appLog.Warn("ics fetch non-OK, using cache", "feed", feed.ID, "status", resp.StatusCode)
			return cached, nil
		}
		return nil, fmt.Errorf("ics: feed %s: %s", feed.ID, resp.Status)
	}
}

// Load fetches and parses every feed. Failing feeds are logged and
// reported in the returned error slice; the rest still contribute entries.
func (f *Fetcher) Load(ctx context.Context, feeds []Feed, loc *time.Location) ([]Entry, []error) {
	var (
		all  []Entry
		errs []error
	)
	for _, feed := range feeds {
		body, err := f.Fetch(ctx, feed)
		if err == nil {
			var entries []Entry
			entries, err = Parse(feed, body, loc)
			all = append(all, entries...)
		}
		if err != nil {
			appLog.Error("ics feed failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
			errs = append(errs, err)
		}
	}
	return all, errs
}

func localPath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw, true
	}
	if u.Scheme == "file" {
		return u.Path, true
	}
	return "", false
}

func (f *Fetcher) cachePath(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

func saveCache(dir string, meta cacheMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; feed URLs often embed tokens.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return strings.TrimSuffix(parsed.Scheme+"://"+parsed.Host, "/") + "/...(redacted)"
}
