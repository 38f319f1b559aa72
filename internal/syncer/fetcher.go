// Package syncer drives song downloads: it decides per resource kind whether
// a transfer is needed, stages files in a temp dir, commits them atomically
// into the song folder and records the outcome in the store.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cesargomez89/karasync/internal/domain"
)

// Fetcher retrieves remote resources. Implementations map transport failures
// onto the domain error taxonomy: a missing or rejected source wraps
// ErrSourceUnavailable, an interrupted transfer wraps ErrTransferFailed.
type Fetcher interface {
	// FetchResource opens a stream for the resource behind source.
	FetchResource(ctx context.Context, kind domain.ResourceKind, source string) (io.ReadCloser, error)
	// FetchSongText returns the current remote song text and its remote
	// modification time.
	FetchSongText(ctx context.Context, songID domain.SongID) (string, int64, error)
	// FetchCommentSources lists alternate media sources gathered from the
	// song's catalog comments, best first. They back up the directive
	// sources when those are gone or broken.
	FetchCommentSources(ctx context.Context, songID domain.SongID) ([]string, error)
}

// Discoverer lists songs available on the remote catalog.
type Discoverer interface {
	DiscoverSongs(ctx context.Context, after domain.SongID) ([]*domain.RemoteSong, error)
}

// HTTPFetcher fetches resources over plain HTTP(S).
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (f *HTTPFetcher) FetchResource(ctx context.Context, kind domain.ResourceKind, source string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad source %q: %v", domain.ErrSourceUnavailable, source, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", domain.ErrSourceUnavailable, source, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", domain.ErrTransferFailed, source, resp.Status)
	}
	return resp.Body, nil
}

func (f *HTTPFetcher) FetchSongText(ctx context.Context, songID domain.SongID) (string, int64, error) {
	url := fmt.Sprintf("%s/songs/%d/txt", f.baseURL, songID)
	body, err := f.FetchResource(ctx, domain.KindText, url)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	return string(data), time.Now().UnixMicro(), nil
}

func (f *HTTPFetcher) FetchCommentSources(ctx context.Context, songID domain.SongID) ([]string, error) {
	url := fmt.Sprintf("%s/songs/%d/comments", f.baseURL, songID)
	body, err := f.FetchResource(ctx, domain.KindVideo, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var sources []string
	if err := json.NewDecoder(body).Decode(&sources); err != nil {
		return nil, fmt.Errorf("%w: bad comment listing: %v", domain.ErrTransferFailed, err)
	}
	return sources, nil
}

// DiscoverSongs pages through the catalog listing starting past the given id.
func (f *HTTPFetcher) DiscoverSongs(ctx context.Context, after domain.SongID) ([]*domain.RemoteSong, error) {
	url := fmt.Sprintf("%s/songs?after=%d", f.baseURL, after)
	body, err := f.FetchResource(ctx, domain.KindText, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var songs []*domain.RemoteSong
	if err := json.NewDecoder(body).Decode(&songs); err != nil {
		return nil, fmt.Errorf("%w: bad catalog listing: %v", domain.ErrTransferFailed, err)
	}
	return songs, nil
}
