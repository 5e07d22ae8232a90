// Package fetcher acquires filter documents over HTTP or from local files.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// Fetcher downloads filter lists
type Fetcher struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

// New creates a new fetcher from config
func New(cfg models.HTTPConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	retries := cfg.Retries
	if retries == 0 {
		retries = 3
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		retries: retries,
		backoff: time.Second,
	}
}

// Load reads the list from its path or URL and splits it into a document
func (f *Fetcher) Load(ctx context.Context, list models.FilterList) (*models.FilterDocument, error) {
	format, err := models.ParseDocumentFormat(list.Format)
	if err != nil {
		return nil, fmt.Errorf("load list failed, name:%s, err:%w", list.Name, err)
	}

	var data []byte
	switch {
	case list.Path != "":
		data, err = os.ReadFile(list.Path)
	case list.URL != "":
		data, err = f.Fetch(ctx, list.URL)
	default:
		err = fmt.Errorf("neither url nor path set")
	}
	if err != nil {
		return nil, fmt.Errorf("load list failed, name:%s, err:%w", list.Name, err)
	}

	return models.ReadDocument(list.Name, format, bytes.NewReader(data))
}

// Fetch downloads content from a URL with retries
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for i := 0; i < f.retries; i++ {
		if i > 0 {
			// Linear backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * f.backoff):
			}
		}

		data, err := f.doFetch(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Debug("fetch attempt failed",
			zap.String("url", url), zap.Int("attempt", i+1), zap.Error(err))
	}

	return nil, fmt.Errorf("failed after %d retries: %w", f.retries, lastErr)
}

func (f *Fetcher) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "contentblock-compiler/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(resp.Status))
	}

	return io.ReadAll(resp.Body)
}
