package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

// IndexFile is the document listing dataset ids at the root of an HTTP store.
const IndexFile = "index.json"

type httpStore struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPStore creates a Store over CSV files published under baseURL. The
// listing is read from baseURL/index.json, a JSON array of dataset ids.
// Requests failing with connection errors or 5xx responses are retried up to
// retryMax times.
func NewHTTPStore(baseURL string, retryMax int) (Store, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	rc := &retryablehttp.Client{
		HTTPClient:   &http.Client{Timeout: 5 * time.Minute},
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		RetryMax:     retryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}

	return &httpStore{base: u, client: rc.StandardClient()}, nil
}

func (s *httpStore) List(ctx context.Context) ([]string, error) {
	resp, err := s.get(ctx, IndexFile)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrReadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list: %s", ErrReadFailed, resp.Status)
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrReadFailed, IndexFile, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *httpStore) Stat(ctx context.Context, id string) (Info, error) {
	name, resp, err := s.open(ctx, id)
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()

	header, err := readHeader(name, resp.Body)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}

	info := Info{ID: id, Columns: header}
	if resp.ContentLength > 0 {
		info.Bytes = resp.ContentLength
	}
	return info, nil
}

func (s *httpStore) Read(ctx context.Context, id string, q dataset.Query) (*dataset.Table, error) {
	name, resp, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	table, err := decodeTable(id, name, resp.Body, q)
	if err != nil {
		if errors.Is(err, dataset.ErrInvalidQuery) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
	}
	return table, nil
}

// open returns the first successful response among the recognized file
// names for id. The caller closes the body.
func (s *httpStore) open(ctx context.Context, id string) (string, *http.Response, error) {
	for _, ext := range Extensions {
		name := id + ext
		resp, err := s.get(ctx, name)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrReadFailed, id, err)
		}
		switch resp.StatusCode {
		case http.StatusOK:
			return name, resp, nil
		case http.StatusNotFound:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		default:
			resp.Body.Close()
			return "", nil, fmt.Errorf("%w: %s: %s", ErrReadFailed, id, resp.Status)
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *httpStore) get(ctx context.Context, name string) (*http.Response, error) {
	ref, err := url.Parse(name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, err
	}
	return s.client.Do(req)
}
