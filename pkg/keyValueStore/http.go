package keyValueStore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient can perform any http request
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HttpStore provides a simple API wrapping http calls to the key value store server
type HttpStore struct {
	client  HTTPClient
	address string
	logger  *slog.Logger
}

// NewHttpStore creates a new HttpStore with a default http client
func NewHttpStore(address string, timeout time.Duration, logger *slog.Logger) *HttpStore {
	return NewHttpStoreWithHTTPClient(address, logger, &http.Client{Timeout: timeout})
}

// NewHttpStoreWithHTTPClient creates a new HttpStore. The httpClient must implement the HTTPClient interface
func NewHttpStoreWithHTTPClient(address string, logger *slog.Logger, httpClient HTTPClient) *HttpStore {
	return &HttpStore{
		address: strings.TrimSuffix(address, "/"),
		client:  httpClient,
		logger:  logger,
	}
}

func (db *HttpStore) keyURL(key string) string {
	return db.address + "/kv/" + url.PathEscape(key)
}

// Get reads the value stored at key. 404 means absent.
func (db *HttpStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, db.keyURL(key), nil)
	if err != nil {
		db.logger.Error("error creating GET request", "error", err)
		return "", false, err
	}

	resp, err := db.client.Do(req)
	if err != nil {
		db.logger.Error("error sending GET request", "error", err)
		return "", false, err
	}
	defer db.closeBody(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, StatusError{Method: http.MethodGet, Key: key, Code: resp.StatusCode}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		db.logger.Error("error reading response", "error", err)
		return "", false, err
	}
	if len(b) == 0 {
		return "", false, nil
	}
	return string(b), true, nil
}

// Set overwrites the value stored at key.
func (db *HttpStore) Set(ctx context.Context, key, value string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, db.keyURL(key), strings.NewReader(value))
	if err != nil {
		db.logger.Error("error creating PUT request", "error", err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := db.client.Do(req)
	if err != nil {
		db.logger.Error("error sending PUT request", "error", err)
		return err
	}
	defer db.closeBody(resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return StatusError{Method: http.MethodPut, Key: key, Code: resp.StatusCode}
	}
	return nil
}

func (db *HttpStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, db.address+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := db.client.Do(req)
	if err != nil {
		return err
	}
	defer db.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return StatusError{Method: http.MethodGet, Key: "/health", Code: resp.StatusCode}
	}
	return nil
}

func (db *HttpStore) Close() error {
	return nil
}

func (db *HttpStore) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		db.logger.Error("error closing the response body", "error", err)
	}
}
