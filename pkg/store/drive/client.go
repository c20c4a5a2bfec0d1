// Package drive implements store.Store against a Google-Drive-style REST API.
//
// This file contains the HTTP plumbing shared by all operations: request
// authentication, client-side throttling, retry with exponential backoff,
// and classification of API failures into the store package's sentinel
// errors.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/internal/ratelimiter"
	"github.com/marmos91/drivebridge/pkg/metrics"
	"github.com/marmos91/drivebridge/pkg/store"
)

const (
	// DefaultBaseURL is the metadata API endpoint.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	// DefaultUploadBaseURL is the content upload endpoint.
	DefaultUploadBaseURL = "https://www.googleapis.com/upload/drive/v3"

	// defaultMaxRetries caps the retry loop for rate-limited and transient
	// failures.
	defaultMaxRetries = 5

	// defaultResumableThreshold is the content size above which uploads use
	// a resumable chunked session instead of a single multipart request.
	defaultResumableThreshold = 8 << 20 // 8 MiB

	// defaultUploadChunkSize is the chunk size for resumable sessions.
	// The API requires multiples of 256 KiB.
	defaultUploadChunkSize = 8 << 20 // 8 MiB

	// objectFields selects the metadata fields the bridge needs.
	objectFields = "id,name,mimeType,size,modifiedTime,parents,md5Checksum"
)

// Config configures a DriveStore.
type Config struct {
	// TokenSource supplies bearer credentials. It is owned by the external
	// authentication collaborator, which handles acquisition and refresh;
	// the store only attaches tokens to requests.
	TokenSource oauth2.TokenSource

	// BaseURL overrides the metadata API endpoint (tests, proxies).
	// Default: DefaultBaseURL.
	BaseURL string

	// UploadBaseURL overrides the upload endpoint.
	// Default: DefaultUploadBaseURL.
	UploadBaseURL string

	// HTTPClient overrides the underlying HTTP client.
	// Default: http.Client with a 30s timeout per request.
	HTTPClient *http.Client

	// MaxRetries caps retries for rate-limited/transient failures.
	// Default: 5. Zero means default; negative disables retries.
	MaxRetries int

	// RequestsPerSecond and Burst configure client-side throttling to stay
	// under the account's API quota. Zero disables throttling.
	RequestsPerSecond uint
	Burst             uint

	// ResumableThreshold is the upload size above which a resumable
	// session is used. Default: 8 MiB.
	ResumableThreshold int64

	// UploadChunkSize is the resumable session chunk size. Must be a
	// multiple of 256 KiB. Default: 8 MiB.
	UploadChunkSize int64

	// Metrics records API call counts, latencies and retries.
	// Nil disables collection.
	Metrics metrics.StoreMetrics
}

// DriveStore implements store.Store over the remote REST API.
//
// Thread safety:
// All methods are safe for concurrent use. The retry loop inside one call
// never blocks other calls; the shared rate limiter is the only
// cross-request coupling.
type DriveStore struct {
	baseURL       string
	uploadBaseURL string
	http          *http.Client
	tokens        oauth2.TokenSource
	limiter       *ratelimiter.RateLimiter
	maxRetries    int
	resumableMin  int64
	chunkSize     int64
	metrics       metrics.StoreMetrics
}

// New creates a DriveStore from the given configuration.
//
// Returns an error if no token source is configured.
func New(cfg Config) (*DriveStore, error) {
	if cfg.TokenSource == nil {
		return nil, fmt.Errorf("drive store: token source is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	uploadURL := cfg.UploadBaseURL
	if uploadURL == "" {
		uploadURL = DefaultUploadBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	maxRetries := cfg.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}

	resumableMin := cfg.ResumableThreshold
	if resumableMin <= 0 {
		resumableMin = defaultResumableThreshold
	}

	chunkSize := cfg.UploadChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultUploadChunkSize
	}
	if chunkSize%(256<<10) != 0 {
		return nil, fmt.Errorf("drive store: upload chunk size %d is not a multiple of 256 KiB", chunkSize)
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}

	return &DriveStore{
		baseURL:       baseURL,
		uploadBaseURL: uploadURL,
		http:          httpClient,
		tokens:        cfg.TokenSource,
		limiter:       ratelimiter.New(cfg.RequestsPerSecond, cfg.Burst),
		maxRetries:    maxRetries,
		resumableMin:  resumableMin,
		chunkSize:     chunkSize,
		metrics:       m,
	}, nil
}

// errRangeNotSatisfiable marks a 416 response: the requested offset is at or
// beyond the end of the object. Download maps it to an empty reader.
var errRangeNotSatisfiable = errors.New("requested range not satisfiable")

// apiError is the JSON error envelope the API returns on failure.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// classifyResponse turns a non-2xx API response into a classified error.
// The response body is consumed but not closed.
func classifyResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	reason := ""
	if len(apiErr.Error.Errors) > 0 {
		reason = apiErr.Error.Errors[0].Reason
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", apiErr.Error.Message, store.ErrUnauthorized)

	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", apiErr.Error.Message, store.ErrNotFound)

	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", apiErr.Error.Message, store.ErrConflict)

	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", apiErr.Error.Message, store.ErrRateLimited)

	case resp.StatusCode == http.StatusForbidden:
		// The API reports quota exhaustion as 403 with a rate-limit reason,
		// and store-native documents as 403 fileNotDownloadable.
		switch reason {
		case "userRateLimitExceeded", "rateLimitExceeded", "dailyLimitExceeded":
			return fmt.Errorf("%s: %w", apiErr.Error.Message, store.ErrRateLimited)
		case "fileNotDownloadable":
			return fmt.Errorf("%s: %w", apiErr.Error.Message, store.ErrUnsupported)
		}
		return fmt.Errorf("%s: %w", apiErr.Error.Message, store.ErrUnauthorized)

	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return fmt.Errorf("%s: %w", apiErr.Error.Message, errRangeNotSatisfiable)

	case resp.StatusCode >= 500:
		return fmt.Errorf("%s (status %d): %w", apiErr.Error.Message, resp.StatusCode, store.ErrTransient)

	default:
		return fmt.Errorf("store API error %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
}

// request describes one API request that the retry loop can re-issue.
// body builders instead of readers: a retried request needs a fresh body.
type request struct {
	method      string
	url         string
	contentType string
	header      http.Header
	body        func() (io.Reader, error)
}

// do issues a request with throttling, authentication and retry.
//
// Rate-limited and transient failures are retried with exponential backoff
// and jitter up to maxRetries attempts; everything else propagates
// immediately. On success the caller owns the response body.
func (d *DriveStore) do(ctx context.Context, op string, req request) (resp *http.Response, err error) {
	start := time.Now()
	defer func() {
		d.metrics.ObserveCall(op, time.Since(start), err)
	}()

	backoff := 500 * time.Millisecond

	for attempt := 0; ; attempt++ {
		resp, err = d.doOnce(ctx, req)
		if err == nil || !store.IsRetryable(err) {
			return resp, err
		}

		if attempt >= d.maxRetries {
			logger.Warn("store %s failed after %d attempts: %v", op, attempt+1, err)
			return nil, fmt.Errorf("%s: retries exhausted: %w", op, err)
		}

		d.metrics.ObserveRetry(op)

		// Full jitter keeps concurrent sessions from retrying in lockstep.
		sleep := time.Duration(rand.Int63n(int64(backoff)))
		logger.Debug("store %s attempt %d failed (%v), retrying in %v", op, attempt+1, err, sleep)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}

		if backoff < 32*time.Second {
			backoff *= 2
		}
	}
}

// doOnce issues a single attempt: wait for a throttle token, attach the
// bearer credential, send, classify.
func (d *DriveStore) doOnce(ctx context.Context, req request) (*http.Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := d.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch credential: %w: %v", store.ErrUnauthorized, err)
	}

	var body io.Reader
	if req.body != nil {
		if body, err = req.body(); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(httpReq)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := d.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// Network-level failures (reset, refused, timeout) are transient.
		return nil, fmt.Errorf("%v: %w", err, store.ErrTransient)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()
	return nil, classifyResponse(resp)
}

// doJSON issues a request and decodes a JSON response body into out.
func (d *DriveStore) doJSON(ctx context.Context, op string, req request, out any) error {
	resp, err := d.do(ctx, op, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// jsonBody returns a body builder that re-marshals v on every attempt.
func jsonBody(v any) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

// filesURL builds a metadata API URL with query parameters.
func (d *DriveStore) filesURL(path string, params url.Values) string {
	u := d.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}
