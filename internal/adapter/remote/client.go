package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/iho/tripledger/internal/adapter/http/dto"
	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxErrorBodyBytes    = 64 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	IDGenerator usecase.IDGenerator // idempotency keys for pushes
	Logger      zerolog.Logger
	HTTPClient  *http.Client // optional, replaces the timeout-based default
}

// Client implements usecase.RemoteLedger over the sync HTTP API.
type Client struct {
	baseURL         *url.URL
	httpClient      *http.Client
	idGen           usecase.IDGenerator
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          zerolog.Logger
}

// New creates a new Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.IDGenerator == nil {
		return nil, errors.New("remote client needs an id generator")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		baseURL:         base,
		httpClient:      httpClient,
		idGen:           cfg.IDGenerator,
		maxRetries:      uint64(maxRetries),
		initialInterval: 200 * time.Millisecond,
		maxInterval:     5 * time.Second,
		logger:          cfg.Logger,
	}, nil
}

// Push sends one record version. Every attempt of a push carries the same
// idempotency key, so a retried request is applied at most once.
func (c *Client) Push(ctx context.Context, record domain.SyncRecord) (domain.PushOutcome, error) {
	body, err := json.Marshal(dto.PushRequestFromDomain(record))
	if err != nil {
		return domain.PushOutcome{}, fmt.Errorf("encode push: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(idempotencyKeyHeader, c.idGen.Generate())

	var resp dto.PushResponse
	if err := c.do(ctx, "remote.push", http.MethodPost, c.endpoint("api", "v1", "sync", "push"), header, body, &resp); err != nil {
		return domain.PushOutcome{}, err
	}

	out, err := resp.ToDomain()
	if err != nil {
		return domain.PushOutcome{}, domain.WrapDependency("remote.push", err)
	}
	return out, nil
}

// Pull fetches one page of the trip's changes after cursor.
func (c *Client) Pull(ctx context.Context, tripID, cursor string) (*domain.PullResult, error) {
	if err := domain.ValidateID(tripID); err != nil {
		return nil, err
	}

	u := c.endpoint("api", "v1", "sync", "trips", tripID, "changes")
	if cursor != "" {
		u.RawQuery = url.Values{"since": {cursor}}.Encode()
	}

	var resp dto.PullResponse
	if err := c.do(ctx, "remote.pull", http.MethodGet, u, nil, nil, &resp); err != nil {
		return nil, err
	}

	res, err := resp.ToDomain()
	if err != nil {
		return nil, domain.WrapDependency("remote.pull", err)
	}
	return res, nil
}

func (c *Client) endpoint(segments ...string) *url.URL {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.JoinPath(escaped...)
}

// do sends a request with retries on transport failures, 5xx responses and
// responses that ask to be retried. Other 4xx responses fail at once.
func (c *Client) do(ctx context.Context, op, method string, u *url.URL, header http.Header, body []byte, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.send(ctx, method, u, header, body, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return backoff.Permanent(err)
		}

		c.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("remote request failed")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))

	return domain.WrapDependency(op, err)
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, header http.Header, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, u.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		retryAfter: resp.Header.Get("Retry-After") != "",
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var body dto.ErrorResponse
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	return apiErr
}
