// Package session manages the listen-key credential lifecycle for
// authenticated streams. The stream client only consumes the resulting
// token to build its endpoint URL; acquisition and renewal live here.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/c360/marketfeed/errors"
	"github.com/c360/marketfeed/pkg/retry"
)

const listenKeyPath = "/fapi/v1/listenKey"

// TokenSource produces and maintains a session token
type TokenSource interface {
	// Acquire obtains a fresh token
	Acquire(ctx context.Context) (string, error)
	// KeepAlive extends the validity of an existing token
	KeepAlive(ctx context.Context, token string) error
}

// listenKeyResponse is the body of a successful acquisition
type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// apiError is the exchange's error body
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ListenKeySource acquires and renews a Binance futures listen key.
// POST creates, PUT extends; both carry the API key in the
// X-MBX-APIKEY header.
type ListenKeySource struct {
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewListenKeySource creates a source for the given API base URL. The
// API key is read from the named environment variable.
func NewListenKeySource(apiBase, apiKeyEnv string, logger *slog.Logger) (*ListenKeySource, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, errors.WrapFatal(errors.ErrMissingCredentials,
			"session", "NewListenKeySource", "read "+apiKeyEnv)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ListenKeySource{
		apiBase: strings.TrimRight(apiBase, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("component", "session"),
	}, nil
}

// Acquire creates a new listen key, retrying transient failures with
// exponential backoff. Failure here is fatal to startup.
func (s *ListenKeySource) Acquire(ctx context.Context) (string, error) {
	token, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		return s.create(ctx)
	})
	if err != nil {
		return "", errors.WrapFatal(err, "session", "Acquire", "create listen key")
	}
	s.logger.Info("listen key acquired")
	return token, nil
}

func (s *ListenKeySource) create(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+listenKeyPath, nil)
	if err != nil {
		return "", retry.NonRetryable(err)
	}
	req.Header.Set("X-MBX-APIKEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.readError(resp)
	}

	var body listenKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", retry.NonRetryable(
			errors.WrapInvalid(err, "session", "create", "decode listen key response"))
	}
	if body.ListenKey == "" {
		return "", retry.NonRetryable(errors.ErrInvalidData)
	}
	return body.ListenKey, nil
}

// KeepAlive extends the token's validity
func (s *ListenKeySource) KeepAlive(ctx context.Context, token string) error {
	form := strings.NewReader("listenKey=" + token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.apiBase+listenKeyPath, form)
	if err != nil {
		return errors.Wrap(err, "session", "KeepAlive", "build renew request")
	}
	req.Header.Set("X-MBX-APIKEY", s.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "session", "KeepAlive", "renew listen key")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.WrapTransient(s.readError(resp), "session", "KeepAlive", "renew listen key")
	}
	s.logger.Debug("listen key renewed")
	return nil
}

// readError decodes the exchange error body, falling back to the raw
// text when it is not the documented shape.
func (s *ListenKeySource) readError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	var body apiError
	if json.Unmarshal(data, &body) == nil && body.Msg != "" {
		err := fmt.Errorf("http %d: code %d: %s", resp.StatusCode, body.Code, body.Msg)
		// 4xx means the request itself is wrong; retrying cannot help
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.NonRetryable(err)
		}
		return err
	}

	err = fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return retry.NonRetryable(err)
	}
	return err
}

// Renewer runs the periodic keep-alive loop on a fixed interval,
// independent of the stream core. Renewal failures are logged, never
// fatal; the next tick tries again.
type Renewer struct {
	source   TokenSource
	token    string
	interval time.Duration
	logger   *slog.Logger
}

// NewRenewer creates a renewer for an already-acquired token
func NewRenewer(source TokenSource, token string, interval time.Duration, logger *slog.Logger) *Renewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renewer{
		source:   source,
		token:    token,
		interval: interval,
		logger:   logger.With("component", "session"),
	}
}

// Run blocks until the context ends, renewing on each tick
func (r *Renewer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.source.KeepAlive(ctx, r.token); err != nil {
				r.logger.Error("listen key renewal failed", "error", err)
			}
		}
	}
}

// TokenURL appends the token to a websocket base URL
func TokenURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/" + token
}
