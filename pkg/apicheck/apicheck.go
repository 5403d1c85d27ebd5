// Package apicheck verifies an API key against an OpenAI-compatible server
// before a chat starts.
package apicheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/stream"
)

const (
	// DefaultTimeout bounds the whole check.
	DefaultTimeout = 10 * time.Second

	// ModelsPath is the listing endpoint used as the probe.
	ModelsPath = "/models"

	maxBody = 16 << 10
)

var (
	// ErrMissingKey is returned when no key was given.
	ErrMissingKey = errors.New("API key is not set")

	// ErrRejectedKey is wrapped by StatusError for 401 and 403 responses.
	ErrRejectedKey = errors.New("API key is invalid or inactive")
)

// StatusError is returned when the server answers with anything but 200.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("key check failed: HTTP %d", e.Code)
	}
	return fmt.Sprintf("key check failed: HTTP %d: %s", e.Code, e.Message)
}

// Unwrap lets callers test authentication failures with errors.Is.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrRejectedKey
	}
	return nil
}

// Check issues GET <endpoint>/models with the key as a bearer token and
// reports whether the server accepted it. A nil client uses a client with
// DefaultTimeout.
func Check(ctx context.Context, client *http.Client, endpoint, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrMissingKey
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	url := strings.TrimRight(endpoint, "/") + ModelsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("key check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	msg, ok := stream.DecodeErrorBody(body)
	if !ok {
		msg = strings.TrimSpace(string(body))
	}

	return &StatusError{Code: resp.StatusCode, Message: msg}
}
