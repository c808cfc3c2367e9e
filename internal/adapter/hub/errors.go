package hub

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
)

// APIError represents a non-success response from the hub
type APIError struct {
	StatusCode int
	Status     string
	URL        string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub API error %s for %s", e.Status, e.URL)
}

// Is maps status codes onto the listing sentinels
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return target == port.ErrAuthRequired
	case http.StatusNotFound:
		return target == port.ErrNotFound
	case http.StatusTooManyRequests:
		return target == port.ErrRateLimited
	default:
		return false
	}
}

// IsRetryable returns true if the error might succeed on retry
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func newAPIError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	if resp.Request != nil && resp.Request.URL != nil {
		e.URL = resp.Request.URL.String()
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// readError marks a failure reading the response body
type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// classify turns a fetch failure into a domain.TransferError
func classify(err error) *domain.TransferError {
	var te *domain.TransferError
	if errors.As(err, &te) {
		return te
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(apiErr, port.ErrAuthRequired):
			return domain.NewTransferError(domain.TransferAuth, err)
		case apiErr.IsRetryable():
			return &domain.TransferError{Kind: domain.TransferNetwork, Err: err, RetryAfter: apiErr.RetryAfter}
		default:
			return domain.NewTransferError(domain.TransferUnknown, err)
		}
	}

	var re *readError
	if errors.As(err, &re) {
		return domain.NewTransferError(domain.TransferNetwork, err)
	}

	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EROFS) ||
		errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EDQUOT) {
		return domain.NewTransferError(domain.TransferDisk, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewTransferError(domain.TransferNetwork, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return domain.NewTransferError(domain.TransferNetwork, err)
	}

	return domain.NewTransferError(domain.TransferUnknown, err)
}
