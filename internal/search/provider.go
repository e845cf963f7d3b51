package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/entity-screening/backend/internal/screening"
)

var (
	ErrRateLimited   = errors.New("search provider rate limited")
	ErrProviderError = errors.New("search provider error")
	ErrTimeout       = errors.New("search provider timeout")
)

// Provider runs a single web search and returns at most numResults items.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, numResults int) ([]screening.ResultItem, error)
}

// StatusError is a ProviderError carrying the upstream HTTP status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search provider returned status %d", e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrProviderError
}

// Retryable reports whether a provider error may succeed on a later attempt.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Status >= 500
}
