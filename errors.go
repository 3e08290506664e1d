package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/cockroachdb/errors"
)

// Error kinds surfaced by the pipeline. Per-item kinds are contained to the
// item that raised them; only ErrNoProvidersConfigured aborts a run.
var (
	// ErrNoProvidersConfigured means no critique provider has a credential.
	// Fatal to the whole run, reported once at startup.
	ErrNoProvidersConfigured = errors.New("no critique providers configured: set GEMINI_API_KEY, OPENAI_API_KEY, or ANTHROPIC_API_KEY")

	// ErrNoValidCritiques means every configured provider returned an
	// invalid or failed critique for one photograph.
	ErrNoValidCritiques = errors.New("no valid critiques")

	// ErrUndecodableImage means the input bytes could not be decoded
	// locally after the primary edit failed. The one FAILED path.
	ErrUndecodableImage = errors.New("image cannot be decoded")

	// ErrRetriesExhausted marks an error that survived the full retry
	// budget.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// errRetryable and errFatalProvider are reference markers attached
	// via errors.Mark so classification survives wrapping.
	errRetryable     = errors.New("retryable provider error")
	errFatalProvider = errors.New("fatal provider error")

	// errProviderTripped records that a critic was disabled earlier in the
	// run after a fatal provider error.
	errProviderTripped = errors.New("provider disabled earlier in this run")
)

func markRetryable(err error) error { return errors.Mark(err, errRetryable) }
func markFatal(err error) error     { return errors.Mark(err, errFatalProvider) }

func isRetryable(err error) bool     { return errors.Is(err, errRetryable) }
func isFatalProvider(err error) bool { return errors.Is(err, errFatalProvider) }

// apiStatusError is a non-2xx response from a provider API. The status code
// drives retryable/fatal classification.
type apiStatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *apiStatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, body)
}

// fatalProviderStatus reports whether err is a provider response meaning the
// credential itself is unusable, as opposed to one bad request.
func fatalProviderStatus(err error) bool {
	var statusErr *apiStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 402, 403:
			return true
		}
	}
	return false
}

// classifyProviderError partitions provider failures into retryable
// (rate limiting, timeouts, transient server errors) and fatal
// (authentication, malformed requests, exhausted quota). Explicit marks
// set by callers win over heuristics.
func classifyProviderError(err error) bool {
	if err == nil {
		return false
	}
	if isFatalProvider(err) {
		return false
	}
	if isRetryable(err) {
		return true
	}

	var statusErr *apiStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 429, statusErr.StatusCode == 408:
			return true
		case statusErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	if netErr, ok := errors.UnwrapAll(err).(net.Error); ok && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fatal := range []string{
		"api key", "authentication", "unauthorized", "permission denied",
		"quota exceeded", "billing",
	} {
		if strings.Contains(msg, fatal) {
			return false
		}
	}
	for _, transient := range []string{
		"rate limit", "too many requests", "timeout", "i/o timeout",
		"temporarily unavailable", "service unavailable",
		"connection reset", "connection refused",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
