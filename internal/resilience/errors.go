package resilience

import (
	"errors"
	"net"
	"slices"
	"strings"
	"syscall"
)

// retryableStatuses are HTTP statuses a provider may answer differently on
// a later attempt.
var retryableStatuses = []int{408, 429, 500, 502, 503, 504}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	return slices.Contains(retryableStatuses, code)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Transient() bool { return true }

// ForStatus marks err as retryable when the HTTP status that produced it
// is, and returns it unchanged otherwise.
func ForStatus(err error, status int) error {
	if err == nil || !RetryableStatus(status) {
		return err
	}
	return &transientError{err: err}
}

var (
	transientErrnos = []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED}

	// transientMessages catch network failures that reach us only as text
	// after an HTTP client wrapped them.
	transientMessages = []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
)

// IsTransient reports whether err is worth retrying. Errors that classify
// themselves through a Transient() bool method decide for themselves;
// otherwise network timeouts, refused or reset connections and DNS
// failures count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var classified interface{ Transient() bool }
	if errors.As(err, &classified) {
		return classified.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientMessages, func(p string) bool {
		return strings.Contains(msg, p)
	})
}
