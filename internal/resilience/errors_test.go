package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) Transient() bool { return RetryableStatus(e.code) }

func TestForStatus(t *testing.T) {
	base := errors.New("clearbit: unexpected status")

	err := ForStatus(base, 429)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, base.Error(), err.Error())

	assert.Same(t, base, ForStatus(base, 404))
	assert.NoError(t, ForStatus(nil, 503))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid json"), false},
		{"wrapped status", eris.Wrap(ForStatus(errors.New("bad gateway"), 502), "ingest: download"), true},
		{"self classified retryable", statusErr{503}, true},
		{"self classified permanent", eris.Wrap(statusErr{409}, "postgrest: upsert"), false},
		{"timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"dns text", errors.New("dial tcp: lookup acme.io: no such host"), true},
		{"tls text", errors.New("net/http: TLS handshake timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 409, 501} {
		assert.False(t, RetryableStatus(code), code)
	}
}
