package chaos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	resp *http.Response
	err  error
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return f.resp, f.err
}

func newResponse(status int) *http.Response {
	rec := httptest.NewRecorder()
	rec.WriteHeader(status)
	_, _ = rec.WriteString("hello")
	return rec.Result()
}

func TestTransportErrorRateOneAlwaysRewrites(t *testing.T) {
	tr := NewTransport(&fakeTransport{resp: newResponse(http.StatusOK)}, 1, 0, 0, 1)

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestTransportErrorRateZeroNeverRewrites(t *testing.T) {
	tr := NewTransport(&fakeTransport{resp: newResponse(http.StatusOK)}, 0, 0, 0, 1)

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportTransportErrorPassesThrough(t *testing.T) {
	wantErr := errors.New("boom")
	tr := NewTransport(&fakeTransport{err: wantErr}, 1, 1, 100, 1)

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	_, err = tr.RoundTrip(req)
	assert.ErrorIs(t, err, wantErr)
}

func TestTransportDelayHonorsCancellation(t *testing.T) {
	tr := NewTransport(&fakeTransport{resp: newResponse(http.StatusOK)}, 0, 1, 10_000, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = tr.RoundTrip(req)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTransportDelayBounded(t *testing.T) {
	tr := NewTransport(&fakeTransport{resp: newResponse(http.StatusOK)}, 0, 1, 50, 1)

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
