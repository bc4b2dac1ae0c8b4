package chaos

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper, probabilistically injecting latency
// before delegation and synthetic 500 responses after a successful delegated
// call. It never alters request bodies, never retries, and never swallows
// cancellation.
type Transport struct {
	// Next is the underlying transport. Defaults to http.DefaultTransport.
	Next http.RoundTripper

	// ErrorRate is the probability, in [0,1], that a successful response is
	// rewritten to status 500.
	ErrorRate float64

	// DelayRate is the probability, in [0,1], that the request is delayed
	// before being delegated.
	DelayRate float64

	// MaxDelayMS bounds the injected delay: a uniform random duration in
	// [0, MaxDelayMS) milliseconds.
	MaxDelayMS int

	rng *rand.Rand
}

// NewTransport builds a chaos Transport with its own PRNG, seeded
// independently so each virtual user's chaos randomization is uncorrelated
// with every other user's.
func NewTransport(next http.RoundTripper, errorRate, delayRate float64, maxDelayMS int, seed int64) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{
		Next:       next,
		ErrorRate:  errorRate,
		DelayRate:  delayRate,
		MaxDelayMS: maxDelayMS,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.DelayRate > 0 && t.MaxDelayMS > 0 && t.rng.Float64() < t.DelayRate {
		delay := time.Duration(t.rng.Intn(t.MaxDelayMS)) * time.Millisecond
		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	resp, err := t.Next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if t.ErrorRate > 0 && t.rng.Float64() < t.ErrorRate {
		return rewriteToServerError(resp), nil
	}
	return resp, nil
}

// rewriteToServerError rewrites a response's status to 500, keeping its
// body and headers untouched.
func rewriteToServerError(resp *http.Response) *http.Response {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
	}

	resp.StatusCode = http.StatusInternalServerError
	resp.Status = "500 Internal Server Error"
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp
}
