package transport

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"lb-rpc/rpcerr"
)

// Doer performs one HTTP round trip: POST body to endpoint, return the response
// body. Errors are *rpcerr.Error of kind Connection or Timeout.
type Doer interface {
	Do(ctx context.Context, endpoint string, body []byte) ([]byte, error)
}

// FastHTTPDoer is the default Doer. One fasthttp.Client keeps a connection
// pool per host, shared by every endpoint of the transport.
//
// fasthttp cannot abort a request in flight, so every request carries a
// deadline: the context's, or now+ceiling when the context has none. A
// cancelled call returns at once and its connection is closed by the
// deadline at the latest.
type FastHTTPDoer struct {
	client  *fasthttp.Client
	ceiling time.Duration
}

// NewFastHTTPDoer builds the default Doer. ceiling <= 0 means DefaultWireTimeout.
func NewFastHTTPDoer(ceiling time.Duration) *FastHTTPDoer {
	if ceiling <= 0 {
		ceiling = DefaultWireTimeout
	}
	return &FastHTTPDoer{
		client: &fasthttp.Client{
			Name:                "lb-rpc",
			MaxConnsPerHost:     512,
			MaxIdleConnDuration: 30 * time.Second,
			MaxConnWaitTimeout:  time.Second,
		},
		ceiling: ceiling,
	}
}

type doResult struct {
	body []byte
	err  error
}

func (d *FastHTTPDoer) Do(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if ceiling := time.Now().Add(d.ceiling); !ok || ceiling.Before(deadline) {
		deadline = ceiling
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	req.SetRequestURI(endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	// The goroutine owns req and resp until the round trip ends.
	done := make(chan doResult, 1)
	go func() {
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		if err := d.client.DoDeadline(req, resp, deadline); err != nil {
			done <- doResult{err: err}
			return
		}
		// Body is only valid until the response is released
		done <- doResult{body: append([]byte(nil), resp.Body()...)}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, classify(endpoint, r.err)
		}
		return r.body, nil
	case <-ctx.Done():
		return nil, classify(endpoint, ctx.Err())
	}
}

func classify(endpoint string, err error) error {
	switch {
	case errors.Is(err, fasthttp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return rpcerr.ConnectionTimeout(endpoint, 0, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return rpcerr.InvalidConnection(endpoint, err)
	}
}
