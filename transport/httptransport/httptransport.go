// Package httptransport is a Transport implementation for a long-poll
// HTTP subscribe/unsubscribe endpoint.
//
// net/http is used deliberately here: nothing offers a better-fitting
// long-poll HTTP client than the standard library's. Generic network
// disconnects are retried internally using netutil's backoff calculator
// before anything is reported to the engine — this is the transport's
// own reachability logic, distinct from the engine's fixed-interval
// retry timer for recoverable protocol failures.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/relaywire/subengine/event"
	"github.com/relaywire/subengine/netutil"
	"github.com/relaywire/subengine/pkg/logger"
	"github.com/relaywire/subengine/request"
	"github.com/relaywire/subengine/status"
	"github.com/relaywire/subengine/transport"
)

var errTerminal = errors.New("httptransport: terminal protocol failure")

// Transport issues subscribe/unsubscribe long-polls against baseURL +
// "/" + the channels path, with the Request Builder's query string
// appended.
type Transport struct {
	client  *http.Client
	baseURL string
	backoff *netutil.BackoffConfig
	log     *logger.SlogLogger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns a Transport. client defaults to http.DefaultClient and
// backoff to netutil.DefaultBackoffConfig when nil.
func New(baseURL string, client *http.Client, backoff *netutil.BackoffConfig, log *logger.SlogLogger) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Transport{client: client, baseURL: baseURL, backoff: backoff, log: log.Named("httptransport")}
}

// Process implements transport.Transport.
func (t *Transport) Process(ctx context.Context, op transport.Operation, params request.Params, callback func(transport.Outcome)) {
	reqCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(reqCtx, op, params, callback)
}

// Cancel implements transport.Transport.
func (t *Transport) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Transport) run(ctx context.Context, op transport.Operation, params request.Params, callback func(transport.Outcome)) {
	fullURL := t.buildURL(params)
	isInitial := params.Query.Get("tt") == "0"

	backoff, err := netutil.NewBackoff(t.backoff)
	if err != nil {
		backoff, _ = netutil.NewBackoff(nil)
	}

	for {
		outcome, retryable, attemptErr := t.attempt(ctx, op, fullURL, isInitial)
		if attemptErr == nil {
			callback(outcome)
			return
		}

		if ctx.Err() != nil {
			callback(transport.Outcome{Operation: op, Category: status.Cancelled, ClientRequestURL: fullURL})
			return
		}

		if !retryable {
			callback(outcome)
			return
		}

		interval, ok := backoff.Next()
		if !ok {
			callback(transport.Outcome{Operation: op, Category: status.UnexpectedDisconnect, IsError: true, ClientRequestURL: fullURL})
			return
		}

		t.log.Debug("retrying after transport error", "interval", interval, "err", attemptErr)
		select {
		case <-ctx.Done():
			callback(transport.Outcome{Operation: op, Category: status.Cancelled, ClientRequestURL: fullURL})
			return
		case <-time.After(interval):
		}
	}
}

// attempt performs one HTTP round trip. A non-nil error with
// retryable=true means a generic network-layer disconnect the caller
// should retry via backoff; retryable=false means the returned Outcome
// is already a terminal, classified result.
func (t *Transport) attempt(ctx context.Context, op transport.Operation, fullURL string, isInitial bool) (transport.Outcome, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return transport.Outcome{Operation: op, Category: status.MalformedResponse, IsError: true, ClientRequestURL: fullURL}, false, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return transport.Outcome{Operation: op, Category: status.Timeout, IsError: true, ClientRequestURL: fullURL}, false, err
		case isTLSError(err):
			return transport.Outcome{Operation: op, Category: status.TLSConnectionFailed, IsError: true, ClientRequestURL: fullURL}, false, err
		default:
			return transport.Outcome{}, true, err
		}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusForbidden:
		return transport.Outcome{Operation: op, Category: status.AccessDenied, IsError: true, ClientRequestURL: fullURL}, false, errTerminal
	case http.StatusRequestURITooLong, http.StatusRequestHeaderFieldsTooLarge:
		return transport.Outcome{Operation: op, Category: status.RequestTooLong, IsError: true, ClientRequestURL: fullURL}, false, errTerminal
	case http.StatusBadRequest:
		return transport.Outcome{Operation: op, Category: status.MalformedFilter, IsError: true, ClientRequestURL: fullURL}, false, errTerminal
	}

	if resp.StatusCode >= 500 {
		return transport.Outcome{}, true, fmt.Errorf("httptransport: server error %d", resp.StatusCode)
	}

	if op == transport.Unsubscribe {
		return transport.Outcome{Operation: op, Category: status.Acknowledgment, ClientRequestURL: fullURL}, false, nil
	}

	var body subscribeResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return transport.Outcome{Operation: op, Category: status.MalformedResponse, IsError: true, ClientRequestURL: fullURL}, false, err
	}

	return transport.Outcome{
		Operation:        op,
		IsInitial:        isInitial,
		ClientRequestURL: fullURL,
		Response:         event.Response{Timetoken: body.Timetoken, Region: body.Region, Events: body.Events},
	}, false, nil
}

func (t *Transport) buildURL(params request.Params) string {
	u := t.baseURL + "/" + url.PathEscape(params.ChannelsPath)
	return u + "?" + params.Query.Encode()
}

func isTLSError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "tls"
	}
	return false
}

type subscribeResponseBody struct {
	Timetoken uint64           `json:"timetoken,string"`
	Region    int32            `json:"region"`
	Events    []event.Envelope `json:"events"`
}
