// Package rest implements the gateway contracts over the JSON HTTP APIs
// of the control-plane services.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/fleetadm/pkg/config"
	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx response from a control-plane service
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// client talks to one service. Every error it returns is tagged with
// the service name.
type client struct {
	service string
	base    string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func newClient(service, base string, hc *http.Client, limiter *rate.Limiter) *client {
	return &client{
		service: service,
		base:    strings.TrimRight(base, "/"),
		http:    hc,
		limiter: limiter,
		logger:  log.WithComponent("rest").With().Str("api", service).Logger(),
	}
}

func (c *client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return errs.Client(c.service, c.roundTrip(ctx, method, path, query, in, out))
}

func (c *client) roundTrip(ctx context.Context, method, path string, query url.Values, in, out any) error {
	resp, err := c.send(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// send performs a request and turns error statuses into errors. The
// caller closes the body of a returned response.
func (c *client) send(ctx context.Context, method, path string, query url.Values, in any) (*http.Response, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request")

	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", method, path, gateway.ErrNotFound)
	}
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, apiErr) != nil {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return nil, fmt.Errorf("%s %s: %w", method, path, apiErr)
}

// NewContext builds a gateway.Context with one client per configured
// endpoint. All clients share one request rate limit.
func NewContext(cfg *config.Config) *gateway.Context {
	hc := &http.Client{Timeout: cfg.RequestTimeout}
	var limiter *rate.Limiter
	if cfg.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestRate), max(1, int(cfg.RequestRate)))
	}
	ep := cfg.Endpoints
	mk := func(service, base string) *client {
		return newClient(service, base, hc, limiter)
	}
	return &gateway.Context{
		Registry:   &SAPI{mk("sapi", ep.SAPI)},
		Inventory:  &CNAPI{mk("cnapi", ep.CNAPI)},
		VMs:        &VMAPI{mk("vmapi", ep.VMAPI)},
		Images:     &IMGAPI{c: mk("imgapi", ep.IMGAPI), updates: mk("updates", ep.Updates), source: ep.Updates},
		Packages:   &PAPI{mk("papi", ep.PAPI)},
		Networks:   &NAPI{mk("napi", ep.NAPI)},
		Channel:    cfg.UpdateChannel,
		Datacenter: cfg.Datacenter,
		DNSDomain:  cfg.DNSDomain,
	}
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

func setBool(q url.Values, key string, val *bool) {
	if val != nil {
		q.Set(key, fmt.Sprint(*val))
	}
}
