package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPChecker pings a control-plane service endpoint
type HTTPChecker struct {
	// Name labels the service in results
	Name string
	// URL is the endpoint to GET
	URL string

	Client *http.Client
}

// NewHTTPChecker creates a checker for the /ping endpoint under baseURL
func NewHTTPChecker(name, baseURL string) *HTTPChecker {
	return &HTTPChecker{
		Name:   name,
		URL:    strings.TrimRight(baseURL, "/") + "/ping",
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return result(start, false, fmt.Sprintf("%s: bad request: %v", h.Name, err))
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return result(start, false, fmt.Sprintf("%s: %v", h.Name, err))
	}
	defer resp.Body.Close()

	msg := fmt.Sprintf("%s: HTTP %d %s", h.Name, resp.StatusCode, http.StatusText(resp.StatusCode))
	return result(start, resp.StatusCode >= 200 && resp.StatusCode < 300, msg)
}

func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}
