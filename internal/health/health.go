// Package health checks the backend health endpoint to diagnose connection
// problems before any authenticated call is made.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// Result describes one check.
type Result struct {
	Healthy      bool          `json:"healthy"`
	Message      string        `json:"message"`
	APIReachable bool          `json:"apiReachable"`
	ResponseTime time.Duration `json:"responseTime,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Checker checks a health URL.
type Checker struct {
	url        string
	httpClient *http.Client
}

// NewChecker constructs a checker for url. A nil client gets DefaultTimeout.
func NewChecker(url string, httpClient *http.Client) *Checker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Checker{url: strings.TrimSpace(url), httpClient: httpClient}
}

// Check issues GET on the health URL. It never returns an error; failures
// are described by the Result.
func (c *Checker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Result{Message: "Invalid health URL", Error: err.Error()}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Message: "Cannot connect to backend", Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	elapsed := time.Since(start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Healthy: true, Message: "Backend is healthy", APIReachable: true, ResponseTime: elapsed}
	}
	return Result{
		Message:      fmt.Sprintf("Backend returned status %d", resp.StatusCode),
		APIReachable: true,
		ResponseTime: elapsed,
		Error:        fmt.Sprintf("HTTP %d", resp.StatusCode),
	}
}
