// Package standard implements the closed StandardTool set: HTTP GET/POST,
// file read/write/list, JSON parse/extract/pretty, and text
// uppercase/lowercase/analyze. Each tool is stateless and holds only its
// construction-time defaults, grounded on the teacher's FileWriterTool and
// CommandTool shape (one struct per tool, an Execute/Call method, an
// errorResult helper).
package standard

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relaykit/kernel/security"
	"github.com/relaykit/kernel/tool"
)

// defaultMaxResponseBytes is used when no HTTPPolicy is supplied (the
// time.Duration-only constructors, kept for existing callers that build a
// tool without a policy).
const defaultMaxResponseBytes = 10 << 20

// HTTPGetTool issues GET requests. Its input is the target URL.
type HTTPGetTool struct {
	client          *http.Client
	userAgent       string
	allowMethods    []string
	maxResponseSize int64
}

// NewHTTPGetTool builds an HTTPGetTool with the given request timeout, no
// policy-driven user agent, method restriction, or response-size cap.
func NewHTTPGetTool(timeout time.Duration) *HTTPGetTool {
	return &HTTPGetTool{client: &http.Client{Timeout: timeout}, maxResponseSize: defaultMaxResponseBytes}
}

// NewHTTPGetToolFromPolicy builds an HTTPGetTool whose timeout, User-Agent
// header, allowed-method check, and response-size cap all come from the
// active HTTPPolicy, so setting those keys in a policy document has a
// real effect on dispatch (spec §6's http policy fields).
func NewHTTPGetToolFromPolicy(p security.HTTPPolicy) *HTTPGetTool {
	return &HTTPGetTool{
		client:          &http.Client{Timeout: time.Duration(p.TimeoutSeconds) * time.Second},
		userAgent:       p.UserAgent,
		allowMethods:    p.AllowMethods,
		maxResponseSize: maxResponseBytes(p.MaxResponseSizeMB),
	}
}

func (t *HTTPGetTool) Name() tool.Name { return tool.Std(tool.HTTPGet) }

// Domain extracts the request's target host, used by the dispatcher's
// pre-check before any TCP connect is attempted.
func (t *HTTPGetTool) Domain(input string) (string, error) {
	return hostOf(input)
}

func (t *HTTPGetTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	if !methodAllowed(t.allowMethods, http.MethodGet) {
		return errResult(started, "GET is not in http.allow_methods")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input, nil)
	if err != nil {
		return errResult(started, "invalid URL: "+err.Error())
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if ue, ok := err.(*url.Error); ctx.Err() != nil || (ok && ue.Timeout()) {
			return errResult(started, "Timeout")
		}
		return errResult(started, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseSize))
	if err != nil {
		return errResult(started, "failed reading response body: "+err.Error())
	}
	return tool.ExecutionResult{Success: true, Output: string(body), DurationMS: time.Since(started).Milliseconds()}
}

// HTTPPostTool issues POST requests. Input is "<url>\n<body>"; everything
// after the first newline is sent as the request body.
type HTTPPostTool struct {
	client          *http.Client
	userAgent       string
	allowMethods    []string
	maxResponseSize int64
}

// NewHTTPPostTool builds an HTTPPostTool with the given request timeout, no
// policy-driven user agent, method restriction, or response-size cap.
func NewHTTPPostTool(timeout time.Duration) *HTTPPostTool {
	return &HTTPPostTool{client: &http.Client{Timeout: timeout}, maxResponseSize: defaultMaxResponseBytes}
}

// NewHTTPPostToolFromPolicy builds an HTTPPostTool wired the same way as
// NewHTTPGetToolFromPolicy.
func NewHTTPPostToolFromPolicy(p security.HTTPPolicy) *HTTPPostTool {
	return &HTTPPostTool{
		client:          &http.Client{Timeout: time.Duration(p.TimeoutSeconds) * time.Second},
		userAgent:       p.UserAgent,
		allowMethods:    p.AllowMethods,
		maxResponseSize: maxResponseBytes(p.MaxResponseSizeMB),
	}
}

func (t *HTTPPostTool) Name() tool.Name { return tool.Std(tool.HTTPPost) }

func (t *HTTPPostTool) Domain(input string) (string, error) {
	target, _, _ := splitURLBody(input)
	return hostOf(target)
}

func (t *HTTPPostTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	if !methodAllowed(t.allowMethods, http.MethodPost) {
		return errResult(started, "POST is not in http.allow_methods")
	}
	target, body, err := splitURLBody(input)
	if err != nil {
		return errResult(started, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return errResult(started, "invalid request: "+err.Error())
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if ue, ok := err.(*url.Error); ctx.Err() != nil || (ok && ue.Timeout()) {
			return errResult(started, "Timeout")
		}
		return errResult(started, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseSize))
	if err != nil {
		return errResult(started, "failed reading response body: "+err.Error())
	}
	return tool.ExecutionResult{Success: true, Output: string(respBody), DurationMS: time.Since(started).Milliseconds()}
}

// methodAllowed reports whether method is permitted. An empty allowlist
// means no method restriction was configured (policy's zero value),
// matching the rest of this package's "absent config leaves the legacy
// constructors unrestricted" behavior.
func methodAllowed(allow []string, method string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, m := range allow {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// maxResponseBytes converts an HTTPPolicy's megabyte cap to bytes, falling
// back to defaultMaxResponseBytes when unset.
func maxResponseBytes(mb int64) int64 {
	if mb <= 0 {
		return defaultMaxResponseBytes
	}
	return mb << 20
}

func splitURLBody(input string) (target, body string, err error) {
	idx := strings.IndexByte(input, '\n')
	if idx < 0 {
		return input, "", nil
	}
	return input[:idx], input[idx+1:], nil
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

func errResult(started time.Time, msg string) tool.ExecutionResult {
	return tool.ExecutionResult{Success: false, Error: msg, DurationMS: time.Since(started).Milliseconds()}
}
