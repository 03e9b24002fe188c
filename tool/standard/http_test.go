package standard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/kernel/security"
)

func TestHTTPGetToolSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tool := NewHTTPGetTool(time.Second)
	result := tool.Call(context.Background(), srv.URL)
	require.True(t, result.Success)
	require.Equal(t, "ok", result.Output)
}

// TestHTTPGetToolTimesOut covers spec §8 scenario 4: a GET against a
// server that never responds within the tool's timeout surfaces as
// success=false, error="Timeout", well within the timeout plus a small
// scheduling epsilon.
func TestHTTPGetToolTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	timeout := 50 * time.Millisecond
	tool := NewHTTPGetTool(timeout)

	started := time.Now()
	result := tool.Call(context.Background(), srv.URL)
	elapsed := time.Since(started)

	require.False(t, result.Success)
	require.Equal(t, "Timeout", result.Error)
	require.Less(t, elapsed, timeout+500*time.Millisecond)
}

func TestHTTPGetToolFromPolicyEnforcesAllowedMethods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	policy := security.DefaultPolicy().HTTP
	policy.AllowMethods = []string{"POST"}
	tool := NewHTTPGetToolFromPolicy(policy)

	result := tool.Call(context.Background(), srv.URL)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "not in http.allow_methods")
}

func TestHTTPGetToolFromPolicySetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	policy := security.DefaultPolicy().HTTP
	policy.AllowMethods = []string{"GET"}
	policy.UserAgent = "relaykit-test/1.0"
	tool := NewHTTPGetToolFromPolicy(policy)

	result := tool.Call(context.Background(), srv.URL)
	require.True(t, result.Success)
	require.Equal(t, "relaykit-test/1.0", gotUA)
}

func TestHTTPPostToolSendsBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte("received"))
	}))
	defer srv.Close()

	tool := NewHTTPPostTool(time.Second)
	result := tool.Call(context.Background(), srv.URL+"\n"+"hello")
	require.True(t, result.Success)
	require.Equal(t, "hello", gotBody)
}
