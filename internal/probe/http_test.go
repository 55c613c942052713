package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

func httpTarget(url string) types.ServiceTarget {
	return types.ServiceTarget{
		Name: "svc",
		Kind: types.KindHTTP,
		URL:  url,
	}
}

func TestHTTPChecker_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := NewHTTPChecker().Check(context.Background(), httpTarget(srv.URL))

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Error)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", result.StatusCode)
	}
	if result.LatencyMs < 0 {
		t.Fatalf("latency = %v, want >= 0", result.LatencyMs)
	}
}

func TestHTTPChecker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := NewHTTPChecker().Check(context.Background(), httpTarget(srv.URL))

	if result.Success {
		t.Fatal("expected failure for 500")
	}
	if result.Failure != types.FailureProtocol {
		t.Fatalf("failure = %q, want %q", result.Failure, types.FailureProtocol)
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", result.StatusCode)
	}
}

// Redirect responses are judged as-is; the client must not follow them.
func TestHTTPChecker_RedirectNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/next" {
			t.Error("redirect was followed")
		}
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	result := NewHTTPChecker().Check(context.Background(), httpTarget(srv.URL))

	if !result.Success {
		t.Fatalf("302 should count as success by default: %s", result.Error)
	}
	if result.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", result.StatusCode)
	}
}

func TestHTTPChecker_ExpectedStatusOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	target := httpTarget(srv.URL)
	target.ExpectedStatus = http.StatusTeapot
	result := NewHTTPChecker().Check(context.Background(), target)
	if !result.Success {
		t.Fatalf("expected 418 to satisfy explicit expectation: %s", result.Error)
	}

	target.ExpectedStatus = http.StatusOK
	result = NewHTTPChecker().Check(context.Background(), target)
	if result.Success {
		t.Fatal("418 should fail an explicit 200 expectation")
	}
}

func TestHTTPChecker_MethodHeadersBody(t *testing.T) {
	var gotMethod, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Probe")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := httpTarget(srv.URL)
	target.Method = http.MethodPost
	target.Headers = map[string]string{"X-Probe": "kubiq"}
	target.Body = `{"ping":true}`

	result := NewHTTPChecker().Check(context.Background(), target)
	if !result.Success {
		t.Fatalf("expected success: %s", result.Error)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q, want POST", gotMethod)
	}
	if gotHeader != "kubiq" {
		t.Fatalf("header = %q, want kubiq", gotHeader)
	}
}

// A self-signed server fails verification, but the certificate metadata
// must still be captured. With verification skipped the same target
// succeeds and still reports the certificate.
func TestHTTPChecker_CertCapture(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := httpTarget(srv.URL)
	result := NewHTTPChecker().Check(context.Background(), target)
	if result.Success {
		t.Fatal("self-signed cert should fail verification")
	}
	if result.Failure != types.FailureTLS {
		t.Fatalf("failure = %q, want %q", result.Failure, types.FailureTLS)
	}
	if result.Cert == nil {
		t.Fatal("certificate metadata not captured on verification failure")
	}

	target.SkipTLSVerify = true
	result = NewHTTPChecker().Check(context.Background(), target)
	if !result.Success {
		t.Fatalf("expected success with verification skipped: %s", result.Error)
	}
	if result.Cert == nil {
		t.Fatal("certificate metadata not captured with verification skipped")
	}
	if result.Cert.NotAfter.Before(time.Now()) {
		t.Fatalf("captured expiry %v is in the past", result.Cert.NotAfter)
	}
}
