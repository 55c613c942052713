package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// HTTPChecker performs HTTP(S) health checks.
//
// Redirects are never followed: a redirect status can itself be the
// diagnostic signal, so the first response is judged as-is.
type HTTPChecker struct{}

// NewHTTPChecker creates an HTTP checker.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{}
}

// Kind implements Checker.
func (c *HTTPChecker) Kind() types.CheckKind { return types.KindHTTP }

// Check issues the configured request and judges the status code.
// Peer certificate metadata is captured for https targets regardless of
// verification outcome, so certificate expiry can be surfaced even when
// verification is intentionally skipped.
func (c *HTTPChecker) Check(ctx context.Context, target types.ServiceTarget) types.CheckResult {
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	var body *strings.Reader
	if target.Body != "" {
		body = strings.NewReader(target.Body)
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, body)
	if err != nil {
		return Failure(target.Name, types.FailureInvalidConfig, err)
	}
	for key, value := range target.Headers {
		req.Header.Set(key, value)
	}

	var certMu sync.Mutex
	var cert *types.CertInfo

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			// Verification runs inside VerifyConnection so the peer
			// certificate is observed before any verification error
			// aborts the handshake.
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
				VerifyConnection: func(cs tls.ConnectionState) error {
					if len(cs.PeerCertificates) > 0 {
						leaf := cs.PeerCertificates[0]
						certMu.Lock()
						cert = &types.CertInfo{
							Issuer:   leaf.Issuer.String(),
							Subject:  leaf.Subject.String(),
							NotAfter: leaf.NotAfter,
						}
						certMu.Unlock()
					}
					if target.SkipTLSVerify {
						return nil
					}
					return verifyPeer(cs)
				},
			},
		},
	}
	defer client.CloseIdleConnections()

	start := time.Now()
	resp, err := client.Do(req)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		result := Failure(target.Name, Classify(err), err)
		result.Cert = cert
		return result
	}
	defer resp.Body.Close()

	result := types.CheckResult{
		Target:     target.Name,
		Timestamp:  time.Now().UTC(),
		StatusCode: resp.StatusCode,
		LatencyMs:  latency,
		Cert:       cert,
	}

	if statusAccepted(resp.StatusCode, target.ExpectedStatus) {
		result.Success = true
		return result
	}

	result.Failure = types.FailureProtocol
	result.Error = "unexpected status " + resp.Status
	return result
}

// statusAccepted judges a response status against the target's
// expectation. With no explicit expectation any 2xx/3xx passes.
func statusAccepted(got, expected int) bool {
	if expected > 0 {
		return got == expected
	}
	return got >= 200 && got < 400
}

// verifyPeer replicates standard chain verification against the system
// roots, run after the certificate has been captured.
func verifyPeer(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}
	}
	opts := x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(c)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}
