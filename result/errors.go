package result

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorCategory represents the classification of a fetch or probe error.
type ErrorCategory string

const (
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	CategoryConnectionReset   ErrorCategory = "connection_reset"
	CategoryTLS               ErrorCategory = "tls"
	Category4xx               ErrorCategory = "4xx"
	Category5xx               ErrorCategory = "5xx"
	CategoryRedirectLoop      ErrorCategory = "redirect_loop"
	CategoryBlocked           ErrorCategory = "blocked"
	CategoryUnknown           ErrorCategory = "unknown"
)

// ErrRedirectLoop marks a request whose redirect chain revisited a URL or
// ran too long. Return it, wrapped, from http.Client.CheckRedirect.
var ErrRedirectLoop = errors.New("redirect loop")

// ClassifyError determines the error category from a transport error and an
// HTTP status code. An error status wins over err.
func ClassifyError(err error, statusCode int) ErrorCategory {
	if cat, ok := statusCategory(statusCode); ok {
		return cat
	}
	if err == nil {
		return CategoryUnknown
	}
	return transportCategory(err)
}

func statusCategory(code int) (ErrorCategory, bool) {
	switch {
	case code >= 400 && code <= 499:
		return Category4xx, true
	case code >= 500:
		return Category5xx, true
	}
	return "", false
}

func transportCategory(err error) ErrorCategory {
	if errors.Is(err, ErrRedirectLoop) {
		return CategoryRedirectLoop
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNSFailure
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return CategoryConnectionReset
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" && strings.Contains(opErr.Error(), "connection refused") {
			return CategoryConnectionRefused
		}
		if opErr.Timeout() {
			return CategoryTimeout
		}
	}

	if isTLSError(err) {
		return CategoryTLS
	}

	// http.Client wraps timeouts in *url.Error, which reports Timeout().
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return CategoryTimeout
	}

	// The default http.Client redirect policy.
	if strings.Contains(err.Error(), "stopped after") && strings.Contains(err.Error(), "redirects") {
		return CategoryRedirectLoop
	}
	return CategoryUnknown
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert)
}

// FormatCategory returns a human-readable label for an error category.
func FormatCategory(cat ErrorCategory) string {
	switch cat {
	case CategoryTimeout:
		return "Timeouts"
	case CategoryDNSFailure:
		return "DNS Failures"
	case CategoryConnectionRefused:
		return "Connection Refused"
	case CategoryConnectionReset:
		return "Connection Reset"
	case CategoryTLS:
		return "TLS Errors"
	case Category4xx:
		return "Client Errors (4xx)"
	case Category5xx:
		return "Server Errors (5xx)"
	case CategoryRedirectLoop:
		return "Redirect Loops"
	case CategoryBlocked:
		return "Blocked"
	default:
		return "Other Errors"
	}
}
