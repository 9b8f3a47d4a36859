package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"eprints2bags/internal/services"
)

// Mode selects how status codes are interpreted for a call site.
type Mode int

const (
	// ModeFetch is used for metadata requests.
	ModeFetch Mode = iota
	// ModePoll is ModeFetch except that 404 and 410 are not errors; the
	// enumerator uses it to learn whether a listing exists at all.
	ModePoll
	// ModeDownload is used for document downloads. Protocol-level rejections
	// (405, 406, 409, ...) are reported as internal errors here because they
	// indicate a request this program built wrongly.
	ModeDownload
)

// Classification is the result of mapping a status code or transport fault
// onto the error taxonomy. A nil Marker with Transient false means success.
type Classification struct {
	Marker    error
	Message   string
	Transient bool
}

// OK reports whether the classification carries neither an error nor a retry signal.
func (c Classification) OK() bool {
	return c.Marker == nil && !c.Transient
}

// Err converts the classification into a tagged error that names rawURL with
// any credentials redacted. It returns nil for OK classifications.
func (c Classification) Err(stage, rawURL string) error {
	if c.Marker == nil {
		return nil
	}
	return services.Wrap(c.Marker, stage, "", fmt.Sprintf("%s for %s", c.Message, Redact(rawURL)), nil)
}

var (
	authStatuses     = statusSet(401, 402, 403, 407, 451, 511)
	goneStatuses     = statusSet(404, 410)
	protocolStatuses = statusSet(405, 406, 409, 411, 412, 414, 417, 428, 431, 505, 510)
	rejectedStatuses = statusSet(415, 416)
	serverStatuses   = statusSet(500, 501, 502, 506, 507, 508)
)

func statusSet(codes ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

func in(set map[int]struct{}, code int) bool {
	_, ok := set[code]
	return ok
}

// ClassifyStatus maps an HTTP status code onto an error kind. Codes in the
// 200-399 range classify as OK; the 202 retry decision belongs to the
// download engine, not here.
func ClassifyStatus(code int, mode Mode) Classification {
	switch {
	case in(goneStatuses, code):
		if mode == ModePoll {
			return Classification{}
		}
		return Classification{Marker: services.ErrNoContent, Message: "no content found"}
	case in(authStatuses, code):
		return Classification{Marker: services.ErrAuthentication, Message: "access is forbidden or requires authentication"}
	case in(protocolStatuses, code):
		if mode == ModeDownload {
			return Classification{Marker: services.ErrInternal, Message: fmt.Sprintf("server returned code %d", code)}
		}
		return Classification{Marker: services.ErrServiceFailure, Message: fmt.Sprintf("server sent %d -- please report this", code)}
	case in(rejectedStatuses, code):
		return Classification{Marker: services.ErrServiceFailure, Message: "server rejected the request"}
	case code == http.StatusTooManyRequests:
		return Classification{Marker: services.ErrRateLimit, Message: "server blocking further requests due to rate limits"}
	case code == http.StatusServiceUnavailable:
		return Classification{Marker: services.ErrServiceFailure, Message: "server is unavailable -- try again later"}
	case in(serverStatuses, code):
		return Classification{Marker: services.ErrServiceFailure, Message: "internal server error"}
	case code >= 200 && code < 400:
		return Classification{}
	default:
		return Classification{Marker: services.ErrNetwork, Message: fmt.Sprintf("unable to resolve URL (status %d)", code)}
	}
}

// ClassifyFault maps a transport-level error onto an error kind. networkUp is
// consulted only for faults whose meaning depends on whether the wider
// network is reachable (timeouts, unresolved hosts); it may be nil, in which
// case the network is assumed up.
func ClassifyFault(err error, networkUp func() bool) Classification {
	up := func() bool { return networkUp == nil || networkUp() }
	switch {
	case err == nil:
		return Classification{}
	case IsConnectionReset(err):
		return Classification{Transient: true, Message: "connection reset by server"}
	case isUnsupportedScheme(err):
		return Classification{Marker: services.ErrNetwork, Message: "unsupported network protocol"}
	case isTimeout(err):
		if up() {
			return Classification{Marker: services.ErrServiceFailure, Message: "timed out reading data from server"}
		}
		return Classification{Marker: services.ErrNetwork, Message: "timed out reading data over network"}
	case isUnreachableHost(err):
		if up() {
			return Classification{Marker: services.ErrNetwork, Message: "unable to resolve host"}
		}
		return Classification{Marker: services.ErrNetwork, Message: "lost network connection with server"}
	default:
		return Classification{Marker: services.ErrNetwork, Message: strings.TrimSpace(err.Error())}
	}
}

// IsConnectionReset reports whether err is a connection reset, the one
// transport fault that is retried rather than surfaced.
func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection reset")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isUnreachableHost(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}

func isUnsupportedScheme(err error) bool {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return false
	}
	return strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme")
}
