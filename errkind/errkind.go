// Package errkind maps arbitrary failures (transport errors, HTTP status
// codes, gRPC statuses, plain strings) into a small taxonomy and decides
// whether a failure is worth retrying.
package errkind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the classified category of a failure.
type Kind int

const (
	Unknown Kind = iota
	Network
	Timeout
	Cancelled
	AuthExpired
	Forbidden
	NotFound
	RateLimited
	ServerError
	ClientError
	QuotaExceeded
	StorageUnavailable
	ParseError
)

var kindNames = [...]string{
	Unknown:            "unknown",
	Network:            "network",
	Timeout:            "timeout",
	Cancelled:          "cancelled",
	AuthExpired:        "auth_expired",
	Forbidden:          "forbidden",
	NotFound:           "not_found",
	RateLimited:        "rate_limited",
	ServerError:        "server_error",
	ClientError:        "client_error",
	QuotaExceeded:      "quota_exceeded",
	StorageUnavailable: "storage_unavailable",
	ParseError:         "parse_error",
}

var kindMessages = [...]string{
	Unknown:            "Something went wrong. Please try again.",
	Network:            "Unable to connect. Check your internet connection.",
	Timeout:            "The request took too long. Please try again.",
	Cancelled:          "The request was cancelled.",
	AuthExpired:        "Your session has expired. Please sign in again.",
	Forbidden:          "You don't have permission to do that.",
	NotFound:           "This content could not be found.",
	RateLimited:        "Too many requests. Please wait a moment.",
	ServerError:        "The server had a problem. Please try again later.",
	ClientError:        "The request could not be completed.",
	QuotaExceeded:      "Local storage is full.",
	StorageUnavailable: "Local storage is unavailable.",
	ParseError:         "Received data could not be read.",
}

// String returns the snake_case name of k, used as a metric label.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[Unknown]
	}
	return kindNames[k]
}

// Message returns the short, human-readable text for k.
func (k Kind) Message() string {
	if k < 0 || int(k) >= len(kindMessages) {
		return kindMessages[Unknown]
	}
	return kindMessages[k]
}

// Sentinel errors for the storage kinds. The store package wraps these so
// callers can match with errors.Is.
var (
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Classification is the result of [Classify].
type Classification struct {
	Kind    Kind
	Message string
	// Status is the HTTP-equivalent status code that drove the decision, or
	// zero when classification came from a sentinel or message pattern.
	Status int
}

// Classify maps err into a [Classification].
//
// Sentinels are checked first, then message patterns for network, timeout and
// cancellation phrases, then status codes. Anything else is Unknown.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: Unknown}
	}
	if k, ok := classifySentinel(err); ok {
		return newClassification(k, 0)
	}
	if k, ok := classifyMessage(err.Error()); ok {
		return newClassification(k, 0)
	}
	if code, ok := statusOf(err); ok {
		return newClassification(KindForStatus(code), code)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return newClassification(Timeout, 0)
		}
		return newClassification(Network, 0)
	}
	return newClassification(Unknown, 0)
}

// ClassifyString classifies a bare failure message.
func ClassifyString(msg string) Classification {
	if k, ok := classifyMessage(msg); ok {
		return newClassification(k, 0)
	}
	return newClassification(Unknown, 0)
}

// KindOf is shorthand for Classify(err).Kind.
func KindOf(err error) Kind {
	return Classify(err).Kind
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(code int) Kind {
	switch {
	case code == 401:
		return AuthExpired
	case code == 403:
		return Forbidden
	case code == 404:
		return NotFound
	case code == 408:
		return Timeout
	case code == 429:
		return RateLimited
	case code >= 500 && code <= 599:
		return ServerError
	case code >= 400 && code <= 499:
		return ClientError
	}
	return Unknown
}

// IsRetryable reports whether a failure of kind k is transient.
func IsRetryable(k Kind) bool {
	switch k {
	case Network, Timeout, ServerError:
		return true
	}
	return false
}

// IsRetryableRead is the read-path variant of [IsRetryable]; it also
// retries RateLimited since reads are idempotent.
func IsRetryableRead(k Kind) bool {
	return k == RateLimited || IsRetryable(k)
}

// Retryable reports whether err should be retried on a write path.
func Retryable(err error) bool {
	return IsRetryable(KindOf(err))
}

// RetryableRead reports whether err should be retried on a read path.
func RetryableRead(err error) bool {
	return IsRetryableRead(KindOf(err))
}

func newClassification(k Kind, code int) Classification {
	return Classification{Kind: k, Message: k.Message(), Status: code}
}

func classifySentinel(err error) (Kind, bool) {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout, true
	case errors.Is(err, ErrQuotaExceeded):
		return QuotaExceeded, true
	case errors.Is(err, ErrStorageUnavailable):
		return StorageUnavailable, true
	case errors.As(err, &syn), errors.As(err, &typ):
		return ParseError, true
	}
	return Unknown, false
}

var (
	networkPhrases = []string{
		"network", "failed to fetch", "connection refused", "connection reset",
		"no such host", "econnrefused", "offline", "broken pipe",
	}
	timeoutPhrases = []string{"timeout", "timed out", "deadline exceeded"}
	cancelPhrases  = []string{"abort", "cancel"}
)

func classifyMessage(msg string) (Kind, bool) {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, networkPhrases):
		return Network, true
	case containsAny(m, timeoutPhrases):
		return Timeout, true
	case containsAny(m, cancelPhrases):
		return Cancelled, true
	}
	return Unknown, false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a minimal HTTP failure carrying a status code.
type StatusError struct {
	Code int
	Msg  string
}

// HTTPError returns a *StatusError for the given status code.
func HTTPError(code int, msg string) error {
	return &StatusError{Code: code, Msg: msg}
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Msg)
}

// StatusCode implements [StatusCoder].
func (e *StatusError) StatusCode() int { return e.Code }

func statusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		if code, ok := grpcToHTTP[st.Code()]; ok {
			return code, true
		}
	}
	return 0, false
}

// grpcToHTTP follows the canonical gRPC -> HTTP mapping.
var grpcToHTTP = map[codes.Code]int{
	codes.InvalidArgument:    400,
	codes.FailedPrecondition: 400,
	codes.OutOfRange:         400,
	codes.Unauthenticated:    401,
	codes.PermissionDenied:   403,
	codes.NotFound:           404,
	codes.DeadlineExceeded:   408,
	codes.AlreadyExists:      409,
	codes.Aborted:            409,
	codes.ResourceExhausted:  429,
	codes.Unimplemented:      501,
	codes.Internal:           500,
	codes.Unknown:            500,
	codes.DataLoss:           500,
	codes.Unavailable:        503,
}
