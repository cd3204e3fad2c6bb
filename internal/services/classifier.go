package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class tells the fallback controller how to react to a failed attempt.
type Class int

const (
	// RepeatWorthy covers transient and unknown failures, including empty
	// replies.
	RepeatWorthy Class = iota
	// FallbackWorthy means the model is rate limited or overloaded.
	FallbackWorthy
)

func (c Class) String() string {
	switch c {
	case FallbackWorthy:
		return "fallback"
	default:
		return "repeat"
	}
}

// ErrEmptyResponse is treated as a failed attempt even though the backend
// call itself succeeded.
var ErrEmptyResponse = errors.New("empty response from API")

var overloadKeywords = []string{
	"rate limit",
	"quota exceeded",
	"too many requests",
	"service unavailable",
	"overloaded",
	"resource exhausted",
	"temporarily unavailable",
}

// Classify never panics; a nil error is RepeatWorthy.
func Classify(err error) Class {
	if err == nil {
		return RepeatWorthy
	}

	switch statusCode(err) {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return FallbackWorthy
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range overloadKeywords {
		if strings.Contains(msg, kw) {
			return FallbackWorthy
		}
	}
	return RepeatWorthy
}

// statusCode extracts an HTTP-equivalent status from the error chain, or 0.
func statusCode(err error) int {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}

	var aErr *apierror.APIError
	if errors.As(err, &aErr) {
		if code := aErr.HTTPCode(); code > 0 {
			return code
		}
		if st := aErr.GRPCStatus(); st != nil {
			return grpcToHTTP(st.Code())
		}
	}

	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return grpcToHTTP(st.Code())
	}
	return 0
}

func grpcToHTTP(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return 0
	}
}
