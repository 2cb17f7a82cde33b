package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeUpstream, "request failed").
		WithDetail("status", 404).
		WithDetail("url", "https://services.leadconnectorhq.com/contacts/")

	fmt.Println(err.Error())

	// Output:
	// upstream: request failed
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeConnection, "read response body").
		WithDetail("attempt", 2)

	if errors.IsType(err, errors.ErrorTypeConnection) {
		fmt.Println("This is a connection error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Original error was unexpected EOF")
	}

	// Output:
	// This is a connection error
	// Original error was unexpected EOF
}

// ExampleIsRetryable shows which call-level errors are retried.
func ExampleIsRetryable() {
	backpressure := errors.New(errors.ErrorTypeRateLimit, "429 Too Many Requests")
	upstream := errors.New(errors.ErrorTypeUpstream, "404 Not Found")

	fmt.Println(errors.IsRetryable(backpressure))
	fmt.Println(errors.IsRetryable(upstream))

	// Output:
	// true
	// false
}

// ExampleIsFatal shows that quota exhaustion survives domain-level wrapping.
func ExampleIsFatal() {
	quota := errors.New(errors.ErrorTypeQuotaExhausted, "daily rate limit nearly exhausted (50 remaining)")
	domainErr := errors.Wrap(quota, errors.ErrorTypeExtraction, "extract contacts")

	fmt.Println(errors.IsFatal(domainErr))
	fmt.Println(errors.IsFatal(errors.New(errors.ErrorTypeExtraction, "extract users")))
	fmt.Println(domainErr)

	// Output:
	// true
	// false
	// extraction: extract contacts: quota_exhausted: daily rate limit nearly exhausted (50 remaining)
}
