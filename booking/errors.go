package booking

import "errors"

var (
	// ErrContractViolation is returned when a caller asks for something the
	// core never serves, such as a date other than today or tomorrow. It is
	// fatal to the call and never turned into an empty result.
	ErrContractViolation = errors.New("contract violation")

	// ErrNotFound marks an unknown library. It also matches
	// ErrContractViolation via errors.Is.
	ErrNotFound = &notFoundError{}

	// ErrUpstreamUnavailable covers network failures, non-2xx responses and
	// malformed payloads from the booking provider. It is never retried
	// automatically.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

func (*notFoundError) Is(target error) bool {
	return target == ErrContractViolation
}
