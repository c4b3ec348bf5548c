// Package fault defines the error kinds shared by the grid builder.
// Every failure the workflow can surface wraps exactly one of these kinds,
// so callers classify with errors.Is instead of matching strings.
package fault

import "errors"

// Error kinds.
var (
	// ErrMissingResource: a required file, record set or sample source is unavailable.
	ErrMissingResource = errors.New("missing resource")

	// ErrMalformedRecord: a persisted record cannot be parsed into its expected shape.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrConfiguration: a limit or range was rejected before any work started.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvariant: the code broke one of its own guarantees.
	ErrInvariant = errors.New("logic invariant violation")
)

// Kind returns the error kind err wraps, or nil when it wraps none.
func Kind(err error) error {
	for _, k := range []error{ErrMissingResource, ErrMalformedRecord, ErrConfiguration, ErrInvariant} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
