package quest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidParams is returned when a caller violates a
	// precondition (nil or empty buffer, bad filename length).
	ErrInvalidParams = errors.New("quest: invalid parameters")

	// ErrMalformedInput is returned when data violates a format
	// invariant that no recovery heuristic covers.
	ErrMalformedInput = errors.New("quest: malformed input")

	// ErrTruncated is returned when a stream ends while more data was
	// expected.
	ErrTruncated = errors.New("quest: truncated input")

	// ErrValidationFailed is returned when validation flags remain
	// after recovery. Match with errors.Is and inspect the concrete
	// *ValidationError for the residual flag sets.
	ErrValidationFailed = errors.New("quest: validation failed")
)

// ValidationError carries the bin and dat validation flags that
// recovery could not clear. MissingDatEOF is set when the .dat lacks
// the all-zero table header that must terminate it.
type ValidationError struct {
	BinFlags      BinFlags
	DatFlags      DatFlags
	MissingDatEOF bool
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.BinFlags != 0 {
		parts = append(parts, fmt.Sprintf("bin: %s", e.BinFlags))
	}
	if e.DatFlags != 0 {
		parts = append(parts, fmt.Sprintf("dat: %s", e.DatFlags))
	}
	if e.MissingDatEOF {
		parts = append(parts, "dat: missing end-of-file table marker")
	}
	return "quest: validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
