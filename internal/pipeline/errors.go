package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var ErrJobNotFound = errors.New("no pipeline job could be found")

// ValidationError indicates a movie is missing required fields and must
// never enter the pipeline. Permanent; retrying cannot fix the record.
type ValidationError struct {
	MovieID int64
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("movie %d is not a valid pipeline candidate: missing required fields [%s]", e.MovieID, strings.Join(e.Missing, ", "))
}

// ProbeError indicates the source file could not be inspected (unreadable,
// corrupt, or the probe tool failed to execute). Fatal to the run; no
// rendition is ever attempted for a source that cannot be probed.
type ProbeError struct {
	MovieID int64
	err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe of source for movie %d failed: %v", e.MovieID, e.err)
}

func (e *ProbeError) Unwrap() error { return e.err }

// StorageError indicates a failure writing to, or bookkeeping about, the
// artifact store or registry. Retryable; the job queue will redeliver.
type StorageError struct {
	Op  string
	err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.err)
}

func (e *StorageError) Unwrap() error { return e.err }

// isPermanentFailure reports whether re-running the job could ever succeed.
// Validation and probe failures describe the record/source itself, so
// redelivery is pointless; everything else is assumed transient.
func isPermanentFailure(err error) bool {
	var validationErr *ValidationError
	var probeErr *ProbeError

	return errors.As(err, &validationErr) || errors.As(err, &probeErr)
}
