package density

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTable is returned when a model is initialized from a table
	// without rows.
	ErrEmptyTable = errors.New("density: the input table is empty")

	// ErrNoFeatures is returned when the input has no numeric feature columns.
	ErrNoFeatures = errors.New("density: no numerical columns available")

	// ErrDimensionMismatch is returned when a row does not have the expected
	// number of feature cells.
	ErrDimensionMismatch = errors.New("density: row has an unexpected number of cells")

	// ErrNonNumericCell is returned when a feature cell is not numeric.
	ErrNonNumericCell = errors.New("density: non numeric cell")

	// ErrMissingValue is returned when a feature cell is missing and the
	// missing value policy is Fail.
	ErrMissingValue = errors.New("density: missing value")

	// ErrDuplicateKey is returned when two rows of a table share a key.
	ErrDuplicateKey = errors.New("density: duplicate row key")

	// ErrUnknownRow matches every *UnknownRowError.
	ErrUnknownRow = errors.New("density: unknown row")

	// ErrCorruptModel is returned when a serialized model cannot be decoded
	// into a consistent model.
	ErrCorruptModel = errors.New("density: corrupt model")

	// ErrUnsupportedVersion is returned when a serialized model was written
	// by an incompatible format version.
	ErrUnsupportedVersion = errors.New("density: unsupported model format version")

	// ErrIncompatibleFeatures is returned when a table does not provide the
	// feature columns a model was built on.
	ErrIncompatibleFeatures = errors.New("density: incompatible feature columns")
)

// UnknownRowError reports a row key that is not part of a model.
type UnknownRowError struct {
	Key string
}

func (e *UnknownRowError) Error() string {
	return fmt.Sprintf("density: unknown row %q", e.Key)
}

// Is reports whether target is ErrUnknownRow.
func (e *UnknownRowError) Is(target error) bool {
	return target == ErrUnknownRow
}

// UnknownKey returns the offending key of err if it is, or wraps, an
// *UnknownRowError.
func UnknownKey(err error) (string, bool) {
	var ue *UnknownRowError
	if errors.As(err, &ue) {
		return ue.Key, true
	}
	return "", false
}
