package position

import "github.com/pkg/errors"

var (
	// ErrPositionNotFound unknown position id.
	ErrPositionNotFound = errors.New("position not found")
	// ErrInvalidPositionData invalid values or unknown update fields.
	ErrInvalidPositionData = errors.New("invalid position data")
	// ErrPositionConflict operation clashes with current position state.
	ErrPositionConflict = errors.New("position conflict")
)
