package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable is a source that failed or returned nothing usable for an instrument, the benchmark or the window
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrAlignmentEmpty is an inner join across the instruments and the benchmark that kept no dates
	ErrAlignmentEmpty = errors.New("no overlapping dates across the selected instruments and benchmark")

	// ErrDegenerateStatistics is a beta that cannot be computed, zero benchmark variance or fewer than 2 samples
	ErrDegenerateStatistics = errors.New("degenerate statistics")

	// ErrInvalidSelection is an empty or disallowed instrument selection, or a window outside the year bounds
	ErrInvalidSelection = errors.New("invalid selection")
)

// UserErrorMessage prefixes every error shown to a caller of the analysis
const UserErrorMessage = "invalid input, please adjust selection"

// IsUserError reports whether err belongs to the analysis error taxonomy, anything else is an internal failure
func IsUserError(err error) bool {
	return errors.Is(err, ErrDataUnavailable) ||
		errors.Is(err, ErrAlignmentEmpty) ||
		errors.Is(err, ErrDegenerateStatistics) ||
		errors.Is(err, ErrInvalidSelection)
}

// UserMessage renders err the way the http and cli surfaces display it
func UserMessage(err error) string {
	return fmt.Sprintf("%s: %s", UserErrorMessage, err)
}

func dataUnavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataUnavailable, fmt.Sprintf(format, args...))
}

func invalidSelection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSelection, fmt.Sprintf(format, args...))
}

func degenerate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDegenerateStatistics, fmt.Sprintf(format, args...))
}
