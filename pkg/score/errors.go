package score

import "fmt"

// ValidationError reports a violated model rule and where it was found.
// Track and Event are -1 when the violation is not tied to that level.
// It is a distinct kind from I/O errors so callers can tell bad input
// apart from a failed read or write.
type ValidationError struct {
	Track int
	Event int
	Rule  string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Track < 0:
		return fmt.Sprintf("invalid composition: %s", e.Rule)
	case e.Event < 0:
		return fmt.Sprintf("invalid composition: track %d: %s", e.Track, e.Rule)
	default:
		return fmt.Sprintf("invalid composition: track %d event %d: %s", e.Track, e.Event, e.Rule)
	}
}

func compositionError(format string, args ...any) error {
	return &ValidationError{Track: -1, Event: -1, Rule: fmt.Sprintf(format, args...)}
}

func trackError(track int, format string, args ...any) error {
	return &ValidationError{Track: track, Event: -1, Rule: fmt.Sprintf(format, args...)}
}

func eventError(track, event int, err error) error {
	return &ValidationError{Track: track, Event: event, Rule: err.Error()}
}
