package chat

import "errors"

// Turn failure taxonomy. Every failure path of the orchestrator resolves to
// one of these; callers match with errors.Is and never see raw provider text.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("session not found")
	ErrNothingToRegenerate = errors.New("nothing to regenerate")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrInternal            = errors.New("internal error")
)

// Kind returns a short stable label for a turn error, used for metrics and
// logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNothingToRegenerate):
		return "nothing_to_regenerate"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrProviderTimeout):
		return "provider_timeout"
	default:
		return "internal"
	}
}
