package turn

// FallbackReason identifies why the Orchestrator had to synthesize a
// fallback reply instead of a generated one (spec §4.8 step 7).
type FallbackReason int

const (
	ReasonHealthCheckFailed FallbackReason = iota
	ReasonTimeout
	ReasonBreakerOpen
	ReasonDependencyError
)

// fallbackFor returns the deterministic, user-friendly sentence for
// reason. The fallback is never empty and always passes
// internal/validator.Validate.
func fallbackFor(reason FallbackReason) string {
	switch reason {
	case ReasonHealthCheckFailed:
		return "I can't connect to my processing system. Please check if the Letta server is running."
	case ReasonTimeout:
		return "I'm having trouble processing that right now. Please try again in a moment."
	case ReasonBreakerOpen:
		return "I'm currently unable to process your request. Please try again shortly."
	default:
		return "Something went wrong while processing your request. Please try again."
	}
}
