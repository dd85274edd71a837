package scheduler

// ErrorKind classifies a stage handler failure so the worker loop can
// decide between retry and terminal finalization.
type ErrorKind string

const (
	// ErrorKindRetryableTransient covers network timeouts, upstream 5xx,
	// LLM rate limits: retry.
	ErrorKindRetryableTransient ErrorKind = "retryable_transient"

	// ErrorKindRetryableResource covers lease lost / reclaim races: retry,
	// but this worker does not increment the attempt counter — the
	// reclaim that preempted it already did.
	ErrorKindRetryableResource ErrorKind = "retryable_resource"

	// ErrorKindPermanentBadInput covers artifact schema mismatch under the
	// strict compat policy, malformed normalized payloads: immediate
	// dead-letter, single attempt terminal.
	ErrorKindPermanentBadInput ErrorKind = "permanent_bad_input"

	// ErrorKindPermanentBusiness covers a stage computing a negative result
	// that is itself the successful outcome (e.g. "cannot produce
	// feedback"): success path, not failure. Handlers should not return
	// this as a ProcessResult error_kind with Success=false; it exists so
	// callers recognize the distinction when classifying upstream errors.
	ErrorKindPermanentBusiness ErrorKind = "permanent_business"

	// ErrorKindCancelled covers a handler cancelled by lease loss or
	// shutdown: treated as ErrorKindRetryableResource.
	ErrorKindCancelled ErrorKind = "cancelled"

	// ErrorKindFatalInfrastructure covers the repository itself being
	// unreachable: the tick errors out, the Runner applies its error
	// backoff, and no submission state changes.
	ErrorKindFatalInfrastructure ErrorKind = "fatal_infrastructure"
)

// IsRetryable reports whether a kind should route through
// finalize_failure_retry (subject to attempt budget) rather than being
// treated as an immediate terminal failure.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case ErrorKindRetryableTransient, ErrorKindRetryableResource, ErrorKindCancelled:
		return true
	default:
		return false
	}
}
