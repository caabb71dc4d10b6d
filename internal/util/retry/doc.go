// Package retry provides exponential backoff retry logic for transient failures.
//
// The [Do] function retries an operation under an immutable [Policy] with
// bounded attempts and capped exponential delays. It is the single retry
// primitive for every fallible install step, so backoff limits are enforced
// uniformly rather than ad hoc per step.
package retry
