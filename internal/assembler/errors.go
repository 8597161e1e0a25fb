package assembler

import "fmt"

// AssemblyError is fatal for the whole assembly call. Stage names which
// pipeline step failed, one of "sections", "stitching" or "consistency";
// Suggestions are actionable hints surfaced to the caller alongside the
// cause.
type AssemblyError struct {
	Stage       string
	Cause       error
	Suggestions []string
}

func (e *AssemblyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("assembly failed at stage %q: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("assembly failed at stage %q", e.Stage)
}

func (e *AssemblyError) Unwrap() error { return e.Cause }

func newAssemblyError(stage string, cause error, suggestions ...string) *AssemblyError {
	return &AssemblyError{Stage: stage, Cause: cause, Suggestions: suggestions}
}
