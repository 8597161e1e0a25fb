package validator

// Result is the outcome of a validation call. The invariant IsValid ==
// (len(Errors) == 0) is maintained by the Add methods; construct results
// through them rather than by hand.
type Result struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// NewResult returns a valid, empty result.
func NewResult() *Result {
	return &Result{IsValid: true}
}

// AddError appends an error and flips IsValid.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning appends a warning; warnings never affect IsValid.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Merge folds other into r, preserving order and the validity invariant.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	for _, e := range other.Errors {
		r.AddError(e)
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}
