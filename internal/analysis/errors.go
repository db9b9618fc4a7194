package analysis

import "fmt"

// RetrievalError wraps a candidate-source failure. The pipeline never
// surfaces it to callers; the analysis degrades to an empty-comparables
// result with an explanatory summary instead.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("candidate retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
