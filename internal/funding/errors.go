package funding

import (
	"fmt"
)

// PartialFailureError is returned when the chain accepted the creation
// transaction but the record could not be stored. The transaction is not
// rolled back; the journal keeps it for the reconciler.
type PartialFailureError struct {
	ChainCompleted bool
	TxHash         string
	ProjectID      string
	Err            error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("transaction %s accepted on chain but project %s was not stored: %v", e.TxHash, e.ProjectID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// DuplicateSubmissionError is returned when an idempotency key is already in use
type DuplicateSubmissionError struct {
	Key    string
	TxHash string
}

func (e *DuplicateSubmissionError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("submission %q was already broadcast as %s", e.Key, e.TxHash)
	}
	return fmt.Sprintf("submission %q is already in progress", e.Key)
}
