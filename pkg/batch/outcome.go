package batch

import (
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
)

// Status is the outcome of a single statement.
type Status string

const (
	StatusSuccess Status = "success"
	// StatusSuppressed is a failure absorbed without being reported.
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
	// StatusExternal is a bulk delete handed to the external client. It ran
	// outside the batch transaction.
	StatusExternal Status = "external"
)

// StatementOutcome records what happened to one statement of a batch.
type StatementOutcome struct {
	Index        int
	Status       Status
	Kind         store.ErrorKind
	BulkDelete   bool
	RowsAffected int64
	Duration     time.Duration
	Error        string
}

// StatementError is a failure that was not suppressed. The batch keeps going
// after one.
type StatementError struct {
	Index     int
	Statement string
	Kind      store.ErrorKind
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Outcome is the aggregate result of a batch.
type Outcome struct {
	// LastResult is the result of the last statement that succeeded through
	// the driver. Bulk deletes never set it. Nil when nothing succeeded.
	LastResult *store.Result

	// Suppressed counts failures that were absorbed silently or at Info.
	Suppressed int

	HardErrors []*StatementError

	// NonTransactional lists the indexes of statements that ran outside the
	// transaction and are not undone if it rolls back.
	NonTransactional []int

	Statements []StatementOutcome
}

// Succeeded returns the number of statements that completed.
func (o *Outcome) Succeeded() int {
	n := 0
	for _, s := range o.Statements {
		if s.Status == StatusSuccess || s.Status == StatusExternal {
			n++
		}
	}
	return n
}
