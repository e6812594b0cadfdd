package store

import "regexp"

// ErrorKind classifies a statement failure. Batches decide whether to
// suppress or report a failure from its kind alone, never from its message.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindDuplicateID is a uniqueness violation on an id column. Replaying a
	// script that inserts rows already present produces these.
	KindDuplicateID
	// KindMisuse is the driver reporting an API misuse for a statement that
	// did nothing, typically an empty or comment-only statement.
	KindMisuse
	KindConstraint
	KindSyntax
)

func (k ErrorKind) String() string {
	switch k {
	case KindDuplicateID:
		return "duplicate_id"
	case KindMisuse:
		return "misuse"
	case KindConstraint:
		return "constraint"
	case KindSyntax:
		return "syntax"
	default:
		return "unknown"
	}
}

// Suppressed reports whether failures of this kind are absorbed by a batch.
func (k ErrorKind) Suppressed() bool {
	return k == KindDuplicateID || k == KindMisuse
}

// duplicateIDTarget matches the constraint target of a uniqueness error whose
// last column name ends in "id", e.g. "users.id" or "orders.customer_id".
var duplicateIDTarget = regexp.MustCompile(`(?i)id$`)

// IsIDColumn reports whether a uniqueness violation target names an id column.
func IsIDColumn(target string) bool {
	return duplicateIDTarget.MatchString(target)
}
