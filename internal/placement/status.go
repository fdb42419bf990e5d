// Package placement holds the domain model shared by the matching engine:
// job postings, students, match assessments, feedback and applications.
//
// Application status graph:
//
//	pending ──► pending   (re-scoring overwrites in place)
//	   │
//	   ├──────► accepted
//	   └──────► rejected
//
// accepted and rejected are terminal.
package placement

import "fmt"

// Status values mirror the application_status check constraint in PostgreSQL.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

var validTransitions = map[Status][]Status{
	StatusPending: {StatusPending, StatusAccepted, StatusRejected},
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusAccepted, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// CanTransition reports whether moving from → to is permitted.
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions.
func (s Status) IsTerminal() bool {
	_, ok := validTransitions[s]
	return !ok
}

func (s Status) String() string { return string(s) }
