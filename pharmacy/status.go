package pharmacy

// =============================================================================
// PRESCRIPTION LIFECYCLE
// =============================================================================
//
//   draft ──► saved ──► dispensed   (terminal, audited)
//               │
//               └─────► cancelled   (terminal, no stock effect)

// Status is the lifecycle state of a prescription.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSaved     Status = "saved"
	StatusDispensed Status = "dispensed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSaved, StatusDispensed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDispensed || s == StatusCancelled
}

// Mutable reports whether header fields may still be edited.
func (s Status) Mutable() bool {
	return !s.Terminal()
}

var transitions = map[Status][]Status{
	StatusDraft: {StatusSaved},
	StatusSaved: {StatusDispensed, StatusCancelled},
}

// CanTransition reports whether from → to is an allowed lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
