package user

import "time"

// DeletionPhase is one of the states of the account-deletion lifecycle.
type DeletionPhase int

const (
	// PhasePurged means the user record no longer exists.
	PhasePurged DeletionPhase = iota
	PhaseActive
	PhasePendingDeletion
	PhaseDeletionExpired
)

func (p DeletionPhase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhasePendingDeletion:
		return "pending_deletion"
	case PhaseDeletionExpired:
		return "deletion_expired"
	default:
		return "purged"
	}
}

// DeletionState is the classified deletion state of a user. At is set for
// pending and expired states.
type DeletionState struct {
	Phase DeletionPhase
	At    time.Time
}

// ClassifyDeletion is the single place where deletedAt is interpreted.
// A nil user classifies as purged.
func ClassifyDeletion(u *User, now time.Time) DeletionState {
	if u == nil {
		return DeletionState{Phase: PhasePurged}
	}
	if u.DeletedAt == nil {
		return DeletionState{Phase: PhaseActive}
	}
	at := *u.DeletedAt
	if at.After(now) {
		return DeletionState{Phase: PhasePendingDeletion, At: at}
	}
	return DeletionState{Phase: PhaseDeletionExpired, At: at}
}
