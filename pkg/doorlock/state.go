package doorlock

// Mode is the operating mode of the lock.
type Mode int

const (
	// ModeNormal grants or denies access for each scanned card.
	ModeNormal Mode = iota

	// ModeEnroll adds unknown cards and removes known ones.
	ModeEnroll
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "Normal"
	case ModeEnroll:
		return "Enroll"
	default:
		return "Unknown"
	}
}

// Outcome is the result of dispatching one scan.
type Outcome int

const (
	// OutcomeNone means nothing happened.
	OutcomeNone Outcome = iota
	// OutcomeGranted means access was granted.
	OutcomeGranted
	// OutcomeDenied means access was denied.
	OutcomeDenied
	// OutcomeEnterEnroll means the master credential switched to Enroll mode.
	OutcomeEnterEnroll
	// OutcomeExitEnroll means the master credential switched back to Normal mode.
	OutcomeExitEnroll
	// OutcomeAdded means the credential was enrolled.
	OutcomeAdded
	// OutcomeRemoved means the credential was removed.
	OutcomeRemoved
	// OutcomeAddFailed means enrolling the credential failed.
	OutcomeAddFailed
	// OutcomeRemoveFailed means removing the credential failed.
	OutcomeRemoveFailed
	// OutcomeHalted means a fatal storage error halted the controller.
	OutcomeHalted
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "None"
	case OutcomeGranted:
		return "Granted"
	case OutcomeDenied:
		return "Denied"
	case OutcomeEnterEnroll:
		return "EnterEnroll"
	case OutcomeExitEnroll:
		return "ExitEnroll"
	case OutcomeAdded:
		return "Added"
	case OutcomeRemoved:
		return "Removed"
	case OutcomeAddFailed:
		return "AddFailed"
	case OutcomeRemoveFailed:
		return "RemoveFailed"
	case OutcomeHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}
