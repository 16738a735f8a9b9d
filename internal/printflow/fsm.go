// Package printflow governs one print job's UI lifecycle with an
// explicit finite-state machine: a pure total reducer over six phases,
// and a Controller that drives it from device polling.
package printflow

// Phase is the active variant of the print flow state.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseReady
	PhaseSending
	PhasePrinting
	PhaseComplete
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseReady:
		return "ready"
	case PhaseSending:
		return "sending"
	case PhasePrinting:
		return "printing"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// File describes the document selected for printing.
type File struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	ColorMode string `json:"colorMode"`
}

// State is the full print flow state. A File is present in every phase
// except empty; JobID only in sending and printing.
type State struct {
	Phase       Phase  `json:"-"`
	File        File   `json:"file"`
	JobID       int    `json:"jobId,omitempty"`
	Progress    int    `json:"progress"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	Message     string `json:"message,omitempty"`
}

// ActionKind enumerates the reducer's actions.
type ActionKind int

const (
	ActionSelectFile ActionKind = iota
	ActionRemoveFile
	ActionStartSend
	ActionStartPrinting
	ActionPrintProgress
	ActionComplete
	ActionError
	ActionCancel
	ActionReset
)

// Action carries one reducer input. Only the fields relevant to its Kind
// are read.
type Action struct {
	Kind       ActionKind
	File       File
	JobID      int
	TotalPages int
	Page       int
	Progress   int
	Message    string
}

// Reduce applies one action to the state. Any (phase, action) pair
// outside the transition table is a no-op that returns the input state
// unchanged; the reducer is total and never fails.
func Reduce(s State, a Action) State {
	switch a.Kind {
	case ActionSelectFile:
		if s.Phase == PhaseEmpty || s.Phase == PhaseReady {
			return State{Phase: PhaseReady, File: a.File}
		}
	case ActionRemoveFile:
		if s.Phase == PhaseReady {
			return State{}
		}
	case ActionStartSend:
		if s.Phase == PhaseReady {
			return State{Phase: PhaseSending, File: s.File, JobID: a.JobID}
		}
	case ActionStartPrinting:
		if s.Phase == PhaseSending {
			return State{
				Phase:       PhasePrinting,
				File:        s.File,
				JobID:       s.JobID,
				CurrentPage: 1,
				TotalPages:  a.TotalPages,
			}
		}
	case ActionPrintProgress:
		if s.Phase == PhasePrinting {
			next := s
			next.CurrentPage = a.Page
			next.Progress = a.Progress
			return next
		}
	case ActionComplete:
		if s.Phase == PhasePrinting {
			return State{Phase: PhaseComplete, File: s.File, TotalPages: s.TotalPages}
		}
	case ActionError:
		if s.Phase == PhaseSending || s.Phase == PhasePrinting {
			return State{Phase: PhaseError, File: s.File, Message: a.Message}
		}
	case ActionCancel:
		if s.Phase == PhaseSending || s.Phase == PhasePrinting || s.Phase == PhaseError {
			return State{Phase: PhaseReady, File: s.File}
		}
	case ActionReset:
		if s.Phase == PhaseComplete || s.Phase == PhaseError {
			return State{}
		}
	}
	return s
}
