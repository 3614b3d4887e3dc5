package draftsync

// Status is the derived save state of an engine. It is never stored; every
// Status() call recomputes it from the engine's current flags.
type Status string

// Save statuses, in resolution priority order.
const (
	StatusLoading Status = "loading" // initial remote fetch outstanding
	StatusSaving  Status = "saving"  // commit in flight
	StatusError   Status = "error"   // commit or fetch failed
	StatusSaved   Status = "saved"   // draft absent, or equal to authoritative
	StatusUnsaved Status = "unsaved" // draft differs from authoritative
)

// statusInput carries the flags the status is derived from.
type statusInput struct {
	loading    bool
	committing bool
	commitErr  bool
	fetchErr   bool
	draftClean bool // draft absent, or equal to the authoritative value
}

// resolveStatus derives a Status from the given flags. The priority order is
// fixed: loading > saving > error > saved > unsaved.
func resolveStatus(in statusInput) Status {
	switch {
	case in.loading:
		return StatusLoading
	case in.committing:
		return StatusSaving
	case in.commitErr || in.fetchErr:
		return StatusError
	case in.draftClean:
		return StatusSaved
	default:
		return StatusUnsaved
	}
}
