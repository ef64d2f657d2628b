// Package tracker is the persistent store of every package, action,
// download and inner document (C1). matrix.go implements the
// phase-status escalation algorithm of §4.1: it is the sole authority on
// concurrent writes to a ZipAction/ZipDownload/XmlFile's (phase, status)
// pair, and it is pure so it can be unit tested and reasoned about
// without a database.
package tracker

import "github.com/phenodcc/crawler/internal/model"

// Escalate applies the matrix of §4.1 to (old, proposed) and returns the
// resulting pair; Changed reports whether it differs from old. The operator is
// idempotent: Escalate(Escalate(old, new), new) == Escalate(old, new).
func Escalate(old, proposed model.PhaseStatus) model.PhaseStatus {
	oldFailed := old.Failed()
	newFailed := proposed.Failed()

	switch {
	case oldFailed && newFailed:
		if proposed.Phase < old.Phase {
			return model.PhaseStatus{Phase: proposed.Phase, Status: model.StatusFailed}
		}
		return old

	case oldFailed && !newFailed:
		return old

	case !oldFailed && newFailed:
		return proposed

	default: // !oldFailed && !newFailed
		switch {
		case proposed.Phase < old.Phase:
			return old
		case proposed.Phase == old.Phase:
			if proposed.Status > old.Status {
				return model.PhaseStatus{Phase: old.Phase, Status: proposed.Status}
			}
			return old
		default: // proposed.Phase > old.Phase
			return proposed
		}
	}
}

// Changed reports whether applying Escalate would move the stored pair.
func Changed(old, proposed model.PhaseStatus) bool {
	return Escalate(old, proposed) != old
}
