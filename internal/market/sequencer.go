package market

// SequencerStatus is the sum type `{ ok } | { down, reason, updatedAt? }`
// from spec.md §9.
type SequencerStatus struct {
	OK        bool
	Reason    string
	UpdatedAt int64
}

func SequencerOK() SequencerStatus { return SequencerStatus{OK: true} }

func SequencerDown(reason string, updatedAt int64) SequencerStatus {
	return SequencerStatus{OK: false, Reason: reason, UpdatedAt: updatedAt}
}
