package appointment

// Forward moves of the intended clinical flow. pending -> verified is left out
// on purpose: it only happens through OTP verification.
var treatmentTransitions = map[TreatmentState][]TreatmentState{
	TreatmentPending:  {TreatmentNoShow},
	TreatmentVerified: {TreatmentTreated},
	TreatmentTreated:  nil,
	TreatmentNoShow:   nil,
}

func (s TreatmentState) Valid() bool {
	_, ok := treatmentTransitions[s]
	return ok
}

// Terminal states accept no further transitions.
func (s TreatmentState) Terminal() bool {
	return s == TreatmentTreated || s == TreatmentNoShow
}

// canTransition reports whether a doctor may move an appointment from one
// treatment state to another. A same-state update is always allowed so notes
// can be edited. With strict off any valid state may follow any other.
func canTransition(from, to TreatmentState, strict bool) bool {
	if !to.Valid() {
		return false
	}
	if !strict || from == to {
		return true
	}
	for _, next := range treatmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var settableStatuses = map[Status]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
}
