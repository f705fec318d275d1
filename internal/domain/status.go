package domain

// NextStatus derives a reservation's status from its attendance. It is the
// only place status is computed on the check-in path; the ledger calls it
// inside the same transaction that moves the counter.
//
// Rules: zero attendance keeps the current status; partial attendance is
// confirmed; exactly-at-capacity is completed; beyond capacity is
// overbooked. Cancelled is terminal and never derived here; callers must
// reject mutations on a cancelled reservation before asking for the next
// status.
func NextStatus(current ReservationStatus, attendance, capacity int) ReservationStatus {
	if current == ReservationCancelled {
		return ReservationCancelled
	}
	switch {
	case attendance == 0:
		return current
	case attendance < capacity:
		return ReservationConfirmed
	case attendance == capacity:
		return ReservationCompleted
	default:
		return ReservationOverbooked
	}
}

// CanIncrement reports whether the attendance ledger may touch a
// reservation in this status.
func CanIncrement(status ReservationStatus) bool {
	return status != ReservationCancelled
}
