package bidding

import "time"

// Phase classifies where an auction sits in its time window.
type Phase int

const (
	// PhaseNotOpen means bidding has not started yet.
	PhaseNotOpen Phase = iota
	// PhaseNormal is the open phase with public bids.
	PhaseNormal
	// PhaseLast is the sealed-bidding window at the end of the auction.
	PhaseLast
	// PhaseEnded means the auction's end time has passed.
	PhaseEnded
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseNotOpen:
		return "not_open"
	case PhaseNormal:
		return "open_normal"
	case PhaseLast:
		return "open_last_phase"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ClassifyWindow derives the phase from the auction's time window and an
// explicit now. It must be evaluated fresh on every bid attempt; the result
// is only as current as the now it was given.
func ClassifyWindow(start, end, now time.Time, lastWindow time.Duration) Phase {
	if !now.Before(end) {
		return PhaseEnded
	}
	if now.Before(start) {
		return PhaseNotOpen
	}
	if end.Sub(now) <= lastWindow {
		return PhaseLast
	}
	return PhaseNormal
}
