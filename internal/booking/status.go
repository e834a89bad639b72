package booking

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusFinished  Status = "Finished"
	StatusCancelled Status = "Cancelled"
)

// ParseStatus accepts the backend's spelling in any case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "finished":
		return StatusFinished, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown status: %s", s)
	}
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusFinished: true, StatusCancelled: true},
	StatusFinished:  {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IsEditable reports whether the renter may still change or cancel.
func (s Status) IsEditable() bool {
	return s != StatusFinished && s != StatusCancelled
}
