package dispatch

import (
	"fmt"
	"net/http"
)

// StatusMiss is the rejection status that means "try the next candidate".
const StatusMiss = http.StatusNotFound

// Outcome is the result of probing a candidate.
type Outcome struct {
	Matched bool
	Status  int
}

// Matched claims the request with the given status.
func Matched(status int) Outcome {
	return Outcome{Matched: true, Status: status}
}

// Rejected declines the request. Rejected(StatusMiss) falls through to the
// next candidate, any other status stops resolution at this candidate.
func Rejected(status int) Outcome {
	return Outcome{Matched: false, Status: status}
}

// Miss reports whether the outcome lets resolution continue.
func (o Outcome) Miss() bool {
	return !o.Matched && o.Status == StatusMiss
}

// HardReject reports a rejection that must not fall through.
func (o Outcome) HardReject() bool {
	return !o.Matched && o.Status != StatusMiss
}

func (o Outcome) String() string {
	if o.Matched {
		return fmt.Sprintf("matched(%d)", o.Status)
	}
	return fmt.Sprintf("rejected(%d)", o.Status)
}
