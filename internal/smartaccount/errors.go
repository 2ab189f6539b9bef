package smartaccount

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccountNotFound        = errors.New("smart account not found")
	ErrVirtualAccountNotFound = errors.New("virtual account not found")
	ErrAccountsUnresolved     = errors.New("account ids not resolved; call ResolveAccountIDs first")
	ErrNotAuthenticated       = errors.New("not authenticated; call Authenticate first")
	ErrPollAttemptsExhausted  = errors.New("poll attempts exhausted")
)

// HTTPStatusError is returned for any non-2xx response.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("smart licensing api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// SubmissionError is returned when the API accepts a request but marks the
// submission FAILED, most often because a usage report was already uploaded.
type SubmissionError struct {
	Message string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %s", e.Message)
}

// PollError carries the message the API returned instead of a result.
type PollError struct {
	PollID  string
	Status  string
	Code    string
	Message string
}

func (e *PollError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("poll %s %s: %s (%s)", e.PollID, e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("poll %s %s: %s", e.PollID, e.Status, e.Message)
}
