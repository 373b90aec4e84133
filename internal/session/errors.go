package session

import (
	"errors"

	"github.com/pavelanni/interviewer/internal/report"
)

// Error kinds returned by the session layer. Every error a Machine or Coach
// returns matches exactly one of them with errors.Is and still unwraps to its
// underlying cause.
var (
	// ErrInitialization means the session could not be bootstrapped; the
	// session never became active.
	ErrInitialization = errors.New("session initialization failed")
	// ErrInvalidInput means the call was rejected without any state change.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSubmission means an accepted answer could not be evaluated; the
	// ledger is unchanged and the same prompt is pending again.
	ErrSubmission = errors.New("submission failed")
	// ErrEmptyResult means there is nothing to summarize.
	ErrEmptyResult = report.ErrEmptyResult
)

// Causes wrapped by the kinds above.
var (
	ErrEmptyAnswer     = errors.New("answer is empty")
	ErrBusy            = errors.New("an answer is already being evaluated")
	ErrCompleted       = errors.New("session is already complete")
	ErrNotStarted      = errors.New("session has not started")
	ErrNotComplete     = errors.New("session is not complete")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrAbandoned       = errors.New("session was abandoned")
	ErrSuperseded      = errors.New("response arrived for a superseded session")
	ErrUnknownSession  = errors.New("unknown session handle")
	ErrMalformedReply  = errors.New("malformed evaluation reply")
	ErrNoQuestions     = errors.New("no questions returned")
	ErrUnsupportedMode = errors.New("unsupported session mode")
)
