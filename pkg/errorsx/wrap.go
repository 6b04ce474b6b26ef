package errorsx

import (
	"errors"
	"fmt"
)

// Error carries a reason code and, optionally, the fragment it was
// raised for.
type Error struct {
	Reason     ReasonCode
	FragmentID string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.FragmentID != "" {
		return "fragment " + e.FragmentID + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with reason unless err already carries one, so a decode
// error surfacing through the transcription stage still reports decode.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if as(err) != nil {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

// ForFragment attaches a fragment id to err, keeping its reason.
func ForFragment(err error, id string) error {
	if err == nil {
		return nil
	}
	return &Error{Reason: Reason(err), FragmentID: id, Err: err}
}

func New(reason ReasonCode, format string, args ...any) error {
	return &Error{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Reason returns the first reason code found in err's chain. Since Wrap
// never re-tags, that is the reason the error was created with.
func Reason(err error) ReasonCode {
	if e := as(err); e != nil {
		return e.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// FragmentID returns the fragment id recorded anywhere in err's chain.
func FragmentID(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.FragmentID != "" {
			return e.FragmentID
		}
		err = e.Err
	}
	return ""
}

func as(err error) *Error {
	var e *Error
	if err != nil && errors.As(err, &e) {
		return e
	}
	return nil
}
