package session

import "errors"

// notifiedError marks an error whose user-facing notification was already
// emitted by the transport hooks or the refresh coordinator. Manager
// operations notify only for errors that do not carry this mark, which keeps
// every terminal failure at exactly one notification.
type notifiedError struct {
	err error
}

func (e *notifiedError) Error() string { return e.err.Error() }

func (e *notifiedError) Unwrap() error { return e.err }

func markNotified(err error) error {
	return &notifiedError{err: err}
}

func alreadyNotified(err error) bool {
	var ne *notifiedError
	return errors.As(err, &ne)
}
