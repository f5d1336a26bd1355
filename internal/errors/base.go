package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = (*wrappedError)(nil)
	_ error = (*markedError)(nil)
)

func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap annotates err with text. A nil err stays nil.
func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}

	if len(text) == 0 {
		return err
	}

	return &wrappedError{
		err: err,
		msg: text,
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return Wrap(err, fmt.Sprintf(format, args...))
}

type wrappedError struct {
	err error
	msg string
}

const sep = ", err: "

func (err wrappedError) Error() string {
	if err.err == nil {
		return err.msg
	}

	return err.msg + sep + err.err.Error()
}

func (err wrappedError) Unwrap() error {
	if err.err == nil {
		return errors.New(err.msg)
	}

	return err.err
}

// Mark tags err with a sentinel. Both stay reachable through Is, and the
// message reads "<sentinel>, err: <err>". A nil err stays nil.
func Mark(err, sentinel error) error {
	if err == nil {
		return nil
	}

	if sentinel == nil {
		return err
	}

	return &markedError{err: err, sentinel: sentinel}
}

type markedError struct {
	err      error
	sentinel error
}

func (err markedError) Error() string {
	return err.sentinel.Error() + sep + err.err.Error()
}

func (err markedError) Unwrap() []error {
	return []error{err.sentinel, err.err}
}
