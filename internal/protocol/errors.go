package protocol

import "errors"

var (
	// ErrFatal marks conditions the channel cannot survive in place.
	ErrFatal = errors.New("protocol: fatal")
	// ErrProtocolMismatch marks a schema or version disagreement between peers.
	ErrProtocolMismatch = &fatalError{msg: "protocol: peers disagree on wire contract"}

	ErrInvalidLength     = &fatalError{msg: "protocol: invalid length"}
	ErrTruncated         = &fatalError{msg: "protocol: truncated data"}
	ErrFieldTypeMismatch = &fatalError{msg: "protocol: field type mismatch"}
	ErrPayloadTooLarge   = &fatalError{msg: "protocol: payload too large"}
)

type fatalError struct {
	msg string
}

func (e *fatalError) Error() string { return e.msg }

func (e *fatalError) Unwrap() error { return ErrFatal }

// Fatal wraps err so IsFatal reports true for it.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return &wrappedFatal{err: err}
}

type wrappedFatal struct {
	err error
}

func (e *wrappedFatal) Error() string { return e.err.Error() }

func (e *wrappedFatal) Unwrap() []error { return []error{e.err, ErrFatal} }

// IsFatal reports whether err belongs to the unrecoverable category:
// codec/schema disagreement, capacity overflow, or broken channel setup.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
