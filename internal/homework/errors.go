package homework

import (
	"errors"
)

// Error kinds. Match them with errors.Is or KindOf.
var (
	ErrIncorrectResponse    = errors.New("incorrect api response")
	ErrUnknownStatus        = errors.New("unknown homework status")
	ErrMissingField         = errors.New("missing homework field")
	ErrEndpointUnavailable  = errors.New("endpoint unavailable")
	ErrFetch                = errors.New("api request failed")
	ErrNotificationDelivery = errors.New("notification delivery failed")
)

var kinds = []error{
	ErrIncorrectResponse,
	ErrUnknownStatus,
	ErrMissingField,
	ErrEndpointUnavailable,
	ErrFetch,
	ErrNotificationDelivery,
}

// Error is the tagged error returned by every step of a poll iteration.
//
// Error() yields only Msg, so two failures with the same cause produce the
// same text and can be deduplicated by it.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

// NewError builds an Error of the given kind. cause may be nil.
func NewError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "homework error"
}

func (e *Error) Is(target error) bool { return e.Kind != nil && target == e.Kind }
func (e *Error) Unwrap() error        { return e.Err }

// KindOf returns the kind sentinel carried by err, or nil if err is untagged.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
