package delivery

import (
	"errors"
	"fmt"

	"telegrama/pkg/tgfmt"
)

// Error kinds, matched with errors.Is.
var (
	// ErrConfiguration: a required setting is missing; nothing was sent.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport: no response was obtained from the API.
	ErrTransport = errors.New("transport error")
	// ErrRemote: the API answered ok=false or a non-2xx status.
	ErrRemote = errors.New("remote rejection")
	// ErrFormatting: nothing was left to send after formatting.
	ErrFormatting = errors.New("formatting error")
)

// Error describes a failed delivery.
type Error struct {
	Kind    error
	Dialect tgfmt.Dialect
	// StatusCode and Description are set for remote rejections.
	StatusCode  int
	Description string
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ErrRemote:
		return fmt.Sprintf("%v (%s): %s", e.Kind, e.Dialect, e.Description)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprint(e.Kind)
	}
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return nil
}
