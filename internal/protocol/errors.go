package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFile        = errors.New("unknown file")
	ErrInvalidRange       = errors.New("invalid range")
	ErrBadRequest         = errors.New("bad request")
	ErrTransportFault     = errors.New("transport fault")
	ErrMergeFault         = errors.New("merge fault")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// RemoteError is an ERROR:<reason> reply. It unwraps to the sentinel named by
// the reason code so callers can use errors.Is.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "server replied with error: " + e.Reason
}

func (e *RemoteError) Unwrap() error {
	for _, sentinel := range []error{ErrUnknownFile, ErrInvalidRange, ErrBadRequest} {
		if strings.HasPrefix(e.Reason, sentinel.Error()) {
			return sentinel
		}
	}
	return nil
}

// FaultError marks a connection as unusable: a timeout, reset, or short
// read/write in the middle of an exchange.
type FaultError struct {
	Op  string
	Err error
}

func Fault(op string, err error) error {
	return &FaultError{Op: op, Err: err}
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrTransportFault, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

func (e *FaultError) Is(target error) bool {
	return target == ErrTransportFault
}
