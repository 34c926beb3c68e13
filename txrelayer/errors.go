package txrelayer

import (
	"errors"
)

var (
	// ErrNotYetAccepted is returned by the checker while a transaction is neither accepted nor rejected.
	ErrNotYetAccepted = errors.New("transaction not yet accepted")
	// ErrMissingTxHash is returned when the destination accepted a submission without a tx hash.
	ErrMissingTxHash = errors.New("destination returned no transaction hash")
)

// Class tells the consumer what to do with a failed delivery.
type Class int

const (
	// Retriable deliveries are nacked and redelivered with backoff. Unclassified errors are retriable.
	Retriable Class = iota
	// Terminal deliveries are logged with their payload, alerted and dropped.
	Terminal
	// Absorbed errors happened after the point of no return; the delivery is acked.
	Absorbed
)

func (c Class) String() string {
	switch c {
	case Terminal:
		return "terminal"
	case Absorbed:
		return "absorbed"
	default:
		return "retriable"
	}
}

type classifiedError struct {
	class Class
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

func NewTerminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: Terminal, err: err}
}

func NewAbsorbed(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: Absorbed, err: err}
}

func Classify(err error) Class {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return Retriable
}
