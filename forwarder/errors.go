package forwarder

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceStore marks failures talking to PostgreSQL.
	ErrSourceStore = errors.New("source store error")
	// ErrSinkStore marks failures talking to ClickHouse.
	ErrSinkStore = errors.New("sink store error")
)

// StoreError wraps a store failure with the side it happened on, so the loop
// knows which connection to rebuild.
type StoreError struct {
	Side error // ErrSourceStore or ErrSinkStore
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Side.Error(), e.Err.Error())
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Side, e.Err}
}

func sourceErr(err error) error {
	return &StoreError{Side: ErrSourceStore, Err: err}
}

func sinkErr(err error) error {
	return &StoreError{Side: ErrSinkStore, Err: err}
}
