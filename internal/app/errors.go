package app

import "errors"

var (
	// ErrBusy is returned when a command starts while another one runs.
	ErrBusy = errors.New("a run is already in progress")

	// ErrUnknownSide is returned for a store name other than source or destination.
	ErrUnknownSide = errors.New("unknown store side")

	// ErrNoPredicate is returned by Search without a target or sentinel.
	ErrNoPredicate = errors.New("search needs exactly one of equals or differs-from")
)
