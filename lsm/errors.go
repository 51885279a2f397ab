package lsm

import "errors"

var (
	// ErrCorruptSST is returned when an SST file fails structural checks.
	ErrCorruptSST = errors.New("corrupt SST file")

	// ErrOutOfOrder is returned when keys are added to a builder out of
	// ascending order.
	ErrOutOfOrder = errors.New("keys added to SST builder out of order")

	// ErrClosed is returned when operating on a closed engine.
	ErrClosed = errors.New("engine is closed")
)
