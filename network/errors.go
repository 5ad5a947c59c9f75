package network

import "github.com/pkg/errors"

var (
	ErrEmptyNetwork         = errors.New("empty network")
	ErrDisconnectedNetwork  = errors.New("disconnected network")
	ErrNotCanonicalized     = errors.New("network not canonicalized")
	ErrInvalidBudget        = errors.New("invalid truncation budget")
	ErrIncompatibleTopology = errors.New("incompatible topology")
)
