package tci

import "github.com/pkg/errors"

// ErrStagnation reports a cross interpolation that stopped improving
// before reaching the target tolerance, with rank budget to spare.
var ErrStagnation = errors.New("cross interpolation stagnated")
