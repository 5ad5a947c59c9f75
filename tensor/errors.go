package tensor

import "github.com/pkg/errors"

// Errors returned by Index and Tensor constructors and operations.
// All deeper failures wrap one of these, so errors.Is works through
// any amount of context added along the way.
var (
	ErrInvalidDimension = errors.New("invalid dimension")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrDuplicateLeg     = errors.New("duplicate leg")
	ErrUnknownIndex     = errors.New("unknown index")
)
