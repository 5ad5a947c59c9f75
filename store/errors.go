package store

import "github.com/pkg/errors"

// ErrFileFormat reports a container whose layout or payloads do not
// match what the reader expects.
var ErrFileFormat = errors.New("malformed container")
