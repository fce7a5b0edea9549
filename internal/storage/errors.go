package storage

import (
	"errors"
	"fmt"
)

// ErrLookup is the umbrella for failed id resolution. ErrNotFound and
// ErrAmbiguous both match it via errors.Is, so callers that only care that a
// lookup failed can test the one sentinel while callers that need to know
// which condition occurred can test the specific one.
var (
	ErrLookup    = errors.New("lookup failed")
	ErrNotFound  = fmt.Errorf("%w: no matching row", ErrLookup)
	ErrAmbiguous = fmt.Errorf("%w: more than one matching row", ErrLookup)
)
