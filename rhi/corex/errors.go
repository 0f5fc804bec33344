package corex

import "errors"

// Sentinels shared across rhi subpackages where no richer context is
// needed. Component-specific taxonomies (memory, RDG, ...) live next to
// their components and may wrap these.
var (
	ErrNotImplemented = errors.New("not implemented")
	ErrShuttingDown   = errors.New("device is shutting down")
)
