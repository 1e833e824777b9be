package blob

import "groupcore/internal/infra/blob/memory"

// NewMemory returns an in-memory Store for tests.
func NewMemory() Store { return memory.New() }
