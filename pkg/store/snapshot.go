package store

import (
	"maps"
	"time"

	"github.com/gigboard/flagcore/pkg/model"
)

// Snapshot is an immutable, versioned set of validated flag
// definitions. It is constructed once by the refresh manager and never
// patched: newer configuration always arrives as a whole new snapshot.
type Snapshot struct {
	Version     uint64
	Definitions map[string]model.FlagDefinition
	LoadedAt    time.Time
}

// NewSnapshot builds a snapshot from validated definitions. The input
// slice is indexed by id; callers must have deduplicated ids already.
func NewSnapshot(version uint64, defs []model.FlagDefinition) *Snapshot {
	indexed := make(map[string]model.FlagDefinition, len(defs))
	for _, d := range defs {
		indexed[d.ID] = d
	}
	return &Snapshot{
		Version:     version,
		Definitions: indexed,
		LoadedAt:    time.Now().UTC(),
	}
}

// Flags returns a copy of the definitions, safe to hand to callers.
func (s *Snapshot) Flags() map[string]model.FlagDefinition {
	return maps.Clone(s.Definitions)
}

func (s *Snapshot) Len() int {
	return len(s.Definitions)
}
