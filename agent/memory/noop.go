package memory

import (
	"context"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
)

// NoopStore stands in when no database is configured. Agents keep working
// without long-term memory.
type NoopStore struct{}

func (NoopStore) WriteContext(context.Context, int64, string, string, map[string]any) error {
	return nil
}

func (NoopStore) ReadContext(context.Context, int64, string, string, int) ([]contractx.MemoryMatch, error) {
	return nil, nil
}

var _ contractx.MemoryStore = NoopStore{}
