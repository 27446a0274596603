package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/schema"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func healthDefinition() component.Definition {
	return component.Definition{
		Name: "Health",
		Schema: schema.MustParse(`{
			"type": "object",
			"properties": {
				"current": {"type": "integer", "minimum": 0},
				"maximum": {"type": "integer", "minimum": 1}
			},
			"required": ["current", "maximum"]
		}`),
	}
}

func healerDefinition() component.Definition {
	return component.Definition{
		Name: "Healer",
		Schema: schema.MustParse(`{
			"type": "object",
			"properties": {
				"power": {"type": "integer"},
				"aura_radius": {"type": "integer"}
			},
			"required": ["power"]
		}`),
	}
}

// seedStore defines Health and Healer and creates one entity.
func seedStore(t *testing.T, s *Store) entity.Entity {
	t.Helper()
	ctx := context.Background()
	for _, def := range []component.Definition{healthDefinition(), healerDefinition()} {
		if _, err := s.PutDefinition(ctx, def, false); err != nil {
			t.Fatalf("PutDefinition(%s) failed: %v", def.Name, err)
		}
	}
	e, err := s.CreateEntity(ctx)
	if err != nil {
		t.Fatalf("CreateEntity() failed: %v", err)
	}
	return e
}
