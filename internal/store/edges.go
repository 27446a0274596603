package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/stigmergy/internal/entity"
)

// Edge is a directed link from Src to Dst. Label is itself an entity, so
// an edge's kind and metadata live in the label's components.
type Edge struct {
	Src   entity.Entity `json:"src"`
	Dst   entity.Entity `json:"dst"`
	Label entity.Entity `json:"label"`
}

// String renders the edge as "src -[label]-> dst".
func (e Edge) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", e.Src, e.Label, e.Dst)
}

// PutEdge stores e and reports whether it was created. Storing an edge
// that already exists is a no-op. All three entities must exist;
// otherwise the error wraps ErrNotFound.
func (s *Store) PutEdge(ctx context.Context, e Edge) (bool, error) {
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, ent := range []entity.Entity{e.Src, e.Dst, e.Label} {
			ok, err := entityExists(ctx, tx, ent)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("put edge: entity %s: %w", ent, ErrNotFound)
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO edges (src_id, dst_id, label_id) VALUES (?, ?, ?)
			ON CONFLICT(src_id, dst_id, label_id) DO NOTHING
		`, e.Src.String(), e.Dst.String(), e.Label.String())
		if err != nil {
			return fmt.Errorf("put edge: %w", err)
		}
		created, err = affected(res, "put edge")
		return err
	})
	return created, err
}

// GetEdge returns the stored edge matching e.
// Returns an error wrapping ErrNotFound if there is none.
func (s *Store) GetEdge(ctx context.Context, e Edge) (Edge, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges WHERE src_id = ? AND dst_id = ? AND label_id = ?
	`, e.Src.String(), e.Dst.String(), e.Label.String()).Scan(&n)
	if err != nil {
		return Edge{}, fmt.Errorf("query edge: %w", err)
	}
	if n == 0 {
		return Edge{}, fmt.Errorf("edge %s: %w", e, ErrNotFound)
	}
	return e, nil
}

// DeleteEdge removes e.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) DeleteEdge(ctx context.Context, e Edge) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM edges WHERE src_id = ? AND dst_id = ? AND label_id = ?
	`, e.Src.String(), e.Dst.String(), e.Label.String())
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	ok, err := affected(res, "delete edge")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("edge %s: %w", e, ErrNotFound)
	}
	return nil
}

// ListEdges returns every edge in creation order.
func (s *Store) ListEdges(ctx context.Context) ([]Edge, error) {
	return s.listEdges(ctx, "")
}

// ListEdgesFrom returns the edges leaving src in creation order.
func (s *Store) ListEdgesFrom(ctx context.Context, src entity.Entity) ([]Edge, error) {
	return s.listEdges(ctx, "WHERE src_id = ?", src.String())
}

// ListEdgesTo returns the edges arriving at dst in creation order.
func (s *Store) ListEdgesTo(ctx context.Context, dst entity.Entity) ([]Edge, error) {
	return s.listEdges(ctx, "WHERE dst_id = ?", dst.String())
}

// ListEdgesLabeled returns the edges carrying label in creation order.
func (s *Store) ListEdgesLabeled(ctx context.Context, label entity.Entity) ([]Edge, error) {
	return s.listEdges(ctx, "WHERE label_id = ?", label.String())
}

// ListEdgesBetween returns the edges from src to dst in creation order.
func (s *Store) ListEdgesBetween(ctx context.Context, src, dst entity.Entity) ([]Edge, error) {
	return s.listEdges(ctx, "WHERE src_id = ? AND dst_id = ?", src.String(), dst.String())
}

// listEdges returns an empty slice (not nil) when nothing matches.
func (s *Store) listEdges(ctx context.Context, where string, args ...any) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src_id, dst_id, label_id FROM edges `+where+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	out := []Edge{}
	for rows.Next() {
		var src, dst, label string
		if err := rows.Scan(&src, &dst, &label); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e, err := parseEdge(src, dst, label)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return out, nil
}

func parseEdge(src, dst, label string) (Edge, error) {
	var e Edge
	var err error
	if e.Src, err = entity.Parse(src); err != nil {
		return Edge{}, err
	}
	if e.Dst, err = entity.Parse(dst); err != nil {
		return Edge{}, err
	}
	if e.Label, err = entity.Parse(label); err != nil {
		return Edge{}, err
	}
	return e, nil
}
