package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
)

// Write is one staged component mutation. Nil Data tombstones the
// component; tombstoning a component with no live instance is a no-op.
type Write struct {
	Name string     `json:"component"`
	Data ir.IRValue `json:"data"`
}

// Outcome is how an auction round ended.
type Outcome string

const (
	OutcomeWon      Outcome = "won"
	OutcomeNoWinner Outcome = "no_winner"
	OutcomeFailed   Outcome = "failed"
)

// BidRecord is one candidate's bid as recorded in round history.
type BidRecord struct {
	System string   `json:"system"`
	Active bool     `json:"active"`
	Value  float64  `json:"value"`
	Errors []string `json:"errors,omitempty"`
}

// Round is the audit record of one auction round for one entity.
type Round struct {
	ID     string
	Seq    int64
	Entity entity.Entity
	// Outcome is won, no_winner or failed.
	Outcome Outcome
	// Winner and Bid are set when a winner was selected, even if its
	// invocation later failed.
	Winner string
	Bid    float64
	Bids   []BidRecord
	// Writes counts component writes committed by the round.
	Writes       int
	SnapshotHash string
	Error        string
}

// ApplyWrites applies writes to e in one transaction. Every write is
// validated against its definition; if any fails, none are applied.
func (s *Store) ApplyWrites(ctx context.Context, e entity.Entity, writes []Write) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return applyWrites(ctx, tx, e, writes)
	})
}

func applyWrites(ctx context.Context, q querier, e entity.Entity, writes []Write) error {
	for i, w := range writes {
		var err error
		if w.Data == nil {
			_, err = tombstoneComponent(ctx, q, e, w.Name)
		} else {
			_, err = putComponent(ctx, q, e, w.Name, w.Data)
		}
		if err != nil {
			return fmt.Errorf("write %d (%s): %w", i, w.Name, err)
		}
	}
	return nil
}

// CommitRound applies a winner's writes and appends the round record in
// one transaction, so the next round's snapshot sees all of the writes or
// none of them.
func (s *Store) CommitRound(ctx context.Context, r Round, writes []Write) error {
	r.Writes = len(writes)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := applyWrites(ctx, tx, r.Entity, writes); err != nil {
			return err
		}
		return appendRound(ctx, tx, r)
	})
}

// AppendRound records a round that committed no writes.
func (s *Store) AppendRound(ctx context.Context, r Round) error {
	return appendRound(ctx, s.db, r)
}

func appendRound(ctx context.Context, q querier, r Round) error {
	bids := r.Bids
	if bids == nil {
		bids = []BidRecord{}
	}
	bidsJSON, err := marshalJSON(bids)
	if err != nil {
		return fmt.Errorf("append round: marshal bids: %w", err)
	}

	var winner, errText sql.NullString
	var bid sql.NullFloat64
	if r.Winner != "" {
		winner = sql.NullString{String: r.Winner, Valid: true}
		bid = sql.NullFloat64{Float64: r.Bid, Valid: true}
	}
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO rounds
		(id, seq, entity_id, outcome, winner, bid, bids, writes, snapshot_hash, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Seq,
		r.Entity.String(),
		string(r.Outcome),
		winner,
		bid,
		bidsJSON,
		r.Writes,
		r.SnapshotHash,
		errText,
	)
	if err != nil {
		return fmt.Errorf("append round: %w", err)
	}
	return nil
}

// ListRounds returns round history ordered by seq. A nil entity lists
// every entity's rounds. limit <= 0 means no limit; otherwise the most
// recent limit rounds are returned, still in ascending order.
func (s *Store) ListRounds(ctx context.Context, e entity.Entity, limit int) ([]Round, error) {
	query := `
		SELECT id, seq, entity_id, outcome, winner, bid, bids, writes, snapshot_hash, error
		FROM rounds`
	var args []any
	if !e.IsNil() {
		query += ` WHERE entity_id = ?`
		args = append(args, e.String())
	}
	query += ` ORDER BY seq DESC, id COLLATE BINARY DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	out := []Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanRound(rows *sql.Rows) (Round, error) {
	var (
		r                     Round
		id, outcome, bidsJSON string
		winner, errText       sql.NullString
		bid                   sql.NullFloat64
	)
	err := rows.Scan(&r.ID, &r.Seq, &id, &outcome, &winner, &bid, &bidsJSON, &r.Writes, &r.SnapshotHash, &errText)
	if err != nil {
		return Round{}, fmt.Errorf("scan round: %w", err)
	}
	e, err := entity.Parse(id)
	if err != nil {
		return Round{}, fmt.Errorf("scan round %s: %w", r.ID, err)
	}
	r.Entity = e
	r.Outcome = Outcome(outcome)
	r.Winner = winner.String
	r.Bid = bid.Float64
	r.Error = errText.String
	if err := json.Unmarshal([]byte(bidsJSON), &r.Bids); err != nil {
		return Round{}, fmt.Errorf("scan round %s: bids: %w", r.ID, err)
	}
	return r, nil
}

// LastRoundSeq returns the highest recorded round seq, or 0.
// The auction clock resumes from it after a restart.
func (s *Store) LastRoundSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM rounds`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last round seq: %w", err)
	}
	return seq.Int64, nil
}
