package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
)

func TestCommitRound(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := seedStore(t, s)
	_, err := s.PutComponent(ctx, e, "Health", health(5, 100))
	require.NoError(t, err)

	r := Round{
		ID:      "round-1",
		Seq:     1,
		Entity:  e,
		Outcome: OutcomeWon,
		Winner:  "healer",
		Bid:     150,
		Bids: []BidRecord{
			{System: "healer", Active: true, Value: 150},
			{System: "idler", Active: false, Errors: []string{"rule 0: missing component"}},
		},
		SnapshotHash: "sha256:abc",
	}
	require.NoError(t, s.CommitRound(ctx, r, []Write{{Name: "Health", Data: health(20, 100)}}))

	v, _, err := s.GetComponent(ctx, e, "Health")
	require.NoError(t, err)
	assert.True(t, ir.Equal(health(20, 100), v))

	rounds, err := s.ListRounds(ctx, e, 0)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	got := rounds[0]
	assert.Equal(t, "round-1", got.ID)
	assert.Equal(t, e, got.Entity)
	assert.Equal(t, OutcomeWon, got.Outcome)
	assert.Equal(t, "healer", got.Winner)
	assert.Equal(t, 150.0, got.Bid)
	assert.Equal(t, 1, got.Writes)
	assert.Equal(t, r.Bids, got.Bids)
	assert.Empty(t, got.Error)
}

func TestCommitRoundIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := seedStore(t, s)
	_, err := s.PutComponent(ctx, e, "Health", health(5, 100))
	require.NoError(t, err)

	r := Round{ID: "round-1", Seq: 1, Entity: e, Outcome: OutcomeWon, Winner: "healer", Bid: 1}
	err = s.CommitRound(ctx, r, []Write{
		{Name: "Health", Data: health(20, 100)},
		{Name: "Health", Data: ir.IRObject{"current": ir.IRInt(20)}},
		{Name: "Healer", Data: ir.IRObject{"power": ir.IRInt(1)}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING_FIELD")

	snap, err := s.Snapshot(ctx, e)
	require.NoError(t, err)
	assert.True(t, ir.Equal(health(5, 100), snap["Health"]))
	assert.NotContains(t, snap, "Healer")

	rounds, err := s.ListRounds(ctx, e, 0)
	require.NoError(t, err)
	assert.Empty(t, rounds, "the round record rolls back with its writes")
}

func TestAppendRoundWithoutWinner(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := seedStore(t, s)

	require.NoError(t, s.AppendRound(ctx, Round{ID: "r1", Seq: 1, Entity: e, Outcome: OutcomeNoWinner}))
	require.NoError(t, s.AppendRound(ctx, Round{
		ID: "r2", Seq: 2, Entity: e, Outcome: OutcomeFailed,
		Winner: "healer", Bid: 3.5, Error: "invoke healer: deadline exceeded",
	}))

	rounds, err := s.ListRounds(ctx, e, 0)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, OutcomeNoWinner, rounds[0].Outcome)
	assert.Empty(t, rounds[0].Winner)
	assert.Empty(t, rounds[0].Bids)
	assert.Equal(t, OutcomeFailed, rounds[1].Outcome)
	assert.Equal(t, 3.5, rounds[1].Bid)
	assert.Equal(t, "invoke healer: deadline exceeded", rounds[1].Error)
}

func TestListRoundsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e1 := seedStore(t, s)
	e2, err := s.CreateEntity(ctx)
	require.NoError(t, err)

	seq, err := s.LastRoundSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	for i := 1; i <= 5; i++ {
		e := e1
		if i%2 == 0 {
			e = e2
		}
		require.NoError(t, s.AppendRound(ctx, Round{ID: fmt.Sprintf("r%d", i), Seq: int64(i), Entity: e, Outcome: OutcomeNoWinner}))
	}

	all, err := s.ListRounds(ctx, entity.Nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, r := range all {
		assert.Equal(t, int64(i+1), r.Seq)
	}

	latest, err := s.ListRounds(ctx, entity.Nil, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "r4", latest[0].ID)
	assert.Equal(t, "r5", latest[1].ID)

	mine, err := s.ListRounds(ctx, e2, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "r2", mine[0].ID)

	seq, err = s.LastRoundSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
}

func TestRoundsSurviveEntityDeletion(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	e := seedStore(t, s)

	require.NoError(t, s.AppendRound(ctx, Round{ID: "r1", Seq: 1, Entity: e, Outcome: OutcomeNoWinner}))
	require.NoError(t, s.DeleteEntity(ctx, e))

	rounds, err := s.ListRounds(ctx, e, 0)
	require.NoError(t, err)
	assert.Len(t, rounds, 1)
}
