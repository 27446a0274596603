package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/store"
)

// decodeData unmarshals the data field of a JSON response into v.
func decodeData(t *testing.T, out string, v any) string {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if v != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	if resp.Error != nil {
		return resp.Error.Code
	}
	return ""
}

func TestEntityCreateAndList(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)

	out, err := runCLI(t, db, "entity", "list")
	require.NoError(t, err)
	assert.Equal(t, id+"\n", out)

	out, err = runCLI(t, db, "entity", "list", "--with", "ghai::Issue")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = runCLI(t, db, "component", "list", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Healer ")
	assert.Contains(t, out, "Health ")
}

func TestEntityCreateIsAtomic(t *testing.T) {
	db := loadedDB(t)

	out, err := runCLI(t, db, "entity", "create",
		"-c", `Health={"current":4,"maximum":10}`,
		"-c", `Healer={"power":0}`,
		"--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, CodeRejected, decodeData(t, out, nil))

	out, err = runCLI(t, db, "entity", "list", "--format", "json")
	require.NoError(t, err)
	var ids []string
	decodeData(t, out, &ids)
	assert.Empty(t, ids)
}

func TestEntityCreateBadComponentFlag(t *testing.T) {
	db := loadedDB(t)
	_, err := runCLI(t, db, "entity", "create", "-c", "Health")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEntityMalformedID(t *testing.T) {
	db := loadedDB(t)
	out, err := runCLI(t, db, "component", "get", "entity:nope", "Health")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, CodeBadArgument)
}

func TestComponentLifecycle(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)

	_, err := runCLI(t, db, "component", "put", id, "Health", `{"current":7,"maximum":10}`)
	require.NoError(t, err)

	out, err := runCLI(t, db, "component", "get", id, "Health", "--format", "json")
	require.NoError(t, err)
	var got struct {
		State string         `json:"state"`
		Data  map[string]int `json:"data"`
	}
	decodeData(t, out, &got)
	assert.Equal(t, "present", got.State)
	assert.Equal(t, map[string]int{"current": 7, "maximum": 10}, got.Data)

	_, err = runCLI(t, db, "component", "delete", id, "Health")
	require.NoError(t, err)

	out, err = runCLI(t, db, "component", "get", id, "Health")
	require.NoError(t, err)
	assert.Equal(t, "null (tombstoned)\n", out)

	out, err = runCLI(t, db, "component", "list", id)
	require.NoError(t, err)
	assert.NotContains(t, out, "Health")

	out, err = runCLI(t, db, "component", "list", id, "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Health (tombstoned)")

	_, err = runCLI(t, db, "component", "delete", id, "Health", "--purge")
	require.NoError(t, err)

	_, err = runCLI(t, db, "component", "get", id, "Health")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestComponentPutRejectsInvalidData(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)

	out, err := runCLI(t, db, "component", "put", id, "Health", `{"current":"full","maximum":10}`, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, CodeRejected, decodeData(t, out, nil))

	out, err = runCLI(t, db, "component", "get", id, "Health")
	require.NoError(t, err)
	assert.Contains(t, out, `"current":4`)
}

func TestComponentPutFromFile(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)
	path := filepath.Join(t.TempDir(), "health.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"current":10,"maximum":10}`), 0644))

	_, err := runCLI(t, db, "component", "put", id, "Health", "@"+path)
	require.NoError(t, err)

	out, err := runCLI(t, db, "component", "get", id, "Health")
	require.NoError(t, err)
	assert.Contains(t, out, `"current":10`)
}

func TestAuctionDryRunRecordsNothing(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)

	out, err := runCLI(t, db, "auction", id, "--dry-run", "--format", "json")
	require.NoError(t, err)
	var report RoundReport
	decodeData(t, out, &report)
	assert.Equal(t, "won", report.Outcome)
	assert.Equal(t, "healer", report.Winner)
	assert.Equal(t, 18.0, report.Bid)
	assert.Equal(t, []string{"healer"}, report.Candidates)
	assert.Empty(t, report.RoundID)

	out, err = runCLI(t, db, "rounds", id)
	require.NoError(t, err)
	assert.Equal(t, "No rounds recorded\n", out)
}

func TestAuctionRecordsRound(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)

	out, err := runCLI(t, db, "auction", id)
	require.NoError(t, err)
	assert.Contains(t, out, "healer bid 18 (rule 0)")
	assert.Contains(t, out, "✓ Winner: healer (18)")

	_, err = runCLI(t, db, "auction", id)
	require.NoError(t, err)

	out, err = runCLI(t, db, "rounds", id, "--format", "json")
	require.NoError(t, err)
	var records []RoundRecord
	decodeData(t, out, &records)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].Seq)
	assert.Equal(t, int64(2), records[1].Seq)
	for _, r := range records {
		assert.Equal(t, store.OutcomeWon, r.Outcome)
		assert.Equal(t, "healer", r.Winner)
		assert.Equal(t, 0, r.Writes)
		assert.NotEmpty(t, r.SnapshotHash)
	}

	out, err = runCLI(t, db, "rounds", id, "--limit", "1", "--format", "json")
	require.NoError(t, err)
	records = nil
	decodeData(t, out, &records)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].Seq)
}

func TestAuctionUnknownEntity(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)
	_, err := runCLI(t, db, "entity", "delete", id)
	require.NoError(t, err)

	out, err := runCLI(t, db, "auction", id)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, CodeNotFound)
}

func TestRunOnce(t *testing.T) {
	db := loadedDB(t)
	createKnight(t, db)
	createKnight(t, db)

	out, err := runCLI(t, db, "run", "--once", "--format", "json")
	require.NoError(t, err)
	var summary RunSummary
	decodeData(t, out, &summary)
	assert.Equal(t, RunSummary{Rounds: 2, Won: 2}, summary)
}

func TestInvariantCheck(t *testing.T) {
	db := loadedDB(t)
	id := createKnight(t, db)

	out, err := runCLI(t, db, "invariant", "check", id, "--format", "json")
	require.NoError(t, err)
	var checks []CheckResult
	decodeData(t, out, &checks)
	require.Len(t, checks, 1)
	assert.Equal(t, []invariant.Result{
		{Name: "health_bounded", Status: invariant.Held},
		{Name: "issue_titled", Status: invariant.NotApplicable},
	}, checks[0].Results)

	_, err = runCLI(t, db, "invariant", "put", "low_health", "Health.current > 5")
	require.NoError(t, err)

	out, err = runCLI(t, db, "invariant", "check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ low_health: violated")
	assert.Contains(t, out, "✓ health_bounded: held")
}

func TestInvariantPutRejectsBadExpression(t *testing.T) {
	db := loadedDB(t)
	out, err := runCLI(t, db, "invariant", "put", "broken", "Health.current <")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, CodeRejected)
}

func TestDefinitionPutAndGet(t *testing.T) {
	db := filepath.Join(t.TempDir(), "stigmergy.db")
	_, err := runCLI(t, db, "definition", "put", "Mana", `{"type":"object","properties":{"points":{"type":"integer"}}}`)
	require.NoError(t, err)

	out, err := runCLI(t, db, "definition", "get", "Mana")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Mana "), "got %q", out)
	assert.Contains(t, out, `"points"`)

	_, err = runCLI(t, db, "definition", "get", "Stamina")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = runCLI(t, db, "definition", "delete", "Mana")
	require.NoError(t, err)
	out, err = runCLI(t, db, "definition", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDefinitionPutInfer(t *testing.T) {
	db := filepath.Join(t.TempDir(), "stigmergy.db")
	_, err := runCLI(t, db, "definition", "put", "Mana", "--infer", `{"points":3,"school":"fire"}`)
	require.NoError(t, err)

	out, err := runCLI(t, db, "entity", "create", "-c", `Mana={"points":1,"school":"ice"}`)
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	out, err = runCLI(t, db, "component", "put", id, "Mana", `{"points":"many","school":"ice"}`, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeRejected, decodeData(t, out, nil))

	out, err = runCLI(t, db, "component", "put", id, "Mana", `{"points":2}`, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeRejected, decodeData(t, out, nil), "inferred keys are required")

	_, err = runCLI(t, db, "definition", "put", "Focus", "--infer", `{not json`)
	require.Error(t, err)
}

func TestSystemPutGetDelete(t *testing.T) {
	db := loadedDB(t)
	path := filepath.Join(t.TempDir(), "medic.yaml")
	doc := `name: medic
description: Patches up anyone below half health
model: haiku
color: red
component:
  - "Health: read+write"
bid:
  - "ON Health.current < 5 BID 2"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := runCLI(t, db, "system", "put", path)
	require.NoError(t, err)

	out, err := runCLI(t, db, "system", "get", "medic")
	require.NoError(t, err)
	assert.Contains(t, out, "name: medic")
	assert.Contains(t, out, "ON Health.current < 5 BID 2")

	_, err = runCLI(t, db, "system", "delete", "medic")
	require.NoError(t, err)
	_, err = runCLI(t, db, "system", "get", "medic")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestApplyBatch(t *testing.T) {
	db := loadedDB(t)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	batch := `operations:
  - type: create_entity
  - type: upsert_invariant
    name: mana_positive
    asserts: "Health.current >= 0"
`
	require.NoError(t, os.WriteFile(path, []byte(batch), 0644))

	out, err := runCLI(t, db, "apply", path, "--format", "json")
	require.NoError(t, err)
	var res store.ApplyResult
	decodeData(t, out, &res)
	assert.True(t, res.Committed)
	require.Len(t, res.Results, 2)

	out, err = runCLI(t, db, "invariant", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "mana_positive: Health.current >= 0")
}

func TestApplyBatchIsAllOrNothing(t *testing.T) {
	db := loadedDB(t)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	batch := `operations:
  - type: create_entity
  - type: delete_entity
`
	require.NoError(t, os.WriteFile(path, []byte(batch), 0644))

	out, err := runCLI(t, db, "apply", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ [1] delete_entity")
	assert.Contains(t, out, "Batch rejected; nothing was written")

	out, err = runCLI(t, db, "entity", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEdgeCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "stigmergy.db")
	ids := make([]string, 3)
	for i := range ids {
		out, err := runCLI(t, db, "entity", "create")
		require.NoError(t, err)
		ids[i] = strings.TrimSpace(out)
	}
	src, dst, label := ids[0], ids[1], ids[2]

	out, err := runCLI(t, db, "edge", "create", src, dst, label, "--format", "json")
	require.NoError(t, err)
	var created EdgeResult
	decodeData(t, out, &created)
	assert.True(t, created.Created)
	assert.Equal(t, src, created.Edge.Src.String())

	out, err = runCLI(t, db, "edge", "create", src, dst, label)
	require.NoError(t, err)
	assert.Contains(t, out, "Edge already exists")

	out, err = runCLI(t, db, "edge", "list", "--from", src)
	require.NoError(t, err)
	assert.Equal(t, src+" -["+label+"]-> "+dst+"\n", out)

	out, err = runCLI(t, db, "edge", "list", "--to", src)
	require.NoError(t, err)
	assert.Equal(t, "No edges found\n", out)

	_, err = runCLI(t, db, "edge", "get", src, dst, label)
	require.NoError(t, err)

	// Deleting the label entity removes the edge.
	_, err = runCLI(t, db, "entity", "delete", label)
	require.NoError(t, err)

	out, err = runCLI(t, db, "edge", "list", "--format", "json")
	require.NoError(t, err)
	var edges []store.Edge
	decodeData(t, out, &edges)
	assert.Empty(t, edges)

	out, err = runCLI(t, db, "edge", "get", src, dst, label, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, decodeData(t, out, nil))

	out, err = runCLI(t, db, "edge", "create", src, dst, label, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, decodeData(t, out, nil), "label entity no longer exists")

	out, err = runCLI(t, db, "edge", "delete", src, dst, "entity:nope", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, CodeBadArgument, decodeData(t, out, nil))
}
