package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/auction"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/schema"
	"github.com/roach88/stigmergy/internal/store"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitFailure, "boom")
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, ExitFailure, GetExitCode(err))

	wrapped := WrapExitError(ExitCommandError, "open", errors.New("denied"))
	assert.Equal(t, "open: denied", wrapped.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", wrapped)))

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"not found", fmt.Errorf("entity x: %w", store.ErrNotFound), CodeNotFound, ExitFailure},
		{"round failed", &auction.RoundError{Code: auction.ErrCodeInvocationFailed, Err: errors.New("x")}, CodeRoundFailed, ExitFailure},
		{"validation", fmt.Errorf("put: %w", &schema.ValidationError{Code: schema.CodeTypeMismatch}), CodeRejected, ExitFailure},
		{"malformed entity", fmt.Errorf("%w: short", entity.ErrMalformedEntity), CodeBadArgument, ExitCommandError},
		{"other", errors.New("disk on fire"), CodeGeneric, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := classify(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.exit, exit)
		})
	}
}

func TestFormatterFailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := f.Fail("get component", fmt.Errorf("entity x: %w", store.ErrNotFound))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "not found")
}

func TestFormatterRender(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Render([]string{"a"}, func(w io.Writer) { fmt.Fprintln(w, "text form") }))
	assert.Equal(t, "text form\n", buf.String())

	buf.Reset()
	f.Format = "json"
	require.NoError(t, f.Render([]string{"a"}, func(w io.Writer) { t.Fatal("text called in json mode") }))
	assert.JSONEq(t, `{"status":"ok","data":["a"]}`, buf.String())
}

func TestVerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	f.VerboseLog("loaded %d files", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "loaded 3 files\n", errOut.String())

	f.Verbose = false
	f.VerboseLog("hidden")
	assert.Equal(t, "loaded 3 files\n", errOut.String())
}
