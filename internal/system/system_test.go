package system

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/bid"
)

func healer() Definition {
	return Definition{
		Name:        "healer",
		Description: "Restores health to wounded entities near a healer",
		Model:       "sonnet",
		Color:       "green",
		Grants: []Grant{
			{Component: "Health", Mode: ReadWrite},
			{Component: "Healer", Mode: Read},
		},
		Rules: []bid.Rule{
			bid.MustParseRule("ON Healer && Health.current < Health.maximum BID Healer.power*10"),
		},
		Instructions: "Raise Health.current toward Health.maximum.",
	}
}

func TestParseAccessMode(t *testing.T) {
	tests := map[string]AccessMode{
		"read":       Read,
		"READ":       Read,
		" write ":    Write,
		"execute":    Execute,
		"tool":       Execute,
		"read+write": ReadWrite,
		"readwrite":  ReadWrite,
		"Read-Write": ReadWrite,
	}
	for in, want := range tests {
		got, err := ParseAccessMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAccessMode("admin")
	assert.Error(t, err)
}

func TestAccessModeCapabilities(t *testing.T) {
	tests := []struct {
		mode                    AccessMode
		canRead, canWrite, view bool
	}{
		{Read, true, false, true},
		{Write, false, true, false},
		{Execute, false, false, true},
		{ReadWrite, true, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.canRead, tt.mode.CanRead())
			assert.Equal(t, tt.canWrite, tt.mode.CanWrite())
			assert.Equal(t, tt.view, tt.mode.CanView())
		})
	}
}

func TestParseGrant(t *testing.T) {
	tests := []struct {
		in   string
		want Grant
	}{
		{"Health: read", Grant{"Health", Read}},
		{"Health:write", Grant{"Health", Write}},
		{"Health", Grant{"Health", ReadWrite}},
		{"ghai::Issue: read", Grant{"ghai::Issue", Read}},
		{"ghai::Issue", Grant{"ghai::Issue", ReadWrite}},
		{"  std::collections::HashMap : tool ", Grant{"std::collections::HashMap", Execute}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGrant(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := ParseGrant(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}

	for _, bad := range []string{"", "Health: admin", "1Health: read", "bad name", ": read"} {
		_, err := ParseGrant(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefinitionAccessors(t *testing.T) {
	d := healer()

	assert.True(t, d.CanRead("Health"))
	assert.True(t, d.CanWrite("Health"))
	assert.True(t, d.CanRead("Healer"))
	assert.False(t, d.CanWrite("Healer"))
	assert.False(t, d.CanRead("Poison"))
	assert.Equal(t, []string{"Health", "Healer"}, d.Components())
	assert.Equal(t, map[string]bool{"Health": true, "Healer": true}, d.Readable())

	grants := GrantsFor(&d)
	grants[0].Mode = Read
	assert.Equal(t, ReadWrite, d.Grants[0].Mode, "GrantsFor must return a copy")
	assert.Len(t, BidRules(&d), 1)

	assert.True(t, d.Interested(map[string]bool{"Healer": true}))
	assert.False(t, d.Interested(map[string]bool{"Position": true}))
	assert.False(t, d.Interested(nil))
}

func TestValidateAcceptsWellFormedSystem(t *testing.T) {
	d := healer()
	require.NoError(t, d.Validate())

	d.Color = "#00ff7F"
	require.NoError(t, d.Validate())
}

func TestValidateProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
		code   string
	}{
		{"empty name", func(d *Definition) { d.Name = "" }, CodeInvalidName},
		{"long name", func(d *Definition) { d.Name = strings.Repeat("n", 101) }, CodeInvalidName},
		{"padded name", func(d *Definition) { d.Name = " healer" }, CodeInvalidName},
		{"empty description", func(d *Definition) { d.Description = " " }, CodeInvalidDescription},
		{"long description", func(d *Definition) { d.Description = strings.Repeat("d", 501) }, CodeInvalidDescription},
		{"empty model", func(d *Definition) { d.Model = "" }, CodeInvalidModel},
		{"unknown color", func(d *Definition) { d.Color = "teal" }, CodeInvalidColor},
		{"short hex", func(d *Definition) { d.Color = "#fff" }, CodeInvalidColor},
		{"bad hex", func(d *Definition) { d.Color = "#gggggg" }, CodeInvalidColor},
		{"long instructions", func(d *Definition) { d.Instructions = strings.Repeat("i", 10*1024+1) }, CodeInstructionsTooLong},
		{"too many rules", func(d *Definition) {
			for len(d.Rules) <= MaxRules {
				d.Rules = append(d.Rules, bid.MustParseRule("ON Health BID 1"))
			}
		}, CodeTooManyRules},
		{"too many grants", func(d *Definition) {
			d.Rules = nil
			for i := 0; len(d.Grants) <= MaxGrants; i++ {
				d.Grants = append(d.Grants, Grant{Component: "C" + strings.Repeat("x", i), Mode: Read})
			}
		}, CodeTooManyGrants},
		{"bad grant mode", func(d *Definition) { d.Grants[1].Mode = "admin" }, CodeInvalidGrant},
		{"bad grant name", func(d *Definition) { d.Grants = append(d.Grants, Grant{"no way", Read}) }, CodeInvalidGrant},
		{"duplicate grant", func(d *Definition) { d.Grants = append(d.Grants, Grant{"Health", Read}) }, CodeDuplicateGrant},
		{"empty rule", func(d *Definition) { d.Rules = append(d.Rules, bid.Rule{}) }, CodeInvalidRule},
		{"undeclared component", func(d *Definition) {
			d.Rules = append(d.Rules, bid.MustParseRule("ON Poison BID 5"))
		}, CodeUndeclaredAccess},
		{"write-only component", func(d *Definition) {
			d.Grants = append(d.Grants, Grant{"Log", Write})
			d.Rules = append(d.Rules, bid.MustParseRule("ON true BID Log.size"))
		}, CodeUndeclaredAccess},
		{"execute-only component", func(d *Definition) {
			d.Grants = append(d.Grants, Grant{"Spell", Execute})
			d.Rules = append(d.Rules, bid.MustParseRule("ON Spell.present BID 1"))
		}, CodeUndeclaredAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := healer()
			tt.mutate(&d)

			problems := d.Problems()
			require.Len(t, problems, 1, "%v", problems)
			assert.Equal(t, tt.code, problems[0].Code)

			err := d.Validate()
			require.Error(t, err)
			assert.True(t, IsDefinitionError(err))
			var de *DefinitionError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	d := healer()
	d.Model = ""
	d.Color = "mauve"
	d.Rules = append(d.Rules, bid.MustParseRule("ON Poison BID Venom.dose"))

	problems := d.Problems()
	require.Len(t, problems, 4)
	assert.True(t, IsUndeclaredAccess(d.Validate()))
	assert.Contains(t, d.Validate().Error(), "[UNDECLARED_COMPONENT_ACCESS] system healer: bid[1]: rule references undeclared component Venom")
}

func TestDefinitionJSON(t *testing.T) {
	d := healer()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":["Health: read+write","Healer: read"]`)

	var back Definition
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d.Grants, back.Grants)
	require.Len(t, back.Rules, 1)
	assert.Equal(t, d.Rules[0].String(), back.Rules[0].String())
	require.NoError(t, back.Validate())
}

func TestDecodeYAML(t *testing.T) {
	src := `name: healer
description: Restores health
model: sonnet
color: green
component:
  - "Health: read+write"
  - Healer: read
  - ghai::Issue
bid:
  - ON Healer && Health.current < Health.maximum BID Healer.power*10
  - ON Health.current < 10 BID 500
---
name: wanderer
description: Moves things around
model: haiku
color: "#336699"
component:
  - "Position: read-write"
bid:
  - ON Position BID 1
`
	defs, err := DecodeYAML(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	h := defs[0]
	assert.Equal(t, []Grant{{"Health", ReadWrite}, {"Healer", Read}, {"ghai::Issue", ReadWrite}}, h.Grants)
	require.Len(t, h.Rules, 2)
	assert.Equal(t, "ON Health.current < 10 BID 500", h.Rules[1].String())
	assert.Equal(t, "#336699", defs[1].Color)

	var buf bytes.Buffer
	require.NoError(t, EncodeYAML(&buf, defs))
	again, err := DecodeYAML(&buf)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, defs[0].Grants, again[0].Grants)
	assert.Equal(t, defs[1].Rules[0].String(), again[1].Rules[0].String())
}

func TestDecodeYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"unknown field": "name: a\ndescription: b\nmodel: c\ncolor: red\nflavor: sour\n",
		"bad rule":      "name: a\ndescription: b\nmodel: c\ncolor: red\nbid:\n  - BID 1\n",
		"bad grant map": "name: a\ndescription: b\nmodel: c\ncolor: red\ncomponent:\n  - {A: read, B: write}\n",
		"invalid":       "name: a\ndescription: b\nmodel: c\ncolor: red\nbid:\n  - ON X BID 1\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeYAML(strings.NewReader(src))
			assert.Error(t, err)
		})
	}

	_, err := ParseYAML([]byte(""))
	assert.Error(t, err)
}

func TestCapabilityError(t *testing.T) {
	err := error(&CapabilityError{System: "healer", Component: "Healer", Op: "write", Mode: Read})
	assert.True(t, IsCapabilityError(err))
	assert.Equal(t, "system healer: write Healer denied: grant is read", err.Error())

	err = &CapabilityError{System: "healer", Component: "Poison", Op: "read"}
	assert.Equal(t, "system healer: read Poison denied: component not declared", err.Error())
}
