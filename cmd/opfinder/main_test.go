package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opfinder/internal/correlate"
	"opfinder/internal/pex"
	"opfinder/internal/pex/pextest"
)

func writeFixture(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()

	b := pextest.New(0x2000)
	b.Fill(0x400, 0x1C00, pex.TrapByte)
	b.Put(0x1000, 0x48, 0x8B, 0x05, 0xAB, 0x00, 0x00, 0x00)
	b.Fill(0x1100, 0x10, 0x90)
	b.Call(0x1200, 0x1100)
	imgPath := filepath.Join(dir, "game.exe")
	require.NoError(t, os.WriteFile(imgPath, b.Bytes(), 0644))

	doc := `{
  "GamePath": "` + filepath.ToSlash(imgPath) + `",
  "Signatures": [
    {"Signature": "48 8B 05", "Name": "Zone", "Offset": 3, "ReadType": "Uint32"},
    {"Signature": "DE AD BE EF", "Name": "Missing", "ReadType": "Uint8"}
  ]
}`
	cfgPath = filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0644))
	return dir, cfgPath
}

func TestFindWritesResult(t *testing.T) {
	dir, cfgPath := writeFixture(t)
	out := filepath.Join(dir, "opcodes.json")

	require.NoError(t, run(context.Background(), []string{"-config", cfgPath, "-out", out, "-workers", "2"}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"Zone\": \"0xAB\",\n  \"Missing\": \"N/A\"\n}\n", string(data))

	// Same result through the explicit subcommand.
	out2 := filepath.Join(dir, "again.json")
	require.NoError(t, run(context.Background(), []string{"find", "-config", cfgPath, "-out", out2}))
	data2, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(data2))
}

func TestFindMissingConfig(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), []string{"-config", filepath.Join(dir, "nope.json"), "-out", filepath.Join(dir, "o.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestFindMissingImage(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"GamePath": "`+filepath.ToSlash(filepath.Join(dir, "gone.exe"))+`"}`), 0644))
	err := run(context.Background(), []string{"-config", cfgPath})
	assert.Error(t, err)
}

func TestGraphWritesDOT(t *testing.T) {
	dir, cfgPath := writeFixture(t)
	out := filepath.Join(dir, "callers.dot")
	require.NoError(t, run(context.Background(), []string{"graph", "-config", cfgPath, "-addr", "0x1100", "-out", out}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestSubcommandsRun(t *testing.T) {
	_, cfgPath := writeFixture(t)
	for _, args := range [][]string{
		{"scan", "-config", cfgPath, "-sig", "48 8B 05", "-offset", "3", "-read", "Uint32"},
		{"scan", "-config", cfgPath, "-name", "Zone"},
		{"xrefs", "-config", cfgPath, "-addr", "0x1100"},
		{"xrefs", "-config", cfgPath, "-json"},
		{"walk", "-config", cfgPath, "-addr", "0x1100", "-hops", "2"},
		{"sections", "-config", cfgPath},
	} {
		t.Run(args[0], func(t *testing.T) {
			assert.NoError(t, run(context.Background(), args))
		})
	}
}

func TestParseAddr(t *testing.T) {
	v, err := parseAddr("0x1A2B")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1A2B), v)

	v, err = parseAddr("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = parseAddr("")
	assert.Error(t, err)
	_, err = parseAddr("zz")
	assert.Error(t, err)
}

func TestReporterMarkers(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	var buf bytes.Buffer
	reporter{w: &buf}.report(correlate.Report{
		Name:  "Switch",
		Table: true,
		Findings: []correlate.Finding{
			{Name: "Move", Value: "0x5", Found: true},
			{Name: "Jump", Value: "0x5 0x7", Found: true, Ambiguous: true},
			{Name: "Gone", Value: "N/A", Reason: "no value produced"},
		},
	})
	assert.Equal(t, "\n[-] Finding opcodes from Switch\n"+
		"[+] Move: 0x5\n"+
		"[+] Possible opcodes for Jump: 0x5 0x7\n"+
		"[x] Failed to find Gone: no value produced\n", buf.String())
}
