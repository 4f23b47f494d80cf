package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opfinder/internal/jumptable"
)

const sampleDoc = `{
  "GamePath": "game.exe",
  "Signatures": [
    {
      "Signature": "48 8B ?? ?? 05",
      "Name": "ZoneProbe",
      "Offset": 3,
      "ReadType": "Uint32",
      "DesiredValues": {"1": "_A", "2": "_B"}
    },
    {
      "Signature": "40 53 48 83 EC 20",
      "Name": "ClientZoneIpcType",
      "FunctionSize": 512,
      "JumpTableType": 2,
      "SubInfo": [
        {"Signature": "E8 ?? ?? ?? ?? 90", "Name": "PlayerSpawn"},
        {"Signature": "C7 05", "Name": "Chat", "ActionType": "CrossReference", "ReferenceCount": 2},
        {"Signature": "8B 0D", "Name": "Move", "ActionType": 1, "ReadType": 1, "HasMultipleResult": true}
      ]
    }
  ],
  "Layout": {"BlockSize": 3072, "SearchWindow": 32, "TrapByte": 204}
}`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "game.exe", cfg.GamePath)
	require.Len(t, cfg.Signatures, 2)

	plain := cfg.Signatures[0]
	assert.False(t, plain.IsTable())
	assert.Equal(t, ReadUint32, plain.ReadType)
	assert.Equal(t, 3, plain.Offset)
	assert.Equal(t, "_B", plain.Suffix(2))
	assert.Equal(t, "", plain.Suffix(9))

	tbl := cfg.Signatures[1]
	assert.True(t, tbl.IsTable())
	assert.Equal(t, TableIndirect, tbl.JumpTableType)
	assert.Equal(t, jumptable.Indirect, tbl.JumpTableType.Kind())
	assert.Equal(t, 512, tbl.FunctionSize)
	require.Len(t, tbl.SubInfo, 3)

	assert.Equal(t, ActionNone, tbl.SubInfo[0].ActionType)
	assert.Nil(t, tbl.SubInfo[0].ReferenceCount)

	assert.Equal(t, ActionCrossReference, tbl.SubInfo[1].ActionType)
	require.NotNil(t, tbl.SubInfo[1].ReferenceCount)
	assert.Equal(t, 2, *tbl.SubInfo[1].ReferenceCount)

	assert.Equal(t, ActionReadThenCrossReference, tbl.SubInfo[2].ActionType)
	assert.Equal(t, ReadUint8, tbl.SubInfo[2].ReadType)
	assert.True(t, tbl.SubInfo[2].HasMultipleResult)

	assert.Equal(t, int64(0xC00), cfg.Layout.BlockSize)
	assert.Equal(t, 32, cfg.Layout.SearchWindow)
	require.NotNil(t, cfg.Layout.TrapByte)
	assert.Equal(t, uint8(0xCC), *cfg.Layout.TrapByte)
}

func TestEmptySubInfoIsTable(t *testing.T) {
	cfg, err := Parse([]byte(`{"Signatures":[{"Name":"T","SubInfo":[]},{"Name":"P","SubInfo":null}]}`))
	require.NoError(t, err)
	assert.True(t, cfg.Signatures[0].IsTable())
	assert.False(t, cfg.Signatures[1].IsTable())
}

func TestEnumDecoding(t *testing.T) {
	tests := []struct {
		in      string
		want    ActionType
		wantErr bool
	}{
		{`"None"`, ActionNone, false},
		{`"crossreference"`, ActionCrossReference, false},
		{`1`, ActionReadThenCrossReference, false},
		{`7`, ActionType(7), false},
		{`null`, ActionNone, false},
		{`"Bogus"`, ActionNone, true},
		{`true`, ActionNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a ActionType
			err := a.UnmarshalJSON([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestEnumString(t *testing.T) {
	assert.Equal(t, "Uint64", ReadUint64.String())
	assert.Equal(t, "ReadType(9)", ReadType(9).String())
	assert.Equal(t, "Direct", TableDirect.String())
	assert.Equal(t, jumptable.None, TableType(5).Kind())
	assert.Equal(t, 2, ReadUint16.Width())
	assert.Equal(t, 0, ReadNone.Width())
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Signatures, 2)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestWalkAndFind(t *testing.T) {
	cfg, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	var names []string
	var depths []int
	cfg.Walk(func(sig *Signature, depth int) {
		names = append(names, sig.Name)
		depths = append(depths, depth)
	})
	assert.Equal(t, []string{"ZoneProbe", "ClientZoneIpcType", "PlayerSpawn", "Chat", "Move"}, names)
	assert.Equal(t, []int{0, 0, 1, 1, 1}, depths)

	sig, ok := cfg.Find("Chat")
	require.True(t, ok)
	assert.Equal(t, ActionCrossReference, sig.ActionType)
	_, ok = cfg.Find("Nope")
	assert.False(t, ok)
}
