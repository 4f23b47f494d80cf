// Package config loads the probe configuration document.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"opfinder/internal/jumptable"
)

// DefaultPath is where the CLI looks for the document.
const DefaultPath = "config.json"

var ErrNotFound = errors.New("config: document not found")

// ReadType is the width of a value read at match+Offset.
type ReadType int

const (
	ReadNone ReadType = iota
	ReadUint8
	ReadUint16
	ReadUint32
	ReadUint64
)

var readTypeNames = []string{"None", "Uint8", "Uint16", "Uint32", "Uint64"}

func (r ReadType) String() string { return enumName(readTypeNames, int(r), "ReadType") }

// Width returns the value width in bytes, 0 for ReadNone or unknown values.
func (r ReadType) Width() int {
	switch r {
	case ReadUint8:
		return 1
	case ReadUint16:
		return 2
	case ReadUint32:
		return 4
	case ReadUint64:
		return 8
	}
	return 0
}

func (r *ReadType) UnmarshalJSON(b []byte) error {
	v, err := unmarshalEnum(b, readTypeNames, "ReadType")
	*r = ReadType(v)
	return err
}

func (r ReadType) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

// ActionType selects how a jump table child probe is resolved.
type ActionType int

const (
	ActionNone ActionType = iota
	ActionReadThenCrossReference
	ActionCrossReference
)

var actionTypeNames = []string{"None", "ReadThenCrossReference", "CrossReference"}

func (a ActionType) String() string { return enumName(actionTypeNames, int(a), "ActionType") }

func (a *ActionType) UnmarshalJSON(b []byte) error {
	v, err := unmarshalEnum(b, actionTypeNames, "ActionType")
	*a = ActionType(v)
	return err
}

func (a ActionType) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

// TableType is the jump table kind of a table-rooted signature.
type TableType int

const (
	TableNone TableType = iota
	TableDirect
	TableIndirect
)

var tableTypeNames = []string{"None", "Direct", "Indirect"}

func (t TableType) String() string { return enumName(tableTypeNames, int(t), "JumpTableType") }

// Kind maps the document value onto the reconstructor's kind.
func (t TableType) Kind() jumptable.Kind {
	switch t {
	case TableDirect:
		return jumptable.Direct
	case TableIndirect:
		return jumptable.Indirect
	}
	return jumptable.None
}

func (t *TableType) UnmarshalJSON(b []byte) error {
	v, err := unmarshalEnum(b, tableTypeNames, "JumpTableType")
	*t = TableType(v)
	return err
}

func (t TableType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// Signature is one probe. SubInfo is non-nil exactly when the signature
// roots a jump table.
type Signature struct {
	Signature         string           `json:"Signature"`
	Name              string           `json:"Name"`
	Offset            int              `json:"Offset"`
	FunctionSize      int              `json:"FunctionSize"`
	ReadType          ReadType         `json:"ReadType"`
	ActionType        ActionType       `json:"ActionType"`
	ReferenceCount    *int             `json:"ReferenceCount"`
	JumpTableType     TableType        `json:"JumpTableType"`
	HasMultipleResult bool             `json:"HasMultipleResult"`
	DesiredValues     map[int64]string `json:"DesiredValues"`
	SubInfo           []Signature      `json:"SubInfo"`
}

// IsTable reports whether the signature roots a jump table.
func (s *Signature) IsTable() bool { return s.SubInfo != nil }

// Suffix returns the display-name suffix configured for a read value.
func (s *Signature) Suffix(v uint64) string {
	if s.DesiredValues == nil {
		return ""
	}
	return s.DesiredValues[int64(v)]
}

// Layout carries the compiler-layout constants. Zero values select defaults
// at analysis time.
type Layout struct {
	BlockSize      int64   `json:"BlockSize"`
	Deltas         []int64 `json:"Deltas"`
	SearchWindow   int     `json:"SearchWindow"`
	FunctionWindow int     `json:"FunctionWindow"`
	TrapByte       *uint8  `json:"TrapByte"`
}

// Config is the root document.
type Config struct {
	GamePath   string      `json:"GamePath"`
	Signatures []Signature `json:"Signatures"`
	Layout     Layout      `json:"Layout"`
}

// Load reads and parses the document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Walk visits every signature depth-first, parents before children.
func (c *Config) Walk(fn func(sig *Signature, depth int)) {
	var visit func(sigs []Signature, depth int)
	visit = func(sigs []Signature, depth int) {
		for i := range sigs {
			fn(&sigs[i], depth)
			visit(sigs[i].SubInfo, depth+1)
		}
	}
	visit(c.Signatures, 0)
}

// Find returns the first signature (at any depth) with the given name.
func (c *Config) Find(name string) (*Signature, bool) {
	var found *Signature
	c.Walk(func(sig *Signature, _ int) {
		if found == nil && sig.Name == name {
			found = sig
		}
	})
	return found, found != nil
}

func enumName(names []string, v int, kind string) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

// unmarshalEnum accepts the symbolic name (case-insensitive) or an integer.
// Integers outside the known range are kept so that the analysis can report
// them per signature.
func unmarshalEnum(b []byte, names []string, kind string) (int, error) {
	if string(b) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		for i, n := range names {
			if strings.EqualFold(n, s) {
				return i, nil
			}
		}
		return 0, fmt.Errorf("config: unknown %s %q", kind, s)
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return 0, fmt.Errorf("config: %s must be a name or integer, got %s", kind, b)
	}
	return n, nil
}
