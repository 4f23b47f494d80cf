// Package result holds the name to value mapping produced by a run and
// writes it to disk.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/elliotchance/orderedmap"
)

// DefaultPath is the CLI's default output file.
const DefaultPath = "opcodes.json"

// NotFound is recorded for probes that produced no value.
const NotFound = "N/A"

// Map is a first-write-wins mapping that remembers insertion order.
// It is safe for concurrent use.
type Map struct {
	mu sync.Mutex
	m  *orderedmap.OrderedMap
}

func New() *Map {
	return &Map{m: orderedmap.NewOrderedMap()}
}

// Add records value under name unless name is already present. It reports
// whether the value was stored.
func (r *Map) Add(name, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m.Get(name); ok {
		return false
	}
	r.m.Set(name, value)
	return true
}

// AddNotFound records NotFound under name unless name is already present.
func (r *Map) AddNotFound(name string) bool { return r.Add(name, NotFound) }

func (r *Map) Get(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.m.Get(name)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Keys returns the names in insertion order.
func (r *Map) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, r.m.Len())
	for _, k := range r.m.Keys() {
		keys = append(keys, k.(string))
	}
	return keys
}

func (r *Map) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m.Len()
}

// Found returns how many names hold a value other than NotFound.
func (r *Map) Found() int {
	n := 0
	for _, k := range r.Keys() {
		if v, _ := r.Get(k); v != NotFound {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (r *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		v, _ := r.Get(k)
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Write writes the map to path as indented JSON.
func Write(path string, r *Map) error {
	raw, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("result: encode %s: %w", path, err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("result: encode %s: %w", path, err)
	}
	out.WriteByte('\n')
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		return fmt.Errorf("result: write %s: %w", path, err)
	}
	return nil
}

// Hex formats a read value.
func Hex(v uint64) string { return fmt.Sprintf("0x%X", v) }

// Case formats a switch case value. Negative values keep their sign.
func Case(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-0x%X", uint64(-v))
	}
	return fmt.Sprintf("0x%X", v)
}

// Cases formats case values as a space-separated list.
func Cases(vs []int64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = Case(v)
	}
	return strings.Join(parts, " ")
}
