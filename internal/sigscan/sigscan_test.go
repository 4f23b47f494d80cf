package sigscan

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		sig  string
		want []int
	}{
		{"literals", "48 8B 05", []int{0x48, 0x8B, 0x05}},
		{"single-wildcard", "E8 ? ? ? ?", []int{0xE8, Wildcard, Wildcard, Wildcard, Wildcard}},
		{"double-wildcard", "E9 ?? ?? ?? ??", []int{0xE9, Wildcard, Wildcard, Wildcard, Wildcard}},
		{"lowercase", "ff cc", []int{0xFF, 0xCC}},
		{"packed", "488B??05", []int{0x48, 0x8B, Wildcard, 0x05}},
		{"extra-spaces", "  41  ?  42 ", []int{0x41, Wildcard, 0x42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.tokens)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, sig := range []string{"", "   ", "4", "GG", "48 8"} {
		_, err := Parse(sig)
		assert.Error(t, err, "sig %q", sig)
	}
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmptyPattern)
}

func TestString(t *testing.T) {
	p := MustParse("e8 ? ?? 0a")
	assert.Equal(t, "E8 ?? ?? 0A", p.String())
	assert.Equal(t, 4, p.Len())
}

func TestFindLiteral(t *testing.T) {
	data := []byte{0x00, 0x48, 0x8B, 0x05, 0x48, 0x8B, 0x05, 0x48}
	got := Find(data, MustParse("48 8B 05"))
	assert.Equal(t, []uint64{1, 4}, got)
}

func TestFindOverlapping(t *testing.T) {
	data := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	got := Find(data, MustParse("AA AA"))
	assert.Equal(t, []uint64{0, 1, 2}, got)
}

func TestFindWildcards(t *testing.T) {
	data := []byte{0xE8, 0x01, 0x02, 0x03, 0x04, 0x90, 0xE8, 0xFF}
	got := Find(data, MustParse("E8 ? ? ? ?"))
	// The second E8 is too close to the end to fit a full match.
	assert.Equal(t, []uint64{0}, got)
}

func TestFindAllWildcard(t *testing.T) {
	data := make([]byte, 10)
	got := Find(data, MustParse("?? ??"))
	require.Len(t, got, 9)
	for i, a := range got {
		assert.Equal(t, uint64(i), a)
	}
}

func TestFindNoMatch(t *testing.T) {
	assert.Empty(t, Find([]byte{1, 2, 3}, MustParse("04")))
	assert.Empty(t, Find(nil, MustParse("04")))
	assert.Empty(t, Find([]byte{1}, MustParse("01 02")))
}

func TestFindIn(t *testing.T) {
	data := []byte{0xCC, 0x90, 0xCC, 0x90, 0xCC, 0x90}
	p := MustParse("CC 90")
	assert.Equal(t, []uint64{2}, FindIn(data, 1, 4, p))
	assert.Equal(t, []uint64{0, 2, 4}, FindIn(data, -5, 100, p))
	assert.Empty(t, FindIn(data, 4, 5, p))
}

// Every returned address must satisfy the literal tokens and never run past
// the end of the buffer.
func TestFindProperty(t *testing.T) {
	data := bytes.Repeat([]byte{0x10, 0x20, 0x30, 0x10, 0x20}, 50)
	for _, sig := range []string{"10 20", "10 ? 30", "20 ?? ?? 20", "?? 10"} {
		p := MustParse(sig)
		for _, a := range Find(data, p) {
			require.LessOrEqual(t, int(a), len(data)-p.Len())
			require.True(t, p.MatchAt(data, int(a)))
			for j, tok := range p.tokens {
				if tok != Wildcard {
					require.Equal(t, byte(tok), data[int(a)+j])
				}
			}
		}
	}
}
