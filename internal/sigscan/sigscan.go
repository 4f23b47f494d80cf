// Package sigscan finds wildcard byte signatures inside raw images.
package sigscan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wildcard is the token value that matches any byte.
const Wildcard = -1

var ErrEmptyPattern = errors.New("sigscan: empty pattern")

// Pattern is an ordered sequence of tokens, each a literal byte (0..255) or
// Wildcard. Patterns are immutable once parsed.
type Pattern struct {
	tokens []int
}

// Parse converts a signature string such as "48 8B ? ?? 05" into a Pattern.
// Tokens are separated by spaces; "?" and "??" are wildcards. Adjacent hex
// pairs without a separator ("488B") are accepted as well.
func Parse(sig string) (Pattern, error) {
	var tokens []int
	for i := 0; i < len(sig); {
		switch sig[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		case '?':
			i++
			if i < len(sig) && sig[i] == '?' {
				i++
			}
			tokens = append(tokens, Wildcard)
			continue
		}
		if i+2 > len(sig) {
			return Pattern{}, fmt.Errorf("sigscan: truncated token at %d in %q", i, sig)
		}
		v, err := strconv.ParseUint(sig[i:i+2], 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("sigscan: bad hex %q at %d: %w", sig[i:i+2], i, err)
		}
		tokens = append(tokens, int(v))
		i += 2
	}
	if len(tokens) == 0 {
		return Pattern{}, ErrEmptyPattern
	}
	return Pattern{tokens: tokens}, nil
}

// MustParse is like Parse but panics on error. Intended for fixed encodings.
func MustParse(sig string) Pattern {
	p, err := Parse(sig)
	if err != nil {
		panic(err)
	}
	return p
}

// Len returns the number of tokens.
func (p Pattern) Len() int { return len(p.tokens) }

// MatchAt reports whether every literal token equals the byte at the
// corresponding offset from off. A pattern running past the end never matches.
func (p Pattern) MatchAt(data []byte, off int) bool {
	if off < 0 || off+len(p.tokens) > len(data) {
		return false
	}
	for j, tok := range p.tokens {
		if tok == Wildcard {
			continue
		}
		if data[off+j] != byte(tok) {
			return false
		}
	}
	return true
}

// Find returns every offset in data where p matches, in ascending order.
// Matches may overlap.
func Find(data []byte, p Pattern) []uint64 {
	return FindIn(data, 0, len(data), p)
}

// FindIn scans data[start:end) and returns absolute match offsets. A match
// must fit entirely inside the range.
func FindIn(data []byte, start, end int, p Pattern) []uint64 {
	if start < 0 {
		start = 0
	}
	if end > len(data) {
		end = len(data)
	}
	n := len(p.tokens)
	if n == 0 || end-start < n {
		return nil
	}

	var result []uint64
	last := end - n
	first := p.tokens[0]
	for i := start; i <= last; i++ {
		// Fast reject on the leading literal.
		if first != Wildcard && data[i] != byte(first) {
			continue
		}
		if p.MatchAt(data[:end], i) {
			result = append(result, uint64(i))
		}
	}
	return result
}

// String renders the pattern in canonical form ("48 8B ?? 05").
func (p Pattern) String() string {
	parts := make([]string, len(p.tokens))
	for i, tok := range p.tokens {
		if tok == Wildcard {
			parts[i] = "??"
		} else {
			parts[i] = fmt.Sprintf("%02X", tok)
		}
	}
	return strings.Join(parts, " ")
}
