package rihash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashOrderIndependent(t *testing.T) {
	a := []Entry{
		{Key: "content-type", Value: Text("text/plain")},
		{Key: "content-length", Value: Nat(5)},
	}
	b := []Entry{
		{Key: "content-length", Value: Nat(5)},
		{Key: "content-type", Value: Text("text/plain")},
	}
	assert.Equal(t, Hash(a), Hash(b), "entry order must not affect the hash")
}

func TestHashDiffersOnValueChange(t *testing.T) {
	a := []Entry{{Key: "content-type", Value: Text("text/plain")}}
	b := []Entry{{Key: "content-type", Value: Text("text/html")}}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHashEmptySet(t *testing.T) {
	require.Equal(t, Hash(nil), Hash([]Entry{}))
}

func TestTextHashesRawBytesWithNoNormalization(t *testing.T) {
	// U+0065 U+0301 (e + combining acute accent) and the single precomposed
	// U+00E9 codepoint are two distinct byte strings; spec.md §4.3 never
	// calls for normalizing them together before hashing, so they must
	// produce different RIH entries.
	composed := "café"
	decomposed := "café"
	require.NotEqual(t, composed, decomposed, "test fixture must start out byte-different")
	a := Hash([]Entry{{Key: "k", Value: Text(composed)}})
	b := Hash([]Entry{{Key: "k", Value: Text(decomposed)}})
	assert.NotEqual(t, a, b)
}

func TestHeaderEntriesSkipsEmptyAndExcluded(t *testing.T) {
	headers := []Pair{
		{Name: "Content-Type", Value: "text/plain"},
		{Name: "IC-Certificate", Value: "should-be-excluded"},
		{Name: "X-Empty", Value: ""},
	}
	entries := HeaderEntries(headers, map[string]bool{"ic-certificate": true})
	require.Len(t, entries, 1)
	assert.Equal(t, "content-type", entries[0].Key)
}

func TestQueryHashOrderSensitive(t *testing.T) {
	a := QueryHash([]Pair{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	b := QueryHash([]Pair{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}})
	assert.NotEqual(t, a, b, "query hash is over the literal query string, order included")
}

func TestEmptyBodyHashIsSha256OfEmptyString(t *testing.T) {
	want := Sum256(nil)
	assert.Equal(t, want, EmptyBodyHash())
	assert.Equal(t, want, RequestBodyHash())
}
