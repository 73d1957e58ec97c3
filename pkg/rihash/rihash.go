// Package rihash wraps the hashing primitives this module treats as
// platform-adjacent: SHA-256 digesting and the representation-independent
// map hash (RIH) used to certify header maps, query strings, methods, and
// status codes without binding to any particular wire encoding.
package rihash

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Pair is an ordered (name, value) pair, used for header lists and query
// parameter lists throughout this module. Order is preserved by callers;
// rihash never sorts a Pair slice itself (only the hashed RIH entries are
// sorted, by key hash — see Hash).
type Pair struct {
	Name  string
	Value string
}

// Sum256 is the SHA-256 digest of data, as a 32-byte array.
func Sum256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// EmptyBodyHash is SHA-256 of the empty string, the default body hash for
// an endpoint built with no body and the certified request-body hash (this
// module never certifies request bodies; see rihash.RequestBodyHash).
func EmptyBodyHash() [32]byte {
	return Sum256(nil)
}

// RequestBodyHash is always the hash of the empty body: requests are never
// certified by body in this protocol, only by header map, query hash, and
// method (spec §4.3).
func RequestBodyHash() [32]byte {
	return EmptyBodyHash()
}

// kind discriminates the three representation-independent value types the
// platform's map hash supports.
type kind byte

const (
	kindText kind = iota
	kindBlob
	kindNat
)

// Value is one of Text, Blob, or Nat — the three value shapes the
// representation-independent hash (RIH) can commit to.
type Value struct {
	k    kind
	text string
	blob []byte
	nat  uint64
}

// Text wraps a UTF-8 string value, hashed as its raw bytes. Spec.md §4.3
// never calls for Unicode normalization of a Text value, so none is applied
// here (see DESIGN.md's dropped-dependency note on golang.org/x/text).
func Text(s string) Value { return Value{k: kindText, text: s} }

// Blob wraps an opaque byte-string value.
func Blob(b []byte) Value { return Value{k: kindBlob, blob: append([]byte(nil), b...)} }

// Nat wraps an unsigned integer value (status codes, in this module).
func Nat(n uint64) Value { return Value{k: kindNat, nat: n} }

// Entry is one (name, value) binding fed into Hash.
type Entry struct {
	Key   string
	Value Value
}

// encodeValue returns the byte encoding of v that is SHA-256'd to produce
// its entry hash. Text values are hashed as their UTF-8 bytes, Blob values
// as their raw bytes, and Nat values as unsigned LEB128 — the platform's
// standard integer encoding.
func encodeValue(v Value) []byte {
	switch v.k {
	case kindText:
		return []byte(v.text)
	case kindBlob:
		return v.blob
	case kindNat:
		return leb128(v.nat)
	default:
		panic(fmt.Sprintf("rihash: unknown value kind %d", v.k))
	}
}

func leb128(n uint64) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

// Hash computes the representation-independent hash of entries: each entry
// is hashed as SHA-256(key) || SHA-256(encoded value), the resulting pairs
// are sorted by their key hash, concatenated, and SHA-256'd once more. The
// entries slice is never mutated and its input order does not affect the
// result — that is the point of the algorithm (spec §4.3).
func Hash(entries []Entry) [32]byte {
	type hashed struct {
		keyHash [32]byte
		valHash [32]byte
	}
	pairs := make([]hashed, len(entries))
	for i, e := range entries {
		pairs[i].keyHash = sha256.Sum256([]byte(e.Key))
		valBytes := sha256.Sum256(encodeValue(e.Value))
		pairs[i].valHash = valBytes
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].keyHash[:], pairs[j].keyHash[:]) < 0
	})

	var buf bytes.Buffer
	for _, p := range pairs {
		buf.Write(p.keyHash[:])
		buf.Write(p.valHash[:])
	}
	return sha256.Sum256(buf.Bytes())
}

// HeaderEntries turns a header list into RIH entries: header names are
// lowercased and empty-value headers are dropped. excludeLower is a set of
// already-lowercased names to skip entirely (used by the response hash to
// exclude "ic-certificate").
func HeaderEntries(headers []Pair, excludeLower map[string]bool) []Entry {
	entries := make([]Entry, 0, len(headers))
	for _, h := range headers {
		if h.Value == "" {
			continue
		}
		name := strings.ToLower(h.Name)
		if excludeLower[name] {
			continue
		}
		entries = append(entries, Entry{Key: name, Value: Text(h.Value)})
	}
	return entries
}

// QueryHash computes SHA-256 of the query-parameter string
// "name1=value1&name2=value2&..." built in the caller-supplied order, the
// exact bytes certified under the ":ic-cert-query" request-hash entry.
func QueryHash(params []Pair) [32]byte {
	var buf bytes.Buffer
	for i, p := range params {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(p.Name)
		buf.WriteByte('=')
		buf.WriteString(p.Value)
	}
	return sha256.Sum256(buf.Bytes())
}
