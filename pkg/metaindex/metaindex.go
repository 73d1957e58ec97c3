// Package metaindex implements the two-level metadata index that maps a
// certified URL to every certified variant of it: url -> unique_http_hash ->
// an ordered list of Metadata records (spec.md §3, §4.7). Duplicates are
// permitted by design — the same url/unique_http_hash pair can be certified
// more than once (e.g. once per Accept-Language variant) and every variant
// observed at serve time must be checked in insertion order.
package metaindex

import (
	"strings"
	"sync"

	"github.com/nodecert/verifyhttp/pkg/endpoint"
	"github.com/nodecert/verifyhttp/pkg/rihash"
)

// Metadata is one certified variant recorded for a given (url,
// unique_http_hash) pair: the certified EndpointRecord itself plus the three
// artifacts the response binder needs that the record alone doesn't carry —
// the encoded and full expression paths and the rendered expression text
// (spec.md §4.5 step 9: "Metadata{ endpoint, encoded_expr_path,
// full_expr_path, expression_text }"). Embedding endpoint.Record promotes its
// fields (Method, Status, RequestHeaders, QueryParams, ResponseHeaders,
// BodyHash, IsFallbackPath, …), so PairsSubset can compare certified
// (name, value) pairs directly rather than names alone.
type Metadata struct {
	endpoint.Record
	FullExprPath    []string
	EncodedExprPath []byte
	ExpressionText  string
}

// Index is the concurrency-safe url -> unique_http_hash -> []Metadata map.
type Index struct {
	mu   sync.RWMutex
	byURL map[string]map[[32]byte][]Metadata
}

// New returns an empty index.
func New() *Index {
	return &Index{byURL: make(map[string]map[[32]byte][]Metadata)}
}

// Insert appends md to the ordered list for (url, uniqueHTTPHash), creating
// either level of the map as needed. Re-inserting the same triple appends a
// duplicate rather than overwriting, matching the "duplicates permitted"
// invariant: callers that mean to replace a certification call Remove first.
func (idx *Index) Insert(url string, uniqueHTTPHash [32]byte, md Metadata) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byHash, ok := idx.byURL[url]
	if !ok {
		byHash = make(map[[32]byte][]Metadata)
		idx.byURL[url] = byHash
	}
	byHash[uniqueHTTPHash] = append(byHash[uniqueHTTPHash], md)
}

// Lookup returns the ordered Metadata list for an exact (url,
// uniqueHTTPHash) pair, or nil if nothing is certified there.
func (idx *Index) Lookup(url string, uniqueHTTPHash [32]byte) []Metadata {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	byHash, ok := idx.byURL[url]
	if !ok {
		return nil
	}
	return append([]Metadata(nil), byHash[uniqueHTTPHash]...)
}

// LookupURL returns every uniqueHTTPHash -> []Metadata mapping certified for
// url. The response binder looks up its three candidate unique_http_hash
// buckets in this map and subset-matches only within the first bucket that
// has entries; Metadata under any other hash is never a candidate.
func (idx *Index) LookupURL(url string) map[[32]byte][]Metadata {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	byHash, ok := idx.byURL[url]
	if !ok {
		return nil
	}
	out := make(map[[32]byte][]Metadata, len(byHash))
	for h, list := range byHash {
		out[h] = append([]Metadata(nil), list...)
	}
	return out
}

// Remove deletes every Metadata entry recorded for (url, uniqueHTTPHash),
// pruning the empty url entry if it was the last one. The certification
// engine's Remove does not call this; it drops the whole url with RemoveURL.
func (idx *Index) Remove(url string, uniqueHTTPHash [32]byte) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byHash, ok := idx.byURL[url]
	if !ok {
		return
	}
	delete(byHash, uniqueHTTPHash)
	if len(byHash) == 0 {
		delete(idx.byURL, url)
	}
}

// RemoveURL deletes every Metadata entry recorded for url, across all of its
// unique_http_hash variants.
func (idx *Index) RemoveURL(url string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byURL, url)
}

// Clear empties the index entirely.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byURL = make(map[string]map[[32]byte][]Metadata)
}

// URLs returns every distinct url currently certified, in no particular
// order, backing the certification engine's Endpoints() enumeration.
func (idx *Index) URLs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.byURL))
	for u := range idx.byURL {
		out = append(out, u)
	}
	return out
}

// PairsSubset reports whether every (name, value) pair in certified also
// appears in actual, names compared case-insensitively (HTTP header and
// query-parameter names are conventionally case-insensitive) and values
// compared exactly — the subset-match test spec.md §4.7 uses to pick among
// several certified variants of the same url/unique_http_hash bucket: a
// certified header present with a different value, or absent altogether,
// disqualifies that variant.
func PairsSubset(certified, actual []rihash.Pair) bool {
	for _, c := range certified {
		found := false
		for _, a := range actual {
			if strings.EqualFold(c.Name, a.Name) && c.Value == a.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
