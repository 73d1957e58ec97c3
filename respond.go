package verifyhttp

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/nodecert/verifyhttp/pkg/hostiface"
	"github.com/nodecert/verifyhttp/pkg/merkle"
	"github.com/nodecert/verifyhttp/pkg/metaindex"
	"github.com/nodecert/verifyhttp/pkg/rihash"
)

// CertifiedTree is the v1 response-verification answer: the host's
// certificate plus a witness proving the flat "http_assets" leaf at a given
// path hashes into the certified root. Legacy clients that only understand
// v1 compare bodyHash against the body they received themselves.
type CertifiedTree struct {
	Certificate []byte
	WitnessCBOR []byte
	BodyHash    [32]byte
}

// CertifiedResponse is the v2 response-verification answer: the
// certificate, the pruned witness over the "http_expr" subtree for the
// matched endpoint, the matched metadata (so the caller can set the right
// response headers and IC-CertificateExpression text), and the expression
// path the client must present back in its own verification.
type CertifiedResponse struct {
	Certificate    []byte
	WitnessCBOR    []byte
	Metadata       metaindex.Metadata
	UniqueHTTPHash [32]byte
}

// GetCertificate returns the host's current certificate, or
// ErrNoRootCertificate if the host has not produced one yet (spec.md §7).
func (s *System) GetCertificate() ([]byte, error) {
	cert, ok := s.host.GetCertificate()
	if !ok {
		return nil, ErrNoRootCertificate
	}
	return cert, nil
}

// GetCertifiedTree answers a v1 request for req: it looks up the
// "http_assets" leaf keyed by the request's ORIGINAL (not percent-decoded)
// path — this is the percent-decoding asymmetry spec.md §9 documents and
// this module deliberately reproduces rather than silently patches (see
// DESIGN.md) — and reveals a witness proving that leaf against the current
// root.
func (s *System) GetCertifiedTree(req hostiface.Request, parsed hostiface.ParsedURL) (*CertifiedTree, error) {
	cert, err := s.GetCertificate()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := assetPath(parsed.OriginalPath)
	w, err := s.tree.Reveal(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMetadata, parsed.OriginalPath)
	}
	encoded, err := merkle.EncodeWitness(w)
	if err != nil {
		return nil, fmt.Errorf("verifyhttp: encode witness for %q: %w", parsed.OriginalPath, err)
	}

	// The flat v1 tree is keyed by the request's original path, but the
	// metadata index is keyed by the decoded url recorded at certify
	// time; report the body hash from whatever variant was certified
	// for the decoded path, since v1 callers only need it to compare
	// against the body bytes they already have.
	var bodyHash [32]byte
	for _, variants := range s.index.LookupURL(parsed.Path) {
		if len(variants) > 0 {
			bodyHash = variants[0].BodyHash
			break
		}
	}

	return &CertifiedTree{Certificate: cert, WitnessCBOR: encoded, BodyHash: bodyHash}, nil
}

// GetCertifiedResponse answers a v2 request for (req, resp): it resolves the
// best certified Metadata variant (exact match first, then the nearest
// registered fallback ancestor — spec.md §8's fallback-semantics property),
// reveals a witness over that variant's full expression path, and returns
// everything the caller needs to attach IC-Certificate /
// IC-CertificateExpression headers to its actual HTTP response.
// bodyHashOverride, if non-nil, is used as the body hash instead of
// SHA-256(resp.Body) — spec.md §4.6/§4.7's response_hash_override, for
// callers that already know the hash and would rather not pass the bytes.
func (s *System) GetCertifiedResponse(req hostiface.Request, resp hostiface.Response, parsed hostiface.ParsedURL, bodyHashOverride *[32]byte) (*CertifiedResponse, error) {
	cert, err := s.GetCertificate()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	md, uniqueHTTPHash, found := s.resolveMetadataLocked(req, resp, parsed.Path, bodyHashOverride)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoMetadata, parsed.Path)
	}

	w, err := s.tree.Reveal(md.FullExprPath, false)
	if err != nil {
		// The index and the tree are mutated together under s.mu in
		// Certify/Remove; divergence here means an invariant this
		// engine is supposed to maintain itself has broken.
		panic(fmt.Sprintf("verifyhttp: metadata for %q has no matching tree leaf: %v", parsed.Path, err))
	}
	encoded, err := merkle.EncodeWitness(w)
	if err != nil {
		return nil, fmt.Errorf("verifyhttp: encode witness for %q: %w", parsed.Path, err)
	}

	return &CertifiedResponse{
		Certificate:    cert,
		WitnessCBOR:    encoded,
		Metadata:       md,
		UniqueHTTPHash: uniqueHTTPHash,
	}, nil
}

// resolveMetadataLocked implements spec.md §4.7's lookup: reconstruct the
// tentative body hash from (resp, bodyHashOverride), try an exact,
// non-fallback match on the decoded path first, then walk the path's
// '/'-separated prefixes from most to least specific looking for a
// registered fallback ("<*>") endpoint. Caller must hold s.mu.
func (s *System) resolveMetadataLocked(req hostiface.Request, resp hostiface.Response, path string, bodyHashOverride *[32]byte) (metaindex.Metadata, [32]byte, bool) {
	bodyHash := sha256.Sum256(resp.Body)
	if bodyHashOverride != nil {
		bodyHash = *bodyHashOverride
	}
	reqHeaders := toRihashPairs(req.Headers)
	reqQuery := toRihashPairs(req.QueryParams)
	respHeaders := toRihashPairs(resp.Headers)

	if md, hash, ok := bestVariant(s.index.LookupURL(path), bodyHash, resp.Status, req.Method, reqHeaders, reqQuery, respHeaders, false); ok {
		return md, hash, true
	}

	for _, prefix := range ancestorPrefixes(path) {
		if md, hash, ok := bestVariant(s.index.LookupURL(prefix), bodyHash, resp.Status, req.Method, reqHeaders, reqQuery, respHeaders, true); ok {
			return md, hash, true
		}
	}
	return metaindex.Metadata{}, [32]byte{}, false
}

// bestVariant implements spec.md §4.7's three-level, increasing-strength
// bucket lookup with short-circuit: try unique_http_hash(body only), then
// (body, status), then (body, status, method), stopping at the first level
// that has any entries at all — a level with entries but no pairwise-equal
// match is NOT a miss that falls through to the next level, it is simply no
// match. Within the matched level's candidate list, the first Metadata whose
// certified request headers, query params, and response headers are each a
// subset (by (name,value) equality) of what the live request/response
// actually carries wins, restricted to fallback-flagged entries when
// wantFallback is true.
func bestVariant(variants map[[32]byte][]metaindex.Metadata, bodyHash [32]byte, status uint16, method string, reqHeaders, reqQuery, respHeaders []rihash.Pair, wantFallback bool) (metaindex.Metadata, [32]byte, bool) {
	buckets := []struct {
		hash                           [32]byte
		includeStatus, includeMethod bool
	}{
		{uniqueHTTPHash(bodyHash, status, method, false, false), false, false},
		{uniqueHTTPHash(bodyHash, status, method, true, false), true, false},
		{uniqueHTTPHash(bodyHash, status, method, true, true), true, true},
	}

	for _, bucket := range buckets {
		list, ok := variants[bucket.hash]
		if !ok || len(list) == 0 {
			continue
		}
		for _, md := range list {
			if md.IsFallbackPath != wantFallback {
				continue
			}
			if !metaindex.PairsSubset(md.RequestHeaders, reqHeaders) {
				continue
			}
			if !metaindex.PairsSubset(md.QueryParams, reqQuery) {
				continue
			}
			if !metaindex.PairsSubset(md.ResponseHeaders, respHeaders) {
				continue
			}
			return md, bucket.hash, true
		}
		return metaindex.Metadata{}, [32]byte{}, false
	}
	return metaindex.Metadata{}, [32]byte{}, false
}

// ancestorPrefixes yields path's '/'-separated ancestor prefixes, longest
// first, down to and including the empty string (the root fallback).
func ancestorPrefixes(path string) []string {
	segments := strings.Split(path, "/")
	var prefixes []string
	for i := len(segments) - 1; i > 0; i-- {
		prefixes = append(prefixes, strings.Join(segments[:i], "/"))
	}
	prefixes = append(prefixes, "")
	return prefixes
}

// toRihashPairs adapts hostiface.RequestHeader slices (used for request
// headers, query params, and response headers alike) to rihash.Pair so they
// can be compared against certified pairs by metaindex.PairsSubset.
func toRihashPairs(headers []hostiface.RequestHeader) []rihash.Pair {
	out := make([]rihash.Pair, len(headers))
	for i, h := range headers {
		out[i] = rihash.Pair{Name: h.Name, Value: h.Value}
	}
	return out
}
