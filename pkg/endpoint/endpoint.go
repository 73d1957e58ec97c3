// Package endpoint implements the fluent builder that accumulates the
// declarative description of one certified HTTP exchange (spec §4.1) and
// freezes it into an immutable EndpointRecord.
package endpoint

import (
	"net/url"
	"strings"

	"github.com/nodecert/verifyhttp/pkg/rihash"
)

// Record is the normalized description of one certified HTTP exchange
// (spec §3's EndpointRecord).
type Record struct {
	URL                    string
	BodyHash               [32]byte
	Method                 string
	QueryParams            []rihash.Pair
	RequestHeaders         []rihash.Pair
	Status                 uint16
	ResponseHeaders        []rihash.Pair
	NoCertification        bool
	NoRequestCertification bool
	IsFallbackPath         bool
}

// Endpoint is the mutable builder; Build consumes it once into a Record.
// Every setter returns the same *Endpoint so calls chain, matching the
// source library's fluent-builder shape.
type Endpoint struct {
	url                    string
	bodyHash               [32]byte
	method                 string
	status                 uint16
	queryParams            []rihash.Pair
	requestHeaders         []rihash.Pair
	responseHeaders        []rihash.Pair
	noCertification        bool
	noRequestCertification bool
	isFallbackPath         bool
}

// New starts a builder for url, optionally seeded with body bytes (pass nil
// for no body — its hash defaults to SHA-256 of the empty string).
func New(rawURL string, body []byte) *Endpoint {
	path, _ := ReducePath(rawURL)
	e := &Endpoint{
		url:      path,
		method:   "GET",
		status:   200,
		bodyHash: rihash.EmptyBodyHash(),
	}
	if body != nil {
		e.Body(body)
	}
	return e
}

// ReducePath implements spec §4.1's URL-to-path reduction. Callers pass the
// request-target form of a URL (e.g. "/hello?q=1", as it appears on an
// HTTP/1.1 request line) rather than an absolute URI with scheme and
// authority. The algorithm: locate the first '/' (0 if the string has none
// at all), locate the first '?' at or after that point (end of string if
// none), take the substring, drop one trailing '/' (so a bare "/" collapses
// to "", matching the url=="" special case in the expression compiler —
// see DESIGN.md for why this resolves the otherwise-ambiguous root-path
// case), then percent-decode. It returns both the decoded path and the
// original (trailing-slash-trimmed, still percent-encoded) substring, since
// spec.md §9's documented percent-decoding asymmetry requires the v1 lookup
// path to key off the latter. Exported so a caller's own URL-parsing
// collaborator (hostiface.URLParser) can produce a hostiface.ParsedURL
// consistent with what this builder certifies under.
func ReducePath(raw string) (decoded string, original string) {
	start := 0
	if idx := strings.IndexByte(raw, '/'); idx >= 0 {
		start = idx
	}
	rest := raw[start:]
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		rest = rest[:idx]
	}
	rest = strings.TrimSuffix(rest, "/")
	decodedPath, err := url.PathUnescape(rest)
	if err != nil {
		// Malformed percent-encoding: fall back to the raw (still
		// trailing-slash-trimmed) path rather than failing the build.
		return rest, rest
	}
	return decodedPath, rest
}

// Body sets the response body and recomputes BodyHash from it.
func (e *Endpoint) Body(body []byte) *Endpoint {
	e.bodyHash = rihash.Sum256(body)
	return e
}

// Chunks concatenates a sequence of body chunks and hashes the result, for
// callers that assemble a response body out of parts (e.g. streamed asset
// reads) without materializing the full concatenation themselves first.
func (e *Endpoint) Chunks(chunks [][]byte) *Endpoint {
	var total []byte
	for _, c := range chunks {
		total = append(total, c...)
	}
	return e.Body(total)
}

// Hash overrides the body hash directly, for callers that store only the
// hash of a body and never materialize the bytes themselves.
func (e *Endpoint) Hash(h [32]byte) *Endpoint {
	e.bodyHash = h
	return e
}

// Method sets the HTTP method (stored verbatim, uppercased by convention of
// the caller — this module treats it as an opaque string).
func (e *Endpoint) Method(m string) *Endpoint {
	e.method = m
	return e
}

// Status sets the certified HTTP status code.
func (e *Endpoint) Status(code uint16) *Endpoint {
	e.status = code
	return e
}

// RequestHeader appends one certified request header.
func (e *Endpoint) RequestHeader(name, value string) *Endpoint {
	e.requestHeaders = append(e.requestHeaders, rihash.Pair{Name: name, Value: value})
	return e
}

// RequestHeaders appends a batch of certified request headers.
func (e *Endpoint) RequestHeaders(headers []rihash.Pair) *Endpoint {
	e.requestHeaders = append(e.requestHeaders, headers...)
	return e
}

// QueryParam appends one certified query parameter.
func (e *Endpoint) QueryParam(name, value string) *Endpoint {
	e.queryParams = append(e.queryParams, rihash.Pair{Name: name, Value: value})
	return e
}

// QueryParams appends a batch of certified query parameters.
func (e *Endpoint) QueryParams(params []rihash.Pair) *Endpoint {
	e.queryParams = append(e.queryParams, params...)
	return e
}

// ResponseHeader appends one certified response header.
func (e *Endpoint) ResponseHeader(name, value string) *Endpoint {
	e.responseHeaders = append(e.responseHeaders, rihash.Pair{Name: name, Value: value})
	return e
}

// ResponseHeaders appends a batch of certified response headers.
func (e *Endpoint) ResponseHeaders(headers []rihash.Pair) *Endpoint {
	e.responseHeaders = append(e.responseHeaders, headers...)
	return e
}

// IsFallbackPath marks this endpoint as a fallback (wildcard-suffix "<*>")
// path rather than an exact ("<$>") one.
func (e *Endpoint) IsFallbackPath() *Endpoint {
	e.isFallbackPath = true
	return e
}

// NoRequestCertification marks the request (query params + request headers)
// as not certified; only the response is bound into the tree.
func (e *Endpoint) NoRequestCertification() *Endpoint {
	e.noRequestCertification = true
	return e
}

// NoCertification marks the whole exchange as uncertified at the response
// level, which strictly dominates request certification (spec §3's
// invariant: no_certification implies no_request_certification).
func (e *Endpoint) NoCertification() *Endpoint {
	e.noCertification = true
	return e
}

// Build freezes the builder into a Record, applying the
// no_certification/no_request_certification field-zeroing rules of spec
// §4.1.
func (e *Endpoint) Build() Record {
	noRequestCert := e.noRequestCertification || e.noCertification

	r := Record{
		URL:                    e.url,
		BodyHash:               e.bodyHash,
		Method:                 e.method,
		Status:                 e.status,
		NoCertification:        e.noCertification,
		NoRequestCertification: noRequestCert,
		IsFallbackPath:         e.isFallbackPath,
	}
	if !noRequestCert {
		r.QueryParams = append([]rihash.Pair(nil), e.queryParams...)
		r.RequestHeaders = append([]rihash.Pair(nil), e.requestHeaders...)
	}
	if !e.noCertification {
		r.ResponseHeaders = append([]rihash.Pair(nil), e.responseHeaders...)
	}
	return r
}
