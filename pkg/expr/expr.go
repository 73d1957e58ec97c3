// Package expr compiles an endpoint's path into the three artifacts the
// labeled tree and the certificate header need: the path's segment list,
// the CBOR-encoded expression path (hashed into the tree key and sent in the
// certificate header's expr_path), and the
// human-readable "IC-CertificateExpression" text (spec.md §4.2).
package expr

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// wildcardSuffix is the label appended to a fallback (wildcard) path's
// segment list, distinguishing it from an exact-match ("<$>") path.
const (
	exactSuffix    = "<$>"
	wildcardSuffix = "<*>"
	treeLabel      = "http_expr"
)

// whitespaceRun collapses any run of whitespace (including newlines) into a
// single space, applied to the rendered expression text so that formatting
// differences in how a caller builds the text never change its certified
// bytes.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Segments splits url into its path-segment list per spec.md §4.2 step 1:
// an empty url is the single segment [""]; otherwise url is split on '/',
// preserving empty segments between consecutive slashes.
func Segments(url string) []string {
	if url == "" {
		return []string{""}
	}
	return strings.Split(url, "/")
}

// Path builds the full expression path: the path segments, with the
// "http_expr" tree label prepended and either the exact or wildcard suffix
// appended, depending on isFallbackPath.
func Path(url string, isFallbackPath bool) []string {
	segments := Segments(url)
	suffix := exactSuffix
	if isFallbackPath {
		suffix = wildcardSuffix
	}
	path := make([]string, 0, len(segments)+2)
	path = append(path, treeLabel)
	path = append(path, segments...)
	path = append(path, suffix)
	return path
}

// EncodePath CBOR-encodes an expression path as an array of text strings:
// the bytes Hash digests into the expr_hash tree segment and that a client
// decodes from the certificate header's expr_path to recover the segment
// list. The tree itself is keyed by the plain segments, not by these bytes.
func EncodePath(path []string) ([]byte, error) {
	return cbor.Marshal(path)
}

// Hash is SHA-256 of the CBOR-encoded expression path: the expr_hash segment
// appended to full_expr_path, the v2 tree key (spec.md §4.2 step 4, §4.3).
func Hash(encodedPath []byte) [32]byte {
	return sha256.Sum256(encodedPath)
}

// Text renders the human-readable "IC-CertificateExpression" header value
// for the three certification levels spec.md §4.2 step 5 defines, selected
// by the (noCertification, noRequestCertification) pair: no_certification
// (the whole exchange uncertified), no_request_certification (response-only),
// and full (request + response). The certified header/query-parameter names
// are rendered into the template in the caller's order — this module never
// sorts them, matching the "no sorting of header lists" determinism note
// (spec.md §9) — each lowercased and double-quoted, debug-string style.
// normalizeWhitespace is always applied before returning, collapsing any run
// of whitespace in the template to a single space.
func Text(noCertification, noRequestCertification bool, requestHeaderNames, queryParamNames, responseHeaderNames []string) string {
	var body string
	switch {
	case noCertification:
		body = `default_certification(ValidationArgs{ no_certification: Empty{} })`
	case noRequestCertification:
		body = fmt.Sprintf(
			`default_certification(ValidationArgs{ certification: Certification{ `+
				`no_request_certification: Empty{}, `+
				`response_certification: ResponseCertification{ certified_response_headers: %s } } })`,
			quotedNameList(responseHeaderNames))
	default:
		body = fmt.Sprintf(
			`default_certification(ValidationArgs{ certification: Certification{ `+
				`request_certification: RequestCertification{ certified_request_headers: %s, certified_query_parameters: %s }, `+
				`response_certification: ResponseCertification{ certified_response_headers: %s } } })`,
			quotedNameList(requestHeaderNames), quotedNameList(queryParamNames), quotedNameList(responseHeaderNames))
	}
	return normalizeWhitespace(body)
}

// quotedNameList renders names in the template's debug-string form: a
// bracketed, comma-separated list of lowercased, double-quoted names, e.g.
// `["accept-language", "x-requested-with"]`. An empty or nil list renders as
// `[]`, matching an endpoint that certifies no headers/params at that level.
func quotedNameList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = strconv.Quote(strings.ToLower(n))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// normalizeWhitespace collapses every run of whitespace (spaces, tabs,
// newlines) to a single space and trims the result, so that two
// differently-formatted renderings of the same expression always produce
// the same certified text.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
