// Package verifyhttp is the certification engine and response binder for
// the Response Verification v2 protocol: it lets an HTTP-serving node
// declare, for each endpoint it wants to certify, what request and response
// shape it commits to, and it answers incoming requests with the
// certificate and pruned witness a client needs to verify the response
// against the host's signed root hash (spec.md §§2-4).
//
// The library never touches the network itself: it is handed an
// hostiface.HostInterface to publish certified-data roots and fetch
// certificates, and hostiface.Request/ParsedURL shapes to read incoming
// requests from, the same small-interface boundary style the teacher
// corpus uses for its external collaborators (pkg/interfaces).
package verifyhttp

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nodecert/verifyhttp/pkg/auditlog"
	"github.com/nodecert/verifyhttp/pkg/endpoint"
	"github.com/nodecert/verifyhttp/pkg/expr"
	"github.com/nodecert/verifyhttp/pkg/hostiface"
	"github.com/nodecert/verifyhttp/pkg/merkle"
	"github.com/nodecert/verifyhttp/pkg/metaindex"
	"github.com/nodecert/verifyhttp/pkg/rihash"
)

// Recoverable error classes (spec.md §7): everything else the engine
// encounters that should never happen given the invariants it maintains
// itself panics as an internal invariant violation instead of returning an
// error, following the teacher's "this is a bug, please report it" style.
var (
	ErrNoRootCertificate = errors.New("verifyhttp: host has not produced a certificate yet")
	ErrNoMetadata        = errors.New("verifyhttp: no certified metadata matches this request")
)

const assetsTreeLabel = "http_assets"

// System is the certification engine and response binder bound to one
// host. It is safe for concurrent use.
type System struct {
	mu     sync.Mutex
	tree   *merkle.Tree
	index  *metaindex.Index
	host   hostiface.HostInterface
	audit  *auditlog.Log
	logger *slog.Logger
}

// Option configures a System at construction time.
type Option func(*System)

// WithAuditLog attaches an audit trail recording every mutating call.
func WithAuditLog(l *auditlog.Log) Option { return func(s *System) { s.audit = l } }

// WithLogger overrides the default slog.Logger (slog.Default() otherwise).
func WithLogger(l *slog.Logger) Option { return func(s *System) { s.logger = l } }

// New returns an empty certification engine bound to host.
func New(host hostiface.HostInterface, opts ...Option) *System {
	s := &System{
		tree:   merkle.New(),
		index:  metaindex.New(),
		host:   host,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requestHash computes the request-side hash (spec.md §4.3): method,
// certified query hash, and the certified request headers feed a
// representation-independent hash (request_header_hash), which is then
// concatenated with the (always-empty-body) request_body_hash and hashed
// once more. Computed only when !NoCertification && !NoRequestCertification;
// otherwise request_hash is a true empty blob — zero bytes, not
// SHA-256 of anything — so a client can distinguish "nothing certified"
// from "certified an empty map".
func requestHash(e endpoint.Record) []byte {
	if e.NoRequestCertification {
		return []byte{}
	}
	entries := rihash.HeaderEntries(e.RequestHeaders, nil)
	entries = append(entries,
		rihash.Entry{Key: ":ic-cert-method", Value: rihash.Text(e.Method)},
		rihash.Entry{Key: ":ic-cert-query", Value: rihash.Blob(hashSlice(rihash.QueryHash(e.QueryParams)))},
	)
	headerHash := rihash.Hash(entries)
	bodyHash := rihash.RequestBodyHash()
	sum := sha256.Sum256(append(append([]byte(nil), headerHash[:]...), bodyHash[:]...))
	return sum[:]
}

// responseHash computes the response-side hash (spec.md §4.3): the
// certified response headers (excluding "ic-certificate" itself, which
// cannot certify its own header value), the rendered expression text, and
// the status code feed a representation-independent hash
// (response_header_hash), concatenated with the response body hash and
// hashed once more. Computed only when !NoCertification; otherwise
// response_hash is a true empty blob.
func responseHash(e endpoint.Record, exprText string) []byte {
	if e.NoCertification {
		return []byte{}
	}
	entries := rihash.HeaderEntries(e.ResponseHeaders, map[string]bool{"ic-certificate": true})
	entries = append(entries,
		rihash.Entry{Key: "ic-certificateexpression", Value: rihash.Text(exprText)},
		rihash.Entry{Key: ":ic-cert-status", Value: rihash.Nat(uint64(e.Status))},
	)
	headerHash := rihash.Hash(entries)
	sum := sha256.Sum256(append(append([]byte(nil), headerHash[:]...), e.BodyHash[:]...))
	return sum[:]
}

func hashSlice(h [32]byte) []byte { return h[:] }

// uniqueHTTPHash is the MetadataIndex's inner key (spec.md §4.3): the RIH of
// ":ic-cert-body" (always), ":ic-cert-method" (iff includeMethod), and
// ":ic-cert-status" (iff includeStatus). The response binder calls this same
// function at lookup time with the three fixed (includeStatus, includeMethod)
// combinations spec.md §4.7 tries in increasing certification strength.
func uniqueHTTPHash(bodyHash [32]byte, status uint16, method string, includeStatus, includeMethod bool) [32]byte {
	entries := []rihash.Entry{
		{Key: ":ic-cert-body", Value: rihash.Blob(hashSlice(bodyHash))},
	}
	if includeMethod {
		entries = append(entries, rihash.Entry{Key: ":ic-cert-method", Value: rihash.Text(method)})
	}
	if includeStatus {
		entries = append(entries, rihash.Entry{Key: ":ic-cert-status", Value: rihash.Nat(uint64(status))})
	}
	return rihash.Hash(entries)
}

// uniqueHTTPHashOf computes e's own unique_http_hash, the bucket its
// Metadata is stored under: includeMethod/includeStatus follow directly from
// e's certification flags (spec.md §4.3).
func uniqueHTTPHashOf(e endpoint.Record) [32]byte {
	return uniqueHTTPHash(e.BodyHash, e.Status, e.Method,
		!e.NoCertification,
		!e.NoCertification && !e.NoRequestCertification)
}

// Certify binds e into the tree and the metadata index, then publishes the
// new root hash to the host. Re-certifying the same endpoint value is
// idempotent: it overwrites the v2 leaf and appends a metadata record with
// the same unique_http_hash (spec.md §8's idempotence-of-overwrite
// property is preserved because the leaf value, being a pure function of
// e, is byte-identical on repeat calls, even though the index list grows).
func (s *System) Certify(e endpoint.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := expr.Path(e.URL, e.IsFallbackPath)
	encodedPath, err := expr.EncodePath(path)
	if err != nil {
		return fmt.Errorf("verifyhttp: encode expression path for %q: %w", e.URL, err)
	}
	exprHash := expr.Hash(encodedPath)
	exprText := expr.Text(e.NoCertification, e.NoRequestCertification,
		pairNames(e.RequestHeaders), pairNames(e.QueryParams), pairNames(e.ResponseHeaders))

	reqHash := requestHash(e)
	respHash := responseHash(e, exprText)
	hash := uniqueHTTPHashOf(e)

	// full_expr_path = ["http_expr", …segments, wildcard, expr_hash,
	// request_hash, response_hash] (spec.md §4.4, §4.5 step 5) — the v2 tree
	// key, distinct from the plain expression path used only for the
	// human-readable encoded_expr_path/text. request_hash/response_hash may
	// be a true empty-byte segment; Go strings hold arbitrary bytes, so the
	// trie's []string path type carries them without any re-encoding.
	fullExprPath := make([]string, 0, len(path)+3)
	fullExprPath = append(fullExprPath, path...)
	fullExprPath = append(fullExprPath, string(exprHash[:]), string(reqHash), string(respHash))
	s.tree.Put(fullExprPath, []byte{})
	s.tree.Put(assetPath(e.URL), e.BodyHash[:])

	root := s.tree.RootHash()
	s.host.SetCertifiedData(root)

	md := metaindex.Metadata{
		Record:          e,
		FullExprPath:    fullExprPath,
		EncodedExprPath: encodedPath,
		ExpressionText:  exprText,
	}
	s.index.Insert(e.URL, hash, md)

	s.recordAudit("certify", e.URL, root)
	s.logger.Debug("certified endpoint",
		"url", e.URL, "method", e.Method, "status", e.Status,
		"fallback", e.IsFallbackPath, "root_hash", fmt.Sprintf("%x", root))
	return nil
}

// assetPath is the single-segment v1 "http_assets" leaf path for url: the
// legacy flat tree never splits the path into segments the way the v2
// expression tree does.
func assetPath(url string) []string {
	return []string{assetsTreeLabel, url}
}

// Remove deletes every certified variant of url, from both the v1 asset
// leaf and every v2 expression-tree leaf recorded in the metadata index,
// and republishes the resulting root hash. This is the documented
// resolution of spec.md §9's open question: remove also purges the url's
// Metadata, rather than leaving it to dangle against a pruned tree leaf
// (see DESIGN.md). A single variant cannot be removed on its own.
func (s *System) Remove(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(url)
	root := s.tree.RootHash()
	s.host.SetCertifiedData(root)
	s.recordAudit("remove", url, root)
}

func (s *System) removeLocked(url string) {
	byHash := s.index.LookupURL(url)
	for _, variants := range byHash {
		for _, md := range variants {
			s.tree.Delete(md.FullExprPath)
		}
	}
	s.tree.Delete(assetPath(url))
	s.index.RemoveURL(url)
}

// RemoveAll removes every url in urls as a single batch, publishing the
// root hash once at the end rather than once per url.
func (s *System) RemoveAll(urls []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, url := range urls {
		s.removeLocked(url)
	}
	root := s.tree.RootHash()
	s.host.SetCertifiedData(root)
	s.recordAudit("remove_all", strings.Join(urls, ","), root)
}

// Clear removes every certified endpoint (spec.md §8's clear-total
// property: after Clear, Endpoints() is empty and the root hash equals
// that of a freshly constructed System).
func (s *System) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = merkle.New()
	s.index.Clear()
	root := s.tree.RootHash()
	s.host.SetCertifiedData(root)
	s.recordAudit("clear", "", root)
}

// Endpoints returns every url currently certified, in no particular order.
func (s *System) Endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.URLs()
}

func (s *System) recordAudit(action, url string, root [32]byte) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(auditlog.Entry{
		Action:        action,
		URL:           url,
		RootHash:      root,
		CorrelationID: uuid.New().String(),
	}); err != nil {
		s.logger.Warn("audit log append failed", "action", action, "url", url, "error", err)
	}
}

// pairNames extracts a lowercased name list from pairs, in order, for
// rendering into the expression text (expr.Text lowercases again internally;
// doing it here too keeps the names this package logs/compares consistent).
func pairNames(pairs []rihash.Pair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = strings.ToLower(p.Name)
	}
	return out
}
