// Command httpcertd is a small demonstration server exercising the whole
// verifyhttp stack end to end: it loads a bulk endpoint manifest, certifies
// every entry against an in-process demo host, serves the certified
// endpoints over HTTP with IC-Certificate / IC-CertificateExpression
// headers attached, and exposes a rate-limited admin route to recertify
// from the manifest on demand. It is explicitly not part of the library's
// certified semantics (spec.md §1 places any hosting shell out of scope);
// it exists to prove the library out, the way apps/helm-node/main.go
// exercises the teacher's core packages.
package main

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/nodecert/verifyhttp"
	"github.com/nodecert/verifyhttp/pkg/auditlog"
	"github.com/nodecert/verifyhttp/pkg/config"
	"github.com/nodecert/verifyhttp/pkg/endpoint"
	"github.com/nodecert/verifyhttp/pkg/hostiface"
	"github.com/nodecert/verifyhttp/pkg/manifest"
	"github.com/nodecert/verifyhttp/pkg/rihash"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entry point: it returns a process exit code instead
// of calling os.Exit itself, the same shape apps/helm-node/main.go uses.
func Run(args []string, stdout, stderr *os.File) int {
	logger := slog.New(slog.NewTextHandler(stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	server, err := newServer(cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}

	logger.Info("httpcertd listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.routes()); err != nil {
		logger.Error("server exited", "error", err)
		return 1
	}
	return 0
}

// httpServer wires the certification engine, the demo host, and the body
// store the manifest's inline bodies populate, behind an http.Handler.
type httpServer struct {
	cfg     *config.Config
	logger  *slog.Logger
	sys     *verifyhttp.System
	host    *demoHost
	parser  hostiface.URLParser
	bodies  map[string][]byte
	records map[string]endpoint.Record
	limiter *adminRateLimiter
}

func newServer(cfg *config.Config, logger *slog.Logger) (*httpServer, error) {
	host := newDemoHost()

	var opts []verifyhttp.Option
	if cfg.AuditLogEnabled {
		opts = append(opts, verifyhttp.WithAuditLog(auditlog.New()))
	}
	opts = append(opts, verifyhttp.WithLogger(logger))
	sys := verifyhttp.New(host, opts...)

	s := &httpServer{
		cfg:     cfg,
		logger:  logger,
		sys:     sys,
		host:    host,
		parser:  netURLParser{},
		bodies:  make(map[string][]byte),
		records: make(map[string]endpoint.Record),
		limiter: newAdminRateLimiter(cfg.AdminRPS, cfg.AdminBurst),
	}

	if err := s.certifyFromManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

// certifyFromManifest (re)loads the manifest file and certifies every entry
// it declares, replacing whatever bodies were previously tracked for those
// urls.
func (s *httpServer) certifyFromManifest() error {
	raw, err := os.ReadFile(s.cfg.ManifestPath)
	if err != nil {
		return err
	}
	m, err := manifest.Load(raw)
	if err != nil {
		return err
	}
	for _, e := range m.Endpoints {
		record, err := e.Build()
		if err != nil {
			return err
		}
		if err := s.sys.Certify(record); err != nil {
			return err
		}
		s.records[record.URL] = record
		if e.Body != "" {
			s.bodies[record.URL] = []byte(e.Body)
		}
	}
	s.logger.Info("certified manifest", "path", s.cfg.ManifestPath, "endpoints", len(m.Endpoints))
	return nil
}

func (s *httpServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleCertifiedRequest)
	mux.Handle("/admin/recertify", s.limiter.Middleware(http.HandlerFunc(s.handleRecertify)))
	return mux
}

// handleCertifiedRequest answers any path with its certified body (if one
// was registered) plus the IC-Certificate and IC-CertificateExpression
// headers from a fresh verifyhttp.GetCertifiedResponse lookup.
func (s *httpServer) handleCertifiedRequest(w http.ResponseWriter, r *http.Request) {
	parsed, err := s.parser.Parse(r.URL.RequestURI())
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	req := hostiface.Request{
		Method:      r.Method,
		RawURL:      r.URL.RequestURI(),
		QueryParams: toHeaderPairs(r.URL.Query()),
		Headers:     toHeaderSlicePairs(r.Header),
	}

	// The lookup needs the response it's about to serve as an input
	// (spec.md §4.3's unique_http_hash buckets on body/status), so the
	// response this handler is going to send is assembled from whatever
	// was recorded at certify time, before GetCertifiedResponse is called.
	rec, ok := s.lookupRecord(parsed.Path)
	if !ok {
		s.logger.Warn("no certified response", "path", parsed.Path)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	// The body served for a fallback match is the fallback endpoint's own
	// registered body (rec.URL), not whatever happens to be registered
	// under the literal requested path — there usually is nothing there.
	body := s.bodies[rec.URL]
	resp := hostiface.Response{
		Status:  rec.Status,
		Headers: toHostifaceHeaders(rec.ResponseHeaders),
		Body:    body,
	}

	cert, err := s.sys.GetCertifiedResponse(req, resp, parsed, nil)
	if err != nil {
		s.logger.Warn("no certified response", "path", parsed.Path, "error", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("IC-CertificateExpression", cert.Metadata.ExpressionText)
	w.Header().Set("IC-Certificate", encodeCertificateHeader(cert.Certificate, cert.WitnessCBOR, cert.Metadata.EncodedExprPath))
	for _, h := range cert.Metadata.ResponseHeaders {
		w.Header().Set(h.Name, h.Value)
	}

	w.WriteHeader(int(cert.Metadata.Status))
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// lookupRecord finds the manifest-declared record this response should be
// built from: an exact match on path, or else the nearest registered
// fallback ancestor, mirroring the tree-lookup fallback walk
// verifyhttp.GetCertifiedResponse performs itself.
func (s *httpServer) lookupRecord(path string) (endpoint.Record, bool) {
	if rec, ok := s.records[path]; ok {
		return rec, true
	}
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i > 0; i-- {
		prefix := strings.Join(segments[:i], "/")
		if rec, ok := s.records[prefix]; ok && rec.IsFallbackPath {
			return rec, true
		}
	}
	if rec, ok := s.records[""]; ok && rec.IsFallbackPath {
		return rec, true
	}
	return endpoint.Record{}, false
}

// handleRecertify re-reads the manifest file and re-certifies every entry,
// letting an operator push an updated certified surface without a restart.
func (s *httpServer) handleRecertify(w http.ResponseWriter, r *http.Request) {
	if err := s.certifyFromManifest(); err != nil {
		s.logger.Error("recertify failed", "error", err)
		http.Error(w, "recertify failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// encodeCertificateHeader renders the IC-Certificate header's v2 structured
// form (spec.md §4.6): "certificate=:...:, tree=:...:, version=2,
// expr_path=:...:", base64-encoding each binary component.
func encodeCertificateHeader(certificate, tree, encodedExprPath []byte) string {
	return "certificate=:" + base64.StdEncoding.EncodeToString(certificate) +
		":, tree=:" + base64.StdEncoding.EncodeToString(tree) +
		":, version=2, expr_path=:" + base64.StdEncoding.EncodeToString(encodedExprPath) + ":"
}

func toHeaderPairs(values map[string][]string) []hostiface.RequestHeader {
	out := make([]hostiface.RequestHeader, 0, len(values))
	for name, vs := range values {
		for _, v := range vs {
			out = append(out, hostiface.RequestHeader{Name: name, Value: v})
		}
	}
	return out
}

func toHeaderSlicePairs(h http.Header) []hostiface.RequestHeader {
	out := make([]hostiface.RequestHeader, 0, len(h))
	for name, vs := range h {
		for _, v := range vs {
			out = append(out, hostiface.RequestHeader{Name: name, Value: v})
		}
	}
	return out
}

// toHostifaceHeaders adapts rihash.Pair response headers (from a certified
// endpoint.Record) to the hostiface.RequestHeader shape GetCertifiedResponse
// expects its Response.Headers in.
func toHostifaceHeaders(pairs []rihash.Pair) []hostiface.RequestHeader {
	out := make([]hostiface.RequestHeader, len(pairs))
	for i, p := range pairs {
		out[i] = hostiface.RequestHeader{Name: p.Name, Value: p.Value}
	}
	return out
}
