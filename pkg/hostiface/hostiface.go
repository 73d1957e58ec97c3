// Package hostiface describes the external collaborators this module treats
// as platform-adjacent rather than implementing itself: the host that holds
// the certified-data root and signs certificates over it, and the shapes of
// the HTTP request/response the library is handed (spec.md §6). These are
// small, dependency-free contracts, following the pairing style of the
// teacher corpus's own interface packages.
package hostiface

// HostInterface is the boundary between this library and whatever runtime
// actually owns the certified-data root and the signing key behind a
// certificate: on every state change the library calls SetCertifiedData
// with its new root hash, and to answer a request it calls GetCertificate
// to fetch the opaque, host-signed certificate bytes covering that root.
type HostInterface interface {
	// SetCertifiedData publishes rootHash as the value the host's next
	// certificate will commit to. Must be called after every Put/Delete
	// that changes the tree's root hash, before the corresponding
	// GetCertificate call can return a certificate covering it.
	SetCertifiedData(rootHash [32]byte)

	// GetCertificate returns the current certificate, if one is available.
	// A host returns (nil, false) before its first certified-data update
	// has propagated into a signed certificate — the caller surfaces this
	// as ErrNoRootCertificate.
	GetCertificate() (certificate []byte, ok bool)
}

// RequestHeader is one (name, value) pair as the library receives it from
// the incoming request, before any normalization.
type RequestHeader struct {
	Name  string
	Value string
}

// Request is the subset of an incoming HTTP request this library needs to
// resolve a certified response: method, raw (not reconstructed) URL, query
// parameters in their original order, and headers in their original order.
// The library never reads a body; request bodies are never certified.
type Request struct {
	Method      string
	RawURL      string
	QueryParams []RequestHeader
	Headers     []RequestHeader
}

// Response is the subset of an outgoing HTTP response this library needs to
// resolve a certified response variant: the status code and headers it is
// about to send, and the body bytes (or, if the caller already has the hash
// and would rather not pass the bytes, a response_hash_override supplied
// alongside — see System.GetCertifiedResponse). get_certificate's lookup
// needs the response as an input because the MetadataIndex buckets variants
// by a hash that is partly a function of it (spec.md §4.3, §4.7).
type Response struct {
	Status  uint16
	Headers []RequestHeader
	Body    []byte
}

// ParsedURL is the result of the URL-parsing collaborator this library
// depends on but does not implement: a path (percent-decoded per spec.md
// §4.1) and its original, possibly percent-encoded form, since the v1
// get_certificate lookup keys by the original form (spec.md §9's documented
// percent-decoding asymmetry) while certify stores the decoded form.
type ParsedURL struct {
	Path         string
	OriginalPath string
}

// URLParser is the pluggable collaborator that turns a raw URL string into
// a ParsedURL; library callers supply their own (net/url-backed, typically)
// implementation.
type URLParser interface {
	Parse(rawURL string) (ParsedURL, error)
}
