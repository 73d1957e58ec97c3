//go:build property
// +build property

package verifyhttp

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nodecert/verifyhttp/pkg/endpoint"
	"github.com/nodecert/verifyhttp/pkg/hostiface"
)

func pathGen() gopter.Gen {
	return gen.OneConstOf("/a", "/b", "/a/b", "/nested/path", "/x-y", "/1", "")
}

// TestPropertyCertifyThenLookupRoundTrips is spec.md §8's round-trip
// property: certifying an endpoint and then asking for its certified
// response always succeeds and reports the same status that was certified.
func TestPropertyCertifyThenLookupRoundTrips(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("certify then GetCertifiedResponse round-trips the status", prop.ForAll(
		func(path string, statusInt int) bool {
			status := uint16(statusInt)
			sys := New(&fakeHost{})
			rec := endpoint.New(path, []byte("body")).Status(status).Build()
			if err := sys.Certify(rec); err != nil {
				return false
			}
			resp, err := sys.GetCertifiedResponse(
				hostiface.Request{Method: "GET"},
				hostiface.Response{Status: status, Body: []byte("body")},
				parsedURL(path), nil)
			if err != nil {
				return false
			}
			return resp.Metadata.Status == status
		},
		pathGen(),
		gen.IntRange(100, 599),
	))

	properties.TestingRun(t)
}

// TestPropertyOverwriteIsIdempotentOnRootHash is spec.md §8's
// idempotence-of-overwrite property: re-certifying the same endpoint value
// any number of times never changes the resulting root hash.
func TestPropertyOverwriteIsIdempotentOnRootHash(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("re-certifying the same record is a root-hash no-op", prop.ForAll(
		func(path string, repeats int) bool {
			sys := New(&fakeHost{})
			rec := endpoint.New(path, []byte("body")).Build()
			if err := sys.Certify(rec); err != nil {
				return false
			}
			want := sys.tree.RootHash()
			for i := 0; i < repeats; i++ {
				if err := sys.Certify(rec); err != nil {
					return false
				}
				if sys.tree.RootHash() != want {
					return false
				}
			}
			return true
		},
		pathGen(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

// TestPropertyClearIsAlwaysTotal is spec.md §8's clear-total property:
// after Clear, no number or combination of prior certifications leaves any
// endpoint behind.
func TestPropertyClearIsAlwaysTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("Clear always empties Endpoints()", prop.ForAll(
		func(paths []string) bool {
			sys := New(&fakeHost{})
			for i, p := range paths {
				rec := endpoint.New(p, []byte(fmt.Sprintf("body-%d", i))).Build()
				if err := sys.Certify(rec); err != nil {
					return false
				}
			}
			sys.Clear()
			return len(sys.Endpoints()) == 0
		},
		gen.SliceOfN(4, pathGen()),
	))

	properties.TestingRun(t)
}

// TestPropertyNoCertificationImpliesNoRequestCertification is spec.md §8's
// flag-monotonicity property, checked across the builder's exposed surface
// rather than just at one fixed example.
func TestPropertyNoCertificationImpliesNoRequestCertification(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("NoCertification always implies NoRequestCertification", prop.ForAll(
		func(path string, setNoRequestCert bool) bool {
			b := endpoint.New(path, nil)
			if setNoRequestCert {
				b.NoRequestCertification()
			}
			b.NoCertification()
			rec := b.Build()
			return rec.NoCertification && rec.NoRequestCertification
		},
		pathGen(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestPropertySubsetMatchNeverPicksAVariantRequiringAbsentNames is spec.md
// §8's subset-match property: GetCertifiedResponse never returns a variant
// whose certified request-header or query-param names aren't all present in
// the live request.
func TestPropertySubsetMatchNeverPicksAVariantRequiringAbsentNames(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("a matched variant's certified names are always a subset of the request's", prop.ForAll(
		func(path string, present bool) bool {
			sys := New(&fakeHost{})
			rec := endpoint.New(path, []byte("b")).RequestHeader("x-required", "v").Build()
			if err := sys.Certify(rec); err != nil {
				return false
			}

			req := hostiface.Request{Method: "GET"}
			if present {
				req.Headers = []hostiface.RequestHeader{{Name: "x-required", Value: "v"}}
			}

			resp, err := sys.GetCertifiedResponse(req, hostiface.Response{Status: 200, Body: []byte("b")}, parsedURL(path), nil)
			if !present {
				return err != nil
			}
			return err == nil && resp != nil
		},
		pathGen(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestPropertyFallbackOnlyMatchesDescendants is spec.md §8's
// fallback-semantics property: a fallback-flagged endpoint certified at
// path answers every descendant request under path, and never a sibling.
func TestPropertyFallbackOnlyMatchesDescendants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("fallback matches its own subtree only", prop.ForAll(
		func(suffix string) bool {
			sys := New(&fakeHost{})
			rec := endpoint.New("/assets", []byte("b")).IsFallbackPath().Build()
			if err := sys.Certify(rec); err != nil {
				return false
			}

			resp := hostiface.Response{Status: 200, Body: []byte("b")}

			descendant := "/assets/" + suffix
			_, err := sys.GetCertifiedResponse(hostiface.Request{Method: "GET"}, resp, parsedURL(descendant), nil)
			if err != nil {
				return false
			}

			_, err = sys.GetCertifiedResponse(hostiface.Request{Method: "GET"}, resp, parsedURL("/other/"+suffix), nil)
			return err != nil
		},
		gen.OneConstOf("logo.png", "css/app.css", "deep/nested/file.js"),
	))

	properties.TestingRun(t)
}
