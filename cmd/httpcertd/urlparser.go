package main

import (
	"github.com/nodecert/verifyhttp/pkg/endpoint"
	"github.com/nodecert/verifyhttp/pkg/hostiface"
)

// netURLParser adapts pkg/endpoint's URL-to-path reduction to the
// hostiface.URLParser contract, so the demo server's incoming requests are
// parsed by exactly the same rule Certify used to derive the url it stored.
type netURLParser struct{}

func (netURLParser) Parse(rawURL string) (hostiface.ParsedURL, error) {
	decoded, original := endpoint.ReducePath(rawURL)
	return hostiface.ParsedURL{Path: decoded, OriginalPath: original}, nil
}
