package main

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// demoHost is a minimal, in-process stand-in for the platform collaborator
// modeled by hostiface.HostInterface: it has no consensus, no signing key,
// and no network presence. It exists only so cmd/httpcertd can exercise
// verifyhttp end-to-end; a real deployment replaces it with whatever
// runtime actually owns certified-data and certificate issuance (spec.md §1
// places that platform boundary out of scope for this library).
type demoHost struct {
	mu       sync.RWMutex
	rootHash [32]byte
	hasRoot  bool
}

func newDemoHost() *demoHost {
	return &demoHost{}
}

// demoCertificate is the CBOR-encoded stand-in "certificate" this demo host
// hands back: just the root hash it was last told to certify, tagged so a
// reader of a captured response can tell it apart from a real signed
// certificate.
type demoCertificate struct {
	_        struct{} `cbor:",toarray"`
	Kind     string
	RootHash []byte
}

func (h *demoHost) SetCertifiedData(rootHash [32]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rootHash = rootHash
	h.hasRoot = true
}

func (h *demoHost) GetCertificate() ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasRoot {
		return nil, false
	}
	cert := demoCertificate{Kind: "demo-unsigned", RootHash: append([]byte(nil), h.rootHash[:]...)}
	encoded, err := cbor.Marshal(cert)
	if err != nil {
		return nil, false
	}
	return encoded, true
}
