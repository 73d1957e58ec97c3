package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecert/verifyhttp/pkg/rihash"
)

const validManifest = `
schemaVersion: "1.0.0"
endpoints:
  - url: /hello
    method: GET
    status: 200
    body: "hi"
    responseHeaders:
      content-type: text/plain
  - url: /assets
    isFallbackPath: true
    body: "asset"
`

func TestLoadValidManifest(t *testing.T) {
	m, err := Load([]byte(validManifest))
	require.NoError(t, err)
	require.Len(t, m.Endpoints, 2)
	assert.Equal(t, "/hello", m.Endpoints[0].URL)
	assert.True(t, m.Endpoints[1].IsFallbackPath)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	_, err := Load([]byte(`schemaVersion: "1.0.0"
endpoints:
  - method: GET
`))
	assert.Error(t, err)
}

func TestLoadRejectsIncompatibleSchemaVersion(t *testing.T) {
	_, err := Load([]byte(`schemaVersion: "2.0.0"
endpoints:
  - url: /hello
`))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedSchemaVersion(t *testing.T) {
	_, err := Load([]byte(`schemaVersion: "not-a-version"
endpoints:
  - url: /hello
`))
	assert.Error(t, err)
}

func TestLoadRejectsWrongFieldType(t *testing.T) {
	_, err := Load([]byte(`schemaVersion: "1.0.0"
endpoints:
  - url: /hello
    status: "not-a-number"
`))
	assert.Error(t, err)
}

func TestEndpointBuildSeedsBodyFromInlineField(t *testing.T) {
	e := Endpoint{URL: "/hello", Body: "hi"}
	r, err := e.Build()
	require.NoError(t, err)
	assert.Equal(t, rihash.Sum256([]byte("hi")), r.BodyHash)
}

func TestEndpointBuildExplicitBodyHashOverridesInlineBody(t *testing.T) {
	want := rihash.Sum256([]byte("something-else"))
	e := Endpoint{
		URL:      "/hello",
		Body:     "hi",
		BodyHash: hexEncode(want),
	}
	r, err := e.Build()
	require.NoError(t, err)
	assert.Equal(t, want, r.BodyHash)
}

func TestEndpointBuildRejectsMalformedBodyHash(t *testing.T) {
	e := Endpoint{URL: "/hello", BodyHash: "not-hex"}
	_, err := e.Build()
	assert.Error(t, err)
}

func TestEndpointBuildDefaultsMethodAndStatus(t *testing.T) {
	e := Endpoint{URL: "/hello"}
	r, err := e.Build()
	require.NoError(t, err)
	assert.Equal(t, "GET", r.Method)
	assert.EqualValues(t, 200, r.Status)
}

func TestBuildAllPreservesDeclarationOrder(t *testing.T) {
	m, err := Load([]byte(validManifest))
	require.NoError(t, err)

	records, err := m.BuildAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "/hello", records[0].URL)
	assert.Equal(t, "/assets", records[1].URL)
	assert.True(t, records[1].IsFallbackPath)
}

func hexEncode(h [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(h)*2)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}
