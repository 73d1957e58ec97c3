package expr

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentsEmptyURLIsSingleEmptySegment(t *testing.T) {
	assert.Equal(t, []string{""}, Segments(""))
}

func TestSegmentsSplitsOnSlashPreservingEmpties(t *testing.T) {
	assert.Equal(t, []string{"", "a", "", "b"}, Segments("/a//b"))
}

func TestPathAppendsExactSuffixByDefault(t *testing.T) {
	path := Path("/hello", false)
	assert.Equal(t, []string{"http_expr", "", "hello", "<$>"}, path)
}

func TestPathAppendsWildcardSuffixForFallback(t *testing.T) {
	path := Path("/assets", true)
	assert.Equal(t, []string{"http_expr", "", "assets", "<*>"}, path)
}

func TestEncodePathRoundTripsThroughCBOR(t *testing.T) {
	path := Path("/hello", false)
	encoded, err := EncodePath(path)
	require.NoError(t, err)

	var decoded []string
	require.NoError(t, cbor.Unmarshal(encoded, &decoded))
	assert.Equal(t, path, decoded)
}

func TestHashIsDeterministic(t *testing.T) {
	encoded, err := EncodePath(Path("/hello", false))
	require.NoError(t, err)
	assert.Equal(t, Hash(encoded), Hash(encoded))
}

func TestHashDiffersForDifferentPaths(t *testing.T) {
	a, err := EncodePath(Path("/hello", false))
	require.NoError(t, err)
	b, err := EncodePath(Path("/goodbye", false))
	require.NoError(t, err)
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestTextFullCertificationMentionsRequestAndResponseHeaders(t *testing.T) {
	text := Text(false, false, []string{"Accept-Language"}, []string{"q"}, []string{"Content-Type"})
	assert.Contains(t, text, "request_certification")
	assert.Contains(t, text, `"accept-language"`)
	assert.Contains(t, text, `"q"`)
	assert.Contains(t, text, `"content-type"`)
}

func TestTextNoRequestCertificationIsResponseOnly(t *testing.T) {
	text := Text(false, true, nil, nil, []string{"Content-Type"})
	assert.Contains(t, text, "no_request_certification")
	assert.Contains(t, text, `"content-type"`)
	assert.NotContains(t, text, "RequestCertification{")
}

func TestTextNoCertificationIsEmptyCertification(t *testing.T) {
	text := Text(true, false, []string{"should-be-ignored"}, nil, nil)
	assert.Contains(t, text, "no_certification")
	assert.NotContains(t, text, "should-be-ignored")
}

func TestTextRendersEmptyNameListAsEmptyBrackets(t *testing.T) {
	text := Text(false, false, nil, nil, nil)
	assert.Contains(t, text, "certified_request_headers: []")
	assert.Contains(t, text, "certified_query_parameters: []")
	assert.Contains(t, text, "certified_response_headers: []")
}

func TestTextHasNoRunsOfWhitespace(t *testing.T) {
	text := Text(false, false, []string{"a"}, []string{"b"}, []string{"c"})
	for i := 0; i+1 < len(text); i++ {
		if text[i] == ' ' {
			assert.NotEqual(t, byte(' '), text[i+1], "text must not contain two consecutive spaces")
		}
	}
}
