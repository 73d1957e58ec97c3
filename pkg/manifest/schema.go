// Package manifest loads a declarative YAML/JSON description of the
// endpoints a node wants to certify (SPEC_FULL.md §4), validates it against
// a JSON Schema, gates its schemaVersion against a supported semver range,
// and turns each entry into pkg/endpoint.Record values ready for
// verifyhttp.Certify. This is additive only: a convenience loader in front
// of the existing builder, never a second certification mechanism.
package manifest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/nodecert/verifyhttp/pkg/endpoint"
	"github.com/nodecert/verifyhttp/pkg/rihash"
)

// supportedRange is the semver constraint this loader's schema understands.
// A manifest declaring an incompatible schemaVersion is rejected before any
// endpoint is built, the same compatibility gate pkg/trust/pack_loader.go
// uses for pack-format versions in the teacher corpus.
const supportedRange = "^1.0.0"

// schemaJSON is the JSON Schema every manifest document is validated
// against before it is even unmarshaled into Go structs.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["schemaVersion", "endpoints"],
  "properties": {
    "schemaVersion": {"type": "string"},
    "endpoints": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["url"],
        "properties": {
          "url": {"type": "string"},
          "method": {"type": "string"},
          "status": {"type": "integer", "minimum": 100, "maximum": 599},
          "body": {"type": "string"},
          "bodyHash": {"type": "string"},
          "noCertification": {"type": "boolean"},
          "noRequestCertification": {"type": "boolean"},
          "isFallbackPath": {"type": "boolean"},
          "requestHeaders": {"type": "object"},
          "queryParams": {"type": "object"},
          "responseHeaders": {"type": "object"}
        }
      }
    }
  }
}`

// Endpoint is one manifest entry, the YAML/JSON shape of a certified route
// before it is turned into an endpoint.Record.
type Endpoint struct {
	URL                    string            `yaml:"url" json:"url"`
	Method                 string            `yaml:"method" json:"method"`
	Status                 uint16            `yaml:"status" json:"status"`
	Body                   string            `yaml:"body" json:"body"`
	BodyHash               string            `yaml:"bodyHash" json:"bodyHash"`
	NoCertification        bool              `yaml:"noCertification" json:"noCertification"`
	NoRequestCertification bool              `yaml:"noRequestCertification" json:"noRequestCertification"`
	IsFallbackPath         bool              `yaml:"isFallbackPath" json:"isFallbackPath"`
	RequestHeaders         map[string]string `yaml:"requestHeaders" json:"requestHeaders"`
	QueryParams            map[string]string `yaml:"queryParams" json:"queryParams"`
	ResponseHeaders        map[string]string `yaml:"responseHeaders" json:"responseHeaders"`
}

// Manifest is the top-level document.
type Manifest struct {
	SchemaVersion string     `yaml:"schemaVersion" json:"schemaVersion"`
	Endpoints     []Endpoint `yaml:"endpoints" json:"endpoints"`
}

var compiledSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("manifest.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		panic(fmt.Sprintf("manifest: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("manifest.json")
	if err != nil {
		panic(fmt.Sprintf("manifest: embedded schema failed to compile: %v", err))
	}
	compiledSchema = schema
}

// Load parses yamlOrJSON as a manifest document, validates it against the
// embedded JSON Schema, checks its schemaVersion compatibility, and returns
// the decoded Manifest.
func Load(yamlOrJSON []byte) (*Manifest, error) {
	var generic interface{}
	if err := yaml.Unmarshal(yamlOrJSON, &generic); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	// jsonschema validates against decoded JSON-shaped values (map[string]
	// interface{}), so round-trip through JSON to normalize YAML's richer
	// scalar types (e.g. map[interface{}]interface{}) first.
	normalized, err := toJSONValue(generic)
	if err != nil {
		return nil, fmt.Errorf("manifest: normalize: %w", err)
	}
	if err := compiledSchema.Validate(normalized); err != nil {
		return nil, fmt.Errorf("manifest: schema validation failed: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(yamlOrJSON, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}

	if err := checkVersion(m.SchemaVersion); err != nil {
		return nil, err
	}
	return &m, nil
}

func toJSONValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("manifest: invalid schemaVersion %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(supportedRange)
	if err != nil {
		// supportedRange is a compile-time constant; a parse failure here
		// is a defect in this package, not in caller input.
		panic(fmt.Sprintf("manifest: invalid built-in constraint %q: %v", supportedRange, err))
	}
	if !constraint.Check(v) {
		return fmt.Errorf("manifest: schemaVersion %s does not satisfy %s", version, supportedRange)
	}
	return nil
}

// Build turns one manifest Endpoint into an endpoint.Record, ready for
// verifyhttp.Certify.
func (e Endpoint) Build() (endpoint.Record, error) {
	var body []byte
	if e.Body != "" {
		body = []byte(e.Body)
	}
	b := endpoint.New(e.URL, body)
	if e.BodyHash != "" {
		h, err := decodeBodyHash(e.BodyHash)
		if err != nil {
			return endpoint.Record{}, fmt.Errorf("manifest: endpoint %q: %w", e.URL, err)
		}
		b.Hash(h)
	}
	if e.Method != "" {
		b.Method(e.Method)
	}
	if e.Status != 0 {
		b.Status(e.Status)
	}
	b.RequestHeaders(toPairs(e.RequestHeaders))
	b.QueryParams(toPairs(e.QueryParams))
	b.ResponseHeaders(toPairs(e.ResponseHeaders))
	if e.IsFallbackPath {
		b.IsFallbackPath()
	}
	if e.NoRequestCertification {
		b.NoRequestCertification()
	}
	if e.NoCertification {
		b.NoCertification()
	}
	return b.Build(), nil
}

func decodeBodyHash(hexHash string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		return out, fmt.Errorf("bodyHash must be hex-encoded: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("bodyHash must decode to 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func toPairs(m map[string]string) []rihash.Pair {
	if len(m) == 0 {
		return nil
	}
	out := make([]rihash.Pair, 0, len(m))
	for k, v := range m {
		out = append(out, rihash.Pair{Name: k, Value: v})
	}
	return out
}

// BuildAll builds every endpoint in the manifest in declaration order.
func (m *Manifest) BuildAll() ([]endpoint.Record, error) {
	out := make([]endpoint.Record, 0, len(m.Endpoints))
	for _, e := range m.Endpoints {
		r, err := e.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
