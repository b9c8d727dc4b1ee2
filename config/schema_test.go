package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

// The JSON schema is the documented contract for config files; these
// tests keep it in step with what the loader actually accepts.

func schemaLoader(t *testing.T) gojsonschema.JSONLoader {
	t.Helper()
	abs, err := filepath.Abs("schema.json")
	require.NoError(t, err)
	return gojsonschema.NewReferenceLoader("file://" + abs)
}

func TestSchema_AcceptsFullConfig(t *testing.T) {
	abs, err := filepath.Abs(filepath.Join("testdata", "full.json"))
	require.NoError(t, err)

	result, err := gojsonschema.Validate(schemaLoader(t), gojsonschema.NewReferenceLoader("file://"+abs))
	require.NoError(t, err)

	for _, desc := range result.Errors() {
		t.Errorf("schema violation: %s", desc)
	}
	assert.True(t, result.Valid())
}

func TestSchema_RejectsUnknownTopLevelKeys(t *testing.T) {
	doc := gojsonschema.NewStringLoader(`{"nonsense": true}`)
	result, err := gojsonschema.Validate(schemaLoader(t), doc)
	require.NoError(t, err)
	assert.False(t, result.Valid())
}

func TestSchema_RejectsBadEnumValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad log level", `{"logging":{"level":"verbose"}}`},
		{"bad watcher kind", `{"watcher":{"kind":"zmq"}}`},
		{"bad duration", `{"behavior":{"message_delay":"soon"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := gojsonschema.Validate(schemaLoader(t), gojsonschema.NewStringLoader(tt.doc))
			require.NoError(t, err)
			assert.False(t, result.Valid())
		})
	}
}
