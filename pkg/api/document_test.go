package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
  "name": "order-enrichment",
  "description": "enrich incoming orders",
  "variables": {"region": "eu-west"},
  "nodes": [
    {"id": "in", "type": "trigger"},
    {"id": "fetch", "type": "tool", "config": {"url": "https://api.example.com/{{in.id}}"}},
    {"id": "route", "type": "branch"},
    {"id": "store", "type": "data-sink", "retry": {"max_attempts": 5, "backoff": "exponential", "initial_delay": 1000000000}}
  ],
  "edges": [
    {"from": "in", "to": "fetch"},
    {"from": "fetch", "to": "route"},
    {"from": "route", "to": "store", "guard": "{{route.ok}} == true"}
  ]
}`

func TestParseFlowDocument(t *testing.T) {
	def, err := ParseFlowDocument([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, "order-enrichment", def.Name)
	assert.Equal(t, "eu-west", def.Variables["region"])
	require.Len(t, def.Nodes, 4)
	assert.Equal(t, KindTrigger, def.Nodes[0].Kind)
	assert.Equal(t, "https://api.example.com/{{in.id}}", def.Nodes[1].Config["url"])

	store, ok := def.Node("store")
	require.True(t, ok)
	require.NotNil(t, store.Retry)
	assert.Equal(t, 5, store.Retry.MaxAttempts)
	assert.Equal(t, BackoffExponential, store.Retry.Backoff)
	assert.Equal(t, time.Second, store.Retry.InitialDelay)

	require.Len(t, def.Edges, 3)
	assert.Equal(t, "{{route.ok}} == true", def.Edges[2].Guard)
}

func TestParseFlowDocument_Errors(t *testing.T) {
	_, err := ParseFlowDocument([]byte("{not json"))
	assert.Error(t, err)

	_, err = ParseFlowDocument([]byte(`{"nodes": []}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, CodeInvalidDefinition, ve.Code)
}

func TestEncodeFlowDocument_RoundTrip(t *testing.T) {
	def, err := ParseFlowDocument([]byte(sampleDocument))
	require.NoError(t, err)

	data, err := EncodeFlowDocument(def)
	require.NoError(t, err)

	back, err := ParseFlowDocument(data)
	require.NoError(t, err)
	assert.Equal(t, def, back)
}

func TestVersion_StableUnderReordering(t *testing.T) {
	def, err := ParseFlowDocument([]byte(sampleDocument))
	require.NoError(t, err)

	shuffled := def
	shuffled.Nodes = []NodeSpec{def.Nodes[3], def.Nodes[1], def.Nodes[0], def.Nodes[2]}
	shuffled.Edges = []EdgeSpec{def.Edges[2], def.Edges[0], def.Edges[1]}

	assert.NotEmpty(t, def.Version())
	assert.Equal(t, def.Version(), shuffled.Version(), "declaration order does not change the version")
}

func TestVersion_ChangesWithContent(t *testing.T) {
	def, err := ParseFlowDocument([]byte(sampleDocument))
	require.NoError(t, err)
	v1 := def.Version()

	changed := def
	changed.Nodes = append([]NodeSpec(nil), def.Nodes...)
	changed.Nodes[1].Config = map[string]any{"url": "https://api.example.com/v2/{{in.id}}"}
	assert.NotEqual(t, v1, changed.Version())

	renamed := def
	renamed.Name = "order-enrichment-v2"
	assert.NotEqual(t, v1, renamed.Version())
}
