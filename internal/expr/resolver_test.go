package expr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/arbor/pkg/api"
)

func testResolver() *Resolver {
	ctx := api.NewRunContext(map[string]any{
		"order_id": "ord-42",
		"amount":   125.5,
	})
	ctx.Outputs["fetch"] = map[string]any{
		"status_code": float64(200),
		"body": map[string]any{
			"customer": map[string]any{"tier": "gold"},
			"total":    99.9,
		},
		"ok": true,
	}
	r := New(ctx)
	r.Now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}
	return r
}

func TestResolve_PlainStringPassesThrough(t *testing.T) {
	r := testResolver()
	v, err := r.Resolve("no templates here")
	require.NoError(t, err)
	assert.Equal(t, "no templates here", v)
}

func TestResolve_WholeExpressionPreservesType(t *testing.T) {
	r := testResolver()

	v, err := r.Resolve("{{fetch.status_code}}")
	require.NoError(t, err)
	assert.Equal(t, float64(200), v)

	v, err = r.Resolve("{{fetch.ok}}")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = r.Resolve("{{fetch.body}}")
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, v)
}

func TestResolve_Interpolation(t *testing.T) {
	r := testResolver()
	v, err := r.Resolve("order {{trigger.order_id}} came back {{fetch.status_code}}")
	require.NoError(t, err)
	assert.Equal(t, "order ord-42 came back 200", v)
}

func TestResolve_NestedPath(t *testing.T) {
	r := testResolver()
	v, err := r.Resolve("{{fetch.body.customer.tier}}")
	require.NoError(t, err)
	assert.Equal(t, "gold", v)
}

func TestResolve_TriggerReference(t *testing.T) {
	r := testResolver()
	v, err := r.Resolve("{{trigger.amount}}")
	require.NoError(t, err)
	assert.Equal(t, 125.5, v)
}

func TestResolve_Builtins(t *testing.T) {
	r := testResolver()

	v, err := r.Resolve("{{now()}}")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14T09:26:53Z", v)

	v, err = r.Resolve("{{string(fetch.status_code)}}")
	require.NoError(t, err)
	assert.Equal(t, "200", v)

	_, err = r.Resolve("{{number(trigger.order_id)}}")
	require.Error(t, err)

	v, err = r.Resolve("{{number(fetch.body.total)}}")
	require.NoError(t, err)
	assert.Equal(t, 99.9, v)
}

func TestResolve_UnresolvedReference(t *testing.T) {
	r := testResolver()
	_, err := r.Resolve("{{ghost.value}}")
	var re *api.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.CodeUnresolvedReference, re.Code)
}

func TestResolve_TypeMismatchOnScalarWalk(t *testing.T) {
	r := testResolver()
	_, err := r.Resolve("{{fetch.ok.deeper}}")
	var re *api.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, api.CodeTypeMismatch, re.Code)
}

func TestResolve_LenientAbsentNodeIsNil(t *testing.T) {
	r := testResolver()
	r.Lenient = true
	v, err := r.Resolve("{{ghost.value}}")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestResolveConfig_DeepResolution(t *testing.T) {
	r := testResolver()
	cfg, err := r.ResolveConfig(map[string]any{
		"url": "https://api.example.com/orders/{{trigger.order_id}}",
		"payload": map[string]any{
			"tier":  "{{fetch.body.customer.tier}}",
			"items": []any{"{{fetch.status_code}}", "static"},
		},
		"limit": 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/orders/ord-42", cfg["url"])
	payload := cfg["payload"].(map[string]any)
	assert.Equal(t, "gold", payload["tier"])
	assert.Equal(t, []any{float64(200), "static"}, payload["items"])
	assert.Equal(t, 10, cfg["limit"])
}

func TestEvalGuard(t *testing.T) {
	r := testResolver()

	cases := []struct {
		guard string
		want  bool
	}{
		{`{{fetch.body.customer.tier}} == "gold"`, true},
		{`{{fetch.body.customer.tier}} == "silver"`, false},
		{`{{fetch.body.customer.tier}} != "silver"`, true},
		{`{{fetch.status_code}} == 200`, true},
		{`{{fetch.ok}}`, true},
		{`fetch.ok`, true},
		{`{{fetch.status_code}}`, true},
		{`true`, true},
		{`false`, false},
		{`"yes" == "yes"`, true},
	}
	for _, tc := range cases {
		got, err := r.EvalGuard(tc.guard)
		require.NoError(t, err, "guard %q", tc.guard)
		assert.Equal(t, tc.want, got, "guard %q", tc.guard)
	}
}

func TestEvalGuard_UnresolvedReferenceFails(t *testing.T) {
	r := testResolver()
	_, err := r.EvalGuard(`{{ghost.flag}} == "x"`)
	require.Error(t, err)
}
