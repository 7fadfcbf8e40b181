package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	phone := map[string]any{
		"confidence": 0.82,
		"label":      "cell phone",
		"count":      float64(2),
		"held":       true,
		"box":        map[string]any{"w": 120.0, "h": 240.0},
	}

	cases := []struct {
		name string
		expr string
		want bool
	}{
		{"gte true", "confidence >= 0.6", true},
		{"gte false", "confidence >= 0.9", false},
		{"lt", "confidence < 1", true},
		{"lte equal", "count <= 2", true},
		{"gt int literal", "count > 1", true},
		{"eq string", `label == "cell phone"`, true},
		{"single quotes", `label == 'cell phone'`, true},
		{"neq string", `label != "remote"`, true},
		{"eq bool", "held == true", true},
		{"eq bool mismatch", "held == false", false},
		{"contains", `label contains "phone"`, true},
		{"contains miss", `label contains "tablet"`, false},
		{"matches", `label matches "^cell\\s"`, true},
		{"nested field", "box.h > box.w", true},
		{"and short", "confidence > 0.5 AND held == true", true},
		{"and fails", "confidence > 0.5 AND held == false", false},
		{"or", "confidence > 0.99 OR count == 2", true},
		{"not", "NOT held == false", true},
		{"lower keywords", "confidence > 0.5 and not (label == 'remote' or count > 5)", true},
		{"precedence", "count == 1 OR count == 2 AND held == true", true},
		{"parens", "(count == 1 OR count == 2) AND held == false", false},
		{"negative literal", "confidence > -1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Compile(tc.expr)
			require.NoError(t, err)
			got, err := f.Match(phone)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestShortCircuitSkipsMissingFields(t *testing.T) {
	f, err := Compile("confidence > 0.5 OR missing == 1")
	require.NoError(t, err)
	ok, err := f.Match(map[string]any{"confidence": 0.7})
	require.NoError(t, err)
	assert.True(t, ok)

	f, err = Compile("confidence > 0.9 AND missing == 1")
	require.NoError(t, err)
	ok, err = f.Match(map[string]any{"confidence": 0.7})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchErrors(t *testing.T) {
	cases := []struct {
		name string
		expr string
		data map[string]any
	}{
		{"missing field", "confidence > 0.5", map[string]any{}},
		{"nested through scalar", "label.x == 1", map[string]any{"label": "phone"}},
		{"ordering on string", "label > 1", map[string]any{"label": "phone"}},
		{"contains on number", `confidence contains "8"`, map[string]any{"confidence": 0.8}},
		{"matches on number", `confidence matches "8"`, map[string]any{"confidence": 0.8}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Compile(tc.expr)
			require.NoError(t, err)
			_, err = f.Match(tc.data)
			assert.Error(t, err)
		})
	}

	f, err := Compile("confidence > 0.5")
	require.NoError(t, err)
	_, err = f.Match(nil)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"confidence",
		"confidence >",
		"confidence = 1",
		"confidence ! 1",
		"(confidence > 1",
		"confidence > 1)",
		`label == "open`,
		"confidence > 1 AND",
		"confidence > 1.2.3",
		`label matches "("`,
		"label matches other",
		"confidence ~ 1",
	} {
		_, err := Compile(expr)
		assert.Error(t, err, expr)
	}
}

func TestSet(t *testing.T) {
	set, err := CompileSet(map[string]string{
		"PHONE_DETECTED": "confidence >= 0.6",
	})
	require.NoError(t, err)

	ok, err := set.Match("PHONE_DETECTED", map[string]any{"confidence": 0.4})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = set.Match("SLEEPING", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, "confidence >= 0.6", set["PHONE_DETECTED"].String())

	_, err = CompileSet(map[string]string{"A": "x >", "B": "y = 1", "C": "z > 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A:")
	assert.Contains(t, err.Error(), "B:")
	assert.NotContains(t, err.Error(), "C:")
}
