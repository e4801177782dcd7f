package template

import (
	"testing"

	"coachreach/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_FullContext(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		ctx      map[string]string
		expected string
	}{
		{
			name: "all placeholders substituted",
			tmpl: "Hi {{recipientName}}, join {{eventName}} on {{eventDate}} at {{eventLocation}}. Reply: {{responseLink}}",
			ctx: map[string]string{
				"recipientName": "Jordan",
				"eventName":     "Spring Clinic",
				"eventDate":     "2026-04-12",
				"eventLocation": "Court 3",
				"responseLink":  "https://coachreach.example/r/abc",
			},
			expected: "Hi Jordan, join Spring Clinic on 2026-04-12 at Court 3. Reply: https://coachreach.example/r/abc",
		},
		{
			name:     "no placeholders",
			tmpl:     "Plain text, nothing to fill.",
			ctx:      map[string]string{},
			expected: "Plain text, nothing to fill.",
		},
		{
			name:     "repeated placeholder",
			tmpl:     "{{name}} and {{name}} again",
			ctx:      map[string]string{"name": "Sam"},
			expected: "Sam and Sam again",
		},
		{
			name:     "whitespace inside marker",
			tmpl:     "Hello {{ name }}",
			ctx:      map[string]string{"name": "Sam"},
			expected: "Hello Sam",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(tt.tmpl, tt.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
			assert.False(t, HasMarkers(out), "rendered output must be placeholder-free")
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	tmpl := "Hi {{a}}, see {{b}}"
	ctx := map[string]string{"a": "x", "b": "y"}

	first, err := Render(tmpl, ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Render(tmpl, ctx)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRender_MissingPlaceholder(t *testing.T) {
	out, err := Render("Hi {{name}}, event {{eventName}}", map[string]string{"name": "Sam"})

	require.Error(t, err)
	assert.Empty(t, out, "partial rendering is never returned")

	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeMissingPlaceholder, code)
	assert.Contains(t, err.(*errors.StandardError).Details, "eventName")
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders("{{b}} then {{a}} then {{b}}")
	assert.Equal(t, []string{"b", "a"}, names)
}

func TestValidate(t *testing.T) {
	err := Validate("Hi {{name}}, {{link}}", []string{"name", "link", "extra"})
	assert.NoError(t, err)

	err = Validate("Hi {{name}}, {{link}}", []string{"name"})
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeMissingPlaceholder, code)
}
