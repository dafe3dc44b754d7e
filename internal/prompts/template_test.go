package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlane/promptlib/internal/models"
)

func TestRender(t *testing.T) {
	out, err := Render("hello {{name}}, welcome to {{place}}", map[string]string{
		"name":  "ada",
		"place": "the library",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello ada, welcome to the library", out)
}

func TestRenderMissingVariable(t *testing.T) {
	_, err := Render("hello {{name}}", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestRenderNoPlaceholders(t *testing.T) {
	out, err := Render("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestRenderReportsAllMissingVariables(t *testing.T) {
	_, err := Render("{{a}} {{b}} {{a}}", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a, b")
}

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("{{a}} and {{b}} and {{a}} again")
	assert.Equal(t, []string{"a", "b"}, vars)

	assert.Empty(t, ExtractVariables("nothing here"))
	assert.Empty(t, ExtractVariables("{{not closed"))
}

func TestMergeVariables(t *testing.T) {
	declared := []models.Variable{{Name: "city", Value: "oslo"}}

	merged := MergeVariables(declared, "{{city}} weather for {{day}}")
	require.Len(t, merged, 2)
	assert.Equal(t, models.Variable{Name: "city", Value: "oslo"}, merged[0])
	assert.Equal(t, models.Variable{Name: "day"}, merged[1])

	// Declarations survive untouched when the template adds nothing.
	assert.Equal(t, declared, MergeVariables(declared, "{{city}}"))
	assert.Nil(t, MergeVariables(nil, "no placeholders"))
}
