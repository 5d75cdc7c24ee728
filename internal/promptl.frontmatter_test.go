package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		found bool
		yaml  string
		body  string
		line  int
	}{
		{
			name:  "no frontmatter",
			src:   "Hello",
			found: false,
			body:  "Hello",
			line:  1,
		},
		{
			name:  "with frontmatter",
			src:   "---\nmodel: m1\n---\nHello",
			found: true,
			yaml:  "model: m1\n",
			body:  "Hello",
			line:  4,
		},
		{
			name:  "leading blank lines",
			src:   "\n\n---\nmodel: m1\n---\nHi",
			found: true,
			yaml:  "model: m1\n",
			body:  "Hi",
			line:  6,
		},
		{
			name:  "dashes followed by text are content",
			src:   "---text\nmore",
			found: false,
			body:  "---text\nmore",
			line:  1,
		},
		{
			name:  "empty block",
			src:   "---\n---\nbody",
			found: true,
			yaml:  "",
			body:  "body",
			line:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, perr := SplitFrontmatter(tt.src)
			require.Nil(t, perr)
			assert.Equal(t, tt.found, fm.Found)
			assert.Equal(t, tt.yaml, fm.YAML)
			assert.Equal(t, tt.body, fm.Body)
			assert.Equal(t, tt.line, fm.BodyPos.Line)
			assert.Equal(t, len(tt.src)-len(tt.body), fm.BodyPos.Offset)
		})
	}
}

func TestSplitFrontmatter_Unclosed(t *testing.T) {
	fm, perr := SplitFrontmatter("---\nmodel: m1\nHello")
	require.NotNil(t, perr)
	assert.Equal(t, ErrMsgFrontmatterUnclosed, perr.Message)
	assert.False(t, fm.Found)
	assert.Equal(t, "---\nmodel: m1\nHello", fm.Body)
}

func TestParseConfigYAML(t *testing.T) {
	config, perr := ParseConfigYAML("model: m1\ntemperature: 0.5\nschema:\n  type: object\n", Position{Line: 2, Column: 1})
	require.Nil(t, perr)
	assert.Equal(t, "m1", config["model"])
	assert.Equal(t, 0.5, config["temperature"])
	assert.Equal(t, map[string]any{"type": "object"}, config["schema"])

	_, perr = ParseConfigYAML("- a\n- b\n", Position{Line: 2, Column: 1})
	require.NotNil(t, perr)
	assert.Equal(t, ErrMsgFrontmatterNotMap, perr.Message)

	_, perr = ParseConfigYAML("model: [unclosed\n", Position{Line: 2, Column: 1})
	require.NotNil(t, perr)
	assert.Equal(t, ErrMsgFrontmatterInvalid, perr.Message)
	assert.Equal(t, 2, perr.Position.Line)

	config, perr = ParseConfigYAML("  \n", Position{})
	require.Nil(t, perr)
	assert.Empty(t, config)
}

func TestReplaceFrontmatter(t *testing.T) {
	out, err := ReplaceFrontmatter("---\nmodel: old\n---\nBody", map[string]any{"model": "new"})
	require.NoError(t, err)
	assert.Equal(t, "---\nmodel: new\n---\nBody", out)

	out, err = ReplaceFrontmatter("Body only", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "---\na: 1\n---\nBody only", out)

	out, err = ReplaceFrontmatter("---\nmodel: old\n---\nBody", nil)
	require.NoError(t, err)
	assert.Equal(t, "Body", out)
}
