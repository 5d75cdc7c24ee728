package promptl

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationMetadata_HasParameter(t *testing.T) {
	meta := &ConversationMetadata{Parameters: []string{"a", "c", "e"}}
	assert.True(t, meta.HasParameter("a"))
	assert.True(t, meta.HasParameter("e"))
	assert.False(t, meta.HasParameter("b"))
	assert.False(t, meta.HasParameter("z"))
	assert.False(t, (&ConversationMetadata{}).HasParameter("a"))
}

func TestConversationMetadata_SetConfig(t *testing.T) {
	engine := MustNew()
	ctx := context.Background()

	t.Run("rewrites existing frontmatter", func(t *testing.T) {
		src := "---\nmodel: a\n---\nHello {{ name }}"
		_, meta, err := engine.Resolve(ctx, ResolveInput{Document: Document{Path: "p", Source: src}})
		require.NoError(t, err)

		out, err := meta.SetConfig(func(c Config) Config {
			c[ConfigKeyModel] = "b"
			c[ConfigKeyTemperature] = 0.5
			return c
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "---\n"))
		assert.True(t, strings.HasSuffix(out, "Hello {{ name }}"), "body is untouched")

		conv, _, err := engine.Resolve(ctx, ResolveInput{Document: Document{Path: "p", Source: out}})
		require.NoError(t, err)
		assert.Equal(t, "b", conv.Config.Model())
		assert.Equal(t, 0.5, conv.Config[ConfigKeyTemperature])
	})

	t.Run("adds frontmatter when missing", func(t *testing.T) {
		_, meta, err := engine.Resolve(ctx, ResolveInput{Document: Document{Path: "p", Source: "plain"}})
		require.NoError(t, err)

		out, err := meta.SetConfig(func(c Config) Config {
			assert.Empty(t, c)
			return Config{ConfigKeyModel: "m"}
		})
		require.NoError(t, err)
		assert.Equal(t, "---\nmodel: m\n---\nplain", out)
	})

	t.Run("empty config drops frontmatter", func(t *testing.T) {
		_, meta, err := engine.Resolve(ctx, ResolveInput{Document: Document{Path: "p", Source: "---\nmodel: a\n---\nbody"}})
		require.NoError(t, err)

		out, err := meta.SetConfig(func(Config) Config { return nil })
		require.NoError(t, err)
		assert.Equal(t, "body", out)
	})
}
