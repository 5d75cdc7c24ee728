package promptl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/itsatony/go-cuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func resolveDoc(t *testing.T, engine *Engine, source string, params map[string]any) (*Conversation, *ConversationMetadata) {
	t.Helper()
	conv, meta, err := engine.Resolve(context.Background(), ResolveInput{
		Document:   Document{Path: "test", Source: source},
		Parameters: params,
	})
	require.NoError(t, err)
	return conv, meta
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		engine, err := New()
		require.NoError(t, err)
		assert.NotNil(t, engine.Logger())
		assert.NotNil(t, engine.cache)
		assert.True(t, engine.HasFunc("upper"))
	})

	t.Run("cache disabled", func(t *testing.T) {
		engine := MustNew(WithCache(nil))
		assert.Nil(t, engine.cache)
	})

	t.Run("invalid reference depth", func(t *testing.T) {
		_, err := New(WithMaxReferenceDepth(0))
		require.Error(t, err)
		var customErr *cuserr.CustomError
		require.ErrorAs(t, err, &customErr)
		v, ok := customErr.GetMetadata(MetaKeyParameter)
		assert.True(t, ok)
		assert.Equal(t, "0", v)
	})

	t.Run("custom funcs", func(t *testing.T) {
		engine := MustNew(WithFuncs(&Func{
			Name:    "shout",
			MinArgs: 1,
			MaxArgs: 1,
			Fn: func(args []any) (any, error) {
				return strings.ToUpper(args[0].(string)) + "!", nil
			},
		}))
		assert.True(t, engine.HasFunc("shout"))
		assert.Contains(t, engine.ListFuncs(), "shout")

		conv, _ := resolveDoc(t, engine, `{{ shout("hi") }}`, nil)
		require.Len(t, conv.Messages, 1)
		assert.Equal(t, "HI!", conv.Messages[0].Text())
	})

	t.Run("invalid func", func(t *testing.T) {
		_, err := New(WithFuncs(&Func{Name: "nothing"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgFuncNilFunc)
	})
}

func TestEngine_RegisterFunc(t *testing.T) {
	engine := MustNew()

	tests := []struct {
		name    string
		fn      *Func
		wantErr string
	}{
		{"nil func", nil, ErrMsgFuncNilFunc},
		{"empty name", &Func{Fn: func([]any) (any, error) { return nil, nil }}, ErrMsgFuncEmptyName},
		{"valid", &Func{Name: "one", Fn: func([]any) (any, error) { return 1, nil }}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.RegisterFunc(tt.fn)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Panics(t, func() { engine.MustRegisterFunc(nil) })
}

func TestEngine_Resolve(t *testing.T) {
	engine := MustNew(WithLogger(zaptest.NewLogger(t)))

	t.Run("frontmatter and messages", func(t *testing.T) {
		src := "---\nmodel: gemini-2.0-flash\ntemperature: 0.2\n---\nYou are terse.\n<user>{{ question }}</user>"
		conv, meta := resolveDoc(t, engine, src, map[string]any{"question": "why?"})

		assert.Equal(t, "gemini-2.0-flash", conv.Config.Model())
		assert.Equal(t, 0.2, conv.Config[ConfigKeyTemperature])
		require.Len(t, conv.Messages, 2)
		assert.Equal(t, RoleSystem, conv.Messages[0].Role)
		assert.Equal(t, "You are terse.", conv.Messages[0].Text())
		assert.Equal(t, RoleUser, conv.Messages[1].Role)
		assert.Equal(t, "why?", conv.Messages[1].Text())

		assert.Equal(t, conv.Hash(), meta.Hash)
		assert.Equal(t, conv.Config, meta.Config)
		assert.False(t, meta.HasErrors())
		assert.Empty(t, meta.Parameters)
	})

	t.Run("missing parameter renders empty", func(t *testing.T) {
		conv, meta := resolveDoc(t, engine, "Hello {{ name }}", nil)
		require.Len(t, conv.Messages, 1)
		assert.Equal(t, "Hello ", conv.Messages[0].Text())
		assert.Equal(t, []string{"name"}, meta.Parameters)
		assert.True(t, meta.HasParameter("name"))
		assert.False(t, meta.HasParameter("other"))
	})

	t.Run("parameters recomputed on every call", func(t *testing.T) {
		_, meta := resolveDoc(t, engine, "{{ a }}{{ b }}", nil)
		assert.Equal(t, []string{"a", "b"}, meta.Parameters)
		_, meta = resolveDoc(t, engine, "{{ a }}{{ b }}", map[string]any{"a": 1})
		assert.Equal(t, []string{"b"}, meta.Parameters)
	})

	t.Run("simple loop", func(t *testing.T) {
		conv, _ := resolveDoc(t, engine, "{{ for x in [1, 2, 3] }}{{ x }}{{ endfor }}", nil)
		require.Len(t, conv.Messages, 1)
		assert.Equal(t, "123", conv.Messages[0].Text())
	})

	t.Run("deterministic", func(t *testing.T) {
		src := "{{ for v, k in obj }}{{ k }}={{ v }};{{ endfor }}<user>{{ q }}</user>"
		params := map[string]any{"obj": map[string]any{"b": 2, "a": 1, "c": 3}, "q": "x"}
		first, firstMeta := resolveDoc(t, engine, src, params)
		for i := 0; i < 5; i++ {
			conv, meta := resolveDoc(t, engine, src, params)
			assert.Equal(t, first.Messages, conv.Messages)
			assert.Equal(t, firstMeta.Hash, meta.Hash)
		}
		assert.Equal(t, "a=1;b=2;c=3;", first.Messages[0].Text())
	})

	t.Run("parse errors are collected", func(t *testing.T) {
		conv, meta, err := engine.Resolve(context.Background(), ResolveInput{
			Document: Document{Path: "broken", Source: "{{ endif }}ok</user>"},
		})
		require.NoError(t, err)
		require.NotNil(t, conv)
		require.True(t, meta.HasErrors())
		for _, e := range meta.Errors {
			assert.Equal(t, "broken", e.Path)
			assert.Positive(t, e.Position.Line)
		}
	})

	t.Run("malformed frontmatter is a config error", func(t *testing.T) {
		_, meta, err := engine.Resolve(context.Background(), ResolveInput{
			Document: Document{Path: "fm", Source: "---\nmodel: [unclosed\n---\nhi"},
		})
		require.NoError(t, err)
		require.True(t, meta.HasErrors())
		assert.Equal(t, ErrCodeConfig, meta.Errors[0].Code)
	})

	t.Run("iterating a scalar is fatal", func(t *testing.T) {
		_, _, err := engine.Resolve(context.Background(), ResolveInput{
			Document:   Document{Path: "iter", Source: "{{ for x in s }}{{ x }}{{ endfor }}"},
			Parameters: map[string]any{"s": "abc"},
		})
		var compileErr *CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, ErrCodeIteration, compileErr.Code)
		assert.Equal(t, "iter", compileErr.Path)
	})

	t.Run("step selection", func(t *testing.T) {
		src := "<step><user>one</user></step><step><user>two {{ topic }}</user></step>"
		conv, meta, err := engine.Resolve(context.Background(), ResolveInput{
			Document:   Document{Path: "steps", Source: src},
			Parameters: map[string]any{"topic": "go"},
			Step:       1,
			Responses:  []*Response{{Text: "first answer"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, meta.StepCount, "steps reached so far")
		require.Len(t, conv.Messages, 3)
		assert.Equal(t, RoleAssistant, conv.Messages[1].Role)
		assert.Equal(t, "first answer", conv.Messages[1].Text())
		assert.Equal(t, "two go", conv.Messages[2].Text())
	})
}

func TestEngine_References(t *testing.T) {
	refs := MapReferences(map[string]string{
		"shared/tone": "---\nmodel: ignored\n---\nBe {{ tone }}.",
		"shared/loop": `again <prompt path="loop" />`,
		"shared/bad":  "{{ endfor }}",
	})

	t.Run("inline with parameters", func(t *testing.T) {
		engine := MustNew(WithReferenceFn(refs))
		conv, _, err := engine.Resolve(context.Background(), ResolveInput{
			Document: Document{Path: "shared/main", Source: `<prompt path="tone" tone="kind" /><user>hi</user>`},
		})
		require.NoError(t, err)
		require.Len(t, conv.Messages, 2)
		assert.Equal(t, "Be kind.", conv.Messages[0].Text())
		assert.Empty(t, conv.Config, "referenced frontmatter is not merged")
	})

	t.Run("per call reference fn wins", func(t *testing.T) {
		engine := MustNew(WithReferenceFn(refs))
		conv, _, err := engine.Resolve(context.Background(), ResolveInput{
			Document:    Document{Path: "main", Source: `<prompt path="x" />`},
			ReferenceFn: MapReferences(map[string]string{"x": "from override"}),
		})
		require.NoError(t, err)
		assert.Equal(t, "from override", conv.Messages[0].Text())
	})

	t.Run("depth limit", func(t *testing.T) {
		engine := MustNew(WithReferenceFn(refs), WithMaxReferenceDepth(3))
		_, _, err := engine.Resolve(context.Background(), ResolveInput{
			Document: Document{Path: "shared/loop", Source: `<prompt path="loop" />`},
		})
		var compileErr *CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, ErrCodeReferenceDepth, compileErr.Code)
	})

	t.Run("missing reference", func(t *testing.T) {
		engine := MustNew(WithReferenceFn(refs))
		_, _, err := engine.Resolve(context.Background(), ResolveInput{
			Document: Document{Path: "main", Source: `<prompt path="nope" />`},
		})
		var compileErr *CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, ErrCodeReference, compileErr.Code)

		var customErr *cuserr.CustomError
		require.ErrorAs(t, err, &customErr)
		path, _ := customErr.GetMetadata(MetaKeyPath)
		assert.Equal(t, "nope", path)
	})

	t.Run("referenced document with parse errors", func(t *testing.T) {
		engine := MustNew(WithReferenceFn(refs))
		_, _, err := engine.Resolve(context.Background(), ResolveInput{
			Document: Document{Path: "shared/main", Source: `<prompt path="bad" />`},
		})
		var compileErr *CompileError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, ErrCodeReference, compileErr.Code)
	})

	t.Run("fetch error passes through", func(t *testing.T) {
		boom := errors.New("boom")
		engine := MustNew(WithReferenceFn(func(context.Context, string) (string, error) { return "", boom }))
		_, _, err := engine.Resolve(context.Background(), ResolveInput{
			Document: Document{Path: "main", Source: `<prompt path="x" />`},
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestEngine_ParseCache(t *testing.T) {
	cache := NewTemplateCache(DefaultTemplateCacheConfig())
	engine := MustNew(WithCache(cache))

	first := engine.Parse("a", "hello")
	second := engine.Parse("a", "hello")
	assert.Same(t, first, second)

	changed := engine.Parse("a", "hello again")
	assert.NotSame(t, first, changed)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestResolveReferencePath(t *testing.T) {
	assert.Equal(t, "dir/other", ResolveReferencePath("dir/doc", "other"))
	assert.Equal(t, "up", ResolveReferencePath("dir/doc", "../up"))
	assert.Equal(t, "abs/x", ResolveReferencePath("dir/doc", "/abs/x"))
}
