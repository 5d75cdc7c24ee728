package promptl

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/itsatony/go-cuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CompileError
		expected string
	}{
		{
			name:     "with path",
			err:      &CompileError{Code: ErrCodeSyntax, Message: "unexpected token", Path: "main", Position: Position{Line: 2, Column: 5}},
			expected: "[syntax] unexpected token (main line 2, column 5)",
		},
		{
			name:     "with detail and cause",
			err:      &CompileError{Code: ErrCodeReference, Message: "fetch failed", Detail: "x", Cause: errors.New("gone"), Position: Position{Line: 1, Column: 1}},
			expected: "[reference] fetch failed: x: gone (line 1, column 1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCompileError_AsCustomError(t *testing.T) {
	ce := &CompileError{Code: ErrCodeSyntax, Message: "bad", Path: "doc", Position: Position{Offset: 7, Line: 2, Column: 3}}
	customErr := ce.AsCustomError()

	for key, want := range map[string]string{
		MetaKeyCode:   ErrCodeSyntax,
		MetaKeyPath:   "doc",
		MetaKeyLine:   "2",
		MetaKeyColumn: "3",
		MetaKeyOffset: "7",
	} {
		got, ok := customErr.GetMetadata(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	cause := errors.New("root")
	wrapped := (&CompileError{Code: ErrCodeEvaluation, Message: "eval", Cause: cause}).AsCustomError()
	assert.ErrorIs(t, wrapped, cause)
}

func TestProviderInvocationError(t *testing.T) {
	cause := errors.New("503")
	err := NewProviderInvocationError(ProviderNameOllama, "llama3", cause)
	assert.Equal(t, "provider invocation failed (ollama/llama3): 503", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := &ProviderInvocationError{}
	assert.Equal(t, ErrMsgProviderFailed, bare.Error())
}

func TestErrorName(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"compile", &CompileError{Code: ErrCodeSyntax}, ErrorNameCompile},
		{"wrapped compile", fmt.Errorf("ctx: %w", &CompileError{}), ErrorNameCompile},
		{"provider", NewProviderInvocationError("p", "m", errors.New("x")), ErrorNameProviderInvocation},
		{"chain state", NewChainStateError(ErrMsgChainCompleted, ChainCompleted), ErrorNameChain},
		{"canceled", context.Canceled, ErrorNameCanceled},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ErrorNameCanceled},
		{"other cuserr", NewRunError(ErrMsgRunCanceled, nil), ErrorNameUnknown},
		{"plain", errors.New("plain"), ErrorNameUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errorName(tt.err))
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	t.Run("missing model", func(t *testing.T) {
		var customErr *cuserr.CustomError
		require.ErrorAs(t, NewMissingModelError(2), &customErr)
		step, _ := customErr.GetMetadata(MetaKeyStep)
		assert.Equal(t, "2", step)
	})

	t.Run("document not found", func(t *testing.T) {
		var customErr *cuserr.CustomError
		require.ErrorAs(t, NewDocumentNotFoundError("a/b"), &customErr)
		path, _ := customErr.GetMetadata(MetaKeyPath)
		assert.Equal(t, "a/b", path)
	})

	t.Run("template has errors", func(t *testing.T) {
		first := &CompileError{Code: ErrCodeSyntax, Message: "bad"}
		err := NewTemplateHasErrorsError("doc", []*CompileError{first})
		assert.ErrorIs(t, err, first)
		assert.Contains(t, err.Error(), ErrMsgTemplateHasErrors)
		assert.Error(t, NewTemplateHasErrorsError("doc", nil))
	})

	t.Run("provider config", func(t *testing.T) {
		var customErr *cuserr.CustomError
		require.ErrorAs(t, NewProviderConfigError(ProviderNameGemini, ErrMsgMissingAPIKey), &customErr)
		p, _ := customErr.GetMetadata(MetaKeyProvider)
		assert.Equal(t, ProviderNameGemini, p)
	})

	t.Run("run error keeps cause", func(t *testing.T) {
		err := NewRunError(ErrMsgRunCanceled, context.Canceled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestToCompileError(t *testing.T) {
	existing := &CompileError{Code: ErrCodeSyntax}
	assert.Same(t, existing, toCompileError("p", existing))
	assert.ErrorIs(t, toCompileError("p", context.Canceled), context.Canceled)

	generic := toCompileError("p", errors.New("x"))
	var ce *CompileError
	require.ErrorAs(t, generic, &ce)
	assert.Equal(t, ErrCodeEvaluation, ce.Code)
	assert.Equal(t, "p", ce.Path)
}
