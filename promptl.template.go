package promptl

import (
	"github.com/itsatony/go-promptl/internal"
	"go.uber.org/zap"
)

// structuralErrors are parse diagnostics about tag placement rather than
// token syntax
var structuralErrors = map[string]bool{
	internal.ErrMsgNestedMessage:       true,
	internal.ErrMsgNestedStep:          true,
	internal.ErrMsgStepInMessage:       true,
	internal.ErrMsgContentInContent:    true,
	internal.ErrMsgToolCallOutside:     true,
	internal.ErrMsgInvalidRole:         true,
	internal.ErrMsgMessageRoleRequired: true,
	internal.ErrMsgReferenceNeedsPath:  true,
	internal.ErrMsgReferenceNotClosed:  true,
	internal.ErrMsgStepAsInvalid:       true,
}

// Template is a parsed prompt document. It is immutable and safe to share
// between goroutines.
type Template struct {
	path   string
	source string
	config Config
	root   *internal.RootNode
	errors []*CompileError
}

// parseTemplate splits frontmatter, decodes the config and parses the body.
// Problems are collected; the returned template is always usable for a
// best-effort resolution.
func parseTemplate(path, source string, logger *zap.Logger) *Template {
	t := &Template{path: path, source: source, config: Config{}}

	fm, perr := internal.SplitFrontmatter(source)
	if perr != nil {
		t.errors = append(t.errors, compileErrorFromParse(path, ErrCodeConfig, perr))
	}
	if fm.Found {
		config, perr := internal.ParseConfigYAML(fm.YAML, fm.YAMLPos)
		if perr != nil {
			t.errors = append(t.errors, compileErrorFromParse(path, ErrCodeConfig, perr))
		}
		t.config = config
	}

	root, perrs := internal.ParseTemplate(fm.Body, fm.BodyPos, logger)
	t.root = root
	for _, pe := range perrs {
		code := ErrCodeSyntax
		if structuralErrors[pe.Message] {
			code = ErrCodeStructure
		}
		t.errors = append(t.errors, compileErrorFromParse(path, code, pe))
	}
	return t
}

// Path returns the document path the template was parsed under
func (t *Template) Path() string {
	return t.path
}

// Source returns the original document source
func (t *Template) Source() string {
	return t.source
}

// Config returns a copy of the frontmatter config
func (t *Template) Config() Config {
	return t.config.Clone()
}

// Errors returns the diagnostics collected while parsing
func (t *Template) Errors() []*CompileError {
	out := make([]*CompileError, len(t.errors))
	copy(out, t.errors)
	return out
}

// HasErrors reports whether parsing produced any diagnostics
func (t *Template) HasErrors() bool {
	return len(t.errors) > 0
}

// String returns a debug rendering of the parsed tree
func (t *Template) String() string {
	if t.root == nil {
		return ""
	}
	return t.root.String()
}
