package promptl

import (
	"sort"

	"github.com/itsatony/go-promptl/internal"
)

// ConversationMetadata describes one resolution. It is created fresh for
// every call; nothing in it accumulates across resolutions.
type ConversationMetadata struct {
	// Hash is the content hash of the resolved conversation
	Hash string
	// Config is the final config after step attributes were folded in
	Config Config
	// Errors are the diagnostics collected while parsing
	Errors []*CompileError
	// Parameters lists, sorted, the names the template read but that were
	// neither supplied nor bound inside the template
	Parameters []string
	// StepCount is the number of <step> blocks the walk encountered
	StepCount int

	source string
}

// HasParameter reports whether name is a required but missing input
func (m *ConversationMetadata) HasParameter(name string) bool {
	i := sort.SearchStrings(m.Parameters, name)
	return i < len(m.Parameters) && m.Parameters[i] == name
}

// HasErrors reports whether parsing produced diagnostics
func (m *ConversationMetadata) HasErrors() bool {
	return len(m.Errors) > 0
}

// SetConfig returns the document source with its frontmatter replaced by
// fn applied to the current frontmatter config. The metadata itself is not
// modified.
func (m *ConversationMetadata) SetConfig(fn func(Config) Config) (string, error) {
	current := Config{}
	fm, perr := internal.SplitFrontmatter(m.source)
	if perr != nil {
		return "", NewRunError(ErrMsgSetConfigFailed, perr)
	}
	if fm.Found {
		config, perr := internal.ParseConfigYAML(fm.YAML, fm.YAMLPos)
		if perr != nil {
			return "", NewRunError(ErrMsgSetConfigFailed, perr)
		}
		current = config
	}
	out, err := internal.ReplaceFrontmatter(m.source, fn(current))
	if err != nil {
		return "", NewRunError(ErrMsgSetConfigFailed, err)
	}
	return out, nil
}
