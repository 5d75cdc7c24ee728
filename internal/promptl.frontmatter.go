package internal

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// FrontmatterDelimiter opens and closes the YAML config block
const FrontmatterDelimiter = "---"

// Frontmatter error messages
const (
	ErrMsgFrontmatterUnclosed = "frontmatter block not closed, missing '---'"
	ErrMsgFrontmatterInvalid  = "invalid frontmatter YAML"
	ErrMsgFrontmatterNotMap   = "frontmatter must be a YAML mapping"
	ErrMsgFrontmatterEncode   = "failed to encode frontmatter"
)

// Frontmatter is the result of splitting a document into config and body
type Frontmatter struct {
	// YAML is the raw text between the delimiters, "" without frontmatter
	YAML string
	// YAMLPos is where the YAML text starts
	YAMLPos Position
	// Body is the template source after the closing delimiter
	Body string
	// BodyPos is where Body starts in the document
	BodyPos Position
	// Found reports whether the document has a frontmatter block
	Found bool
}

// SplitFrontmatter separates a leading `---` block from the template body.
// A document without a closing delimiter yields an error and is treated as
// all body.
func SplitFrontmatter(source string) (*Frontmatter, *ParseError) {
	start := Position{Line: 1, Column: 1}
	result := &Frontmatter{Body: source, BodyPos: start}

	trimmed := strings.TrimLeft(source, " \t\r\n")
	if !strings.HasPrefix(trimmed, FrontmatterDelimiter) {
		return result, nil
	}
	openIdx := len(source) - len(trimmed)
	lineEnd := strings.IndexByte(source[openIdx:], CharNewline)
	if lineEnd == -1 || strings.TrimSpace(source[openIdx:openIdx+lineEnd]) != FrontmatterDelimiter {
		// `---text` on the first line is content, not frontmatter
		return result, nil
	}
	yamlStart := openIdx + lineEnd + 1

	closeIdx := -1
	offset := yamlStart
	for offset <= len(source) {
		end := strings.IndexByte(source[offset:], CharNewline)
		line := source[offset:]
		if end >= 0 {
			line = source[offset : offset+end]
		}
		if strings.TrimRight(line, " \t\r") == FrontmatterDelimiter {
			closeIdx = offset
			break
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	if closeIdx == -1 {
		return result, NewParseError(ErrMsgFrontmatterUnclosed, start.Advance(source, openIdx))
	}

	bodyStart := closeIdx + len(FrontmatterDelimiter)
	for bodyStart < len(source) && (source[bodyStart] == CharSpace || source[bodyStart] == CharTab || source[bodyStart] == CharCarriageRet) {
		bodyStart++
	}
	if bodyStart < len(source) && source[bodyStart] == CharNewline {
		bodyStart++
	}

	result.Found = true
	result.YAML = source[yamlStart:closeIdx]
	result.YAMLPos = start.Advance(source, yamlStart)
	result.Body = source[bodyStart:]
	result.BodyPos = start.Advance(source, bodyStart)
	return result, nil
}

// ParseConfigYAML decodes frontmatter text into a config map
func ParseConfigYAML(text string, pos Position) (map[string]any, *ParseError) {
	config := map[string]any{}
	if strings.TrimSpace(text) == "" {
		return config, nil
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		return config, NewParseErrorWithDetail(ErrMsgFrontmatterInvalid, err.Error(), pos)
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return config, NewParseError(ErrMsgFrontmatterNotMap, pos)
	}
	if err := node.Decode(&config); err != nil {
		return map[string]any{}, NewParseErrorWithDetail(ErrMsgFrontmatterInvalid, err.Error(), pos)
	}
	return config, nil
}

// ReplaceFrontmatter returns source with its frontmatter replaced by the
// YAML encoding of config. An empty config removes the block.
func ReplaceFrontmatter(source string, config map[string]any) (string, error) {
	fm, perr := SplitFrontmatter(source)
	if perr != nil {
		return "", perr
	}
	if len(config) == 0 {
		return fm.Body, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return "", NewParseErrorWithDetail(ErrMsgFrontmatterEncode, err.Error(), Position{Line: 1, Column: 1})
	}
	if err := enc.Close(); err != nil {
		return "", NewParseErrorWithDetail(ErrMsgFrontmatterEncode, err.Error(), Position{Line: 1, Column: 1})
	}

	var sb strings.Builder
	sb.WriteString(FrontmatterDelimiter)
	sb.WriteByte(CharNewline)
	sb.Write(buf.Bytes())
	sb.WriteString(FrontmatterDelimiter)
	sb.WriteByte(CharNewline)
	sb.WriteString(fm.Body)
	return sb.String(), nil
}
