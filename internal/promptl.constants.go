package internal

// TokenType represents the type of a lexical token
type TokenType string

// Token type constants
const (
	TokenTypeText          TokenType = "TEXT"
	TokenTypeInterpolation TokenType = "INTERPOLATION"
	TokenTypeTagOpen       TokenType = "TAG_OPEN"
	TokenTypeTagClose      TokenType = "TAG_CLOSE"
	TokenTypeEOF           TokenType = "EOF"
)

// NodeType identifies AST node types
type NodeType int

// Node type constants
const (
	NodeTypeRoot NodeType = iota
	NodeTypeText
	NodeTypeInterpolation
	NodeTypeIf
	NodeTypeFor
	NodeTypeMessage
	NodeTypeContent
	NodeTypeReference
	NodeTypeStep
)

// Node type string names for debugging
const (
	NodeTypeNameRoot          = "ROOT"
	NodeTypeNameText          = "TEXT"
	NodeTypeNameInterpolation = "INTERPOLATION"
	NodeTypeNameIf            = "IF"
	NodeTypeNameFor           = "FOR"
	NodeTypeNameMessage       = "MESSAGE"
	NodeTypeNameContent       = "CONTENT"
	NodeTypeNameReference     = "REFERENCE"
	NodeTypeNameStep          = "STEP"
)

var nodeTypeNames = map[NodeType]string{
	NodeTypeRoot:          NodeTypeNameRoot,
	NodeTypeText:          NodeTypeNameText,
	NodeTypeInterpolation: NodeTypeNameInterpolation,
	NodeTypeIf:            NodeTypeNameIf,
	NodeTypeFor:           NodeTypeNameFor,
	NodeTypeMessage:       NodeTypeNameMessage,
	NodeTypeContent:       NodeTypeNameContent,
	NodeTypeReference:     NodeTypeNameReference,
	NodeTypeStep:          NodeTypeNameStep,
}

// String returns the string representation of the node type
func (n NodeType) String() string {
	if name, ok := nodeTypeNames[n]; ok {
		return name
	}
	return NodeTypeNameRoot
}

// Character constants
const (
	CharEquals      = '='
	CharDoubleQuote = '"'
	CharSingleQuote = '\''
	CharBacktick    = '`'
	CharBackslash   = '\\'
	CharSlash       = '/'
	CharLessThan    = '<'
	CharGreaterThan = '>'
	CharOpenBrace   = '{'
	CharCloseBrace  = '}'
	CharNewline     = '\n'
	CharSpace       = ' '
	CharTab         = '\t'
	CharCarriageRet = '\r'
)

// Delimiter strings
const (
	StrOpenDelim    = "{{"
	StrCloseDelim   = "}}"
	StrEscapeOpen   = "\\{{"
	StrCloseTagOpen = "</"
	StrSelfClose    = "/>"
)

// Template keywords. Control keywords may only appear inside their construct.
const (
	KeywordIf        = "if"
	KeywordElse      = "else"
	KeywordEndIf     = "endif"
	KeywordFor       = "for"
	KeywordEndFor    = "endfor"
	KeywordAs        = "as"
	KeywordIn        = "in"
	KeywordTrue      = "true"
	KeywordFalse     = "false"
	KeywordNull      = "null"
	KeywordUndefined = "undefined"
)

// reservedWords cannot be used as loop variables or assignment targets
var reservedWords = map[string]bool{
	KeywordIf:        true,
	KeywordElse:      true,
	KeywordEndIf:     true,
	KeywordFor:       true,
	KeywordEndFor:    true,
	KeywordAs:        true,
	KeywordIn:        true,
	KeywordTrue:      true,
	KeywordFalse:     true,
	KeywordNull:      true,
	KeywordUndefined: true,
}

// IsReservedWord reports whether name is a template keyword
func IsReservedWord(name string) bool {
	return reservedWords[name]
}

// Structural tag names
const (
	TagSystem       = "system"
	TagUser         = "user"
	TagAssistant    = "assistant"
	TagTool         = "tool"
	TagMessage      = "message"
	TagContentText  = "content-text"
	TagContentImage = "content-image"
	TagToolCall     = "tool-call"
	TagPrompt       = "prompt"
	TagStep         = "step"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ValidRoles lists the accepted message roles in display order
var ValidRoles = []string{RoleSystem, RoleUser, RoleAssistant, RoleTool}

// IsValidRole reports whether role is an accepted message role
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Content kinds
const (
	ContentKindText     = "text"
	ContentKindImage    = "image"
	ContentKindToolCall = "tool-call"
)

// Attribute names with structural meaning
const (
	AttrRole      = "role"
	AttrID        = "id"
	AttrName      = "name"
	AttrArguments = "arguments"
	AttrPath      = "path"
	AttrIsolated  = "isolated"
	AttrAs        = "as"
)

// Limits
const (
	DefaultMaxReferenceDepth = 50
	DefaultMaxLoopIterations = 10000
)

// Log message constants
const (
	LogMsgLexerCreated     = "lexer created"
	LogMsgTokenizerStart   = "starting tokenization"
	LogMsgTokenizerEnd     = "tokenization complete"
	LogMsgParserCreated    = "parser created"
	LogMsgParserStart      = "starting parse"
	LogMsgParserEnd        = "parse complete"
	LogMsgResolverStart    = "starting resolution"
	LogMsgResolverEnd      = "resolution complete"
	LogMsgReferenceFetch   = "fetching reference"
	LogMsgReferenceCached  = "reference served from resolution cache"
	LogMsgStepBoundary     = "step boundary reached"
	LogMsgMissingParameter = "parameter not provided"
)

// Log field names
const (
	LogFieldSource     = "source_length"
	LogFieldTokens     = "token_count"
	LogFieldNodes      = "node_count"
	LogFieldErrors     = "error_count"
	LogFieldMessages   = "message_count"
	LogFieldPath       = "path"
	LogFieldDepth      = "depth"
	LogFieldStep       = "step"
	LogFieldParameter  = "parameter"
	LogFieldExpression = "expression"
	LogFieldCompleted  = "completed"
)

// Error format string constants (for Error() methods)
const (
	ErrFmtWithPosition = "%s at %s"
	ErrFmtWithDetail   = "%s: %s"
	ErrFmtWithCause    = "%s: %v"
	ErrFmtTypeMismatch = "cannot apply %s to %T and %T"
)

// String format constants for AST String() methods
const (
	FmtOpenBrace   = "{"
	FmtCloseBrace  = "}"
	FmtCommaSep    = ", "
	FmtKeyValueSep = "="
)
