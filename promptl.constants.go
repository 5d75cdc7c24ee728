package promptl

import (
	"time"

	"github.com/itsatony/go-promptl/internal"
)

// Message role constants
const (
	RoleSystem    = internal.RoleSystem
	RoleUser      = internal.RoleUser
	RoleAssistant = internal.RoleAssistant
	RoleTool      = internal.RoleTool
)

// Content type discriminators used in the JSON form of message content
const (
	ContentTypeText     = internal.ContentKindText
	ContentTypeImage    = internal.ContentKindImage
	ContentTypeToolCall = internal.ContentKindToolCall
)

// Config keys the runner reads from a step's resolved configuration
const (
	ConfigKeyModel       = "model"
	ConfigKeyTemperature = "temperature"
	ConfigKeyMaxTokens   = "maxTokens"
	ConfigKeyTopP        = "topP"
	ConfigKeyProvider    = "provider"
)

// Event channels multiplexed onto one output stream
const (
	ChannelProvider = "provider-event"
	ChannelChain    = "latitude-event"
)

// ChainEventType names the chain protocol events
type ChainEventType string

// Chain protocol event types
const (
	ChainEventStep         ChainEventType = "step"
	ChainEventStepComplete ChainEventType = "step-complete"
	ChainEventComplete     ChainEventType = "complete"
	ChainEventError        ChainEventType = "error"
)

// ProviderEventType names the normalised provider stream events
type ProviderEventType string

// Provider event types
const (
	ProviderEventTextDelta ProviderEventType = "text-delta"
	ProviderEventToolCall  ProviderEventType = "tool-call"
	ProviderEventFinish    ProviderEventType = "finish"
)

// Finish reasons reported by providers
const (
	FinishReasonStop     = "stop"
	FinishReasonLength   = "length"
	FinishReasonToolCall = "tool-calls"
)

// Defaults
const (
	DefaultMaxReferenceDepth = internal.DefaultMaxReferenceDepth
	DefaultMaxLoopIterations = internal.DefaultMaxLoopIterations
	DefaultCacheTTL          = 10 * time.Minute
	DefaultCacheMaxEntries   = 512
	DefaultEventBuffer       = 0
)

// Error names reported in terminal Error events
const (
	ErrorNameCompile            = "CompileError"
	ErrorNameProviderInvocation = "ProviderInvocationError"
	ErrorNameChain              = "ChainError"
	ErrorNameCanceled           = "AbortError"
	ErrorNameUnknown            = "Error"
)

// Metadata key constants for cuserr errors
const (
	MetaKeyPath      = "path"
	MetaKeyLine      = "line"
	MetaKeyColumn    = "column"
	MetaKeyOffset    = "offset"
	MetaKeyCode      = "code"
	MetaKeyProvider  = "provider"
	MetaKeyModel     = "model"
	MetaKeyStep      = "step"
	MetaKeyState     = "state"
	MetaKeyVersion   = "version"
	MetaKeyDriver    = "driver"
	MetaKeyFunc      = "func"
	MetaKeyRunID     = "run_id"
	MetaKeyParameter = "parameter"
)

// Log message constants
const (
	LogMsgEngineCreated     = "engine created"
	LogMsgTemplateParsed    = "template parsed"
	LogMsgTemplateCacheHit  = "template served from cache"
	LogMsgResolveComplete   = "resolution complete"
	LogMsgRunStarted        = "chain run started"
	LogMsgStepStarted       = "chain step started"
	LogMsgStepCompleted     = "chain step completed"
	LogMsgRunCompleted      = "chain run completed"
	LogMsgRunFailed         = "chain run failed"
	LogMsgRunCanceled       = "chain run canceled by consumer"
	LogMsgProviderInvoke    = "invoking provider"
	LogMsgProviderFailed    = "provider invocation failed"
	LogMsgEventDropped      = "event dropped after close"
	LogMsgStorageOpened     = "storage opened"
	LogMsgStorageMigrated   = "storage schema migrated"
	LogMsgRateLimitWait     = "waiting for provider rate limit"
	LogMsgSSEWriteFailed    = "failed to write SSE frame"
	LogMsgParameterMissing  = "template reads parameters that were not provided"
	LogMsgResolveFailed     = "resolution failed"
	LogMsgTemplateHasErrors = "template has syntax errors"
)

// Log field constants
const (
	LogFieldPath       = "path"
	LogFieldRunID      = "run_id"
	LogFieldStep       = "step"
	LogFieldModel      = "model"
	LogFieldProvider   = "provider"
	LogFieldMessages   = "message_count"
	LogFieldErrors     = "error_count"
	LogFieldParameters = "parameters"
	LogFieldEventID    = "event_id"
	LogFieldEventCount = "event_count"
	LogFieldDriver     = "driver"
	LogFieldCompleted  = "completed"
	LogFieldHash       = "hash"
	LogFieldTokens     = "total_tokens"
	LogFieldFuncs      = "funcs"
	LogFieldChannel    = "channel"
	LogFieldVersion    = "version"
)
