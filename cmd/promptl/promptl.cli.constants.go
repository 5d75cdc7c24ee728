package main

// Command names
const (
	CmdNameRender   = "render"
	CmdNameValidate = "validate"
	CmdNameRun      = "run"
	CmdNameStore    = "store"
	CmdNameVersion  = "version"
	CmdNameHelp     = "help"
)

// Store subcommand names
const (
	StoreCmdSave   = "save"
	StoreCmdGet    = "get"
	StoreCmdList   = "list"
	StoreCmdDelete = "delete"
)

// Flag names - long form
const (
	FlagTemplate  = "template"
	FlagData      = "data"
	FlagDataFile  = "data-file"
	FlagOutput    = "output"
	FlagFormat    = "format"
	FlagStep      = "step"
	FlagProvider  = "provider"
	FlagModel     = "model"
	FlagEnvFile   = "env"
	FlagResponse  = "response"
	FlagSSE       = "sse"
	FlagVerbose   = "verbose"
	FlagDriver    = "driver"
	FlagConn      = "conn"
	FlagPath      = "path"
	FlagVersion   = "version"
	FlagTags      = "tags"
	FlagPrefix    = "prefix"
	FlagAuthor    = "author"
	FlagRateLimit = "rate"
)

// Flag names - short form
const (
	FlagTemplateShort = "t"
	FlagDataShort     = "d"
	FlagDataFileShort = "f"
	FlagOutputShort   = "o"
	FlagFormatShort   = "F"
	FlagProviderShort = "P"
	FlagModelShort    = "m"
	FlagPathShort     = "p"
)

// Flag default values
const (
	FlagDefaultOutput   = "-" // stdout
	FlagDefaultFormat   = "text"
	FlagDefaultEnvFile  = ".env"
	FlagDefaultProvider = ProviderNameOllama
	FlagDefaultDriver   = "filesystem"
	FlagDefaultConn     = "./prompts"
)

// Provider names accepted by the run command
const (
	ProviderNameStatic = "static"
	ProviderNameOllama = "ollama"
	ProviderNameGemini = "gemini"
)

// Environment variables read after the env file is loaded
const (
	EnvStorageDriver = "PROMPTL_STORAGE_DRIVER"
	EnvStorageConn   = "PROMPTL_STORAGE_CONN"
	EnvProvider      = "PROMPTL_PROVIDER"
	EnvModel         = "PROMPTL_MODEL"
)

// Output formats
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
)

// Exit codes
const (
	ExitCodeSuccess         = 0
	ExitCodeError           = 1
	ExitCodeUsageError      = 2
	ExitCodeValidationError = 3
	ExitCodeInputError      = 4
)

// Input source indicators
const (
	InputSourceStdin = "-"
)

// Error messages - ALL must be constants
const (
	ErrMsgUnknownCommand      = "unknown command"
	ErrMsgUnknownSubcommand   = "unknown store subcommand"
	ErrMsgMissingTemplate     = "template source required"
	ErrMsgMissingSource       = "template or stored prompt path required"
	ErrMsgMissingPath         = "prompt path required"
	ErrMsgInvalidJSON         = "invalid JSON data"
	ErrMsgReadFileFailed      = "failed to read file"
	ErrMsgWriteOutputFailed   = "failed to write output"
	ErrMsgResolveFailed       = "template resolution failed"
	ErrMsgInvalidFormat       = "invalid output format"
	ErrMsgInvalidStep         = "step must not be negative"
	ErrMsgUnknownProvider     = "unknown provider"
	ErrMsgProviderSetupFailed = "failed to set up provider"
	ErrMsgStorageOpenFailed   = "failed to open storage"
	ErrMsgStorageFailed       = "storage operation failed"
	ErrMsgRunFailed           = "run failed"
	ErrMsgEnvFileFailed       = "failed to load env file"
)

// Log messages
const (
	LogMsgRunFinished = "run finished"
)

// Help text templates
const (
	HelpMainUsage = `go-promptl - Prompt template compiler and chain runner CLI

Usage:
    promptl <command> [options]

Commands:
    render      Resolve a template into a conversation
    validate    Report parse diagnostics and missing parameters
    run         Execute a template as a chain against a provider
    store       Save, fetch and list stored prompts
    version     Show version information
    help        Show help for a command

Use "promptl help <command>" for more information about a command.`

	HelpRenderUsage = `Resolve a template into a conversation

Usage:
    promptl render [options]

Options:
    -t, --template <file>   Template file (use "-" for stdin)
    -d, --data <json>       JSON parameters string
    -f, --data-file <file>  JSON parameters file
    --step <n>              Step to resolve (default: 0)
    -F, --format <format>   Output format: text, json (default: text)
    -o, --output <file>     Output file (default: stdout)

Examples:
    promptl render -t prompt.promptl -d '{"name": "Alice"}'
    cat prompt.promptl | promptl render -t - -F json`

	HelpValidateUsage = `Report parse diagnostics and missing parameters

Usage:
    promptl validate [options]

Options:
    -t, --template <file>   Template file (use "-" for stdin)
    -F, --format <format>   Output format: text, json (default: text)

Exit code 3 is returned when the template has errors.`

	HelpRunUsage = `Execute a template as a chain against a provider

Usage:
    promptl run [options]

Options:
    -t, --template <file>   Template file (use "-" for stdin)
    -p, --path <path>       Run a stored prompt instead of a file
    -d, --data <json>       JSON parameters string
    -f, --data-file <file>  JSON parameters file
    -P, --provider <name>   Provider: ollama, gemini, static (default: ollama)
    -m, --model <model>     Model used when the prompt config has none
    --response <text>       Reply of the static provider
    --rate <n>              Maximum provider calls per second
    --sse                   Write Server-Sent Events frames
    --driver <name>         Storage driver for --path (default: filesystem)
    --conn <string>         Storage connection string (default: ./prompts)
    --env <file>            Env file to load (default: .env)
    --verbose               Log to stderr

Environment:
    GEMINI_API_KEY, OLLAMA_HOST, PROMPTL_PROVIDER, PROMPTL_MODEL,
    PROMPTL_STORAGE_DRIVER, PROMPTL_STORAGE_CONN

Examples:
    promptl run -t chain.promptl -d '{"topic": "go"}' -m llama3
    promptl run -p support/triage -P gemini --sse`

	HelpStoreUsage = `Save, fetch and list stored prompts

Usage:
    promptl store <save|get|list|delete> [options]

Options:
    -p, --path <path>       Prompt path
    -t, --template <file>   Template file for save (use "-" for stdin)
    --version <n>           Version for get (default: latest)
    --tags <a,b>            Tags for save, tag filter for list
    --prefix <prefix>       Path prefix filter for list
    --author <name>         Author recorded on save
    -F, --format <format>   Output format: text, json (default: text)
    --driver <name>         Storage driver (default: filesystem)
    --conn <string>         Storage connection string (default: ./prompts)
    --env <file>            Env file to load (default: .env)

Examples:
    promptl store save -p shared/tone -t tone.promptl --tags shared
    promptl store list --prefix shared/
    promptl store get -p shared/tone --version 2`

	HelpVersionUsage = `Show version information

Usage:
    promptl version [options]

Options:
    -F, --format <format>   Output format: text, json (default: text)`

	HelpHelpUsage = `Show help for a command

Usage:
    promptl help [command]`
)

// Version output format templates
const (
	VersionTextTemplate = "go-promptl version %s\nCommit: %s\nBranch: %s\nBuilt: %s\nGo: %s"
	VersionUnknown      = "unknown"
)

// Validation output format templates
const (
	ValidationTextSuccess      = "Template is valid"
	ValidationTextIssueHeader  = "Validation issues:"
	ValidationTextIssueFormat  = "  [%s] %s at line %d, column %d"
	ValidationTextErrorSummary = "%d error(s)"
	ValidationTextParameters   = "Parameters: %s"
)

// Render output format templates
const (
	RenderTextRoleFormat = "[%s]"
	RenderTextToolFormat = "  -> tool call %s %s(%s)"
	RenderTextImageFmt   = "  <image %s>"
)

// Store output format templates
const (
	StoreTextSaved  = "saved %s v%d"
	StoreTextListed = "%s\tv%d\t%s"
)

// CLI metadata
const (
	CLIName        = "promptl"
	CLIDescription = "Prompt template compiler and chain runner CLI"
)

// File permission constant
const (
	FilePermissions = 0644
)

// Format string constants
const (
	FmtErrorWithDetail = "%s: %s\n"
	FmtErrorWithCause  = "%s: %v\n"
	FmtNewline         = "\n"
)
