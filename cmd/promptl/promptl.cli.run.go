package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/itsatony/go-promptl"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// referenceFileExt is tried when a referenced file has no extension
const referenceFileExt = ".promptl"

// runConfig holds parsed run command configuration
type runConfig struct {
	templatePath string
	promptPath   string
	dataJSON     string
	dataFilePath string
	provider     string
	model        string
	response     string
	rateLimit    float64
	sse          bool
	driver       string
	conn         string
	envFile      string
	verbose      bool
}

func runRun(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgMissingSource, err)
		return ExitCodeUsageError
	}

	if err := loadEnv(cfg.envFile); err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgEnvFileFailed, err)
		return ExitCodeInputError
	}
	applyRunEnv(cfg)

	data, err := loadData(cfg.dataJSON, cfg.dataFilePath)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgInvalidJSON, err)
		return ExitCodeInputError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newCLILogger(cfg.verbose, stderr)
	defer func() { _ = logger.Sync() }()

	provider, defaultModel, err := newProvider(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgProviderSetupFailed, err)
		return ExitCodeUsageError
	}

	opts := []promptl.RunnerOption{
		promptl.WithProvider(provider),
		promptl.WithDefaultModel(defaultModel),
	}
	if cfg.rateLimit > 0 {
		opts = append(opts, promptl.WithRateLimit(rate.Limit(cfg.rateLimit), 1))
	}

	engine := promptl.MustNew(promptl.WithLogger(logger))

	var run *promptl.Run
	if cfg.promptPath != "" {
		store, err := promptl.OpenStorage(cfg.driver, cfg.conn)
		if err != nil {
			fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgStorageOpenFailed, err)
			return ExitCodeInputError
		}
		defer store.Close()

		runner := promptl.NewRunner(engine, append(opts, promptl.WithStorage(store))...)
		run, err = runner.RunPath(ctx, cfg.promptPath, data)
		if err != nil {
			fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgRunFailed, err)
			return ExitCodeError
		}
	} else {
		source, err := readInput(cfg.templatePath, stdin)
		if err != nil {
			fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgReadFileFailed, err)
			return ExitCodeInputError
		}
		path := filepath.ToSlash(documentPath(cfg.templatePath))
		runner := promptl.NewRunner(engine, opts...)
		run, err = runner.Run(ctx, promptl.RunInput{
			Document:    promptl.Document{Path: path, Source: string(source)},
			Parameters:  data,
			ReferenceFn: fileReferenceFn(),
		})
		if err != nil {
			fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgRunFailed, err)
			return ExitCodeError
		}
	}

	if cfg.sse {
		if err := promptl.StreamSSE(ctx, stdout, run); err != nil {
			fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgWriteOutputFailed, err)
			return ExitCodeError
		}
	} else {
		streamText(run, stdout)
	}

	if _, err := run.Response(); err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgRunFailed, err)
		return ExitCodeError
	}
	usage := run.Usage()
	logger.Info(LogMsgRunFinished,
		zap.String(promptl.LogFieldRunID, run.ID()),
		zap.Int(promptl.LogFieldTokens, usage.TotalTokens))
	return ExitCodeSuccess
}

func parseRunFlags(args []string) (*runConfig, error) {
	fs := flag.NewFlagSet(CmdNameRun, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfg := &runConfig{}

	fs.StringVar(&cfg.templatePath, FlagTemplate, "", "")
	fs.StringVar(&cfg.templatePath, FlagTemplateShort, "", "")
	fs.StringVar(&cfg.promptPath, FlagPath, "", "")
	fs.StringVar(&cfg.promptPath, FlagPathShort, "", "")
	fs.StringVar(&cfg.dataJSON, FlagData, "", "")
	fs.StringVar(&cfg.dataJSON, FlagDataShort, "", "")
	fs.StringVar(&cfg.dataFilePath, FlagDataFile, "", "")
	fs.StringVar(&cfg.dataFilePath, FlagDataFileShort, "", "")
	fs.StringVar(&cfg.provider, FlagProvider, "", "")
	fs.StringVar(&cfg.provider, FlagProviderShort, "", "")
	fs.StringVar(&cfg.model, FlagModel, "", "")
	fs.StringVar(&cfg.model, FlagModelShort, "", "")
	fs.StringVar(&cfg.response, FlagResponse, "", "")
	fs.Float64Var(&cfg.rateLimit, FlagRateLimit, 0, "")
	fs.BoolVar(&cfg.sse, FlagSSE, false, "")
	fs.StringVar(&cfg.driver, FlagDriver, "", "")
	fs.StringVar(&cfg.conn, FlagConn, "", "")
	fs.StringVar(&cfg.envFile, FlagEnvFile, FlagDefaultEnvFile, "")
	fs.BoolVar(&cfg.verbose, FlagVerbose, false, "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.templatePath == "" && cfg.promptPath == "" {
		return nil, errors.New(ErrMsgMissingSource)
	}

	return cfg, nil
}

// applyRunEnv fills flags left empty from the environment
func applyRunEnv(cfg *runConfig) {
	if cfg.provider == "" {
		cfg.provider = envOr(EnvProvider, FlagDefaultProvider)
	}
	if cfg.model == "" {
		cfg.model = os.Getenv(EnvModel)
	}
	if cfg.driver == "" {
		cfg.driver = envOr(EnvStorageDriver, FlagDefaultDriver)
	}
	if cfg.conn == "" {
		cfg.conn = envOr(EnvStorageConn, FlagDefaultConn)
	}
}

// newProvider builds the provider named in cfg and returns it with the
// model used for steps whose config names none
func newProvider(ctx context.Context, cfg *runConfig) (promptl.Provider, string, error) {
	switch cfg.provider {
	case ProviderNameStatic:
		model := cfg.model
		if model == "" {
			model = ProviderNameStatic
		}
		return promptl.NewStaticProvider(&promptl.Response{Text: cfg.response}), model, nil
	case ProviderNameOllama:
		return promptl.NewOllamaProvider(ollamaBaseURL(os.Getenv(promptl.OllamaHostEnv)), nil), cfg.model, nil
	case ProviderNameGemini:
		p, err := promptl.NewGeminiProvider(ctx, os.Getenv(promptl.GeminiAPIKeyEnv))
		if err != nil {
			return nil, "", err
		}
		model := cfg.model
		if model == "" {
			model = promptl.GeminiDefaultModel
		}
		return p, model, nil
	}
	return nil, "", fmt.Errorf("%s: %s", ErrMsgUnknownProvider, cfg.provider)
}

// ollamaBaseURL accepts OLLAMA_HOST values with or without a scheme
func ollamaBaseURL(host string) string {
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// fileReferenceFn reads referenced prompts from disk, trying the
// extension when the referenced file has none
func fileReferenceFn() promptl.ReferenceFn {
	return func(ctx context.Context, path string) (string, error) {
		name := filepath.FromSlash(path)
		data, err := os.ReadFile(name)
		if errors.Is(err, os.ErrNotExist) && filepath.Ext(name) == "" {
			data, err = os.ReadFile(name + referenceFileExt)
		}
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", promptl.NewDocumentNotFoundError(path)
			}
			return "", err
		}
		return string(data), nil
	}
}

// streamText prints text deltas as they arrive, ending each step's answer
// with a newline
func streamText(run *promptl.Run, stdout io.Writer) {
	for ev := range run.Events() {
		if pe, ok := ev.ProviderEvent(); ok {
			if pe.Type == promptl.ProviderEventTextDelta {
				fmt.Fprint(stdout, pe.TextDelta)
			}
			continue
		}
		ce, _ := ev.ChainEvent()
		if ce.Type == promptl.ChainEventStepComplete {
			fmt.Fprint(stdout, FmtNewline)
		}
	}
}

// newCLILogger logs to stderr in console format when verbose, and nowhere
// otherwise
func newCLILogger(verbose bool, stderr io.Writer) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(stderr), zapcore.DebugLevel)
	return zap.New(core)
}
