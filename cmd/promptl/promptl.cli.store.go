package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/itsatony/go-promptl"
)

// storeConfig holds parsed store command configuration
type storeConfig struct {
	subcommand   string
	path         string
	templatePath string
	version      int
	tags         string
	prefix       string
	author       string
	format       string
	driver       string
	conn         string
	envFile      string
}

func runStore(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := parseStoreFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgUnknownSubcommand, err)
		return ExitCodeUsageError
	}

	if err := loadEnv(cfg.envFile); err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgEnvFileFailed, err)
		return ExitCodeInputError
	}
	if cfg.driver == "" {
		cfg.driver = envOr(EnvStorageDriver, FlagDefaultDriver)
	}
	if cfg.conn == "" {
		cfg.conn = envOr(EnvStorageConn, FlagDefaultConn)
	}

	store, err := promptl.OpenStorage(cfg.driver, cfg.conn)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgStorageOpenFailed, err)
		return ExitCodeInputError
	}
	defer store.Close()

	ctx := context.Background()
	switch cfg.subcommand {
	case StoreCmdSave:
		return storeSave(ctx, store, cfg, stdin, stdout, stderr)
	case StoreCmdGet:
		return storeGet(ctx, store, cfg, stdout, stderr)
	case StoreCmdList:
		return storeList(ctx, store, cfg, stdout, stderr)
	case StoreCmdDelete:
		if err := store.Delete(ctx, cfg.path); err != nil {
			fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgStorageFailed, err)
			return ExitCodeError
		}
		return ExitCodeSuccess
	}
	return ExitCodeUsageError
}

func parseStoreFlags(args []string) (*storeConfig, error) {
	if len(args) == 0 {
		return nil, errors.New(ErrMsgUnknownSubcommand)
	}
	cfg := &storeConfig{subcommand: args[0]}
	switch cfg.subcommand {
	case StoreCmdSave, StoreCmdGet, StoreCmdList, StoreCmdDelete:
	default:
		return nil, fmt.Errorf("%s: %s", ErrMsgUnknownSubcommand, cfg.subcommand)
	}

	fs := flag.NewFlagSet(CmdNameStore, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.path, FlagPath, "", "")
	fs.StringVar(&cfg.path, FlagPathShort, "", "")
	fs.StringVar(&cfg.templatePath, FlagTemplate, "", "")
	fs.StringVar(&cfg.templatePath, FlagTemplateShort, "", "")
	fs.IntVar(&cfg.version, FlagVersion, 0, "")
	fs.StringVar(&cfg.tags, FlagTags, "", "")
	fs.StringVar(&cfg.prefix, FlagPrefix, "", "")
	fs.StringVar(&cfg.author, FlagAuthor, "", "")
	fs.StringVar(&cfg.format, FlagFormat, FlagDefaultFormat, "")
	fs.StringVar(&cfg.format, FlagFormatShort, FlagDefaultFormat, "")
	fs.StringVar(&cfg.driver, FlagDriver, "", "")
	fs.StringVar(&cfg.conn, FlagConn, "", "")
	fs.StringVar(&cfg.envFile, FlagEnvFile, FlagDefaultEnvFile, "")

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	if cfg.format != OutputFormatText && cfg.format != OutputFormatJSON {
		return nil, errors.New(ErrMsgInvalidFormat)
	}
	if cfg.subcommand != StoreCmdList && cfg.path == "" {
		return nil, errors.New(ErrMsgMissingPath)
	}
	if cfg.subcommand == StoreCmdSave && cfg.templatePath == "" {
		return nil, errors.New(ErrMsgMissingTemplate)
	}

	return cfg, nil
}

func storeSave(ctx context.Context, store promptl.PromptStorage, cfg *storeConfig, stdin io.Reader, stdout, stderr io.Writer) int {
	source, err := readInput(cfg.templatePath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgReadFileFailed, err)
		return ExitCodeInputError
	}

	// refuse to store documents that cannot run
	tmpl := promptl.MustNew().Parse(cfg.path, string(source))
	if tmpl.HasErrors() {
		for _, e := range tmpl.Errors() {
			fmt.Fprintln(stderr, e.Error())
		}
		return ExitCodeValidationError
	}

	prompt := &promptl.StoredPrompt{
		Path:      cfg.path,
		Source:    string(source),
		Tags:      splitList(cfg.tags),
		CreatedBy: cfg.author,
	}
	if err := store.Save(ctx, prompt); err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgStorageFailed, err)
		return ExitCodeError
	}

	if cfg.format == OutputFormatJSON {
		return writeJSON(prompt, stdout)
	}
	fmt.Fprintf(stdout, StoreTextSaved+FmtNewline, prompt.Path, prompt.Version)
	return ExitCodeSuccess
}

func storeGet(ctx context.Context, store promptl.PromptStorage, cfg *storeConfig, stdout, stderr io.Writer) int {
	var (
		prompt *promptl.StoredPrompt
		err    error
	)
	if cfg.version > 0 {
		prompt, err = store.GetVersion(ctx, cfg.path, cfg.version)
	} else {
		prompt, err = store.Get(ctx, cfg.path)
	}
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgStorageFailed, err)
		return ExitCodeError
	}

	if cfg.format == OutputFormatJSON {
		return writeJSON(prompt, stdout)
	}
	fmt.Fprint(stdout, prompt.Source)
	return ExitCodeSuccess
}

func storeList(ctx context.Context, store promptl.PromptStorage, cfg *storeConfig, stdout, stderr io.Writer) int {
	prompts, err := store.List(ctx, &promptl.PromptQuery{
		PathPrefix: cfg.prefix,
		Tags:       splitList(cfg.tags),
	})
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgStorageFailed, err)
		return ExitCodeError
	}

	if cfg.format == OutputFormatJSON {
		return writeJSON(prompts, stdout)
	}
	for _, p := range prompts {
		fmt.Fprintf(stdout, StoreTextListed+FmtNewline, p.Path, p.Version, p.CreatedAt.Format(time.RFC3339))
	}
	return ExitCodeSuccess
}

func writeJSON(v any, stdout io.Writer) int {
	jsonBytes, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(stdout, string(jsonBytes))
	return ExitCodeSuccess
}
