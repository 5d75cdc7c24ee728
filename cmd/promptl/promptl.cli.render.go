package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/itsatony/go-promptl"
)

// renderConfig holds parsed render command configuration
type renderConfig struct {
	templatePath string
	dataJSON     string
	dataFilePath string
	outputPath   string
	format       string
	step         int
}

// renderOutput represents JSON output for render
type renderOutput struct {
	Config     promptl.Config    `json:"config"`
	Messages   []promptl.Message `json:"messages"`
	Parameters []string          `json:"parameters,omitempty"`
	StepCount  int               `json:"stepCount"`
	Hash       string            `json:"hash"`
	Errors     []issueOutput     `json:"errors,omitempty"`
}

func runRender(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := parseRenderFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgMissingTemplate, err)
		return ExitCodeUsageError
	}

	source, err := readInput(cfg.templatePath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgReadFileFailed, err)
		return ExitCodeInputError
	}

	data, err := loadData(cfg.dataJSON, cfg.dataFilePath)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgInvalidJSON, err)
		return ExitCodeInputError
	}

	engine := promptl.MustNew()
	conv, meta, err := engine.Resolve(context.Background(), promptl.ResolveInput{
		Document:    promptl.Document{Path: filepath.ToSlash(documentPath(cfg.templatePath)), Source: string(source)},
		Parameters:  data,
		ReferenceFn: fileReferenceFn(),
		Step:        cfg.step,
	})
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgResolveFailed, err)
		return ExitCodeError
	}

	// parse diagnostics do not stop a best-effort render
	for _, e := range meta.Errors {
		fmt.Fprintln(stderr, e.Error())
	}

	var out []byte
	if cfg.format == OutputFormatJSON {
		out, err = json.MarshalIndent(renderOutput{
			Config:     conv.Config,
			Messages:   conv.Messages,
			Parameters: meta.Parameters,
			StepCount:  meta.StepCount,
			Hash:       meta.Hash,
			Errors:     issuesFrom(meta.Errors),
		}, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgWriteOutputFailed, err)
			return ExitCodeError
		}
		out = append(out, '\n')
	} else {
		out = []byte(formatConversation(conv))
	}

	if err := writeOutput(cfg.outputPath, out, stdout); err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgWriteOutputFailed, err)
		return ExitCodeError
	}

	return ExitCodeSuccess
}

func parseRenderFlags(args []string) (*renderConfig, error) {
	fs := flag.NewFlagSet(CmdNameRender, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfg := &renderConfig{}

	fs.StringVar(&cfg.templatePath, FlagTemplate, "", "")
	fs.StringVar(&cfg.templatePath, FlagTemplateShort, "", "")
	fs.StringVar(&cfg.dataJSON, FlagData, "", "")
	fs.StringVar(&cfg.dataJSON, FlagDataShort, "", "")
	fs.StringVar(&cfg.dataFilePath, FlagDataFile, "", "")
	fs.StringVar(&cfg.dataFilePath, FlagDataFileShort, "", "")
	fs.StringVar(&cfg.outputPath, FlagOutput, FlagDefaultOutput, "")
	fs.StringVar(&cfg.outputPath, FlagOutputShort, FlagDefaultOutput, "")
	fs.StringVar(&cfg.format, FlagFormat, FlagDefaultFormat, "")
	fs.StringVar(&cfg.format, FlagFormatShort, FlagDefaultFormat, "")
	fs.IntVar(&cfg.step, FlagStep, 0, "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.templatePath == "" {
		return nil, errors.New(ErrMsgMissingTemplate)
	}
	if cfg.format != OutputFormatText && cfg.format != OutputFormatJSON {
		return nil, errors.New(ErrMsgInvalidFormat)
	}
	if cfg.step < 0 {
		return nil, errors.New(ErrMsgInvalidStep)
	}

	return cfg, nil
}

// documentPath names a document read from a file; stdin has no path
func documentPath(templatePath string) string {
	if templatePath == InputSourceStdin {
		return ""
	}
	return templatePath
}

// formatConversation renders messages as role headed blocks
func formatConversation(conv *promptl.Conversation) string {
	var b strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString(FmtNewline)
		}
		fmt.Fprintf(&b, RenderTextRoleFormat+FmtNewline, msg.Role)
		for _, c := range msg.Content {
			switch v := c.(type) {
			case promptl.TextContent:
				b.WriteString(v.Text)
				b.WriteString(FmtNewline)
			case promptl.ImageContent:
				fmt.Fprintf(&b, RenderTextImageFmt+FmtNewline, v.Source)
			case promptl.ToolCallContent:
				args, _ := json.Marshal(v.ToolArguments)
				fmt.Fprintf(&b, RenderTextToolFormat+FmtNewline, v.ToolCallID, v.ToolName, args)
			}
		}
	}
	return b.String()
}
