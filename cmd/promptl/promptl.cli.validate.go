package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/itsatony/go-promptl"
)

// validateConfig holds parsed validate command configuration
type validateConfig struct {
	templatePath string
	format       string
}

// validationOutput represents JSON output for validation
type validationOutput struct {
	Valid      bool           `json:"valid"`
	Issues     []issueOutput  `json:"issues,omitempty"`
	Parameters []string       `json:"parameters,omitempty"`
	Config     promptl.Config `json:"config,omitempty"`
}

type issueOutput struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

func runValidate(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := parseValidateFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgMissingTemplate, err)
		return ExitCodeUsageError
	}

	source, err := readInput(cfg.templatePath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, FmtErrorWithCause, ErrMsgReadFileFailed, err)
		return ExitCodeInputError
	}

	engine := promptl.MustNew()
	path := documentPath(cfg.templatePath)
	tmpl := engine.Parse(path, string(source))

	// a resolution without parameters reports what the template reads
	var parameters []string
	if !tmpl.HasErrors() {
		if _, meta, err := engine.Resolve(context.Background(), promptl.ResolveInput{
			Document: promptl.Document{Path: path, Source: string(source)},
		}); err == nil {
			parameters = meta.Parameters
		}
	}

	if cfg.format == OutputFormatJSON {
		return outputValidationJSON(tmpl, parameters, stdout)
	}
	return outputValidationText(tmpl, parameters, stdout)
}

func parseValidateFlags(args []string) (*validateConfig, error) {
	fs := flag.NewFlagSet(CmdNameValidate, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfg := &validateConfig{}

	fs.StringVar(&cfg.templatePath, FlagTemplate, "", "")
	fs.StringVar(&cfg.templatePath, FlagTemplateShort, "", "")
	fs.StringVar(&cfg.format, FlagFormat, FlagDefaultFormat, "")
	fs.StringVar(&cfg.format, FlagFormatShort, FlagDefaultFormat, "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.templatePath == "" {
		return nil, errors.New(ErrMsgMissingTemplate)
	}

	if cfg.format != OutputFormatText && cfg.format != OutputFormatJSON {
		return nil, errors.New(ErrMsgInvalidFormat)
	}

	return cfg, nil
}

func outputValidationText(tmpl *promptl.Template, parameters []string, stdout io.Writer) int {
	issues := tmpl.Errors()

	if len(issues) == 0 {
		fmt.Fprintln(stdout, ValidationTextSuccess)
		if len(parameters) > 0 {
			fmt.Fprintf(stdout, ValidationTextParameters+FmtNewline, strings.Join(parameters, ", "))
		}
		return ExitCodeSuccess
	}

	fmt.Fprintln(stdout, ValidationTextIssueHeader)
	for _, issue := range issues {
		fmt.Fprintf(stdout, ValidationTextIssueFormat+FmtNewline,
			issue.Code, issue.Message, issue.Position.Line, issue.Position.Column)
	}
	fmt.Fprintf(stdout, ValidationTextErrorSummary+FmtNewline, len(issues))
	return ExitCodeValidationError
}

func outputValidationJSON(tmpl *promptl.Template, parameters []string, stdout io.Writer) int {
	output := validationOutput{
		Valid:      !tmpl.HasErrors(),
		Issues:     issuesFrom(tmpl.Errors()),
		Parameters: parameters,
		Config:     tmpl.Config(),
	}

	jsonBytes, _ := json.MarshalIndent(output, "", "  ")
	fmt.Fprintln(stdout, string(jsonBytes))

	if !output.Valid {
		return ExitCodeValidationError
	}
	return ExitCodeSuccess
}

func issuesFrom(errs []*promptl.CompileError) []issueOutput {
	if len(errs) == 0 {
		return nil
	}
	out := make([]issueOutput, 0, len(errs))
	for _, e := range errs {
		out = append(out, issueOutput{
			Code:    e.Code,
			Message: e.Message,
			Line:    e.Position.Line,
			Column:  e.Position.Column,
		})
	}
	return out
}
