package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itsatony/go-promptl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTempTemplate writes source to a file in a fresh temp dir
func createTempTemplate(t *testing.T, source string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "prompt.promptl", source)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Dispatch(t *testing.T) {
	t.Run("no args prints usage", func(t *testing.T) {
		code, out, _ := runCLI(t, "")
		assert.Equal(t, ExitCodeSuccess, code)
		assert.Contains(t, out, "Usage:")
	})

	t.Run("help for a command", func(t *testing.T) {
		for _, cmd := range []string{CmdNameRender, CmdNameValidate, CmdNameRun, CmdNameStore, CmdNameVersion, CmdNameHelp} {
			code, out, _ := runCLI(t, "", CmdNameHelp, cmd)
			assert.Equal(t, ExitCodeSuccess, code, cmd)
			assert.Contains(t, out, "promptl "+cmd, cmd)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		code, out, _ := runCLI(t, "", "frobnicate")
		assert.Equal(t, ExitCodeUsageError, code)
		assert.Contains(t, out, ErrMsgUnknownCommand)
	})
}

func TestRender(t *testing.T) {
	t.Run("text output", func(t *testing.T) {
		path := createTempTemplate(t, "Hello {{ name }}\n<user>Hi</user>")
		code, out, _ := runCLI(t, "", CmdNameRender, "-t", path, "-d", `{"name":"Alice"}`)
		require.Equal(t, ExitCodeSuccess, code)
		assert.Contains(t, out, "[system]")
		assert.Contains(t, out, "Hello Alice")
		assert.Contains(t, out, "[user]")
	})

	t.Run("json output from stdin", func(t *testing.T) {
		code, out, _ := runCLI(t, "---\nmodel: m\n---\n<user>{{ q }}</user>",
			CmdNameRender, "-t", "-", "-F", "json", "-d", `{"q":"why"}`)
		require.Equal(t, ExitCodeSuccess, code)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "m", got["config"].(map[string]any)["model"])
		assert.NotContains(t, got, "parameters")
		assert.NotEmpty(t, got["hash"])
		assert.Len(t, got["messages"], 1)
	})

	t.Run("json lists missing parameters", func(t *testing.T) {
		code, out, _ := runCLI(t, "<user>{{ q }} {{ first }}</user>", CmdNameRender, "-t", "-", "-F", "json")
		require.Equal(t, ExitCodeSuccess, code)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, []any{"first", "q"}, got["parameters"])
	})

	t.Run("data file", func(t *testing.T) {
		dir := t.TempDir()
		tmpl := writeFile(t, dir, "p.promptl", "<user>{{ who }}</user>")
		data := writeFile(t, dir, "data.json", `{"who":"Bob"}`)
		code, out, _ := runCLI(t, "", CmdNameRender, "-t", tmpl, "-f", data)
		require.Equal(t, ExitCodeSuccess, code)
		assert.Contains(t, out, "Bob")
	})

	t.Run("output file", func(t *testing.T) {
		dir := t.TempDir()
		tmpl := writeFile(t, dir, "p.promptl", "<user>saved</user>")
		target := filepath.Join(dir, "out.txt")
		code, out, _ := runCLI(t, "", CmdNameRender, "-t", tmpl, "-o", target)
		require.Equal(t, ExitCodeSuccess, code)
		assert.Empty(t, out)
		written, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Contains(t, string(written), "saved")
	})

	t.Run("step selects the chain step", func(t *testing.T) {
		path := createTempTemplate(t, "<step><user>one</user></step><step><user>two</user></step>")
		code, out, _ := runCLI(t, "", CmdNameRender, "-t", path, "-F", "json")
		require.Equal(t, ExitCodeSuccess, code)
		assert.Contains(t, out, "one")
		assert.NotContains(t, out, "two")
	})

	t.Run("references resolve next to the template", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "intro.promptl", "Intro text")
		main := writeFile(t, dir, "main.promptl", `<prompt path="intro" /><user>Go</user>`)
		code, out, stderr := runCLI(t, "", CmdNameRender, "-t", main)
		require.Equal(t, ExitCodeSuccess, code, stderr)
		assert.Contains(t, out, "Intro text")
	})

	t.Run("parse errors are reported but do not fail", func(t *testing.T) {
		path := createTempTemplate(t, "{{ endif }}ok</user>")
		code, _, stderr := runCLI(t, "", CmdNameRender, "-t", path)
		assert.Equal(t, ExitCodeSuccess, code)
		assert.NotEmpty(t, stderr)
	})

	t.Run("missing template", func(t *testing.T) {
		code, _, stderr := runCLI(t, "", CmdNameRender)
		assert.Equal(t, ExitCodeUsageError, code)
		assert.Contains(t, stderr, ErrMsgMissingTemplate)
	})

	t.Run("invalid format", func(t *testing.T) {
		path := createTempTemplate(t, "x")
		code, _, _ := runCLI(t, "", CmdNameRender, "-t", path, "-F", "xml")
		assert.Equal(t, ExitCodeUsageError, code)
	})

	t.Run("negative step", func(t *testing.T) {
		path := createTempTemplate(t, "x")
		code, _, _ := runCLI(t, "", CmdNameRender, "-t", path, "--step", "-1")
		assert.Equal(t, ExitCodeUsageError, code)
	})

	t.Run("bad json data", func(t *testing.T) {
		path := createTempTemplate(t, "x")
		code, _, stderr := runCLI(t, "", CmdNameRender, "-t", path, "-d", "{nope")
		assert.Equal(t, ExitCodeInputError, code)
		assert.Contains(t, stderr, ErrMsgInvalidJSON)
	})

	t.Run("missing file", func(t *testing.T) {
		code, _, _ := runCLI(t, "", CmdNameRender, "-t", filepath.Join(t.TempDir(), "none.promptl"))
		assert.Equal(t, ExitCodeInputError, code)
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid template lists parameters", func(t *testing.T) {
		path := createTempTemplate(t, "<user>Hello {{ name }}</user>")
		code, out, _ := runCLI(t, "", CmdNameValidate, "-t", path)
		assert.Equal(t, ExitCodeSuccess, code)
		assert.Contains(t, out, ValidationTextSuccess)
		assert.Contains(t, out, "Parameters: name")
	})

	t.Run("invalid template", func(t *testing.T) {
		path := createTempTemplate(t, "{{ endif }}ok</user>")
		code, out, _ := runCLI(t, "", CmdNameValidate, "-t", path)
		assert.Equal(t, ExitCodeValidationError, code)
		assert.Contains(t, out, ValidationTextIssueHeader)
		assert.Contains(t, out, "error(s)")
	})

	t.Run("json output", func(t *testing.T) {
		code, out, _ := runCLI(t, "---\ntemperature: 0.5\n---\n<user>{{ a }}</user>", CmdNameValidate, "-t", "-", "-F", "json")
		require.Equal(t, ExitCodeSuccess, code)

		var got validationOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.True(t, got.Valid)
		assert.Empty(t, got.Issues)
		assert.Equal(t, []string{"a"}, got.Parameters)
	})

	t.Run("json output with issues", func(t *testing.T) {
		code, out, _ := runCLI(t, "{{ endif }}ok</user>", CmdNameValidate, "-t", "-", "-F", "json")
		assert.Equal(t, ExitCodeValidationError, code)

		var got validationOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.False(t, got.Valid)
		require.NotEmpty(t, got.Issues)
		assert.NotEmpty(t, got.Issues[0].Code)
		assert.Positive(t, got.Issues[0].Line)
	})

	t.Run("missing template", func(t *testing.T) {
		code, _, _ := runCLI(t, "", CmdNameValidate)
		assert.Equal(t, ExitCodeUsageError, code)
	})
}

func TestRunCommand(t *testing.T) {
	t.Run("streams text from the static provider", func(t *testing.T) {
		path := createTempTemplate(t, "<user>Hi {{ name }}</user>")
		code, out, stderr := runCLI(t, "", CmdNameRun, "-t", path, "-d", `{"name":"Alice"}`,
			"-P", ProviderNameStatic, "--response", "Hello Alice", "-m", "m", "--env", "")
		require.Equal(t, ExitCodeSuccess, code, stderr)
		assert.Equal(t, "Hello Alice\n", out)
	})

	t.Run("one line per step", func(t *testing.T) {
		path := createTempTemplate(t, "<step><user>one</user></step><step><user>two</user></step>")
		code, out, stderr := runCLI(t, "", CmdNameRun, "-t", path,
			"-P", ProviderNameStatic, "--response", "ok", "--env", "")
		require.Equal(t, ExitCodeSuccess, code, stderr)
		assert.Equal(t, "ok\nok\n", out)
	})

	t.Run("sse frames", func(t *testing.T) {
		path := createTempTemplate(t, "<user>Hi</user>")
		code, out, stderr := runCLI(t, "", CmdNameRun, "-t", path,
			"-P", ProviderNameStatic, "--response", "yo", "--sse", "--env", "")
		require.Equal(t, ExitCodeSuccess, code, stderr)
		assert.True(t, strings.HasPrefix(out, "id: 0\nevent: latitude-event\n"))
		assert.Contains(t, out, "event: provider-event")
		assert.Contains(t, out, `"type":"complete"`)
	})

	t.Run("verbose logs to stderr", func(t *testing.T) {
		path := createTempTemplate(t, "<user>Hi</user>")
		code, _, stderr := runCLI(t, "", CmdNameRun, "-t", path,
			"-P", ProviderNameStatic, "--response", "yo", "--verbose", "--env", "")
		require.Equal(t, ExitCodeSuccess, code)
		assert.Contains(t, stderr, LogMsgRunFinished)
	})

	t.Run("stored prompt", func(t *testing.T) {
		dir := t.TempDir()
		tmpl := writeFile(t, t.TempDir(), "p.promptl", "<user>stored</user>")
		code, _, stderr := runCLI(t, "", CmdNameStore, StoreCmdSave, "-p", "team/p", "-t", tmpl,
			"--driver", "filesystem", "--conn", dir, "--env", "")
		require.Equal(t, ExitCodeSuccess, code, stderr)

		code, out, stderr := runCLI(t, "", CmdNameRun, "-p", "team/p",
			"--driver", "filesystem", "--conn", dir,
			"-P", ProviderNameStatic, "--response", "done", "--env", "")
		require.Equal(t, ExitCodeSuccess, code, stderr)
		assert.Equal(t, "done\n", out)
	})

	t.Run("env file selects provider", func(t *testing.T) {
		envFile := writeFile(t, t.TempDir(), ".env", EnvProvider+"="+ProviderNameStatic+"\n")
		t.Cleanup(func() { _ = os.Unsetenv(EnvProvider) })
		require.NoError(t, os.Unsetenv(EnvProvider))

		path := createTempTemplate(t, "<user>Hi</user>")
		code, out, stderr := runCLI(t, "", CmdNameRun, "-t", path, "--response", "from env", "--env", envFile)
		require.Equal(t, ExitCodeSuccess, code, stderr)
		assert.Equal(t, "from env\n", out)
	})

	t.Run("missing source", func(t *testing.T) {
		code, _, stderr := runCLI(t, "", CmdNameRun, "--env", "")
		assert.Equal(t, ExitCodeUsageError, code)
		assert.Contains(t, stderr, ErrMsgMissingSource)
	})

	t.Run("unknown provider", func(t *testing.T) {
		path := createTempTemplate(t, "<user>Hi</user>")
		code, _, stderr := runCLI(t, "", CmdNameRun, "-t", path, "-P", "nope", "--env", "")
		assert.Equal(t, ExitCodeUsageError, code)
		assert.Contains(t, stderr, ErrMsgUnknownProvider)
	})

	t.Run("gemini without key", func(t *testing.T) {
		t.Setenv(promptl.GeminiAPIKeyEnv, "")
		path := createTempTemplate(t, "<user>Hi</user>")
		code, _, stderr := runCLI(t, "", CmdNameRun, "-t", path, "-P", ProviderNameGemini, "--env", "")
		assert.Equal(t, ExitCodeUsageError, code)
		assert.Contains(t, stderr, ErrMsgProviderSetupFailed)
	})

	t.Run("template with parse errors", func(t *testing.T) {
		path := createTempTemplate(t, "{{ endif }}ok</user>")
		code, _, stderr := runCLI(t, "", CmdNameRun, "-t", path,
			"-P", ProviderNameStatic, "--response", "x", "--env", "")
		assert.Equal(t, ExitCodeError, code)
		assert.Contains(t, stderr, ErrMsgRunFailed)
	})
}

func TestStoreCommand(t *testing.T) {
	dir := t.TempDir()
	storeArgs := func(args ...string) []string {
		return append(append([]string{CmdNameStore}, args...), "--driver", "filesystem", "--conn", dir, "--env", "")
	}
	v1 := createTempTemplate(t, "<user>first</user>")
	v2 := createTempTemplate(t, "<user>second</user>")

	code, out, stderr := runCLI(t, "", storeArgs(StoreCmdSave, "-p", "shared/tone", "-t", v1, "--tags", "shared, tone", "--author", "ana")...)
	require.Equal(t, ExitCodeSuccess, code, stderr)
	assert.Equal(t, "saved shared/tone v1\n", out)

	code, out, stderr = runCLI(t, "", storeArgs(StoreCmdSave, "-p", "shared/tone", "-t", v2, "-F", "json")...)
	require.Equal(t, ExitCodeSuccess, code, stderr)
	var saved promptl.StoredPrompt
	require.NoError(t, json.Unmarshal([]byte(out), &saved))
	assert.Equal(t, 2, saved.Version)

	code, _, _ = runCLI(t, "<user>from stdin</user>", storeArgs(StoreCmdSave, "-p", "other/p", "-t", "-")...)
	require.Equal(t, ExitCodeSuccess, code)

	t.Run("get latest", func(t *testing.T) {
		code, out, _ := runCLI(t, "", storeArgs(StoreCmdGet, "-p", "shared/tone")...)
		assert.Equal(t, ExitCodeSuccess, code)
		assert.Equal(t, "<user>second</user>", out)
	})

	t.Run("get version", func(t *testing.T) {
		code, out, _ := runCLI(t, "", storeArgs(StoreCmdGet, "-p", "shared/tone", "--version", "1")...)
		assert.Equal(t, ExitCodeSuccess, code)
		assert.Equal(t, "<user>first</user>", out)
	})

	t.Run("get missing", func(t *testing.T) {
		code, _, stderr := runCLI(t, "", storeArgs(StoreCmdGet, "-p", "nope")...)
		assert.Equal(t, ExitCodeError, code)
		assert.Contains(t, stderr, ErrMsgStorageFailed)
	})

	t.Run("list by prefix", func(t *testing.T) {
		code, out, _ := runCLI(t, "", storeArgs(StoreCmdList, "--prefix", "shared/")...)
		assert.Equal(t, ExitCodeSuccess, code)
		assert.True(t, strings.HasPrefix(out, "shared/tone\tv2\t"))
		assert.NotContains(t, out, "other/p")
	})

	t.Run("list json", func(t *testing.T) {
		code, out, _ := runCLI(t, "", storeArgs(StoreCmdList, "-F", "json")...)
		assert.Equal(t, ExitCodeSuccess, code)
		var prompts []promptl.StoredPrompt
		require.NoError(t, json.Unmarshal([]byte(out), &prompts))
		assert.Len(t, prompts, 2)
	})

	t.Run("refuses invalid template", func(t *testing.T) {
		bad := createTempTemplate(t, "{{ endif }}ok</user>")
		code, _, stderr := runCLI(t, "", storeArgs(StoreCmdSave, "-p", "bad", "-t", bad)...)
		assert.Equal(t, ExitCodeValidationError, code)
		assert.NotEmpty(t, stderr)
	})

	t.Run("delete", func(t *testing.T) {
		code, _, _ := runCLI(t, "", storeArgs(StoreCmdDelete, "-p", "other/p")...)
		require.Equal(t, ExitCodeSuccess, code)
		code, _, _ = runCLI(t, "", storeArgs(StoreCmdGet, "-p", "other/p")...)
		assert.Equal(t, ExitCodeError, code)
	})

	t.Run("usage errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
		}{
			{"no subcommand", []string{CmdNameStore}},
			{"unknown subcommand", []string{CmdNameStore, "rename"}},
			{"get without path", storeArgs(StoreCmdGet)},
			{"save without template", storeArgs(StoreCmdSave, "-p", "x")},
			{"bad format", storeArgs(StoreCmdList, "-F", "yaml")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				code, _, _ := runCLI(t, "", tt.args...)
				assert.Equal(t, ExitCodeUsageError, code)
			})
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		code, _, stderr := runCLI(t, "", CmdNameStore, StoreCmdList, "--driver", "nope", "--env", "")
		assert.Equal(t, ExitCodeInputError, code)
		assert.Contains(t, stderr, ErrMsgStorageOpenFailed)
	})
}

func TestVersion(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		code, out, _ := runCLI(t, "", CmdNameVersion)
		assert.Equal(t, ExitCodeSuccess, code)
		assert.Contains(t, out, "go-promptl version")
		assert.Contains(t, out, "Go: ")
	})

	t.Run("json", func(t *testing.T) {
		code, out, _ := runCLI(t, "", CmdNameVersion, "-F", "json")
		assert.Equal(t, ExitCodeSuccess, code)
		var v versionInfo
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		assert.NotEmpty(t, v.Version)
		assert.NotEmpty(t, v.GoVersion)
	})

	t.Run("invalid format", func(t *testing.T) {
		code, _, _ := runCLI(t, "", CmdNameVersion, "-F", "xml")
		assert.Equal(t, ExitCodeUsageError, code)
	})
}

func TestSetIfPresent(t *testing.T) {
	v := "old"
	setIfPresent(&v, "")
	assert.Equal(t, "old", v)
	setIfPresent(&v, "new")
	assert.Equal(t, "new", v)
}

func TestOllamaBaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"localhost:11434", "http://localhost:11434"},
		{"https://ollama.internal", "https://ollama.internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ollamaBaseURL(tt.in), tt.in)
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
}

func TestLoadData(t *testing.T) {
	data, err := loadData("", "")
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = loadData(`{"n": 1}`, "")
	require.NoError(t, err)
	assert.Equal(t, float64(1), data["n"])

	_, err = loadData("", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, loadEnv(""))
	assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))

	const key = "PROMPTL_CLI_TEST_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	require.NoError(t, os.Unsetenv(key))

	path := writeFile(t, t.TempDir(), ".env", key+"=loaded\n")
	require.NoError(t, loadEnv(path))
	assert.Equal(t, "loaded", os.Getenv(key))
	assert.Equal(t, "loaded", envOr(key, "fallback"))
	assert.Equal(t, "fallback", envOr("PROMPTL_CLI_TEST_UNSET", "fallback"))
}

func TestFileReferenceFn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.promptl", "with ext")
	writeFile(t, dir, "b.txt", "exact")
	ref := fileReferenceFn()
	ctx := context.Background()

	got, err := ref(ctx, filepath.ToSlash(filepath.Join(dir, "a")))
	require.NoError(t, err)
	assert.Equal(t, "with ext", got)

	got, err = ref(ctx, filepath.ToSlash(filepath.Join(dir, "b.txt")))
	require.NoError(t, err)
	assert.Equal(t, "exact", got)

	_, err = ref(ctx, filepath.ToSlash(filepath.Join(dir, "c")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c")
}
