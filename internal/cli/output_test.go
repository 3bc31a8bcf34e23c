package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(CodeExpand, "expansion failed", "details"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeExpand, resp.Error.Code)
	assert.Equal(t, "expansion failed", resp.Error.Message)
	assert.Equal(t, "details", resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E001", "something broke", "hidden"))
	assert.Equal(t, "Error [E001]: something broke\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "something broke", "shown"))
	assert.Contains(t, buf.String(), "Details: shown")
}

type greeting string

func (g greeting) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "hello, %s\n", string(g))
	return err
}

func TestOutputFormatter_TextUsesTexter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(greeting("world")))
	assert.Equal(t, "hello, world\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success(42))
	assert.Equal(t, "42\n", buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	cause := errors.New("boom")

	buf := &bytes.Buffer{}
	text := &OutputFormatter{Format: "text", Writer: buf}
	err := text.Fail(ExitFailure, CodeExecute, "run q", cause)
	assert.Empty(t, buf.String(), "text mode leaves reporting to the caller")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "run q: boom")

	js := &OutputFormatter{Format: "json", Writer: buf}
	err = js.Fail(ExitCommandError, CodeUnknownQuery, "unknown query", cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, CodeUnknownQuery, resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Details)
}

func TestVerboseLog(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	formatter.VerboseLog("quiet %d", 1)
	assert.Empty(t, diag.String())

	formatter.Verbose = true
	formatter.VerboseLog("loud %d", 2)
	assert.Equal(t, "loud 2\n", diag.String())
	assert.Empty(t, out.String(), "JSON output stays clean")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "bad path"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}
