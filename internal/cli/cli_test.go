package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const growScript = "plant('grass', 0, 0)\nwater(0, 0)\nwait(20)\nharvest(0, 0)\n"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--configs", t.TempDir()}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "farm.py")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunCommand_TextOutput(t *testing.T) {
	out, err := execute(t, "", "run", writeScript(t, growScript))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "line 1: (0,0) grass "), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], "gold=499"), lines[0])
	assert.Equal(t, "line 3: wait 20.0s gold=497", lines[2])
	assert.Contains(t, lines[4], "cost=3 gain=5")
	assert.Contains(t, lines[4], "gold=502")
	assert.Contains(t, lines[4], "(new record)")
}

func TestRunCommand_JSONFromStdin(t *testing.T) {
	out, err := execute(t, growScript, "--format", "json", "run", "-")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.Events, 4)
	assert.Equal(t, 4, resp.Data.Steps)
	require.NotNil(t, resp.Data.Result)
	assert.Equal(t, 3, resp.Data.Result.Cost)
	assert.InDelta(t, 2.0/3.0, resp.Data.Result.ROI, 1e-9)
	assert.Equal(t, 502, resp.Data.Farm.Gold)
}

func TestRunCommand_RuleErrorExitsWithLine(t *testing.T) {
	out, err := execute(t, "", "run", "--quiet", writeScript(t, "plant('grass', 0, 0)\nplant('grass', 0, 0)\n"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, strings.HasPrefix(out, "Error [E_CELL_OCCUPIED] line 2: "), out)
}

func TestRunCommand_ParseErrorJSON(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "run", writeScript(t, "plant('grass', 0, 0\n"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_PARSE", resp.Error.Code)
	assert.Equal(t, 1, resp.Error.Line)
}

func TestRunCommand_MaxStepsOverride(t *testing.T) {
	_, err := execute(t, "", "run", "-q", "--max-steps", "2", writeScript(t, growScript))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "step")
}

func TestRunCommand_MissingScript(t *testing.T) {
	_, err := execute(t, "", "run", filepath.Join(t.TempDir(), "nope.py"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCheckCommand(t *testing.T) {
	t.Run("clean script", func(t *testing.T) {
		out, err := execute(t, "", "check", writeScript(t, growScript))
		require.NoError(t, err)
		assert.Contains(t, out, "ok")
	})

	t.Run("reports every problem", func(t *testing.T) {
		src := "plant('grass', 0, 0)\nfly(1)\nwhile True:\n    wait()\n"
		out, err := execute(t, "", "--format", "json", "check", writeScript(t, src))
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp struct {
			Data CheckResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.False(t, resp.Data.Valid)
		require.Len(t, resp.Data.Diagnostics, 2)
		assert.Equal(t, "E_UNKNOWN_FUNCTION", resp.Data.Diagnostics[0].Code)
		assert.Equal(t, 2, resp.Data.Diagnostics[0].Line)
		assert.Equal(t, "E_UNSUPPORTED_SYNTAX", resp.Data.Diagnostics[1].Code)
		assert.Equal(t, 3, resp.Data.Diagnostics[1].Line)
	})

	t.Run("syntax error", func(t *testing.T) {
		out, err := execute(t, "x = (\n", "check", "-")
		require.Error(t, err)
		assert.Contains(t, out, "E_PARSE")
	})
}

func TestCropsCommand(t *testing.T) {
	out, err := execute(t, "", "crops")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "CROP"))
	assert.Contains(t, out, "grass")

	out, err = execute(t, "", "--format", "json", "crops")
	require.NoError(t, err)
	var resp struct {
		Data CropsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotEmpty(t, resp.Data.Digest)
	assert.Equal(t, "grass", resp.Data.Crops[0].ID)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "", "--format", "yaml", "crops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
