package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/damagelog/backend/internal/app"
	"github.com/kimhsiao/damagelog/backend/internal/config"
	"github.com/kimhsiao/damagelog/backend/internal/sync/synctest"
)

type cliEnv struct {
	dataDir string
	remote  *synctest.Remote
	online  bool
}

func newCLIEnv(t *testing.T) *cliEnv {
	return &cliEnv{dataDir: t.TempDir(), remote: synctest.NewRemote()}
}

// run executes one command against the environment's data directory.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		Open: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			cfg.ConnectivityMode = config.ConnectivityManual
			cfg.InitialOnline = e.online
			cfg.LogLevel = "ERROR"
			return app.Build(ctx, cfg, app.WithRemote(e.remote, nil))
		},
	}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data-dir", e.dataDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"enqueue", "sync", "status", "list", "clear", "check"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "--format", "xml", "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEnqueueListSync(t *testing.T) {
	e := newCLIEnv(t)

	fieldsFile := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, os.WriteFile(fieldsFile, []byte("category: crushed\nshop_id: shop-7\nreporter_id: u-1\nnotes: corner\n"), 0o600))
	image := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(image, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}, 0o600))

	out, err := e.run(t, "--format", "json", "enqueue", "--fields", fieldsFile, "--image", image, "--notes", "overridden")
	require.NoError(t, err, out)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	receipt := resp.Data.(map[string]interface{})
	id := receipt["id"].(string)
	assert.Equal(t, false, receipt["online"])

	out, err = e.run(t, "--format", "json", "list")
	require.NoError(t, err)
	entries := decode(t, out).Data.([]interface{})
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, id, entry["id"])
	assert.Equal(t, "pending", entry["status"])
	assert.Equal(t, "overridden", entry["fields"].(map[string]interface{})["notes"])

	out, err = e.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Offline")

	out, err = e.run(t, "sync", "--online")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 1 of 1")

	require.Len(t, e.remote.InsertsInto("damage_reports"), 1)
	assert.Equal(t, id, e.remote.InsertsInto("damage_reports")[0].ID())
	assert.Equal(t, "overridden", e.remote.Rows("damage_reports")[id]["notes"])
	assert.Len(t, e.remote.Rows("damage_report_images"), 1)

	out, err = e.run(t, "--format", "json", "status")
	require.NoError(t, err)
	assert.Equal(t, float64(0), decode(t, out).Data.(map[string]interface{})["pending"])
}

func TestEnqueueValidation(t *testing.T) {
	e := newCLIEnv(t)
	out, err := e.run(t, "--format", "json", "enqueue", "--category", "crushed")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestSyncFailureExitCode(t *testing.T) {
	e := newCLIEnv(t)
	e.remote.BeforeInsert = func(string, map[string]any) error { return errors.New("rejected") }

	_, err := e.run(t, "enqueue", "--category", "wet", "--shop", "s", "--reporter", "r")
	require.NoError(t, err)

	out, err := e.run(t, "sync", "--online")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "1 failed")

	out, err = e.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "rejected")
}

func TestClear(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "enqueue", "--category", "wet", "--shop", "s", "--reporter", "r")
	require.NoError(t, err)

	_, err = e.run(t, "clear")
	require.Error(t, err)

	out, err := e.run(t, "--format", "json", "clear", "--yes")
	require.NoError(t, err)
	assert.Equal(t, float64(1), decode(t, out).Data.(map[string]interface{})["removed"])

	out, err = e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "0 waiting")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("x")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "m", nil)))
}

func TestCheck(t *testing.T) {
	e := newCLIEnv(t)
	out, err := e.run(t, "--format", "json", "check")
	require.NoError(t, err)
	assert.Equal(t, "ok", decode(t, out).Status)
}
