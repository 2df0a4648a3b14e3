package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kmlawson/lmsp/config"
	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/prompt"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestEnsureCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lmsp", "config.json")

	created, err := config.Ensure(path)
	require.NoError(t, err)
	assert.True(t, created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "append", raw["pipe_mode"])
	assert.Equal(t, float64(1234), raw["port"])

	cfg, err := config.Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("loaded config differs from defaults (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"port": 4321}`)

	created, err := config.Ensure(path)
	require.NoError(t, err)
	assert.False(t, created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"port": 4321}`, string(data))
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"model": "llama-3.2-1b-instruct", "pipe_mode": "prepend", "stats": true}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	want := config.Default()
	want.Model = "llama-3.2-1b-instruct"
	want.PipeMode = prompt.PipeModePrepend
	want.Stats = true
	assert.Equal(t, want, cfg)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{"port": 1234`},
		{"not an object", `["port", 1234]`},
		{"null", `null`},
		{"empty", ``},
		{"unknown key", `{"colour": "blue"}`},
		{"port zero", `{"port": 0}`},
		{"port too large", `{"port": 65536}`},
		{"port as string", `{"port": "abc"}`},
		{"bad pipe mode", `{"pipe_mode": "merge"}`},
		{"bad model", `{"model": "../../etc/passwd"}`},
		{"model with shell", `{"model": "x; rm -rf ~"}`},
		{"bad format", `{"format": "html"}`},
		{"too deep", `{"model": {"a": {"b": {"c": {"d": {"e": 1}}}}}}`},
		{"too large", `{"model": "` + strings.Repeat("a", config.MaxConfigBytes) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, tt.content)

			_, err := config.Load(path)
			assert.ErrorIs(t, err, errs.ErrConfig)
		})
	}
}

func TestLoadOrDefaultWarns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"pipe_mode": 7}`)

	logger := new(logging.MockLogger)
	logger.On("Warn", "Using default configuration", mock.Anything).Once()
	cfg := config.LoadOrDefault(path, logger)

	assert.Equal(t, config.Default(), cfg)
	logger.AssertExpectations(t)
	logger.AssertNotCalled(t, "Debug", "Configuration loaded", mock.Anything)
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	writeFile(t, dotenv, "LMSP_MODEL=from-dotenv\nLMSP_PORT=1111\n")

	t.Setenv("LMSP_PORT", "2222")
	t.Setenv("LMSP_AUTO_LOAD", "true")
	t.Setenv("LMSP_PIPE_MODE", "replace")

	cfg := config.Default()
	require.NoError(t, config.ApplyEnv(cfg, dotenv))

	assert.Equal(t, "from-dotenv", cfg.Model)
	assert.Equal(t, 2222, cfg.Port)
	assert.True(t, cfg.AutoLoad)
	assert.Equal(t, prompt.PipeModeReplace, cfg.PipeMode)
	assert.Equal(t, config.FormatDecorated, cfg.Format)
}

func TestApplyEnvMissingDotenv(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.ApplyEnv(cfg, filepath.Join(t.TempDir(), ".env")))
	assert.Equal(t, config.Default(), cfg)
}

func TestApplyEnvInvalidLeavesConfig(t *testing.T) {
	t.Setenv("LMSP_PORT", "70000")

	cfg := config.Default()
	err := config.ApplyEnv(cfg, "")
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Equal(t, 1234, cfg.Port)
}

func TestApplyOptions(t *testing.T) {
	base := config.Default()

	cfg, err := config.ApplyOptions(base,
		config.SetModel("qwen2.5-7b-instruct"),
		config.SetPort(8080),
		config.SetWait(true),
		config.SetFormat(config.FormatPlain),
	)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-7b-instruct", cfg.Model)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Wait)
	assert.Equal(t, config.FormatPlain, cfg.Format)
	assert.Equal(t, 1234, base.Port, "base must not change")

	_, err = config.ApplyOptions(base, config.SetPort(0))
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestDefaultPathHonorsEnv(t *testing.T) {
	t.Setenv(config.PathEnv, "/tmp/custom-lmsp.json")
	assert.Equal(t, "/tmp/custom-lmsp.json", config.DefaultPath())
	assert.Equal(t, "/tmp/.env", config.DotenvPath("/tmp/custom-lmsp.json"))
}

func TestSchema(t *testing.T) {
	data, err := config.Schema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.NotContains(t, schema, "required")

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"model", "port", "pipe_mode", "wait", "stats", "format", "auto_load", "timeout", "temperature", "token_count"} {
		assert.Contains(t, props, key)
	}
	pipeMode := props["pipe_mode"].(map[string]any)
	assert.Equal(t, []any{"replace", "append", "prepend"}, pipeMode["enum"])
}
