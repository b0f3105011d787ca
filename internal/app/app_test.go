package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CVTailor/internal/config"
	"CVTailor/internal/logging"
)

func TestNewWiresApplicationWithoutExternalTools(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		Server:    config.ServerConfig{Addr: ":0"},
		Storage:   config.StorageConfig{DataDir: filepath.Join(dir, "data")},
		Identity:  config.IdentityConfig{Mode: "content"},
		Compiler:  config.CompilerConfig{Binary: "cvtailor-missing-latex", WorkRoot: filepath.Join(dir, "work")},
		Extractor: config.ExtractorConfig{Binary: "cvtailor-missing-pdftoppm"},
		Pipeline:  config.PipelineConfig{DefaultJobPath: filepath.Join(dir, "absent.json")},
	}

	application, err := New(cfg, logging.NewWithWriter(os.Stderr, "error"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, application.Close()) })

	assert.NotNil(t, application.Pipeline())
	assert.NotNil(t, application.Compiler())
	assert.FileExists(t, cfg.Storage.RegistryFile())
	assert.DirExists(t, cfg.Storage.CacheDir())
}

func TestLoadJob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"SRE","description":"<p>Keep <b>it</b> up</p>","keywords":["Go"]}`), 0o600))

	job, err := LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, "SRE", job.Title)
	assert.Equal(t, "Keep it up", job.Description)

	job, err = LoadJob("")
	require.NoError(t, err)
	assert.True(t, job.IsZero())

	_, err = LoadJob(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = LoadJob(path)
	require.Error(t, err)
}
