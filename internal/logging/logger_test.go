package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
)

func TestSetLevel(t *testing.T) {
	b := &bytes.Buffer{}
	PatchLogger(t, b)

	assert.NilError(t, SetLevel("warn"))
	assert.Equal(t, L.GetLevel(), zerolog.WarnLevel)

	Infof("not written %d", 1)
	Warnf("written %d", 2)

	lines := bytes.Split(bytes.TrimSpace(b.Bytes()), []byte("\n"))
	assert.Equal(t, len(lines), 1)

	entry := map[string]interface{}{}
	assert.NilError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, entry["level"], "warn")
	assert.Equal(t, entry["message"], "written 2")

	err := SetLevel("loud")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestPatchLogger_Restores(t *testing.T) {
	orig := L

	t.Run("patched", func(t *testing.T) {
		PatchLogger(t, nil)
		assert.Assert(t, L != orig)
	})

	assert.Equal(t, L, orig)
}

func TestUseFileLogger(t *testing.T) {
	orig := L
	t.Cleanup(func() { L = orig })

	path := filepath.Join(t.TempDir(), "custody.log")
	closer := UseFileLogger(path)
	defer closer.Close()

	Errorf("to the file")

	content, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Contains(content, []byte("to the file")))
}

func TestUseFileLogger_KeepsLevel(t *testing.T) {
	orig := L
	t.Cleanup(func() { L = orig })

	assert.NilError(t, SetLevel("error"))
	closer := UseFileLogger(filepath.Join(t.TempDir(), "custody.log"))
	defer closer.Close()

	assert.Equal(t, L.GetLevel(), zerolog.ErrorLevel)
}

func TestNewLogger(t *testing.T) {
	b := &bytes.Buffer{}
	logger := newLogger(b, zerolog.WarnLevel)
	assert.Equal(t, logger.GetLevel(), zerolog.WarnLevel)

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	entry := map[string]interface{}{}
	assert.NilError(t, json.Unmarshal(bytes.TrimSpace(b.Bytes()), &entry))
	assert.Equal(t, entry["message"], "kept")
}
