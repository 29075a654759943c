package logutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, fs afero.Fs, path string) []map[string]any {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	var records []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	return records
}

func TestOpenWritesJSONWithRunID(t *testing.T) {
	fs := afero.NewMemMapFs()

	sink, err := Open(fs, Options{Dir: "logs", RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("logs", "run-1.log"), sink.Path)

	sink.Info("打印日志", "case", "正确用户名密码", "response", `{"code":200}`)
	sink.Debug("hidden")
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	records := readRecords(t, fs, sink.Path)
	require.Len(t, records, 1)
	assert.Equal(t, "run-1", records[0]["run_id"])
	assert.Equal(t, "打印日志", records[0]["msg"])
	assert.Equal(t, `{"code":200}`, records[0]["response"])
}

func TestOpenGeneratesRunID(t *testing.T) {
	fs := afero.NewMemMapFs()

	sink, err := Open(fs, Options{})
	require.NoError(t, err)
	defer sink.Close()

	_, err = uuid.Parse(sink.RunID)
	assert.NoError(t, err)
	ok, err := afero.Exists(fs, filepath.Join("logs", sink.RunID+".log"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsoleMirror(t *testing.T) {
	fs := afero.NewMemMapFs()
	var console bytes.Buffer

	sink, err := Open(fs, Options{Dir: "out", RunID: "r", Console: &console, Level: slog.LevelDebug})
	require.NoError(t, err)

	sink.With("group", "login_data").Debug("断言结果", "passed", true)
	require.NoError(t, sink.Close())

	assert.Contains(t, console.String(), "断言结果")
	assert.Contains(t, console.String(), "group=login_data")
	assert.Contains(t, console.String(), "run_id=r")

	records := readRecords(t, fs, sink.Path)
	require.Len(t, records, 1)
	assert.Equal(t, "login_data", records[0]["group"])
	assert.Equal(t, true, records[0]["passed"])
}

func TestOpenFailsOnReadOnlyFs(t *testing.T) {
	_, err := Open(afero.NewReadOnlyFs(afero.NewMemMapFs()), Options{Dir: "logs"})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("dropped") })
}
