package main

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
	"github.com/TSfhy/mall-jiekou-auto/internal/twin"
)

func writeConfig(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func baseConfig(t *testing.T) (map[string]any, string) {
	t.Helper()
	srv := httptest.NewServer(twin.New(twin.Options{}))
	t.Cleanup(srv.Close)
	t.Setenv("MALL_BASE_URL", srv.URL)
	t.Setenv("MALL_USERNAME", "")
	t.Setenv("MALL_PASSWORD", "")

	cases, err := filepath.Abs(filepath.Join("testdata", "login_datas.xlsx"))
	require.NoError(t, err)
	dir := t.TempDir()
	return map[string]any{
		"log_dir":     filepath.Join(dir, "logs"),
		"report_path": filepath.Join(dir, "report.xlsx"),
		"excel_path":  cases,
		"token_scope": "class",
		"groups": []map[string]any{
			{"name": "login_data", "kind": "login", "sheet_name": "login_data"},
			{"name": "coupon_data", "kind": "coupon", "sheet_name": "coupon_data"},
		},
	}, dir
}

func TestRunPasses(t *testing.T) {
	doc, dir := baseConfig(t)

	code := run(writeConfig(t, doc), nil, false)
	assert.Equal(t, caseerrors.ExitSuccess, code)

	_, err := os.Stat(filepath.Join(dir, "report.xlsx"))
	assert.NoError(t, err)
	logs, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRunReportsCaseFailure(t *testing.T) {
	doc, _ := baseConfig(t)
	doc["credentials"] = map[string]any{"username": "admin", "password": "wrong"}

	// 登录失败时优惠券用例全部失败
	assert.Equal(t, caseerrors.ExitCaseFailure, run(writeConfig(t, doc), []string{"coupon_data"}, false))
}

func TestRunSetupErrors(t *testing.T) {
	doc, _ := baseConfig(t)

	assert.Equal(t, caseerrors.ExitSetupError, run(filepath.Join(t.TempDir(), "missing.json"), nil, false))
	assert.Equal(t, caseerrors.ExitSetupError, run(writeConfig(t, doc), []string{"unknown"}, false))

	doc["excel_path"] = filepath.Join(t.TempDir(), "nope.xlsx")
	assert.Equal(t, caseerrors.ExitSetupError, run(writeConfig(t, doc), nil, false))
}

func TestSplitGroups(t *testing.T) {
	assert.Nil(t, splitGroups(""))
	assert.Equal(t, []string{"login_data", "coupon_data"}, splitGroups(" login_data, ,coupon_data "))
}
