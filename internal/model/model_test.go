package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
)

func TestParseCase(t *testing.T) {
	tc, err := ParseCase(Row{"查询全部", `pageNum: 1`, "200", "200", "操作成功"})
	require.NoError(t, err)
	assert.Equal(t, TestCase{
		Title:          "查询全部",
		RawParams:      "pageNum: 1",
		ExpectedStatus: 200,
		ExpectedCode:   "200",
		ExpectedMsg:    "操作成功",
	}, tc)
}

func TestParseCaseShortRowAndFloatStatus(t *testing.T) {
	tc, err := ParseCase(Row{"t", "", "401.0"})
	require.NoError(t, err)
	assert.Equal(t, 401, tc.ExpectedStatus)
	assert.Equal(t, "", tc.ExpectedCode)
	assert.Equal(t, "", tc.ExpectedMsg)
}

func TestParseCaseBadStatus(t *testing.T) {
	for _, status := range []string{"", "abc", "200.5"} {
		_, err := ParseCase(Row{"t", "", status, "200", "ok"})
		assert.True(t, caseerrors.Is(err, caseerrors.KindDecode), "status %q", status)
	}
}

func TestRowHelpers(t *testing.T) {
	r := Row{"a", " "}
	assert.Equal(t, "a", r.Cell(0))
	assert.Equal(t, "", r.Cell(7))
	assert.False(t, r.Blank())
	assert.True(t, Row{"", "  "}.Blank())
}

func TestMismatchString(t *testing.T) {
	assert.Equal(t, "code: expected=200 actual=401", Mismatch{Field: "code", Expected: "200", Actual: 401, Present: true}.String())
	assert.Equal(t, "msg: expected=ok actual=<missing>", Mismatch{Field: "msg", Expected: "ok"}.String())
	assert.Equal(t, "params_decoded", StageParamsDecoded.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
