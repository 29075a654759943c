package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
)

// 用例表固定列：标题、参数串、期望状态码、期望 code、期望 msg
const (
	ColTitle = iota
	ColParams
	ColStatus
	ColCode
	ColMsg

	CaseWidth
)

// Row 是工作表中的一行原始单元格，空单元格为 ""
type Row []string

// Cell 返回第 i 列，越界时返回 ""
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Blank reports whether every cell is empty.
func (r Row) Blank() bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type TestCase struct {
	Title          string // 用例标题
	RawParams      string // 参数串，如 `username: "admin", password: "macro123"`
	ExpectedStatus int    // 期望HTTP状态码
	ExpectedCode   string // 期望业务 code
	ExpectedMsg    string // 期望业务 msg
}

// ParseCase 把一行转换为固定列的用例；状态码无法解析时返回 DecodeError
func ParseCase(row Row) (TestCase, error) {
	tc := TestCase{
		Title:        row.Cell(ColTitle),
		RawParams:    row.Cell(ColParams),
		ExpectedCode: strings.TrimSpace(row.Cell(ColCode)),
		ExpectedMsg:  row.Cell(ColMsg),
	}

	status, err := parseStatus(row.Cell(ColStatus))
	if err != nil {
		return tc, caseerrors.Decode(err, "用例 %q 的期望状态码无效", tc.Title)
	}
	tc.ExpectedStatus = status
	return tc, nil
}

// 数值单元格可能被格式化为 "200" 或 "200.0"
func parseStatus(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("空的状态码")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("不是整数: %q", s)
	}
	return int(f), nil
}

// Token is an opaque bearer credential.
type Token string

// Mismatch describes one failed expectation. Present is false when the field
// was absent from the response body.
type Mismatch struct {
	Field    string
	Expected any
	Actual   any
	Present  bool
}

func (m Mismatch) String() string {
	actual := "<missing>"
	if m.Present {
		actual = fmt.Sprintf("%v", m.Actual)
	}
	return fmt.Sprintf("%s: expected=%v actual=%s", m.Field, m.Expected, actual)
}

// Stage 是单个用例的执行阶段
type Stage int

const (
	StageCollected Stage = iota
	StageParamsDecoded
	StageRequestSent
	StageAsserted
	StageLogged
	StageDone
	StageFailed
)

var stageNames = [...]string{"collected", "params_decoded", "request_sent", "asserted", "logged", "done", "failed"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Step 对应报告中的一个命名步骤
type Step struct {
	Name   string
	Detail string
	Passed bool
}

type TestResult struct {
	CaseNumber     int
	Group          string
	CaseName       string
	RawParams      string
	Params         map[string]any
	ExpectedStatus int
	ExpectedCode   string
	ExpectedMsg    string
	StatusCode     int
	ActualResult   string
	Success        bool
	Stage          Stage // 最后到达的阶段
	FailedAt       Stage // 失败时未能到达的阶段
	Mismatches     []Mismatch
	Error          string
	ErrorKind      string
	Curl           string
	ExecutionTime  time.Duration
	Steps          []Step
}
