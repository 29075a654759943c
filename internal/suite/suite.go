// Package suite exposes the configured case groups to `go test`: every row
// becomes a subtest, so cases can be selected with -run and failures show up
// with their expected and actual values.
//
// Without MALL_BASE_URL the suite starts an in-process twin of the admin
// service and points the configuration at it.
package suite

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/spf13/afero"
	tsuite "github.com/stretchr/testify/suite"

	"github.com/TSfhy/mall-jiekou-auto/internal/config"
	"github.com/TSfhy/mall-jiekou-auto/internal/logutil"
	"github.com/TSfhy/mall-jiekou-auto/internal/model"
	"github.com/TSfhy/mall-jiekou-auto/internal/runner"
	"github.com/TSfhy/mall-jiekou-auto/internal/session"
	"github.com/TSfhy/mall-jiekou-auto/internal/twin"
)

// CaseSuite runs the rows of the configured groups as subtests.
type CaseSuite struct {
	tsuite.Suite

	ConfigPath string   // 配置文件路径
	Groups     []string // 为空时运行全部用例组
	LogDir     string   // 为空时写入临时目录

	server  *httptest.Server
	sink    *logutil.Sink
	runner  *runner.Runner
	groups  []runner.CaseGroup
	results []model.TestResult
}

func (s *CaseSuite) SetupSuite() {
	require := s.Require()

	cfg, err := config.Load(s.ConfigPath)
	require.NoError(err)

	if os.Getenv("MALL_BASE_URL") == "" {
		s.server = httptest.NewServer(twin.New(twin.Options{}))
		cfg.BaseURL = s.server.URL
	}

	dir := s.LogDir
	if dir == "" {
		dir = s.T().TempDir()
	}
	s.sink, err = logutil.Open(afero.NewOsFs(), logutil.Options{Dir: dir})
	require.NoError(err)

	s.runner, err = runner.New(cfg, runner.WithLogger(s.sink.Logger), runner.WithOutput(io.Discard))
	require.NoError(err)

	// 收集失败时不执行任何用例
	s.groups, err = s.runner.Collect(context.Background(), s.Groups...)
	require.NoError(err)
}

func (s *CaseSuite) TearDownSuite() {
	if s.runner != nil {
		s.runner.Fixture().EndScope(session.ScopeSession)
	}
	if s.sink != nil {
		s.sink.Close()
	}
	if s.server != nil {
		s.server.Close()
	}
}

func (s *CaseSuite) TearDownSubTest() {
	s.runner.Fixture().EndScope(session.ScopeFunction)
}

// TestCases runs every collected row; each group is one class scope.
func (s *CaseSuite) TestCases() {
	ctx := context.Background()
	for _, g := range s.groups {
		for i, row := range g.Rows {
			g, caseNum, row := g, i+1, row
			s.Run(subtestName(g.Name, caseNum, row), func() {
				res := s.runner.Execute(ctx, g.Group, caseNum, row)
				s.results = append(s.results, res)
				s.Truef(res.Success, "%s", failure(res))
			})
		}
		s.runner.Fixture().EndScope(session.ScopeClass)
	}
}

// Results returns the outcome of every executed case in run order.
func (s *CaseSuite) Results() []model.TestResult {
	return s.results
}

func subtestName(group string, caseNum int, row model.Row) string {
	title := strings.TrimSpace(row.Cell(model.ColTitle))
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("%s/%02d_%s", group, caseNum, title)
}

func failure(res model.TestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", res.ErrorKind, res.Error)
	for _, m := range res.Mismatches {
		fmt.Fprintf(&b, "\n  %s", m)
	}
	if res.ActualResult != "" {
		fmt.Fprintf(&b, "\n  response: %s", res.ActualResult)
	}
	if res.Curl != "" {
		fmt.Fprintf(&b, "\n  %s", res.Curl)
	}
	return b.String()
}
