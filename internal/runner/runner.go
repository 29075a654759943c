package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/TSfhy/mall-jiekou-auto/internal/asserter"
	"github.com/TSfhy/mall-jiekou-auto/internal/client"
	"github.com/TSfhy/mall-jiekou-auto/internal/config"
	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
	"github.com/TSfhy/mall-jiekou-auto/internal/logutil"
	"github.com/TSfhy/mall-jiekou-auto/internal/model"
	"github.com/TSfhy/mall-jiekou-auto/internal/params"
	"github.com/TSfhy/mall-jiekou-auto/internal/reader"
	"github.com/TSfhy/mall-jiekou-auto/internal/session"
)

// 报告中的步骤名称
const (
	StepLogin  = "登录操作"
	StepCoupon = "优惠卷查询"
	StepAssert = "断言结果"
	StepLog    = "打印日志"
)

// CaseGroup is a configured group together with its collected rows.
type CaseGroup struct {
	config.Group
	Rows []model.Row
}

type Runner struct {
	config   *config.Config
	reader   *reader.Reader
	client   *client.Client
	session  *session.Session
	fixture  *session.Fixture
	asserter *asserter.Asserter
	logger   *slog.Logger
	out      io.Writer
}

// Option customises a Runner.
type Option func(*Runner)

// WithFs reads case files from fs.
func WithFs(fs afero.Fs) Option {
	return func(r *Runner) { r.reader = reader.New(fs) }
}

// WithLogger sets the shared log sink.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithOutput sets where per-case progress lines are printed.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithHTTPClient sends every request through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Runner) { r.client = client.NewWithHTTPClient(r.config, hc) }
}

// WithFixture replaces the token fixture built from the configuration.
func WithFixture(f *session.Fixture) Option {
	return func(r *Runner) { r.fixture = f }
}

// New wires a Runner from cfg. The token fixture uses cfg.TokenScope unless
// WithFixture is given.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		config:   cfg,
		reader:   reader.New(nil),
		client:   client.New(cfg),
		asserter: asserter.New(cfg.Fields),
		logger:   logutil.Discard(),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.session = session.New(r.client, cfg)

	if r.fixture == nil {
		scope, err := session.ParseScope(cfg.TokenScope)
		if err != nil {
			return nil, err
		}
		r.fixture = session.NewFixture(scope, r.session.Login)
	}
	return r, nil
}

// Fixture returns the token fixture shared by the runner's cases.
func (r *Runner) Fixture() *session.Fixture {
	return r.fixture
}

// Collect reads the rows of every configured group, or only the named ones.
// Nothing is executed; the first ingestion error aborts collection.
func (r *Runner) Collect(ctx context.Context, names ...string) ([]CaseGroup, error) {
	selected := r.config.Groups
	if len(names) > 0 {
		selected = make([]config.Group, 0, len(names))
		for _, name := range names {
			g, ok := r.config.Group(name)
			if !ok {
				return nil, caseerrors.Config(nil, "未知的用例组 %q", name)
			}
			selected = append(selected, g)
		}
	}

	groups := make([]CaseGroup, 0, len(selected))
	for _, g := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := r.reader.Read(g.ExcelPath, g.SheetName, readOptions(g))
		if err != nil {
			return nil, fmt.Errorf("收集用例组 %s 失败: %w", g.Name, err)
		}
		r.logger.Info("用例收集完成", "group", g.Name, "sheet", g.SheetName, "cases", len(rows))
		groups = append(groups, CaseGroup{Group: g, Rows: rows})
	}
	return groups, nil
}

func readOptions(g config.Group) reader.Options {
	opts := reader.Options{HeaderRow: g.HeaderRow, Encoding: g.Encoding}
	if g.Delimiter != "" {
		opts.Comma, _ = utf8.DecodeRuneInString(g.Delimiter)
	}
	return opts
}

// Run executes the groups in order and ends the session scope afterwards.
func (r *Runner) Run(ctx context.Context, groups []CaseGroup) []model.TestResult {
	r.logger.Info("开始执行用例", "groups", len(groups), "token_scope", r.fixture.Scope().String(), "concurrent", r.config.Concurrent)
	var results []model.TestResult
	for _, g := range groups {
		results = append(results, r.RunGroup(ctx, g)...)
	}
	r.fixture.EndScope(session.ScopeSession)
	return results
}

type job struct {
	caseNum int
	row     model.Row
}

// RunGroup executes every row of g and ends the class scope afterwards.
// Results come back in case order whatever the worker count.
func (r *Runner) RunGroup(ctx context.Context, g CaseGroup) []model.TestResult {
	defer r.fixture.EndScope(session.ScopeClass)

	if len(g.Rows) == 0 {
		return nil
	}

	workers := r.config.Concurrent
	if workers < 1 {
		workers = 1
	}

	resultChan := make(chan model.TestResult, len(g.Rows))
	jobChan := make(chan job, len(g.Rows))
	var wg sync.WaitGroup

	// 启动工作协程
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				resultChan <- r.Execute(ctx, g.Group, j.caseNum, j.row)
				r.fixture.EndScope(session.ScopeFunction)
			}
		}()
	}

	// 分发任务
	for i, row := range g.Rows {
		jobChan <- job{caseNum: i + 1, row: row}
	}
	close(jobChan)

	wg.Wait()
	close(resultChan)

	results := make([]model.TestResult, 0, len(g.Rows))
	for result := range resultChan {
		results = append(results, result)
	}

	// 按用例编号排序结果
	sort.Slice(results, func(i, j int) bool {
		return results[i].CaseNumber < results[j].CaseNumber
	})
	return results
}

// Execute runs one case: decode the parameters, send the request, assert
// and log. A failing step stops the case; the log step is still attempted.
func (r *Runner) Execute(ctx context.Context, g config.Group, caseNum int, row model.Row) model.TestResult {
	start := time.Now()
	res := model.TestResult{
		CaseNumber: caseNum,
		Group:      g.Name,
		CaseName:   row.Cell(model.ColTitle),
		RawParams:  row.Cell(model.ColParams),
		Stage:      model.StageCollected,
	}

	var resp *client.Response
	err := r.execute(ctx, g, row, &res, &resp)

	r.logResponse(g, &res, resp, err)
	if err != nil {
		res.FailedAt = nextStage(res.Stage)
		res.Stage = model.StageFailed
		res.Error = err.Error()
		if kind, ok := caseerrors.KindOf(err); ok {
			res.ErrorKind = kind.String()
		}
	} else {
		res.Stage = model.StageDone
		res.Success = true
	}
	res.ExecutionTime = time.Since(start)
	return res
}

func (r *Runner) execute(ctx context.Context, g config.Group, row model.Row, res *model.TestResult, respOut **client.Response) error {
	if row.Blank() {
		return caseerrors.Decode(nil, "第 %d 条用例为空行", res.CaseNumber)
	}
	tc, err := model.ParseCase(row)
	res.ExpectedStatus = tc.ExpectedStatus
	res.ExpectedCode = tc.ExpectedCode
	res.ExpectedMsg = tc.ExpectedMsg
	if err != nil {
		return err
	}

	p, err := params.Decode(tc.RawParams)
	if err != nil {
		return fmt.Errorf("用例 %q: %w", tc.Title, err)
	}
	res.Params = p
	res.Stage = model.StageParamsDecoded

	fmt.Fprintf(r.out, "\n=== 执行测试用例 %s #%d: %s ===\n", g.Name, res.CaseNumber, tc.Title)

	resp, err := r.send(ctx, g, p, res)
	if err != nil {
		return err
	}
	*respOut = resp
	res.StatusCode = resp.StatusCode
	res.ActualResult = resp.Text
	res.Curl = resp.Curl
	res.Stage = model.StageRequestSent
	fmt.Fprintln(r.out, resp.Curl)

	if err := r.asserter.Assert(resp, tc.ExpectedStatus, tc.ExpectedCode, tc.ExpectedMsg); err != nil {
		if ae, ok := err.(*asserter.AssertionError); ok {
			res.Mismatches = ae.Mismatches
		}
		res.Steps = append(res.Steps, model.Step{Name: StepAssert, Detail: mismatchDetail(res.Mismatches), Passed: false})
		return err
	}
	res.Steps = append(res.Steps, model.Step{Name: StepAssert, Detail: "通过", Passed: true})
	res.Stage = model.StageAsserted
	return nil
}

func (r *Runner) send(ctx context.Context, g config.Group, p params.Params, res *model.TestResult) (*client.Response, error) {
	var token model.Token
	if g.NeedsToken() {
		var err error
		if token, err = r.fixture.Token(ctx); err != nil {
			res.Steps = append(res.Steps, model.Step{Name: StepCoupon, Detail: err.Error()})
			return nil, err
		}
	}

	switch g.Kind {
	case config.KindLogin:
		resp, err := r.client.Login(ctx, p)
		res.Steps = append(res.Steps, requestStep(StepLogin, resp, err))
		return resp, err

	case config.KindCoupon:
		resp, err := r.client.SelectCoupon(ctx, token, p)
		res.Steps = append(res.Steps, requestStep(StepCoupon, resp, err))
		return resp, err
	}
	return nil, caseerrors.Config(nil, "用例组 %s 的类型 %q 无效", g.Name, g.Kind)
}

func requestStep(name string, resp *client.Response, err error) model.Step {
	if err != nil {
		return model.Step{Name: name, Detail: err.Error()}
	}
	return model.Step{Name: name, Detail: resp.Curl, Passed: true}
}

// logResponse 将原始响应写入共享日志，失败的用例同样记录
func (r *Runner) logResponse(g config.Group, res *model.TestResult, resp *client.Response, caseErr error) {
	attrs := []any{
		"group", g.Name,
		"case", res.CaseNumber,
		"title", res.CaseName,
	}
	if g.Feature != "" {
		attrs = append(attrs, "feature", g.Feature)
	}
	if g.Story != "" {
		attrs = append(attrs, "story", g.Story)
	}

	detail := ""
	if resp != nil {
		detail = resp.Text
		attrs = append(attrs, "status", resp.StatusCode, "duration", resp.Duration, "response", resp.Text)
	}

	if caseErr != nil {
		r.logger.Error(StepLog, append(attrs, "error", caseErr.Error())...)
	} else {
		r.logger.Info(StepLog, attrs...)
		res.Stage = model.StageLogged
	}
	res.Steps = append(res.Steps, model.Step{Name: StepLog, Detail: detail, Passed: caseErr == nil})
}

func mismatchDetail(mismatches []model.Mismatch) string {
	parts := make([]string, len(mismatches))
	for i, m := range mismatches {
		parts[i] = m.String()
	}
	return strings.Join(parts, "; ")
}

func nextStage(s model.Stage) model.Stage {
	if s >= model.StageLogged {
		return model.StageDone
	}
	return s + 1
}
