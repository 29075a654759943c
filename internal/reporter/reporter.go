package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"

	"github.com/TSfhy/mall-jiekou-auto/internal/config"
	"github.com/TSfhy/mall-jiekou-auto/internal/model"
)

const (
	// Excel 相关
	summarySheet       = "汇总"
	defaultReportDir   = "reports"
	reportNameFormat   = "report_%s.xlsx"
	timeFormat         = "2006-01-02_15-04-05"
	maxSheetNameLength = 31
	defaultColumnWidth = 14
	wideColumnWidth    = 40

	// 样式相关
	patternType    = "pattern"
	patternValue   = 1
	errorBgColor   = "FF5900"
	warningBgColor = "FFEB9C"
	headerBgColor  = "D9E1F2"

	// 时间阈值
	slowTestThreshold = 300 * time.Millisecond
)

// 表头定义
var excelHeaders = []string{
	"用例编号", "用例名称", "请求参数", "期望状态码", "期望code", "期望msg",
	"实际状态码", "实际结果", "测试结果", "失败阶段", "错误类型", "错误信息",
	"耗时(ms)", "CURL命令",
}

// 较宽的列：请求参数、实际结果、错误信息、CURL命令
var wideColumns = []int{3, 8, 12, 14}

var summaryHeaders = []string{"用例组", "用例数", "通过", "失败", "耗时(ms)"}

type Reporter struct {
	config *config.Config
	fs     afero.Fs
	out    io.Writer
	now    func() time.Time
}

// New creates a Reporter writing workbooks to fs and the summary to out.
// Nil values select the OS filesystem and stdout.
func New(cfg *config.Config, fs afero.Fs, out io.Writer) *Reporter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{config: cfg, fs: fs, out: out, now: time.Now}
}

// GenerateReport prints the console summary and writes the workbook. It
// returns the workbook path.
func (r *Reporter) GenerateReport(results []model.TestResult, duration time.Duration) (string, error) {
	r.printConsoleReport(results, duration)

	path := r.reportPath()
	if err := r.generateExcelReport(path, results, duration); err != nil {
		return "", err
	}
	fmt.Fprintf(r.out, "测试报告已保存到: %s\n", path)
	return path, nil
}

func (r *Reporter) reportPath() string {
	if r.config != nil && r.config.ReportPath != "" {
		return r.config.ReportPath
	}
	return filepath.Join(defaultReportDir, fmt.Sprintf(reportNameFormat, r.now().Format(timeFormat)))
}

type styles struct {
	header, failed, slow int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	fill := func(color string) *excelize.Style {
		return &excelize.Style{Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{color}}}
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{headerBgColor}},
	}); err != nil {
		return s, err
	}
	// 设置错误样式（红色背景）
	if s.failed, err = f.NewStyle(fill(errorBgColor)); err != nil {
		return s, err
	}
	// 设置警告样式（黄色背景）
	if s.slow, err = f.NewStyle(fill(warningBgColor)); err != nil {
		return s, err
	}
	return s, nil
}

func (r *Reporter) generateExcelReport(path string, results []model.TestResult, duration time.Duration) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("创建汇总工作表失败: %w", err)
	}
	st, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("创建样式失败: %w", err)
	}

	groups, byGroup := groupResults(results)
	sheetNames := make(map[string]string, len(groups))
	used := map[string]bool{summarySheet: true}
	for _, group := range groups {
		name := sheetName(group, used)
		sheetNames[group] = name
		if err := r.writeGroupSheet(f, name, byGroup[group], st); err != nil {
			return err
		}
	}

	if err := r.writeSummary(f, groups, byGroup, sheetNames, duration, st); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	// 保存文件
	if dir := filepath.Dir(path); dir != "." {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建报告目录失败: %w", err)
		}
	}
	out, err := r.fs.Create(path)
	if err != nil {
		return fmt.Errorf("创建报告文件失败: %w", err)
	}
	if err := f.Write(out); err != nil {
		out.Close()
		return fmt.Errorf("保存报告失败: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("保存报告失败: %w", err)
	}
	return nil
}

// groupResults 按首次出现的顺序分组
func groupResults(results []model.TestResult) ([]string, map[string][]model.TestResult) {
	var order []string
	byGroup := make(map[string][]model.TestResult)
	for _, res := range results {
		if _, ok := byGroup[res.Group]; !ok {
			order = append(order, res.Group)
		}
		byGroup[res.Group] = append(byGroup[res.Group], res)
	}
	return order, byGroup
}

// sheetName 去掉工作表名中不允许的字符并保证唯一
func sheetName(group string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, group)
	if name == "" {
		name = "cases"
	}
	name = truncate(name, maxSheetNameLength)

	candidate := name
	for i := 2; used[candidate]; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate = truncate(name, maxSheetNameLength-len(suffix)) + suffix
	}
	used[candidate] = true
	return candidate
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (r *Reporter) writeGroupSheet(f *excelize.File, sheet string, results []model.TestResult, st styles) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}

	// 设置列宽
	last, _ := excelize.ColumnNumberToName(len(excelHeaders))
	f.SetColWidth(sheet, "A", last, defaultColumnWidth)
	for _, col := range wideColumns {
		name, _ := excelize.ColumnNumberToName(col)
		f.SetColWidth(sheet, name, name, wideColumnWidth)
	}

	// 写入表头
	header := make([]interface{}, len(excelHeaders))
	for i, h := range excelHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	f.SetCellStyle(sheet, "A1", last+"1", st.header)

	// 写入测试结果
	for i, result := range results {
		if err := writeTestResult(f, sheet, i+2, result, st); err != nil {
			return err
		}
	}
	return nil
}

func writeTestResult(f *excelize.File, sheet string, row int, result model.TestResult, st styles) error {
	cells := []interface{}{
		result.CaseNumber,
		result.CaseName,
		result.RawParams,
		result.ExpectedStatus,
		result.ExpectedCode,
		result.ExpectedMsg,
		statusCell(result.StatusCode),
		result.ActualResult,
		resultText(result.Success),
		failedStage(result),
		result.ErrorKind,
		result.Error,
		float64(result.ExecutionTime.Microseconds()) / 1000,
		result.Curl,
	}

	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("写入用例 #%d 失败: %w", result.CaseNumber, err)
	}

	// 失败的用例红色背景，耗时超过阈值的用例黄色背景
	end, _ := excelize.CoordinatesToCellName(len(cells), row)
	switch {
	case !result.Success:
		f.SetCellStyle(sheet, cell, end, st.failed)
	case result.ExecutionTime > slowTestThreshold:
		f.SetCellStyle(sheet, cell, end, st.slow)
	}
	return nil
}

func statusCell(code int) interface{} {
	if code == 0 {
		return ""
	}
	return code
}

func resultText(success bool) string {
	if success {
		return "通过"
	}
	return "失败"
}

func failedStage(result model.TestResult) string {
	if result.Success {
		return ""
	}
	return result.FailedAt.String()
}

type tally struct {
	total, failed int
	elapsed       time.Duration
}

func count(results []model.TestResult) tally {
	var t tally
	for _, res := range results {
		t.total++
		if !res.Success {
			t.failed++
		}
		t.elapsed += res.ExecutionTime
	}
	return t
}

func (r *Reporter) writeSummary(f *excelize.File, groups []string, byGroup map[string][]model.TestResult, sheetNames map[string]string, duration time.Duration, st styles) error {
	sheet := summarySheet
	f.SetColWidth(sheet, "A", "E", defaultColumnWidth)

	header := make([]interface{}, len(summaryHeaders))
	for i, h := range summaryHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("写入汇总失败: %w", err)
	}
	f.SetCellStyle(sheet, "A1", "E1", st.header)

	var all tally
	row := 2
	for _, group := range groups {
		t := count(byGroup[group])
		all.total += t.total
		all.failed += t.failed

		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{group, t.total, t.total - t.failed, t.failed, float64(t.elapsed.Microseconds()) / 1000}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("写入汇总失败: %w", err)
		}
		f.SetCellHyperLink(sheet, cell, fmt.Sprintf("'%s'!A1", sheetNames[group]), "Location")
		if t.failed > 0 {
			end, _ := excelize.CoordinatesToCellName(len(values), row)
			f.SetCellStyle(sheet, cell, end, st.failed)
		}
		row++
	}

	// 写入汇总信息
	row++
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "测试汇总")
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row+1), fmt.Sprintf("总执行时间: %.6fms", float64(duration.Microseconds())/1000))
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row+2), fmt.Sprintf("总用例数: %d", all.total))
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row+3), fmt.Sprintf("失败用例数: %d", all.failed))
	if r.config != nil && r.config.BaseURL != "" {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row+4), fmt.Sprintf("服务地址: %s", r.config.BaseURL))
	}
	return nil
}

func (r *Reporter) printConsoleReport(results []model.TestResult, duration time.Duration) {
	t := count(results)

	// 列出失败用例
	for _, res := range results {
		if res.Success {
			continue
		}
		fmt.Fprintf(r.out, "\033[31m✗ %s #%d %s: %s\033[0m\n", res.Group, res.CaseNumber, res.CaseName, res.Error)
	}

	// 输出汇总信息
	fmt.Fprintf(r.out, "\n测试汇总\n")
	fmt.Fprintf(r.out, "总执行时间: %.6fms\n", float64(duration.Microseconds())/1000)
	fmt.Fprintf(r.out, "总用例数: %d\n", t.total)
	if t.failed > 0 {
		fmt.Fprintf(r.out, "\033[31m失败用例数: %d\033[0m\n", t.failed)
	} else {
		fmt.Fprintf(r.out, "失败用例数: %d\n", t.failed)
	}
}
