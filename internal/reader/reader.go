// Package reader 从 Excel/CSV 文件读取用例行，空单元格为 ""
package reader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
	"github.com/TSfhy/mall-jiekou-auto/internal/model"
)

const defaultHeaderRow = 1

type Options struct {
	HeaderRow int    // leading rows to skip, 0 means 1
	Width     int    // rows are padded to at least this many cells, 0 means model.CaseWidth
	Encoding  string // csv only: "", "utf-8", "gbk" or "gb18030"
	Comma     rune   // csv only, 0 means ','
}

func (o Options) withDefaults() Options {
	if o.HeaderRow <= 0 {
		o.HeaderRow = defaultHeaderRow
	}
	if o.Width <= 0 {
		o.Width = model.CaseWidth
	}
	if o.Comma == 0 {
		o.Comma = ','
	}
	return o
}

type Reader struct {
	fs afero.Fs
}

// fs 为 nil 时读取本地文件系统
func New(fs afero.Fs) *Reader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Reader{fs: fs}
}

func ReadExcel(path, sheet string) ([]model.Row, error) {
	return New(nil).Read(path, sheet, Options{})
}

// Read 按表格顺序返回全部数据行；sheet 为空时读取活动工作表，csv 文件忽略 sheet
func (r *Reader) Read(path, sheet string, opts Options) ([]model.Row, error) {
	opts = opts.withDefaults()

	if err := r.checkFile(path); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		raw [][]string
		err error
	)
	switch ext {
	case ".xlsx", ".xlsm":
		raw, err = r.readWorkbook(path, sheet)
	case ".csv":
		raw, err = r.readCSV(path, opts)
	default:
		return nil, caseerrors.UnsupportedFormat(path, ext)
	}
	if err != nil {
		return nil, err
	}

	// 数据行从表头下一行开始
	if len(raw) <= opts.HeaderRow {
		return []model.Row{}, nil
	}
	raw = raw[opts.HeaderRow:]

	rows := make([]model.Row, 0, len(raw))
	for _, cells := range raw {
		rows = append(rows, normalize(cells, opts.Width))
	}
	return rows, nil
}

func (r *Reader) checkFile(path string) error {
	fi, err := r.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return caseerrors.FileNotFound(path)
		}
		return caseerrors.InvalidFile(path, err, "无法访问文件")
	}
	if !fi.Mode().IsRegular() {
		return caseerrors.InvalidFile(path, nil, "不是有效文件")
	}
	return nil
}

func (r *Reader) readWorkbook(path, sheet string) ([][]string, error) {
	file, err := r.fs.Open(path)
	if err != nil {
		return nil, caseerrors.InvalidFile(path, err, "无法打开文件")
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, caseerrors.InvalidFile(path, err, "无法打开Excel文件")
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, caseerrors.InvalidFile(path, err, "工作表 %q 不存在", sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, caseerrors.InvalidFile(path, err, "无法读取工作表 %q", sheet)
	}
	return rows, nil
}

func (r *Reader) readCSV(path string, opts Options) ([][]string, error) {
	dec, err := csvDecoder(opts.Encoding)
	if err != nil {
		return nil, caseerrors.InvalidFile(path, err, "不支持的编码 %q", opts.Encoding)
	}

	file, err := r.fs.Open(path)
	if err != nil {
		return nil, caseerrors.InvalidFile(path, err, "无法打开文件")
	}
	defer file.Close()

	cr := csv.NewReader(transform.NewReader(file, dec.NewDecoder()))
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, caseerrors.InvalidFile(path, err, "无法解析CSV")
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func csvDecoder(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		// Excel 导出的 CSV 常带 BOM
		return unicode.UTF8BOM, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

func normalize(cells []string, width int) model.Row {
	n := len(cells)
	if n < width {
		n = width
	}
	row := make(model.Row, n)
	copy(row, cells)
	return row
}
