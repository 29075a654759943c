package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
)

// 用例分组类型
const (
	KindLogin  = "login"
	KindCoupon = "coupon"
)

// 令牌作用域，与 pytest fixture 的 scope 对应
const (
	ScopeFunction = "function"
	ScopeClass    = "class"
	ScopeSession  = "session"
)

const (
	DefaultBaseURL        = "https://admin-api.macrozheng.com"
	DefaultLoginPath      = "/admin/login"
	DefaultCouponListPath = "/coupon/list"
	DefaultSuccessCode    = 200
	DefaultLogDir         = "logs"
)

//go:embed config.schema.json
var schemaData []byte

var (
	configSchema *jsonschema.Schema
	compileOnce  sync.Once
	compileErr   error
)

// 添加一个辅助结构体来处理 JSON 解析
type jsonConfig struct {
	BaseURL        string      `json:"base_url"`
	LoginPath      string      `json:"login_path"`
	CouponListPath string      `json:"coupon_list_path"`
	Timeout        string      `json:"timeout"`
	Concurrent     int         `json:"concurrent"`
	Credentials    Credentials `json:"credentials"`
	TokenScope     string      `json:"token_scope"`
	SuccessCode    int         `json:"success_code"`
	Fields         Fields      `json:"fields"`
	LogDir         string      `json:"log_dir"`
	ReportPath     string      `json:"report_path"`
	ExcelPath      string      `json:"excel_path"`
	SheetName      string      `json:"sheet_name"`
	HeaderRow      int         `json:"header_row"`
	Groups         []Group     `json:"groups"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Fields 指定响应体中业务字段的路径
type Fields struct {
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Token string `json:"token"`
}

// Group 对应一个工作表的一组用例
type Group struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	ExcelPath string `json:"excel_path"`
	SheetName string `json:"sheet_name"`
	HeaderRow int    `json:"header_row"`
	Encoding  string `json:"encoding"`
	Delimiter string `json:"delimiter"`
	Feature   string `json:"feature"`
	Story     string `json:"story"`
}

// NeedsToken reports whether cases of this group call an authorized endpoint.
func (g Group) NeedsToken() bool {
	return g.Kind == KindCoupon
}

type Config struct {
	BaseURL        string
	LoginPath      string
	CouponListPath string
	Timeout        time.Duration
	Concurrent     int
	Credentials    Credentials
	TokenScope     string
	SuccessCode    int
	Fields         Fields
	LogDir         string
	ReportPath     string
	Groups         []Group
}

// Load 读取配置文件，.yaml/.yml 按 YAML 解析，其余按 JSON 解析
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, caseerrors.Config(err, "读取配置文件失败")
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes and validates a configuration document. ext selects the
// format (".yaml", ".yml" or anything else for JSON).
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, caseerrors.Config(err, "解析YAML配置失败")
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, caseerrors.Config(err, "转换YAML配置失败")
		}
		data = converted
	}

	if err := validate(data); err != nil {
		return nil, err
	}

	// 先解析到临时结构体
	var jsonCfg jsonConfig
	if err := json.Unmarshal(data, &jsonCfg); err != nil {
		return nil, caseerrors.Config(err, "解析配置失败")
	}

	var timeout time.Duration
	if jsonCfg.Timeout != "" {
		d, err := time.ParseDuration(jsonCfg.Timeout)
		if err != nil {
			return nil, caseerrors.Config(err, "无效的 timeout %q", jsonCfg.Timeout)
		}
		if d < 0 {
			return nil, caseerrors.Config(nil, "timeout 不能为负数")
		}
		timeout = d
	}

	// 创建最终的配置对象
	cfg := &Config{
		BaseURL:        strings.TrimRight(jsonCfg.BaseURL, "/"),
		LoginPath:      jsonCfg.LoginPath,
		CouponListPath: jsonCfg.CouponListPath,
		Timeout:        timeout,
		Concurrent:     jsonCfg.Concurrent,
		Credentials:    jsonCfg.Credentials,
		TokenScope:     jsonCfg.TokenScope,
		SuccessCode:    jsonCfg.SuccessCode,
		Fields:         jsonCfg.Fields,
		LogDir:         jsonCfg.LogDir,
		ReportPath:     jsonCfg.ReportPath,
		Groups:         make([]Group, 0, len(jsonCfg.Groups)),
	}

	// 分组未设置的字段继承顶层默认值
	seen := make(map[string]bool)
	for _, g := range jsonCfg.Groups {
		if seen[g.Name] {
			return nil, caseerrors.Config(nil, "分组名称重复: %s", g.Name)
		}
		seen[g.Name] = true
		if g.ExcelPath == "" {
			g.ExcelPath = jsonCfg.ExcelPath
		}
		if g.SheetName == "" {
			g.SheetName = jsonCfg.SheetName
		}
		if g.HeaderRow == 0 {
			g.HeaderRow = jsonCfg.HeaderRow
		}
		if g.HeaderRow == 0 {
			g.HeaderRow = 1
		}
		if g.ExcelPath == "" {
			return nil, caseerrors.Config(nil, "分组 %s 未指定 excel_path", g.Name)
		}
		cfg.Groups = append(cfg.Groups, g)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// 设置默认值
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.CouponListPath == "" {
		c.CouponListPath = DefaultCouponListPath
	}
	if c.Concurrent == 0 {
		c.Concurrent = 1
	}
	if c.Credentials.Username == "" && c.Credentials.Password == "" {
		c.Credentials = Credentials{Username: "admin", Password: "macro123"}
	}
	if c.TokenScope == "" {
		c.TokenScope = ScopeFunction
	}
	if c.SuccessCode == 0 {
		c.SuccessCode = DefaultSuccessCode
	}
	if c.Fields.Code == "" {
		c.Fields.Code = "code"
	}
	if c.Fields.Msg == "" {
		c.Fields.Msg = "msg"
	}
	if c.Fields.Token == "" {
		c.Fields.Token = "data.token"
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
}

// 环境变量优先于配置文件
func (c *Config) applyEnv() {
	if v := os.Getenv("MALL_BASE_URL"); v != "" {
		c.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("MALL_USERNAME"); v != "" {
		c.Credentials.Username = v
	}
	if v := os.Getenv("MALL_PASSWORD"); v != "" {
		c.Credentials.Password = v
	}
}

// 相对路径以配置文件所在目录为基准
func (c *Config) resolvePaths(dir string) {
	for i := range c.Groups {
		if !filepath.IsAbs(c.Groups[i].ExcelPath) {
			c.Groups[i].ExcelPath = filepath.Join(dir, c.Groups[i].ExcelPath)
		}
	}
}

// Group returns the group with the given name.
func (c *Config) Group(name string) (Group, bool) {
	for _, g := range c.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal config schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		configSchema, err = compiler.Compile("config.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile config schema: %w", err)
		}
	})
	return compileErr
}

func validate(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return caseerrors.Config(err, "配置不是有效的JSON")
	}
	if err := configSchema.Validate(v); err != nil {
		return caseerrors.Config(err, "配置校验失败")
	}
	return nil
}
