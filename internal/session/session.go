package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/TSfhy/mall-jiekou-auto/internal/client"
	"github.com/TSfhy/mall-jiekou-auto/internal/config"
	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
	"github.com/TSfhy/mall-jiekou-auto/internal/model"
	"github.com/TSfhy/mall-jiekou-auto/internal/params"
)

type Session struct {
	client      *client.Client
	credentials config.Credentials
	tokenPath   string
	codeField   string
	msgField    string
	successCode int
}

func New(c *client.Client, cfg *config.Config) *Session {
	return &Session{
		client:      c,
		credentials: cfg.Credentials,
		tokenPath:   cfg.Fields.Token,
		codeField:   cfg.Fields.Code,
		msgField:    cfg.Fields.Msg,
		successCode: cfg.SuccessCode,
	}
}

// 使用配置中的账号登录
func (s *Session) Login(ctx context.Context) (model.Token, error) {
	return s.LoginWith(ctx, params.Params{
		"username": s.credentials.Username,
		"password": s.credentials.Password,
	})
}

// LoginWith 网络错误原样返回，其余拿不到 token 的情况均为 AuthError
func (s *Session) LoginWith(ctx context.Context, body params.Params) (model.Token, error) {
	resp, err := s.client.Login(ctx, body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", caseerrors.Auth(nil, "登录失败，状态码 %d: %s", resp.StatusCode, resp.Text)
	}

	doc, err := resp.JSON()
	if err != nil {
		return "", caseerrors.Auth(err, "登录响应无法解析")
	}

	if code, ok := client.Lookup(doc, s.codeField); ok && !codeEquals(code, s.successCode) {
		msg, _ := client.Lookup(doc, s.msgField)
		return "", caseerrors.Auth(nil, "登录失败，code=%v msg=%v", code, msg)
	}

	raw, ok := client.Lookup(doc, s.tokenPath)
	if !ok {
		return "", caseerrors.Auth(nil, "登录响应中缺少 %s", s.tokenPath)
	}
	token, ok := raw.(string)
	if !ok || token == "" {
		return "", caseerrors.Auth(nil, "登录响应中的 %s 无效: %v", s.tokenPath, raw)
	}
	return model.Token(token), nil
}

func codeEquals(v any, want int) bool {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == float64(want)
	case string:
		return x == strconv.Itoa(want)
	case float64:
		return x == float64(want)
	default:
		return false
	}
}

// Scope 对应 fixture 的作用域：function / class / session
type Scope int

const (
	ScopeFunction Scope = iota
	ScopeClass
	ScopeSession
)

func (s Scope) String() string {
	switch s {
	case ScopeFunction:
		return config.ScopeFunction
	case ScopeClass:
		return config.ScopeClass
	case ScopeSession:
		return config.ScopeSession
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// 空字符串视为 function
func ParseScope(name string) (Scope, error) {
	switch name {
	case "", config.ScopeFunction:
		return ScopeFunction, nil
	case config.ScopeClass:
		return ScopeClass, nil
	case config.ScopeSession:
		return ScopeSession, nil
	}
	return 0, caseerrors.Config(nil, "未知的 token_scope %q", name)
}

type LoginFunc func(ctx context.Context) (model.Token, error)

// Fixture 按作用域发放 token。function 作用域每次都重新登录；
// 更大的作用域复用第一次的结果（包括失败），直到对应作用域结束
type Fixture struct {
	scope Scope
	login LoginFunc

	mu     sync.Mutex
	cached bool
	token  model.Token
	err    error
	logins int
}

func NewFixture(scope Scope, login LoginFunc) *Fixture {
	return &Fixture{scope: scope, login: login}
}

func (f *Fixture) Scope() Scope {
	return f.scope
}

func (f *Fixture) Token(ctx context.Context) (model.Token, error) {
	if f.scope == ScopeFunction {
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		return f.login(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cached {
		f.logins++
		f.token, f.err = f.login(ctx)
		f.cached = true
	}
	return f.token, f.err
}

// EndScope 只清除与自身作用域相同的缓存
func (f *Fixture) EndScope(scope Scope) {
	if scope != f.scope {
		return
	}
	f.mu.Lock()
	f.cached = false
	f.token = ""
	f.err = nil
	f.mu.Unlock()
}

// 已发起的登录次数
func (f *Fixture) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}
