package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/TSfhy/mall-jiekou-auto/internal/config"
	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
	"github.com/TSfhy/mall-jiekou-auto/internal/model"
	"github.com/TSfhy/mall-jiekou-auto/internal/params"
)

type Client struct {
	http           *http.Client
	baseURL        string
	loginPath      string
	couponListPath string
}

// cfg.Timeout 为 0 时不设置超时
func New(cfg *config.Config) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewWithHTTPClient(cfg *config.Config, hc *http.Client) *Client {
	return &Client{
		http:           hc,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		loginPath:      cfg.LoginPath,
		couponListPath: cfg.CouponListPath,
	}
}

// 登录接口，body 以 JSON 发送
func (c *Client) Login(ctx context.Context, body params.Params) (*Response, error) {
	data, err := body.JSON()
	if err != nil {
		return nil, fmt.Errorf("编码登录参数失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.loginPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, string(data))
}

// 优惠卷列表查询，参数放在 URL 上
func (c *Client) SelectCoupon(ctx context.Context, token model.Token, query params.Params) (*Response, error) {
	url := c.baseURL + c.couponListPath
	if len(query) > 0 {
		url += "?" + query.Query().Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(token))
	return c.do(req, "")
}

func (c *Client) do(req *http.Request, body string) (*Response, error) {
	curl := toCurl(req, body)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, caseerrors.Transport(err, "执行请求失败 %s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	// 读取响应
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, caseerrors.Transport(err, "读取响应失败 %s %s", req.Method, req.URL.Path)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Text:       string(data),
		Duration:   time.Since(start),
		Curl:       curl,
	}, nil
}

// toCurl 将请求转换为 curl 命令
func toCurl(req *http.Request, body string) string {
	curl := fmt.Sprintf("curl -X %s", req.Method)

	// 请求头按名称排序，保证输出稳定
	keys := make([]string, 0, len(req.Header))
	for key := range req.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		curl += fmt.Sprintf(" -H '%s: %s'", key, req.Header.Get(key))
	}

	// 添加请求体
	if body != "" {
		curl += fmt.Sprintf(" -d '%s'", body)
	}

	// 添加URL
	curl += fmt.Sprintf(" '%s'", req.URL.String())

	return curl
}

type Response struct {
	StatusCode int
	Header     http.Header
	Text       string
	Duration   time.Duration
	Curl       string
}

// 数字保留为 json.Number
func (r *Response) JSON() (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(r.Text))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("响应不是有效的JSON对象: %w", err)
	}
	return body, nil
}

// Field 按 "data.token" 这样的路径取值，响应不是 JSON 或路径不存在时返回 false
func (r *Response) Field(path string) (any, bool) {
	body, err := r.JSON()
	if err != nil {
		return nil, false
	}
	return Lookup(body, path)
}

func Lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
