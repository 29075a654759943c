// Package twin 是 mall 后台接口的内存替身，登录和优惠卷列表返回同样的 {code, msg, data} 结构
package twin

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// 业务返回码，与 mall 的 ResultCode 一致
const (
	CodeSuccess        = 200
	CodeValidateFailed = 404
	CodeUnauthorized   = 401
)

const (
	MsgSuccess        = "操作成功"
	MsgBadCredentials = "用户名或密码错误"
	MsgValidateFailed = "参数检验失败"
	MsgUnauthorized   = "暂未登录或token已经过期"
)

const (
	LoginPath      = "/admin/login"
	CouponListPath = "/coupon/list"
	HealthPath     = "/admin/health"

	defaultPageSize = 5
)

type Options struct {
	Logger   *slog.Logger
	Verbose  bool
	TokenTTL time.Duration // 为 0 时使用 DefaultTokenTTL
}

type Twin struct {
	Store  *Store
	Router *chi.Mux
	logger *slog.Logger
	opts   Options
}

func New(opts Options) *Twin {
	if opts.Logger == nil {
		level := slog.LevelInfo
		if opts.Verbose {
			level = slog.LevelDebug
		}
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: level}))
	}

	t := &Twin{
		Store:  NewStore(opts.TokenTTL),
		Router: chi.NewRouter(),
		logger: opts.Logger,
		opts:   opts,
	}

	t.Router.Use(chimw.RequestID)
	t.Router.Use(chimw.Recoverer)
	t.Router.Use(t.requestLog)

	t.Router.Post(LoginPath, t.login)
	t.Router.Get(CouponListPath, t.couponList)
	t.Router.Get(HealthPath, t.health)
	return t
}

func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.Router.ServeHTTP(w, r)
}

func (t *Twin) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		t.Store.record(r.URL.Path)
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		}
		if t.opts.Verbose {
			attrs = append(attrs, "query", r.URL.RawQuery)
		}
		t.logger.Debug("request", attrs...)
	})
}

// 对应 mall 的 CommonResult
type result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func writeResult(w http.ResponseWriter, status, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result{Code: code, Msg: msg, Data: data})
}

type loginParam struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /admin/login
func (t *Twin) login(w http.ResponseWriter, r *http.Request) {
	var p loginParam
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeResult(w, http.StatusBadRequest, CodeValidateFailed, MsgValidateFailed, nil)
		return
	}

	token, ok := t.Store.Login(p.Username, p.Password)
	if !ok {
		writeResult(w, http.StatusOK, CodeValidateFailed, MsgBadCredentials, nil)
		return
	}
	t.logger.Info("login", "username", p.Username)
	writeResult(w, http.StatusOK, CodeSuccess, MsgSuccess, map[string]string{
		"token":     token,
		"tokenHead": "Bearer ",
	})
}

type page struct {
	PageNum   int      `json:"pageNum"`
	PageSize  int      `json:"pageSize"`
	TotalPage int      `json:"totalPage"`
	Total     int      `json:"total"`
	List      []Coupon `json:"list"`
}

// GET /coupon/list
func (t *Twin) couponList(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(r)
	if !ok || !t.Store.Authorized(token) {
		writeResult(w, http.StatusUnauthorized, CodeUnauthorized, MsgUnauthorized, nil)
		return
	}

	q := r.URL.Query()
	query := CouponQuery{Name: q.Get("name")}

	var err error
	if query.PageNum, err = positiveInt(q.Get("pageNum"), 1); err != nil {
		writeResult(w, http.StatusBadRequest, CodeValidateFailed, MsgValidateFailed, nil)
		return
	}
	if query.PageSize, err = positiveInt(q.Get("pageSize"), defaultPageSize); err != nil {
		writeResult(w, http.StatusBadRequest, CodeValidateFailed, MsgValidateFailed, nil)
		return
	}
	if s := q.Get("type"); s != "" {
		typ, err := strconv.Atoi(s)
		if err != nil {
			writeResult(w, http.StatusBadRequest, CodeValidateFailed, MsgValidateFailed, nil)
			return
		}
		query.Type = &typ
	}

	list, total := t.Store.Coupons(query)
	writeResult(w, http.StatusOK, CodeSuccess, MsgSuccess, page{
		PageNum:   query.PageNum,
		PageSize:  query.PageSize,
		TotalPage: int(math.Ceil(float64(total) / float64(query.PageSize))),
		Total:     total,
		List:      list,
	})
}

func (t *Twin) health(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, CodeSuccess, MsgSuccess, map[string]string{"status": "ok"})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func positiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
