package twin

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// mall-admin 默认的 token 有效期为 7 天
const DefaultTokenTTL = 7 * 24 * time.Hour

// Coupon 对应 SmsCoupon 的字段
type Coupon struct {
	ID           int64   `json:"id"`
	Type         int     `json:"type"`
	Name         string  `json:"name"`
	Platform     int     `json:"platform"`
	Count        int     `json:"count"`
	Amount       float64 `json:"amount"`
	PerLimit     int     `json:"perLimit"`
	MinPoint     float64 `json:"minPoint"`
	StartTime    string  `json:"startTime"`
	EndTime      string  `json:"endTime"`
	UseType      int     `json:"useType"`
	Note         string  `json:"note"`
	PublishCount int     `json:"publishCount"`
	UseCount     int     `json:"useCount"`
	ReceiveCount int     `json:"receiveCount"`
}

// Store 在内存中保存账号、优惠券和请求计数；token 为 HS512 签名的 JWT
type Store struct {
	mu       sync.RWMutex
	users    map[string]string // username -> password
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	coupons  []Coupon
	requests map[string]int // path -> 请求次数
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &Store{ttl: ttl, now: time.Now}
	s.Reset()
	return s
}

// Reset 恢复初始数据并更换签名密钥，之前签发的 token 全部失效
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = map[string]string{"admin": "macro123", "test": "123456"}
	s.secret = []byte(uuid.NewString())
	s.coupons = append([]Coupon(nil), seedCoupons...)
	s.requests = make(map[string]int)
}

// Login 校验账号密码并签发 token
func (s *Store) Login(username, password string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if want, ok := s.users[username]; !ok || want != password || username == "" {
		return "", false
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
	if err != nil {
		return "", false
	}
	return token, true
}

// Authorized 校验签名、有效期以及账号是否仍然存在
func (s *Store) Authorized(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return false
	}
	_, ok := s.users[claims.Subject]
	return ok
}

// Type 为 nil 时不按类型过滤
type CouponQuery struct {
	Name     string
	Type     *int
	PageNum  int
	PageSize int
}

// Coupons 返回当前页以及匹配总数
func (s *Store) Coupons(q CouponQuery) ([]Coupon, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Coupon
	for _, c := range s.coupons {
		if q.Name != "" && !strings.Contains(c.Name, q.Name) {
			continue
		}
		if q.Type != nil && c.Type != *q.Type {
			continue
		}
		matched = append(matched, c)
	}

	page := []Coupon{}
	from := (q.PageNum - 1) * q.PageSize
	if from < len(matched) {
		to := from + q.PageSize
		if to > len(matched) {
			to = len(matched)
		}
		page = append(page, matched[from:to]...)
	}
	return page, len(matched)
}

func (s *Store) record(path string) {
	s.mu.Lock()
	s.requests[path]++
	s.mu.Unlock()
}

func (s *Store) Requests(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[path]
}

var seedCoupons = []Coupon{
	{ID: 2, Type: 0, Name: "全品类通用券", Platform: 0, Count: 92, Amount: 10, PerLimit: 1, MinPoint: 100, StartTime: "2019-08-18T16:00:00.000+00:00", EndTime: "2019-12-30T16:00:00.000+00:00", UseType: 0, Note: "满100减10", PublishCount: 100, UseCount: 0, ReceiveCount: 8},
	{ID: 3, Type: 0, Name: "小米手机专用券", Platform: 0, Count: 92, Amount: 50, PerLimit: 1, MinPoint: 1000, StartTime: "2019-08-18T16:00:00.000+00:00", EndTime: "2019-12-30T16:00:00.000+00:00", UseType: 2, Note: "手机分类专用优惠券", PublishCount: 100, UseCount: 0, ReceiveCount: 8},
	{ID: 4, Type: 0, Name: "手机品类专用券", Platform: 0, Count: 92, Amount: 300, PerLimit: 1, MinPoint: 2000, StartTime: "2019-08-18T16:00:00.000+00:00", EndTime: "2019-12-30T16:00:00.000+00:00", UseType: 1, Note: "手机分类专用优惠券", PublishCount: 100, UseCount: 0, ReceiveCount: 8},
	{ID: 7, Type: 0, Name: "T恤分类专用优惠券", Platform: 0, Count: 93, Amount: 50, PerLimit: 1, MinPoint: 500, StartTime: "2019-08-18T16:00:00.000+00:00", EndTime: "2019-12-30T16:00:00.000+00:00", UseType: 1, Note: "满500减50", PublishCount: 100, UseCount: 0, ReceiveCount: 7},
	{ID: 8, Type: 0, Name: "新优惠券", Platform: 0, Count: 100, Amount: 100, PerLimit: 1, MinPoint: 1000, StartTime: "2019-11-08T16:00:00.000+00:00", EndTime: "2019-11-26T16:00:00.000+00:00", UseType: 0, Note: "测试", PublishCount: 100, UseCount: 0, ReceiveCount: 1},
	{ID: 9, Type: 0, Name: "全品类通用券", Platform: 0, Count: 100, Amount: 5, PerLimit: 1, MinPoint: 100, StartTime: "2019-11-08T16:00:00.000+00:00", EndTime: "2019-11-26T16:00:00.000+00:00", UseType: 0, Note: "测试", PublishCount: 100, UseCount: 0, ReceiveCount: 0},
	{ID: 10, Type: 1, Name: "会员赠送满减券", Platform: 0, Count: 100, Amount: 20, PerLimit: 1, MinPoint: 200, StartTime: "2020-01-01T16:00:00.000+00:00", EndTime: "2020-12-31T16:00:00.000+00:00", UseType: 0, Note: "会员注册赠送", PublishCount: 100, UseCount: 0, ReceiveCount: 0},
	{ID: 11, Type: 3, Name: "注册赠券", Platform: 1, Count: 1000, Amount: 8, PerLimit: 1, MinPoint: 50, StartTime: "2020-01-01T16:00:00.000+00:00", EndTime: "2020-12-31T16:00:00.000+00:00", UseType: 0, Note: "移动端注册赠券", PublishCount: 1000, UseCount: 0, ReceiveCount: 0},
}
