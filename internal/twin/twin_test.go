package twin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*Twin, *httptest.Server) {
	t.Helper()
	tw := New(Options{})
	srv := httptest.NewServer(tw)
	t.Cleanup(srv.Close)
	return tw, srv
}

func do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func login(t *testing.T, srv *httptest.Server, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+LoginPath, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return do(t, req)
}

func couponList(t *testing.T, srv *httptest.Server, token string, q url.Values) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+CouponListPath+"?"+q.Encode(), nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, req)
}

func tokenFor(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	_, env := login(t, srv, `{"username":"admin","password":"macro123"}`)
	var data struct {
		Token     string `json:"token"`
		TokenHead string `json:"tokenHead"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	assert.Equal(t, "Bearer ", data.TokenHead)
	return data.Token
}

func TestLogin(t *testing.T) {
	_, srv := setup(t)

	status, env := login(t, srv, `{"username":"admin","password":"macro123"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, CodeSuccess, env.Code)
	assert.Equal(t, MsgSuccess, env.Msg)

	status, env = login(t, srv, `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, CodeValidateFailed, env.Code)
	assert.Equal(t, MsgBadCredentials, env.Msg)
	assert.Equal(t, "null", string(env.Data))

	status, env = login(t, srv, `{"username":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeValidateFailed, env.Code)

	status, env = login(t, srv, `{}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, CodeValidateFailed, env.Code)
}

func TestCouponListRequiresToken(t *testing.T) {
	_, srv := setup(t)

	for _, token := range []string{"", "forged"} {
		status, env := couponList(t, srv, token, url.Values{})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, CodeUnauthorized, env.Code)
		assert.Equal(t, MsgUnauthorized, env.Msg)
	}
}

func TestCouponListPaging(t *testing.T) {
	tw, srv := setup(t)
	token := tokenFor(t, srv)

	status, env := couponList(t, srv, token, url.Values{"pageNum": {"2"}, "pageSize": {"3"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, CodeSuccess, env.Code)

	var p page
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 2, p.PageNum)
	assert.Equal(t, 3, p.PageSize)
	assert.Equal(t, len(seedCoupons), p.Total)
	assert.Equal(t, 3, p.TotalPage)
	require.Len(t, p.List, 3)
	assert.Equal(t, seedCoupons[3].ID, p.List[0].ID)

	// 默认分页
	_, env = couponList(t, srv, token, nil)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 1, p.PageNum)
	assert.Equal(t, 5, p.PageSize)

	assert.Equal(t, 1, tw.Store.Requests(LoginPath))
	assert.Equal(t, 2, tw.Store.Requests(CouponListPath))
}

func TestCouponListFilters(t *testing.T) {
	_, srv := setup(t)
	token := tokenFor(t, srv)

	_, env := couponList(t, srv, token, url.Values{"name": {"通用"}})
	var p page
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 2, p.Total)
	for _, c := range p.List {
		assert.Contains(t, c.Name, "通用")
	}

	_, env = couponList(t, srv, token, url.Values{"type": {"3"}})
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Equal(t, 1, p.Total)
	assert.Equal(t, "注册赠券", p.List[0].Name)

	_, env = couponList(t, srv, token, url.Values{"name": {"不存在"}, "pageNum": {"4"}})
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 0, p.Total)
	assert.NotNil(t, p.List)
	assert.Empty(t, p.List)
}

func TestCouponListRejectsBadPaging(t *testing.T) {
	_, srv := setup(t)
	token := tokenFor(t, srv)

	for _, q := range []url.Values{
		{"pageNum": {"abc"}},
		{"pageSize": {"0"}},
		{"type": {"x"}},
	} {
		status, env := couponList(t, srv, token, q)
		assert.Equal(t, http.StatusBadRequest, status, q.Encode())
		assert.Equal(t, CodeValidateFailed, env.Code)
	}
}

func TestResetDropsTokens(t *testing.T) {
	tw, srv := setup(t)
	token := tokenFor(t, srv)

	tw.Store.Reset()
	status, _ := couponList(t, srv, token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 1, tw.Store.Requests(CouponListPath))
}

func TestHealth(t *testing.T) {
	_, srv := setup(t)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+HealthPath, nil)
	status, env := do(t, req)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}

func TestTokenIsSignedJWT(t *testing.T) {
	tw, srv := setup(t)
	token := tokenFor(t, srv)

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return tw.Store.secret, nil
	})
	require.NoError(t, err)
	assert.Equal(t, jwt.SigningMethodHS512.Alg(), parsed.Method.Alg())
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, DefaultTokenTTL, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	// 其他密钥签名的 token 无效
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("mall-admin-secret"))
	require.NoError(t, err)
	status, _ := couponList(t, srv, forged, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// 不接受 none 算法
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.False(t, tw.Store.Authorized(unsigned))
}

func TestExpiredTokenRejected(t *testing.T) {
	tw := New(Options{TokenTTL: time.Minute})
	srv := httptest.NewServer(tw)
	t.Cleanup(srv.Close)

	token := tokenFor(t, srv)
	status, env := couponList(t, srv, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, CodeSuccess, env.Code)

	tw.Store.mu.Lock()
	tw.Store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	tw.Store.mu.Unlock()

	status, env = couponList(t, srv, token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, MsgUnauthorized, env.Msg)
}
