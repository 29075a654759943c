package params

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Params
	}{
		{"empty", "", Params{}},
		{"blank", "  \n ", Params{}},
		{"empty braces", "{}", Params{}},
		{"double quoted", `{username: "admin", password: "macro123"}`,
			Params{"username": "admin", "password": "macro123"}},
		{"single quoted keys and values", `{'username': 'admin', 'password': ''}`,
			Params{"username": "admin", "password": ""}},
		{"json style", `{"pageNum":1,"pageSize":5}`,
			Params{"pageNum": int64(1), "pageSize": int64(5)}},
		{"bare entries", `pageNum: 1, pageSize: 10, name: "满减券"`,
			Params{"pageNum": int64(1), "pageSize": int64(10), "name": "满减券"}},
		{"numbers and booleans", `{a: -3, b: 2.50, c: 1e3, d: True, e: false}`,
			Params{"a": int64(-3), "b": 2.5, "c": 1000.0, "d": true, "e": false}},
		{"quoted numbers stay strings", `{type: "1", code: '200'}`,
			Params{"type": "1", "code": "200"}},
		{"leading zero stays string", `{phone: 013800138000}`,
			Params{"phone": "013800138000"}},
		{"plain word", `{name: 满减券}`, Params{"name": "满减券"}},
		{"escapes", `{a: "say \"hi\"", b: 'it''s', c: "tab\there"}`,
			Params{"a": `say "hi"`, "b": "it's", "c": "tab\there"}},
		{"trailing comma and newlines", "{\n  pageNum: 1,\n  pageSize: 5,\n}",
			Params{"pageNum": int64(1), "pageSize": int64(5)}},
		{"quote inside plain word", `{name: it's}`, Params{"name": "it's"}},
		{"brace inside quotes", `{name: "a}b", other: '{'}`,
			Params{"name": "a}b", "other": "{"}},
		{"date stays string", `{startTime: 2024-01-01}`, Params{"startTime": "2024-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Decode(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unbalanced double quote", `{username: "admin, password: "x"}`},
		{"unbalanced single quote", `{username: 'admin}`},
		{"unbalanced brace", `{username: "admin"`},
		{"missing value", `{username: }`},
		{"null value", `{username: null}`},
		{"bare word", `admin`},
		{"nested mapping", `{a: {b: 1}}`},
		{"sequence value", `{a: [1, 2]}`},
		{"sequence cell", `[1, 2]`},
		{"duplicate key", `{a: 1, a: 2}`},
		{"anchor", `{a: &x 1, b: *x}`},
		{"explicit tag", `{a: !!str 1}`},
		{"int overflow", `{a: 99999999999999999999}`},
		{"trailing garbage", `{a: 1} b`},
		{"extra closing brace", `{a: 1}}`},
		{"second mapping", `{a: "x"} {b: 2}`},
		{"bare entries with stray brace", `a: 1}`},
		{"python none", `{username: None}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.True(t, caseerrors.Is(err, caseerrors.KindDecode), "got %v", err)
		})
	}
}

func TestCheckBalanced(t *testing.T) {
	assert.NoError(t, checkBalanced(`{a: "x\"}", b: 'it''s}'}`))
	assert.ErrorContains(t, checkBalanced(`{a: 1}}`), "after mapping")
	assert.ErrorContains(t, checkBalanced(`{a: "x}`), "unterminated")
	assert.ErrorContains(t, checkBalanced(`{a: [1}`), "unbalanced")
}

func TestDecodeIsIdempotent(t *testing.T) {
	raw := `{name: "满减", type: 0, pageNum: 1, pageSize: 5, enabled: true, rate: 0.75}`
	first, err := Decode(raw)
	require.NoError(t, err)
	second, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQueryAndJSON(t *testing.T) {
	p := Params{"name": "满减 券", "pageNum": int64(1), "rate": 0.5, "big": 1e21, "on": true}

	assert.Equal(t, "big=1000000000000000000000&name=%E6%BB%A1%E5%87%8F+%E5%88%B8&on=true&pageNum=1&rate=0.5", p.Query().Encode())

	body, err := p.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"满减 券","pageNum":1,"rate":0.5,"big":1e21,"on":true}`, string(body))

	body, err = Params(nil).JSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))

	assert.Equal(t, "big=1000000000000000000000&name=满减 券&on=true&pageNum=1&rate=0.5", p.String())
}
