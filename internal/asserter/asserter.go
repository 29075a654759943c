// Package asserter checks a response against the expected HTTP status and
// business code/msg of a case row.
package asserter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/TSfhy/mall-jiekou-auto/internal/client"
	"github.com/TSfhy/mall-jiekou-auto/internal/config"
	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
	"github.com/TSfhy/mall-jiekou-auto/internal/model"
)

// Asserter compares responses using the configured body field names.
type Asserter struct {
	codeField string
	msgField  string
}

func New(fields config.Fields) *Asserter {
	a := &Asserter{codeField: fields.Code, msgField: fields.Msg}
	if a.codeField == "" {
		a.codeField = "code"
	}
	if a.msgField == "" {
		a.msgField = "msg"
	}
	return a
}

// Check runs the status, code and msg checks independently and returns every
// mismatch. An empty result means the response matched.
func (a *Asserter) Check(resp *client.Response, status int, code, msg string) []model.Mismatch {
	var mismatches []model.Mismatch

	if resp.StatusCode != status {
		mismatches = append(mismatches, model.Mismatch{
			Field: "status", Expected: status, Actual: resp.StatusCode, Present: true,
		})
	}

	// 响应体不是 JSON 时 code/msg 均视为缺失
	doc, _ := resp.JSON()

	if actual, ok := client.Lookup(doc, a.codeField); !ok || !equal(code, actual) {
		mismatches = append(mismatches, model.Mismatch{
			Field: a.codeField, Expected: code, Actual: actual, Present: ok,
		})
	}
	if actual, ok := client.Lookup(doc, a.msgField); !ok || !equal(msg, actual) {
		mismatches = append(mismatches, model.Mismatch{
			Field: a.msgField, Expected: msg, Actual: actual, Present: ok,
		})
	}
	return mismatches
}

// Assert is Check returning an *AssertionError when anything mismatched.
func (a *Asserter) Assert(resp *client.Response, status int, code, msg string) error {
	if m := a.Check(resp, status, code, msg); len(m) > 0 {
		return &AssertionError{Mismatches: m}
	}
	return nil
}

// equal compares an expected cell value with a decoded JSON value. JSON
// numbers compare numerically, strings and everything else as text.
func equal(expected string, actual any) bool {
	if actual == nil {
		return false
	}
	if got, ok := number(actual); ok {
		if want, ok := parseNumber(expected); ok {
			return want == got
		}
	}
	return expected == text(actual)
}

// number 只接受 JSON 数值，字符串按原文比较
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// AssertionError lists every failed expectation of a case.
type AssertionError struct {
	Mismatches []model.Mismatch
}

func (e *AssertionError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return "AssertionFailed: " + strings.Join(parts, "; ")
}

func (e *AssertionError) ErrorKind() caseerrors.Kind {
	return caseerrors.KindAssertion
}

// Fields returns the names of the mismatched fields in check order.
func (e *AssertionError) Fields() []string {
	names := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		names[i] = m.Field
	}
	return names
}
