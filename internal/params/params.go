// Package params decodes the parameter cell of a case row into request
// parameters.
//
// A cell holds a flat mapping written in flow style:
//
//	cell    := ws | ws mapping ws | ws entries ws      (bare entries are wrapped in {})
//	mapping := '{' [ entry { ',' entry } [ ',' ] ] '}'
//	entry   := key ':' value
//	key     := quoted | plain
//	value   := quoted | int | float | bool | plain
//	quoted  := '"' (char | '\' escape)* '"'  |  "'" (char | "''")* "'"
//	int     := [-+]? (0 | [1-9][0-9]*)
//	float   := int ('.' [0-9]+)? ([eE] [-+]? [0-9]+)?  (with a fraction or exponent)
//	bool    := true | false | True | False | TRUE | FALSE
//
// Entries are separated by commas; line breaks count as whitespace. Quoted
// values are always strings, so "200" stays a string and 200 becomes an
// int64. Plain words that are not numbers or booleans are strings, as are
// numbers with a leading zero such as 0138. Empty values, null or None, nested
// mappings or sequences, anchors, aliases, explicit tags, duplicate keys and
// anything after the closing brace are rejected.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	caseerrors "github.com/TSfhy/mall-jiekou-auto/internal/errors"
)

var (
	intPattern   = regexp.MustCompile(`^[-+]?(0|[1-9][0-9]*)$`)
	floatPattern = regexp.MustCompile(`^[-+]?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][-+]?[0-9]+)?$`)
)

// Params maps parameter names to string, int64, float64 or bool values.
type Params map[string]any

// Decode parses a parameter cell. Malformed input yields a DecodeError.
func Decode(raw string) (Params, error) {
	src := strings.TrimSpace(raw)
	if src == "" {
		return Params{}, nil
	}
	if !strings.HasPrefix(src, "{") {
		src = "{" + src + "}"
	}

	if err := checkBalanced(src); err != nil {
		return nil, caseerrors.Decode(err, "参数格式错误 %q", raw)
	}

	dec := yaml.NewDecoder(strings.NewReader(src))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		return nil, caseerrors.Decode(err, "参数格式错误 %q", raw)
	}
	// 映射之后不允许再有其他文档
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, caseerrors.Decode(err, "参数后有多余内容 %q", raw)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, caseerrors.Decode(nil, "参数格式错误 %q", raw)
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode || m.Style&yaml.FlowStyle == 0 {
		return nil, caseerrors.Decode(nil, "参数不是键值映射 %q", raw)
	}

	params := make(Params, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		key, err := decodeKey(k)
		if err != nil {
			return nil, caseerrors.Decode(err, "参数格式错误 %q", raw)
		}
		if _, dup := params[key]; dup {
			return nil, caseerrors.Decode(nil, "参数键重复 %q (line %d, column %d)", key, k.Line, k.Column)
		}
		value, err := decodeValue(v)
		if err != nil {
			return nil, caseerrors.Decode(err, "参数 %q 的值无效", key)
		}
		params[key] = value
	}
	return params, nil
}

// checkBalanced 检查括号与引号成对出现，且最外层映射之后没有多余字符
func checkBalanced(src string) error {
	var (
		depth   int
		quote   rune
		escaped bool
		prev    rune // 上一个非空白字符
	)
	for i, r := range src {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case quote == '"' && r == '\\':
				escaped = true
			case quote == '\'' && r == '\'' && i+1 < len(src) && src[i+1] == '\'':
				escaped = true
			case r == quote:
				quote = 0
				prev = r
			}
			continue
		}
		if depth == 0 && i > 0 {
			return fmt.Errorf("unexpected %q after mapping at offset %d", src[i:], i)
		}
		switch r {
		case '"', '\'':
			// 只有出现在值或键的开头才是引号
			if strings.ContainsRune("{[,:", prev) {
				quote = r
			}
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
		if !unicode.IsSpace(r) {
			prev = r
		}
	}
	switch {
	case quote != 0:
		return fmt.Errorf("unterminated %c quote", quote)
	case depth != 0:
		return fmt.Errorf("unbalanced braces")
	}
	return nil
}

func decodeKey(n *yaml.Node) (string, error) {
	if err := checkScalar(n); err != nil {
		return "", err
	}
	if n.Style == 0 && n.Value == "" {
		return "", fmt.Errorf("empty key at line %d, column %d", n.Line, n.Column)
	}
	return n.Value, nil
}

func decodeValue(n *yaml.Node) (any, error) {
	if err := checkScalar(n); err != nil {
		return nil, err
	}
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		return n.Value, nil
	}
	return plainLiteral(n.Value, n.Line, n.Column)
}

func checkScalar(n *yaml.Node) error {
	switch {
	case n.Kind == yaml.AliasNode || n.Anchor != "":
		return fmt.Errorf("anchors and aliases are not allowed (line %d, column %d)", n.Line, n.Column)
	case n.Kind != yaml.ScalarNode:
		return fmt.Errorf("nested values are not allowed (line %d, column %d)", n.Line, n.Column)
	case n.Style&yaml.TaggedStyle != 0:
		return fmt.Errorf("explicit tag %s is not allowed (line %d, column %d)", n.Tag, n.Line, n.Column)
	case n.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0:
		return fmt.Errorf("block scalars are not allowed (line %d, column %d)", n.Line, n.Column)
	}
	return nil
}

// plainLiteral types an unquoted scalar.
func plainLiteral(s string, line, col int) (any, error) {
	switch s {
	case "", "~", "null", "Null", "NULL", "None":
		return nil, fmt.Errorf("missing value at line %d, column %d", line, col)
	case "true", "True", "TRUE":
		return true, nil
	case "false", "False", "FALSE":
		return false, nil
	}
	if intPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("integer %s out of range at line %d, column %d", s, line, col)
		}
		return n, nil
	}
	if floatPattern.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return nil, fmt.Errorf("number %s out of range at line %d, column %d", s, line, col)
		}
		return f, nil
	}
	return s, nil
}

// FormatValue renders a decoded value the way it is sent on the wire.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Query encodes the parameters as URL query values.
func (p Params) Query() url.Values {
	q := make(url.Values, len(p))
	for k, v := range p {
		q.Set(k, FormatValue(v))
	}
	return q
}

// JSON encodes the parameters as a JSON object body.
func (p Params) JSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, k+"="+FormatValue(p[k]))
	}
	return strings.Join(parts, "&")
}
