package fits

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Keywords 是一个 HDU 的卡片集合，保留原始顺序以便输出全文头信息。
type Keywords struct {
	order    []string
	values   map[string]interface{}
	comments map[string]string
}

// NewKeywords 创建空的卡片集合。
func NewKeywords() *Keywords {
	return &Keywords{values: map[string]interface{}{}, comments: map[string]string{}}
}

// KeywordsFromMap 用于测试与从数据库重建。
func KeywordsFromMap(m map[string]interface{}) *Keywords {
	k := NewKeywords()
	for key, v := range m {
		k.Set(key, v, "")
	}
	return k
}

// Set 添加或覆盖一张卡片。
func (k *Keywords) Set(key string, v interface{}, comment string) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if _, ok := k.values[key]; !ok {
		k.order = append(k.order, key)
	}
	k.values[key] = v
	if comment != "" {
		k.comments[key] = comment
	}
}

// Has 判断关键字是否存在。
func (k *Keywords) Has(key string) bool {
	if k == nil {
		return false
	}
	_, ok := k.values[key]
	return ok
}

// Raw 返回原始值。
func (k *Keywords) Raw(key string) (interface{}, bool) {
	if k == nil {
		return nil, false
	}
	v, ok := k.values[key]
	return v, ok
}

// String 返回去掉首尾空白的字符串值；缺失时返回空串。数值会被格式化。
func (k *Keywords) String(key string) string {
	v, ok := k.Raw(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "T"
		}
		return "F"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Float 返回数值；字符串会尝试解析，失败视为缺失。
func (k *Keywords) Float(key string) (float64, bool) {
	v, ok := k.Raw(key)
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// FloatPtr 是 Float 的可选值形式。
func (k *Keywords) FloatPtr(key string) *float64 {
	if f, ok := k.Float(key); ok {
		return &f
	}
	return nil
}

// Int 返回整数值。
func (k *Keywords) Int(key string) (int, bool) {
	f, ok := k.Float(key)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Bool 解析逻辑值，字符串 T/TRUE/YES/IN 视为 true。
func (k *Keywords) Bool(key string) bool {
	v, ok := k.Raw(key)
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToUpper(strings.TrimSpace(t)) {
		case "T", "TRUE", "YES", "IN":
			return true
		}
	}
	return false
}

// Text 以 80 列卡片的形式输出全部关键字。
func (k *Keywords) Text() string {
	var b strings.Builder
	for _, key := range k.order {
		v := k.values[key]
		var val string
		switch t := v.(type) {
		case string:
			val = fmt.Sprintf("'%-8s'", strings.ReplaceAll(t, "'", "''"))
		case bool:
			val = fmt.Sprintf("%20s", map[bool]string{true: "T", false: "F"}[t])
		case nil:
			val = ""
		default:
			val = fmt.Sprintf("%20v", t)
		}
		line := fmt.Sprintf("%-8s= %s", key, val)
		if key == "COMMENT" || key == "HISTORY" {
			line = fmt.Sprintf("%-8s%v", key, v)
		}
		if c := k.comments[key]; c != "" {
			line += " / " + c
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseAngle 把十进制度数或六十进制字符串转换为度。hours 为 true 时六十进制按时角解析（RA）。
func ParseAngle(s string, hours bool) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ' ' })
	if len(parts) != 3 {
		return 0, false
	}
	sign := 1.0
	if strings.HasPrefix(parts[0], "-") {
		sign = -1
		parts[0] = strings.TrimPrefix(parts[0], "-")
	}
	parts[0] = strings.TrimPrefix(parts[0], "+")
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, false
		}
		v[i] = f
	}
	deg := sign * (v[0] + v[1]/60 + v[2]/3600)
	if hours {
		deg *= 15
	}
	return deg, true
}

// Angle 读取角度关键字，数值直接视为度。
func (k *Keywords) Angle(key string, hours bool) *float64 {
	if f, ok := k.Float(key); ok {
		return &f
	}
	if f, ok := ParseAngle(k.String(key), hours); ok {
		return &f
	}
	return nil
}
