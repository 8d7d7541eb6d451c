package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"task-manager/internal/models"
)

var ErrNotObject = errors.New("request is not a JSON object")

// ExtractString obj[key] 为 JSON 字符串时返回其副本，否则返回 nil
func ExtractString(obj map[string]any, key string) *string {
	v, ok := obj[key].(string)
	if !ok {
		return nil
	}
	s := v
	return &s
}

// ExtractInt obj[key] 为非负整数时返回该值。
// 负数在协议中表示无效，按未设置处理。
func ExtractInt(obj map[string]any, key string) *int {
	var n int64
	switch v := obj[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = i
			break
		}
		f, err := v.Float64()
		if err != nil || !integral(f) {
			return nil
		}
		n = int64(f)
	case float64:
		if !integral(v) {
			return nil
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	default:
		return nil
	}
	if n < 0 || n > math.MaxInt32 {
		return nil
	}
	i := int(n)
	return &i
}

func integral(f float64) bool {
	return f == math.Trunc(f) && f <= math.MaxInt32 && f >= math.MinInt32
}

// RequestFromMap 从已解码的 JSON 对象提取请求字段
func RequestFromMap(obj map[string]any) *models.Request {
	return &models.Request{
		Node:     ExtractString(obj, models.KeyNode),
		Module:   ExtractString(obj, models.KeyModule),
		Command:  ExtractString(obj, models.KeyCommand),
		AgentID:  ExtractInt(obj, models.KeyAgent),
		TaskID:   ExtractInt(obj, models.KeyTaskID),
		Status:   ExtractString(obj, models.KeyStatus),
		ErrorMsg: ExtractString(obj, models.KeyErrorMsg),
	}
}

// ParseRequest 解析单个 JSON 请求对象
func ParseRequest(data []byte) (*models.Request, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return nil, err
	}
	return RequestFromMap(obj), nil
}

// DecodeObject 解码单个 JSON 对象，数字保留为 json.Number
func DecodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	// 对象之后只允许空白
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrNotObject
	}
	return obj, nil
}
