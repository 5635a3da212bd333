package marketdata

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Object 保持键顺序的 JSON 对象
// 分组格式依赖键在文档中的顺序，map[string]any 会丢失这个顺序
type Object struct {
	Keys   []string
	Values map[string]any
}

// Get 读取字段
func (o *Object) Get(key string) (any, bool) {
	if o == nil || o.Values == nil {
		return nil, false
	}
	v, ok := o.Values[key]
	return v, ok
}

// DecodeRaw 把 JSON 解码为 any：对象为 *Object，数组为 []any，数字为 json.Number
func DecodeRaw(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("JSON 末尾存在多余内容")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		// string / json.Number / bool / nil
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &Object{Values: make(map[string]any)}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, errors.Errorf("对象键类型错误: %T", kt)
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			// 重复键：后者覆盖，位置保持首次出现的位置
			if _, dup := obj.Values[key]; !dup {
				obj.Keys = append(obj.Keys, key)
			}
			obj.Values[key] = v
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := make([]any, 0)
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, errors.Errorf("意外的分隔符: %v", delim)
	}
}
