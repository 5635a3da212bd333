// Package persistence 把结构体中带 `persistence:"tag"` 的字段保存为 JSON 文件（偏好设置、预热数据）
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/accelboard/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(namespace, id, tag string) Store
}

// Store 单个 key 的存储
type Store interface {
	Save(data any) error
	Load(data any) error
}

// ErrNotExists 数据不存在
var ErrNotExists = errors.New("持久化数据不存在")

// JSONFileService 每个 key 一个 JSON 文件
type JSONFileService struct {
	baseDir string
}

func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

func (s *JSONFileService) NewStore(namespace, id, tag string) Store {
	return &JSONFileStore{baseDir: s.baseDir, key: namespace + ":" + id + ":" + tag}
}

type JSONFileStore struct {
	baseDir string
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *JSONFileStore) filePath() string {
	return filepath.Join(s.baseDir, keySanitizer.ReplaceAllString(s.key, "_")+".json")
}

// Save 先写临时文件再 rename，避免写到一半的文件被读取
func (s *JSONFileStore) Save(data any) error {
	logger.Debugf("[persistence] Save: key=%s", s.key)
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return errors.Wrap(err, "创建持久化目录失败")
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "序列化 %s 失败", s.key)
	}
	path := s.filePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrapf(err, "写入 %s 失败", tmp)
	}
	return errors.Wrap(os.Rename(tmp, path), "替换持久化文件失败")
}

func (s *JSONFileStore) Load(data any) error {
	logger.Debugf("[persistence] Load: key=%s", s.key)
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return errors.Wrapf(err, "读取 %s 失败", s.key)
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return errors.Wrapf(json.Unmarshal(b, data), "解析 %s 失败", s.key)
}

// LoadFields 逐个加载带 persistence tag 的字段；不存在的 key 保持字段原值
func LoadFields(obj any, id string, service Service) error {
	return iterateFieldsByTag(obj, "persistence", func(tag string, field reflect.StructField, value reflect.Value) error {
		ptr := reflect.New(value.Type())
		if err := service.NewStore("state", id, tag).Load(ptr.Interface()); err != nil {
			if errors.Is(err, ErrNotExists) {
				logger.Debugf("[persistence] %s/%s 不存在，保持默认值", id, tag)
				return nil
			}
			return errors.Wrapf(err, "加载字段 %s 失败", field.Name)
		}
		value.Set(ptr.Elem())
		return nil
	})
}

// SaveFields 逐个保存带 persistence tag 的字段
func SaveFields(obj any, id string, service Service) error {
	return iterateFieldsByTag(obj, "persistence", func(tag string, field reflect.StructField, value reflect.Value) error {
		if err := service.NewStore("state", id, tag).Save(value.Interface()); err != nil {
			return errors.Wrapf(err, "保存字段 %s 失败", field.Name)
		}
		return nil
	})
}

// iterateFieldsByTag 遍历导出字段（含嵌套结构体），tag 形如 "name,option"
func iterateFieldsByTag(obj any, tagName string, fn func(tag string, field reflect.StructField, value reflect.Value) error) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errors.New("persistence: 需要结构体指针")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return errors.New("persistence: 需要结构体指针")
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, value := t.Field(i), v.Field(i)
		if !value.CanSet() {
			continue
		}
		tag, _, _ := strings.Cut(field.Tag.Get(tagName), ",")
		if tag == "" || tag == "-" {
			if value.Kind() == reflect.Struct {
				if err := iterateFieldsByTag(value.Addr().Interface(), tagName, fn); err != nil {
					return err
				}
			}
			continue
		}
		if err := fn(tag, field, value); err != nil {
			return err
		}
	}
	return nil
}
