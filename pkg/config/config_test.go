package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

// TestLoadFromFile_Defaults 不指定文件时使用默认值
func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	if cfg.Refresh.Interval != 5*time.Second {
		t.Errorf("期望刷新间隔 5s，得到 %v", cfg.Refresh.Interval)
	}
	if cfg.Upstream.ReconnectDelay != 3*time.Second {
		t.Errorf("期望重连延迟 3s，得到 %v", cfg.Upstream.ReconnectDelay)
	}
	if cfg.Refresh.TopN != 10 {
		t.Errorf("期望 topN 为 10，得到 %d", cfg.Refresh.TopN)
	}
	if !cfg.Refresh.Serialize {
		t.Error("默认应该串行刷新")
	}
}

// TestLoadFromFile_YAML YAML 配置覆盖默认值
func TestLoadFromFile_YAML(t *testing.T) {
	path := writeFile(t, "accelboard.yaml", `
upstream:
  base_url: http://backend:9000
  reconnect_delay_ms: 1500
refresh:
  interval_ms: 2000
  top_n: 20
  serialize: false
store:
  driver: badger
  path: /tmp/accel-badger
mockfeed:
  groups:
    - name: 测试
      order: 3
      symbols: [AAA, BBB]
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载 YAML 配置失败: %v", err)
	}
	if cfg.Upstream.BaseURL != "http://backend:9000" {
		t.Errorf("base_url 解析错误: %s", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.ReconnectDelay != 1500*time.Millisecond {
		t.Errorf("reconnect_delay 解析错误: %v", cfg.Upstream.ReconnectDelay)
	}
	if cfg.Refresh.Interval != 2*time.Second || cfg.Refresh.TopN != 20 {
		t.Errorf("refresh 解析错误: %+v", cfg.Refresh)
	}
	if cfg.Refresh.Serialize {
		t.Error("serialize: false 应该生效")
	}
	if cfg.Store.Driver != "badger" {
		t.Errorf("store.driver 解析错误: %s", cfg.Store.Driver)
	}
	if len(cfg.MockFeed.Groups) != 1 || cfg.MockFeed.Groups[0].Order != 3 {
		t.Errorf("mockfeed.groups 解析错误: %+v", cfg.MockFeed.Groups)
	}
}

// TestLoadFromFile_EnvOverrides 环境变量优先级最高
func TestLoadFromFile_EnvOverrides(t *testing.T) {
	path := writeFile(t, "accelboard.json", `{"upstream": {"base_url": "http://from-file:1"}, "refresh": {"top_n": 15}}`)
	t.Setenv("ACCELBOARD_UPSTREAM_URL", "https://from-env:2")
	t.Setenv("ACCELBOARD_TOP_N", "not-a-number")
	t.Setenv("ACCELBOARD_REFRESH_INTERVAL_MS", "750")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Upstream.BaseURL != "https://from-env:2" {
		t.Errorf("环境变量应该覆盖文件配置，得到 %s", cfg.Upstream.BaseURL)
	}
	if cfg.Refresh.TopN != 15 {
		t.Errorf("无法解析的环境变量应该保留文件值，得到 %d", cfg.Refresh.TopN)
	}
	if cfg.Refresh.Interval != 750*time.Millisecond {
		t.Errorf("期望间隔 750ms，得到 %v", cfg.Refresh.Interval)
	}
}

// TestLoadFromFile_Invalid 非法配置返回验证错误
func TestLoadFromFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad_url.yaml":    "upstream:\n  base_url: ftp://x\n",
		"bad_store.yaml":  "store:\n  driver: mysql\n",
		"bad_topn.yaml":   "refresh:\n  top_n: 80\n  max_top_n: 50\n",
		"unsupported.ini": "a=b",
	}
	for name, content := range cases {
		path := writeFile(t, name, content)
		if _, err := LoadFromFile(path); err == nil {
			t.Errorf("%s 应该加载失败", name)
		}
	}

	path := writeFile(t, "bad.yaml", "store:\n  driver: mysql\n")
	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "配置验证失败") {
		t.Errorf("期望配置验证失败错误，得到 %v", err)
	}
}
