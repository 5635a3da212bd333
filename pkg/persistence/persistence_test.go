package persistence

import (
	"testing"
)

type nested struct {
	Theme string `persistence:"theme"`
}

type prefs struct {
	TopN    int      `persistence:"top_n"`
	Symbols []string `persistence:"symbols,omitempty"`
	Skipped string
	UI      nested
	private int
}

func TestSaveAndLoadFields(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())

	in := prefs{TopN: 20, Symbols: []string{"AAA"}, Skipped: "x", UI: nested{Theme: "dark"}, private: 1}
	if err := SaveFields(&in, "board", svc); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	out := prefs{TopN: 10, Skipped: "keep"}
	if err := LoadFields(&out, "board", svc); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if out.TopN != 20 || len(out.Symbols) != 1 || out.UI.Theme != "dark" {
		t.Errorf("加载结果不符合预期: %+v", out)
	}
	if out.Skipped != "keep" {
		t.Error("没有 tag 的字段不应该被覆盖")
	}
}

func TestLoadFields_MissingKeepsDefaults(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	out := prefs{TopN: 10}
	if err := LoadFields(&out, "nothing", svc); err != nil {
		t.Fatalf("不存在的数据不应报错: %v", err)
	}
	if out.TopN != 10 {
		t.Errorf("应该保持默认值，得到 %d", out.TopN)
	}
}

func TestStore_LoadNotExists(t *testing.T) {
	st := NewJSONFileService(t.TempDir()).NewStore("state", "x", "y")
	var v int
	if err := st.Load(&v); err != ErrNotExists {
		t.Errorf("期望 ErrNotExists，得到 %v", err)
	}
}

func TestIterateFields_RequiresPointer(t *testing.T) {
	if err := SaveFields(prefs{}, "x", NewJSONFileService(t.TempDir())); err == nil {
		t.Error("非指针应该报错")
	}
}
