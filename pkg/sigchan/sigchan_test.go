package sigchan

import "testing"

func TestChan_Coalesce(t *testing.T) {
	c := New(1)
	c.Emit("trade")
	c.Emit("manual")
	c.Emit("")

	select {
	case <-c.C():
	default:
		t.Fatal("应该收到信号")
	}
	select {
	case <-c.C():
		t.Fatal("多次 Emit 应该合并为一次")
	default:
	}

	reasons, dropped := c.Drain()
	if len(reasons) != 2 || reasons[0] != "trade" || reasons[1] != "manual" {
		t.Errorf("原因不符合预期: %v", reasons)
	}
	if dropped != 0 {
		t.Errorf("不应该丢弃原因: %d", dropped)
	}
	if r, _ := c.Drain(); len(r) != 0 {
		t.Errorf("Drain 之后应该为空: %v", r)
	}
}

func TestChan_DropsOverflow(t *testing.T) {
	c := New(0)
	for i := 0; i < maxReasons+5; i++ {
		c.Emit("x")
	}
	reasons, dropped := c.Drain()
	if len(reasons) != maxReasons || dropped != 5 {
		t.Errorf("期望保留 %d 条、丢弃 5 条，得到 %d/%d", maxReasons, len(reasons), dropped)
	}
}
