package motion

import (
	"math"
	"testing"
)

func TestDerive(t *testing.T) {
	nan := math.NaN()
	base := NewLocation(10, 20, 30, 40)

	derived := base.Derive(nan, nan, nan, nan)
	if derived != base {
		t.Errorf("全 NaN 派生应保留原值: 期望 %v, 实际 %v", base, derived)
	}

	derived = base.Derive(1, nan, nan, 90)
	if derived.X != 1 || derived.Y != 20 || derived.Z != 30 || derived.Rotation != 90 {
		t.Errorf("派生结果不正确: %v", derived)
	}

	// 原值不应被修改
	if base.X != 10 {
		t.Error("Derive 不应修改原坐标")
	}

	t.Logf("派生坐标: %v", derived)
}

func TestLocationString(t *testing.T) {
	loc := NewLocation(1.5, -2.25, 0, 45)
	s := loc.String()
	if s != "X:1.500 Y:-2.250 Z:0.000 C:45.000" {
		t.Errorf("坐标格式化不正确: %s", s)
	}
}
