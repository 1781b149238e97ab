package tray

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/pkg/vision/cv"
	"github.com/sunmech/partlocate/pkg/vision/source"
)

// buildTrayMat 构造测试图像，在 (cx, cy) 处画出标准元件图案
func buildTrayMat(tb testing.TB, w, h, cx, cy int) gocv.Mat {
	tb.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, bg)
		}
	}

	disc := color.RGBA{R: 20, G: 20, B: 20, A: 255}
	disc2 := color.RGBA{R: 120, G: 120, B: 160, A: 255}
	block := color.RGBA{R: 180, G: 50, B: 50, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= 49 {
				img.Set(x, y, disc)
			}
			dx2 := x - (cx + 12)
			if dx2*dx2+dy*dy <= 36 {
				img.Set(x, y, disc2)
			}
			if x >= cx-18 && x < cx-8 && y >= cy+3 && y < cy+13 {
				img.Set(x, y, block)
			}
		}
	}

	mat, err := cv.ImageToMat(img)
	if err != nil {
		tb.Fatalf("图像转换失败: %v", err)
	}
	return mat
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestParsePocket(t *testing.T) {
	p, err := ParsePocket("2.3.1.2")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if p.Rows != 2 || p.Cols != 3 || p.Row != 1 || p.Col != 2 {
		t.Errorf("口袋应为 2x3 的 (1, 2), 实际为 %+v", p)
	}

	cases := []struct {
		name string
		in   string
	}{
		{"空字符串", ""},
		{"段数不足", "1.2.3"},
		{"非数字", "a.2.1.1"},
		{"行数为零", "0.2.1.1"},
		{"超出范围", "2.2.3.1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ParsePocket(c.in); err == nil {
				t.Errorf("解析 %q 应报错, 实际为 nil", c.in)
			}
		})
	}

	if got := FormatPocket(2, 3, 1, 2); got != "2.3.1.2" {
		t.Errorf("格式化应为 2.3.1.2, 实际为 %s", got)
	}
}

func TestPocketCenter(t *testing.T) {
	region := source.Region{X: 0, Y: 0, Width: 300, Height: 200}

	p := &Pocket{Rows: 2, Cols: 3, Row: 1, Col: 2}
	if got := p.Center(region); got.X != 150 || got.Y != 50 {
		t.Errorf("口袋 (1, 2) 中心应为 (150, 50), 实际为 (%d, %d)", got.X, got.Y)
	}

	var none *Pocket
	if got := none.Center(region); got.X != 150 || got.Y != 100 {
		t.Errorf("空口袋中心应为区域中心 (150, 100), 实际为 (%d, %d)", got.X, got.Y)
	}
}

func TestPocketBounds(t *testing.T) {
	region := source.Region{X: 10, Y: 20, Width: 300, Height: 200}

	p := &Pocket{Rows: 2, Cols: 3, Row: 2, Col: 3}
	b := p.Bounds(region)
	if b.X != 210 || b.Y != 120 || b.Width != 100 || b.Height != 100 {
		t.Errorf("口袋 (2, 3) 范围应为 (210, 120, 100, 100), 实际为 %+v", b)
	}

	var none *Pocket
	if got := none.Bounds(region); got != region {
		t.Errorf("空口袋范围应为整个区域, 实际为 %+v", got)
	}
}

func TestIterator(t *testing.T) {
	it := NewIterator(2, 2)
	if it.Count() != 4 {
		t.Errorf("口袋总数应为 4, 实际为 %d", it.Count())
	}

	want := [][2]int{{1, 1}, {1, 2}, {2, 1}, {2, 2}}
	for i, w := range want {
		p := it.Next()
		if p == nil {
			t.Fatalf("第 %d 个口袋不应为 nil", i+1)
		}
		if p.Row != w[0] || p.Col != w[1] {
			t.Errorf("第 %d 个口袋应为 (%d, %d), 实际为 (%d, %d)", i+1, w[0], w[1], p.Row, p.Col)
		}
	}
	if p := it.Next(); p != nil {
		t.Errorf("遍历完毕应返回 nil, 实际为 %+v", p)
	}

	it.Reset()
	if p := it.Next(); p == nil || p.Row != 1 || p.Col != 1 {
		t.Errorf("重置后应回到 (1, 1), 实际为 %+v", p)
	}
}

func TestLocateIn(t *testing.T) {
	// 元件位于 2x2 料盘的第 1 行第 2 列
	work := buildTrayMat(t, 200, 200, 150, 50)
	defer work.Close()
	template := buildTrayMat(t, 50, 50, 25, 25)
	defer template.Close()

	region := source.Region{X: 0, Y: 0, Width: 200, Height: 200}

	match, err := LocateIn(work, template, region, &Pocket{Rows: 2, Cols: 2, Row: 1, Col: 2})
	if err != nil {
		t.Fatalf("口袋定位失败: %v", err)
	}
	if match == nil {
		t.Fatal("应找到元件, 实际未找到")
	}
	// 坐标应换算回整图坐标系
	if absInt(int(match.Center.X)-150) > 2 || absInt(int(match.Center.Y)-50) > 2 {
		t.Errorf("中心应为整图坐标 (150, 50), 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
	}
	if match.Width != 50 || match.Height != 50 {
		t.Errorf("模板尺寸应为 50x50, 实际为 %dx%d", match.Width, match.Height)
	}

	t.Run("空口袋无匹配", func(t *testing.T) {
		match, err := LocateIn(work, template, region, &Pocket{Rows: 2, Cols: 2, Row: 2, Col: 1})
		if err != nil {
			t.Fatalf("定位失败: %v", err)
		}
		if match != nil {
			t.Errorf("空口袋应无匹配, 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
		}
	})

	t.Run("整盘定位", func(t *testing.T) {
		match, err := LocateIn(work, template, region, nil)
		if err != nil {
			t.Fatalf("定位失败: %v", err)
		}
		if match == nil {
			t.Fatal("应找到元件, 实际未找到")
		}
		if absInt(int(match.Center.X)-150) > 2 || absInt(int(match.Center.Y)-50) > 2 {
			t.Errorf("中心应为 (150, 50), 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
		}
	})

	t.Run("区域越界", func(t *testing.T) {
		bad := source.Region{X: 150, Y: 150, Width: 100, Height: 100}
		_, err := LocateIn(work, template, bad, nil)
		if err == nil {
			t.Fatal("越界区域应报错, 实际为 nil")
		}
		if !strings.Contains(err.Error(), "口袋区域越界") {
			t.Errorf("错误信息应包含 口袋区域越界, 实际为 %v", err)
		}
	})

	t.Run("模板大于口袋", func(t *testing.T) {
		big := buildTrayMat(t, 120, 120, 60, 60)
		defer big.Close()

		_, err := LocateIn(work, big, region, &Pocket{Rows: 2, Cols: 2, Row: 1, Col: 1})
		if err == nil {
			t.Fatal("模板大于口袋应报错, 实际为 nil")
		}
	})

	t.Run("遍历全部口袋", func(t *testing.T) {
		it := NewIterator(2, 2)
		found := 0
		for p := it.Next(); p != nil; p = it.Next() {
			match, err := LocateIn(work, template, region, p)
			if err != nil {
				t.Fatalf("口袋 (%d, %d) 定位失败: %v", p.Row, p.Col, err)
			}
			if match != nil {
				found++
				if p.Row != 1 || p.Col != 2 {
					t.Errorf("仅口袋 (1, 2) 应有元件, 实际在 (%d, %d) 找到", p.Row, p.Col)
				}
			}
		}
		if found != 1 {
			t.Errorf("应恰好找到 1 个元件, 实际为 %d", found)
		}
	})
}
