package vision

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/pkg/vision/cv"
)

var (
	partBg    = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	partDisc  = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	partDisc2 = color.RGBA{R: 120, G: 120, B: 160, A: 255}
	partBlock = color.RGBA{R: 180, G: 50, B: 50, A: 255}
)

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, c)
		}
	}
}

func drawDisc(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, c)
			}
		}
	}
}

// buildPartImage 构造以 (cx, cy) 为中心的元件图案测试图像
func buildPartImage(w, h, cx, cy int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: partBg}, image.Point{}, draw.Src)
	drawDisc(img, cx, cy, 7, partDisc)
	drawDisc(img, cx+12, cy, 6, partDisc2)
	fillRect(img, cx-18, cy+3, cx-8, cy+13, partBlock)
	return img
}

func buildNoiseImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	seed := uint32(20240901)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			seed = seed*1664525 + 1013904223
			v := uint8(seed >> 24)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func partMat(tb testing.TB, img image.Image) gocv.Mat {
	tb.Helper()
	mat, err := ImageToMat(img)
	if err != nil {
		tb.Fatalf("图像转换失败: %v", err)
	}
	return mat
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version 不应为空")
	}
	t.Logf("Version: %s", Version)
}

func TestPoint(t *testing.T) {
	p := NewPoint(10, 20)
	if p.X != 10 || p.Y != 20 {
		t.Errorf("Point 应为 (10, 20), 实际为 (%d, %d)", p.X, p.Y)
	}
}

func TestRectangle(t *testing.T) {
	r := NewRectangle(10, 20, 100, 50)

	if r.TopLeft != (Point{X: 10, Y: 20}) {
		t.Errorf("左上角应为 (10, 20), 实际为 %+v", r.TopLeft)
	}
	if r.BottomLeft != (Point{X: 10, Y: 70}) {
		t.Errorf("左下角应为 (10, 70), 实际为 %+v", r.BottomLeft)
	}
	if r.BottomRight != (Point{X: 110, Y: 70}) {
		t.Errorf("右下角应为 (110, 70), 实际为 %+v", r.BottomRight)
	}
	if r.TopRight != (Point{X: 110, Y: 20}) {
		t.Errorf("右上角应为 (110, 20), 实际为 %+v", r.TopRight)
	}

	if center := r.Center(); center.X != 60 || center.Y != 45 {
		t.Errorf("中心应为 (60, 45), 实际为 (%d, %d)", center.X, center.Y)
	}

	if got := r.ToImageRect(); got != image.Rect(10, 20, 110, 70) {
		t.Errorf("包围盒应为 (10,20)-(110,70), 实际为 %v", got)
	}

	// 旋转 90° 后的角点，包围盒取所有角点的范围
	rotated := Rectangle{
		TopLeft:     Point{X: 110, Y: 80},
		BottomLeft:  Point{X: 90, Y: 80},
		BottomRight: Point{X: 90, Y: 120},
		TopRight:    Point{X: 110, Y: 120},
	}
	if got := rotated.ToImageRect(); got != image.Rect(90, 80, 110, 120) {
		t.Errorf("旋转矩形包围盒应为 (90,80)-(110,120), 实际为 %v", got)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions

	if opts.ScoreThreshold != 0.3 {
		t.Errorf("得分下限应为 0.3, 实际为 %.2f", opts.ScoreThreshold)
	}
	if opts.RelativeThreshold != 0.85 {
		t.Errorf("相对比例应为 0.85, 实际为 %.2f", opts.RelativeThreshold)
	}
	if opts.RotateStep != 22.5 {
		t.Errorf("角度步长应为 22.5, 实际为 %.2f", opts.RotateStep)
	}
	if opts.AngleResolution != 1.0 {
		t.Errorf("角度精度应为 1.0, 实际为 %.2f", opts.AngleResolution)
	}
	if opts.FindTimeout != 10*time.Second {
		t.Errorf("查找超时应为 10s, 实际为 %s", opts.FindTimeout)
	}
	if opts.LogLevel != "info" {
		t.Errorf("日志级别应为 info, 实际为 %s", opts.LogLevel)
	}
}

func TestOptions(t *testing.T) {
	original := *GetOptions()
	defer SetOptions(original)

	newOpts := DefaultOptions
	newOpts.ScoreThreshold = 0.5
	newOpts.RotateStep = 10
	newOpts.CurrentPath = t.TempDir()
	SetOptions(newOpts)

	current := GetOptions()
	if current.ScoreThreshold != 0.5 {
		t.Errorf("SetOptions 后得分下限应为 0.5, 实际为 %.2f", current.ScoreThreshold)
	}
	if current.RotateStep != 10 {
		t.Errorf("SetOptions 后角度步长应为 10, 实际为 %.2f", current.RotateStep)
	}
	if cv.CurrentPath != newOpts.CurrentPath {
		t.Errorf("工作路径应同步到 cv 包, 实际为 %q", cv.CurrentPath)
	}

	ResetOptions()
	if got := GetOptions().ScoreThreshold; got != 0.3 {
		t.Errorf("ResetOptions 后得分下限应为 0.3, 实际为 %.2f", got)
	}
	if cv.CurrentPath != "" {
		t.Errorf("ResetOptions 后 cv 工作路径应为空, 实际为 %q", cv.CurrentPath)
	}
}

func TestMatchConfig(t *testing.T) {
	cfg := defaultMatchConfig()

	if cfg.scoreThreshold != 0.3 {
		t.Errorf("默认得分下限应为 0.3, 实际为 %.2f", cfg.scoreThreshold)
	}
	if cfg.timeout != 10*time.Second {
		t.Errorf("默认超时应为 10s, 实际为 %s", cfg.timeout)
	}
	if cfg.initialAngle != 0 || cfg.keypointHint {
		t.Errorf("初始角度与特征点提示默认应为零值, 实际为 %v/%v", cfg.initialAngle, cfg.keypointHint)
	}

	WithThreshold(0.6)(cfg)
	WithRelativeThreshold(0.9)(cfg)
	WithRotateStep(15)(cfg)
	WithAngleResolution(0.5)(cfg)
	WithOrientationHint(30)(cfg)
	WithKeypointHint()(cfg)
	WithTimeout(2 * time.Second)(cfg)

	if cfg.scoreThreshold != 0.6 || cfg.relativeThreshold != 0.9 {
		t.Errorf("阈值选项未生效: %.2f/%.2f", cfg.scoreThreshold, cfg.relativeThreshold)
	}
	if cfg.rotateStep != 15 || cfg.angleResolution != 0.5 {
		t.Errorf("角度选项未生效: %.2f/%.2f", cfg.rotateStep, cfg.angleResolution)
	}
	if cfg.initialAngle != 30 || !cfg.keypointHint {
		t.Errorf("提示选项未生效: %v/%v", cfg.initialAngle, cfg.keypointHint)
	}
	if cfg.timeout != 2*time.Second {
		t.Errorf("超时选项未生效: %s", cfg.timeout)
	}
}

func TestTargetPos(t *testing.T) {
	match := &PartMatch{
		Center:    PointF{X: 60, Y: 45},
		Rectangle: NewRectangle(10, 20, 100, 50),
	}

	cases := []struct {
		name string
		pos  TargetPos
		want Point
	}{
		{"中心", TargetPosMid, Point{X: 60, Y: 45}},
		{"左上", TargetPosTopLeft, Point{X: 10, Y: 20}},
		{"右上", TargetPosTopRight, Point{X: 110, Y: 20}},
		{"左下", TargetPosBottomLeft, Point{X: 10, Y: 70}},
		{"右下", TargetPosBottomRight, Point{X: 110, Y: 70}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.pos.GetPosition(match); got != c.want {
				t.Errorf("位置应为 %+v, 实际为 %+v", c.want, got)
			}
		})
	}

	if got := TargetPosMid.GetPosition(nil); got != (Point{}) {
		t.Errorf("空结果应返回零值点, 实际为 %+v", got)
	}
}

func TestMatchMethods(t *testing.T) {
	if MatchMethodRotated != "rtpl" || MatchMethodTemplate != "tpl" || MatchMethodSIFT != "sift" {
		t.Errorf("匹配方法常量错误: %s/%s/%s", MatchMethodRotated, MatchMethodTemplate, MatchMethodSIFT)
	}
}

func TestFindPartWith(t *testing.T) {
	work := buildPartImage(200, 200, 100, 100)
	template := buildPartImage(50, 50, 25, 25)

	t.Run("旋转匹配", func(t *testing.T) {
		match, err := FindPartWith(MatchMethodRotated, work, template)
		if err != nil {
			t.Fatalf("定位失败: %v", err)
		}
		if match == nil {
			t.Fatal("应找到元件, 实际未找到")
		}
		if math.Abs(match.Center.X-100) > 1 || math.Abs(match.Center.Y-100) > 1 {
			t.Errorf("中心应为 (100, 100), 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
		}
	})

	t.Run("空方法等价旋转匹配", func(t *testing.T) {
		match, err := FindPartWith("", work, template)
		if err != nil {
			t.Fatalf("定位失败: %v", err)
		}
		if match == nil {
			t.Fatal("应找到元件, 实际未找到")
		}
	})

	t.Run("平移匹配", func(t *testing.T) {
		match, err := FindPartWith(MatchMethodTemplate, work, template, WithThreshold(0.8))
		if err != nil {
			t.Fatalf("定位失败: %v", err)
		}
		if match == nil {
			t.Fatal("应找到元件, 实际未找到")
		}
		if math.Abs(match.Center.X-100) > 1 || math.Abs(match.Center.Y-100) > 1 {
			t.Errorf("中心应为 (100, 100), 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
		}
		if match.Angle != 0 {
			t.Errorf("平移匹配角度应为 0, 实际为 %v", match.Angle)
		}
		if match.Width != 50 || match.Height != 50 {
			t.Errorf("模板尺寸应为 50x50, 实际为 %dx%d", match.Width, match.Height)
		}
	})

	t.Run("SIFT", func(t *testing.T) {
		// 合成图案特征点稀少, 只校验调用路径
		match, err := FindPartWith(MatchMethodSIFT, work, template, WithThreshold(0.5))
		if err != nil {
			t.Fatalf("SIFT 定位失败: %v", err)
		}
		if match != nil {
			t.Logf("SIFT 中心 (%.1f, %.1f) 置信度 %.4f", match.Center.X, match.Center.Y, match.Confidence)
		}
	})

	t.Run("不支持的方法", func(t *testing.T) {
		_, err := FindPartWith("orb", work, template)
		if err == nil {
			t.Fatal("未知方法应报错, 实际为 nil")
		}
		if !strings.Contains(err.Error(), "不支持的匹配方法") {
			t.Errorf("错误信息应包含 不支持的匹配方法, 实际为 %v", err)
		}
	})
}

func TestFindPart(t *testing.T) {
	work := buildPartImage(200, 200, 100, 100)
	template := buildPartImage(50, 50, 25, 25)

	match, err := FindPart(work, template)
	if err != nil {
		t.Fatalf("定位失败: %v", err)
	}
	if match == nil {
		t.Fatal("应找到元件, 实际未找到")
	}
	if math.Abs(match.Center.X-100) > 1 || math.Abs(match.Center.Y-100) > 1 {
		t.Errorf("中心应为 (100, 100), 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
	}
	if math.Abs(match.Angle) > 1.0 {
		t.Errorf("角度应为 0, 实际为 %.3f", match.Angle)
	}
	if match.Confidence < 0.9 {
		t.Errorf("置信度应不低于 0.9, 实际为 %.4f", match.Confidence)
	}
	if match.Width != 50 || match.Height != 50 {
		t.Errorf("模板尺寸应为 50x50, 实际为 %dx%d", match.Width, match.Height)
	}
	tl := match.Rectangle.TopLeft
	if absInt(tl.X-75) > 2 || absInt(tl.Y-75) > 2 {
		t.Errorf("左上角应为 (75, 75), 实际为 (%d, %d)", tl.X, tl.Y)
	}
	t.Logf("中心 (%.1f, %.1f) 角度 %.2f° 置信度 %.4f 耗时 %.1fms",
		match.Center.X, match.Center.Y, match.Angle, match.Confidence, match.Time)
}

func TestFindPartFromFiles(t *testing.T) {
	dir := t.TempDir()
	workPath := filepath.Join(dir, "camera.png")
	tmplPath := filepath.Join(dir, "part.png")

	workMat := partMat(t, buildPartImage(200, 200, 100, 100))
	defer workMat.Close()
	tmplMat := partMat(t, buildPartImage(50, 50, 25, 25))
	defer tmplMat.Close()

	if err := cv.WriteImage(workPath, workMat); err != nil {
		t.Fatalf("写入工作图像失败: %v", err)
	}
	if err := cv.WriteImage(tmplPath, tmplMat); err != nil {
		t.Fatalf("写入模板失败: %v", err)
	}

	match, err := FindPart(workPath, tmplPath)
	if err != nil {
		t.Fatalf("定位失败: %v", err)
	}
	if match == nil {
		t.Fatal("应找到元件, 实际未找到")
	}
	if math.Abs(match.Center.X-100) > 1 || math.Abs(match.Center.Y-100) > 1 {
		t.Errorf("中心应为 (100, 100), 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
	}
}

func TestFindPartNotFound(t *testing.T) {
	work := buildNoiseImage(200, 200)
	template := buildPartImage(50, 50, 25, 25)

	match, err := FindPart(work, template)
	if err != nil {
		t.Fatalf("定位失败: %v", err)
	}
	if match != nil {
		t.Errorf("噪声图像不应命中, 实际置信度 %.4f", match.Confidence)
	}
}

func TestFindPartBadInput(t *testing.T) {
	template := buildPartImage(50, 50, 25, 25)

	_, err := FindPart(123, template)
	if err == nil {
		t.Fatal("非法工作图像应报错, 实际为 nil")
	}
	if !strings.Contains(err.Error(), "加载工作图像失败") {
		t.Errorf("错误信息应说明工作图像加载失败, 实际为 %v", err)
	}
}

func TestFindPartRotated(t *testing.T) {
	base := partMat(t, buildPartImage(200, 200, 100, 100))
	defer base.Close()
	work := cv.RotateImageAbout(base, 100, 100, -17)
	defer work.Close()
	template := partMat(t, buildPartImage(50, 50, 25, 25))
	defer template.Close()

	match, err := FindPartInMat(work, template)
	if err != nil {
		t.Fatalf("定位失败: %v", err)
	}
	if match == nil {
		t.Fatal("应找到元件, 实际未找到")
	}
	if math.Abs(match.Angle-17) > 2.5 {
		t.Errorf("角度应为 17°, 实际为 %.2f°", match.Angle)
	}
	if math.Abs(match.Center.X-100) > 3 || math.Abs(match.Center.Y-100) > 3 {
		t.Errorf("中心应为 (100, 100), 实际为 (%.1f, %.1f)", match.Center.X, match.Center.Y)
	}

	// 角度提示应收敛到同一结果
	hinted, err := FindPartInMat(work, template, WithOrientationHint(15))
	if err != nil {
		t.Fatalf("带提示定位失败: %v", err)
	}
	if hinted == nil {
		t.Fatal("带提示应找到元件, 实际未找到")
	}
	if math.Abs(hinted.Angle-17) > 2.5 {
		t.Errorf("带提示角度应为 17°, 实际为 %.2f°", hinted.Angle)
	}
}

func TestFindAllParts(t *testing.T) {
	work := buildPartImage(200, 200, 80, 80)
	drawDisc(work, 125, 125, 7, partDisc)
	drawDisc(work, 137, 125, 6, partDisc2)
	fillRect(work, 107, 128, 117, 138, partBlock)
	template := buildPartImage(50, 50, 25, 25)

	matches, err := FindAllParts(work, template)
	if err != nil {
		t.Fatalf("定位失败: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("结果数量应为 2, 实际为 %d", len(matches))
	}
	if matches[0].Confidence < matches[1].Confidence {
		t.Errorf("结果应按置信度降序: %.4f < %.4f", matches[0].Confidence, matches[1].Confidence)
	}
	for _, m := range matches {
		near80 := math.Abs(m.Center.X-80) <= 2 && math.Abs(m.Center.Y-80) <= 2
		near125 := math.Abs(m.Center.X-125) <= 2 && math.Abs(m.Center.Y-125) <= 2
		if !near80 && !near125 {
			t.Errorf("中心 (%.1f, %.1f) 不在预期位置附近", m.Center.X, m.Center.Y)
		}
	}
}

func TestWaitForPart(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "part.png")
	tmplMat := partMat(t, buildPartImage(50, 50, 25, 25))
	defer tmplMat.Close()
	if err := cv.WriteImage(tmplPath, tmplMat); err != nil {
		t.Fatalf("写入模板失败: %v", err)
	}

	work := partMat(t, buildPartImage(200, 200, 100, 100))
	defer work.Close()
	noise := partMat(t, buildNoiseImage(200, 200))
	defer noise.Close()

	t.Run("第二帧命中", func(t *testing.T) {
		calls := 0
		capture := func() (gocv.Mat, error) {
			calls++
			if calls == 1 {
				return noise.Clone(), nil
			}
			return work.Clone(), nil
		}

		pos, err := WaitForPart(capture, tmplPath)
		if err != nil {
			t.Fatalf("等待定位失败: %v", err)
		}
		if pos == nil || absInt(pos.X-100) > 1 || absInt(pos.Y-100) > 1 {
			t.Errorf("位置应为 (100, 100), 实际为 %v", pos)
		}
	})

	t.Run("超时", func(t *testing.T) {
		capture := func() (gocv.Mat, error) {
			return noise.Clone(), nil
		}

		_, err := WaitForPart(capture, tmplPath, WithTimeout(0))
		if err == nil || !strings.Contains(err.Error(), "匹配超时") {
			t.Errorf("应返回超时错误, 实际为 %v", err)
		}
	})
}

func TestNewTemplateOptionsPlumbing(t *testing.T) {
	tmpl := NewTemplate("part.png",
		WithThreshold(0.5),
		WithRotateStep(10),
		WithOrientationHint(25),
		WithKeypointHint(),
	)

	if tmpl.Params.ScoreThreshold != 0.5 {
		t.Errorf("得分下限应为 0.5, 实际为 %.2f", tmpl.Params.ScoreThreshold)
	}
	if tmpl.Params.RotateStep != 10 {
		t.Errorf("角度步长应为 10, 实际为 %.2f", tmpl.Params.RotateStep)
	}
	if tmpl.InitialAngle != 25 {
		t.Errorf("初始角度应为 25, 实际为 %.2f", tmpl.InitialAngle)
	}
	if !tmpl.KeypointHint {
		t.Error("应开启特征点提示")
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
