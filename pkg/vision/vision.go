// Package vision 提供元件视觉定位功能
//
// 主要功能:
//   - 旋转模板定位: 在工作图像中查找元件模板的位置与旋转角度
//   - 模板匹配 / SIFT 特征点匹配
//
// 基本用法:
//
//	// 定位元件
//	match, err := vision.FindPart("camera.png", "part.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if match != nil {
//	    fmt.Printf("中心 (%.1f, %.1f) 角度 %.1f°\n", match.Center.X, match.Center.Y, match.Angle)
//	}
package vision

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/pkg/vision/cv"
)

// ============ 定位函数 ============

// FindPart 在工作图像中定位元件模板
// work: 工作图像 (文件路径、image.Image 或 gocv.Mat)
// template: 模板 (文件路径、image.Image 或 gocv.Mat)
// 返回元件中心、旋转角度与置信度；未找到返回 (nil, nil)。
func FindPart(work, template ImageInput, opts ...Option) (*PartMatch, error) {
	workMat, err := cv.LoadImageInput(work)
	if err != nil {
		return nil, fmt.Errorf("加载工作图像失败: %w", err)
	}
	defer workMat.Close()

	tmplMat, err := cv.LoadImageInput(template)
	if err != nil {
		return nil, fmt.Errorf("加载模板图像失败: %w", err)
	}
	defer tmplMat.Close()

	return FindPartInMat(workMat, tmplMat, opts...)
}

// FindPartInMat 在已加载的图像上定位元件模板
func FindPartInMat(work, template gocv.Mat, opts ...Option) (*PartMatch, error) {
	cfg := defaultMatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	m := cv.NewRotatedTemplateMatchingWithParams(template, work, buildRotatedParams(cfg))

	result, err := m.FindBestResultWithHint(hintAngle(cfg, template, work))
	if err != nil {
		return nil, err
	}
	return convertRotatedResult(result), nil
}

// FindPartWith 用指定匹配方法定位元件
// MatchMethodRotated 等价于 FindPart；平移模板匹配与 SIFT 不输出
// 旋转角度，结果中 Angle 为 0，按 scoreThreshold 过滤。
func FindPartWith(method MatchMethod, work, template ImageInput, opts ...Option) (*PartMatch, error) {
	if method == "" || method == MatchMethodRotated {
		return FindPart(work, template, opts...)
	}

	cfg := defaultMatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	workMat, err := cv.LoadImageInput(work)
	if err != nil {
		return nil, fmt.Errorf("加载工作图像失败: %w", err)
	}
	defer workMat.Close()

	tmplMat, err := cv.LoadImageInput(template)
	if err != nil {
		return nil, fmt.Errorf("加载模板图像失败: %w", err)
	}
	defer tmplMat.Close()

	switch method {
	case MatchMethodTemplate:
		m := cv.NewTemplateMatching(tmplMat, workMat, cfg.scoreThreshold, false)
		result, err := m.FindBestResult()
		if err != nil {
			return nil, err
		}
		return convertMatchResult(result, tmplMat.Cols(), tmplMat.Rows()), nil
	case MatchMethodSIFT:
		m := cv.NewSIFTMatching(tmplMat, workMat, cfg.scoreThreshold)
		defer m.Close()
		result, err := m.FindBestResult()
		if err != nil {
			return nil, err
		}
		return convertMatchResult(result, tmplMat.Cols(), tmplMat.Rows()), nil
	default:
		return nil, fmt.Errorf("不支持的匹配方法: %s", method)
	}
}

// FindAllParts 在工作图像中查找所有元件位置
func FindAllParts(work, template ImageInput, opts ...Option) ([]*PartMatch, error) {
	cfg := defaultMatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	workMat, err := cv.LoadImageInput(work)
	if err != nil {
		return nil, fmt.Errorf("加载工作图像失败: %w", err)
	}
	defer workMat.Close()

	tmplMat, err := cv.LoadImageInput(template)
	if err != nil {
		return nil, fmt.Errorf("加载模板图像失败: %w", err)
	}
	defer tmplMat.Close()

	m := cv.NewRotatedTemplateMatchingWithParams(tmplMat, workMat, buildRotatedParams(cfg))

	cvResults, err := m.FindAllResultsWithHint(hintAngle(cfg, tmplMat, workMat))
	if err != nil {
		return nil, err
	}

	results := make([]*PartMatch, len(cvResults))
	for i, r := range cvResults {
		results[i] = convertRotatedResult(r)
	}
	return results, nil
}

// WaitForPart 循环采集并定位，直到找到元件或超时
func WaitForPart(captureFn func() (gocv.Mat, error), template string, opts ...Option) (*Point, error) {
	cfg := defaultMatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	cvPoint, err := cv.MatchLoop(captureFn, template, cfg.timeout, buildCVOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	if cvPoint == nil {
		return nil, nil
	}
	return &Point{X: cvPoint.X, Y: cvPoint.Y}, nil
}

// hintAngle 计算本次定位的初始角度提示
func hintAngle(cfg *matchConfig, template, work gocv.Mat) float64 {
	if cfg.keypointHint {
		if angle, ok := cv.EstimateOrientation(template, work, cfg.scoreThreshold); ok {
			return angle
		}
	}
	return cfg.initialAngle
}

// convertRotatedResult 转换 cv.RotatedMatchResult 到 vision.PartMatch
func convertRotatedResult(r *cv.RotatedMatchResult) *PartMatch {
	if r == nil {
		return nil
	}

	corners := r.Corners()
	return &PartMatch{
		Center:     PointF{X: r.Center.X, Y: r.Center.Y},
		Width:      r.Width,
		Height:     r.Height,
		Angle:      r.Angle,
		Confidence: r.Confidence,
		Rectangle: Rectangle{
			TopLeft:     Point{X: corners.TopLeft.X, Y: corners.TopLeft.Y},
			BottomLeft:  Point{X: corners.BottomLeft.X, Y: corners.BottomLeft.Y},
			BottomRight: Point{X: corners.BottomRight.X, Y: corners.BottomRight.Y},
			TopRight:    Point{X: corners.TopRight.X, Y: corners.TopRight.Y},
		},
		Time: r.Time,
	}
}

// convertMatchResult 转换 cv.MatchResult 到 vision.PartMatch
// 平移匹配不输出角度，宽高取模板尺寸。
func convertMatchResult(r *cv.MatchResult, width, height int) *PartMatch {
	if r == nil {
		return nil
	}

	return &PartMatch{
		Center:     PointF{X: float64(r.Result.X), Y: float64(r.Result.Y)},
		Width:      width,
		Height:     height,
		Confidence: r.Confidence,
		Rectangle: Rectangle{
			TopLeft:     Point{X: r.Rectangle.TopLeft.X, Y: r.Rectangle.TopLeft.Y},
			BottomLeft:  Point{X: r.Rectangle.BottomLeft.X, Y: r.Rectangle.BottomLeft.Y},
			BottomRight: Point{X: r.Rectangle.BottomRight.X, Y: r.Rectangle.BottomRight.Y},
			TopRight:    Point{X: r.Rectangle.TopRight.X, Y: r.Rectangle.TopRight.Y},
		},
		Time: r.Time,
	}
}

// buildRotatedParams 构建旋转匹配参数
func buildRotatedParams(cfg *matchConfig) cv.RotatedMatchParams {
	return cv.RotatedMatchParams{
		ScoreThreshold:    cfg.scoreThreshold,
		RelativeThreshold: cfg.relativeThreshold,
		RotateStep:        cfg.rotateStep,
		AngleResolution:   cfg.angleResolution,
	}
}

// buildCVOptions 构建 CV 选项
func buildCVOptions(cfg *matchConfig) []cv.TemplateOption {
	opts := []cv.TemplateOption{
		cv.WithTemplateThreshold(cfg.scoreThreshold),
		cv.WithTemplateRelativeThreshold(cfg.relativeThreshold),
		cv.WithTemplateRotateStep(cfg.rotateStep),
		cv.WithTemplateAngleResolution(cfg.angleResolution),
		cv.WithTemplateInitialAngle(cfg.initialAngle),
	}
	if cfg.keypointHint {
		opts = append(opts, cv.WithTemplateKeypointHint())
	}
	return opts
}

// ============ 工具函数 ============

// ReadImage 读取图像文件
func ReadImage(filename string) (gocv.Mat, error) {
	return cv.ReadImage(filename)
}

// LoadImage 加载图像 (支持多种输入类型)
func LoadImage(input interface{}) (gocv.Mat, error) {
	return cv.LoadImageInput(input)
}

// ImageToMat 将 image.Image 转换为 gocv.Mat
func ImageToMat(img image.Image) (gocv.Mat, error) {
	return cv.ImageToMat(img)
}

// ============ Template 快捷创建 ============

// NewTemplate 创建模板
func NewTemplate(filename string, opts ...Option) *cv.Template {
	cfg := defaultMatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return cv.NewTemplate(filename, buildCVOptions(cfg)...)
}

// ============ 类型别名 ============

// Template 模板类型别名
type Template = cv.Template

// ============ 常量 ============

// 超时常量
const (
	DefaultTimeout = 10 * time.Second
)
