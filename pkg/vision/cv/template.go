package cv

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// CV 包配置
var (
	// DefaultThreshold 默认匹配阈值
	DefaultThreshold = 0.8
	// CurrentPath 当前工作路径
	CurrentPath = ""
)

// Template 模板匹配类
type Template struct {
	// Filename 模板文件路径
	Filename string
	// Params 旋转匹配参数
	Params RotatedMatchParams
	// InitialAngle 初始角度提示（度）
	InitialAngle float64
	// KeypointHint 匹配前用特征点估计初始角度
	KeypointHint bool

	// 缓存的模板图像
	cachedMat *gocv.Mat
}

// TemplateOption 模板选项
type TemplateOption func(*Template)

// NewTemplate 创建新的 Template
func NewTemplate(filename string, opts ...TemplateOption) *Template {
	t := &Template{
		Filename: filename,
		Params:   DefaultRotatedMatchParams(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithTemplateThreshold 设置得分下限
func WithTemplateThreshold(threshold float64) TemplateOption {
	return func(t *Template) {
		t.Params.ScoreThreshold = threshold
	}
}

// WithTemplateRelativeThreshold 设置相对峰值比例
func WithTemplateRelativeThreshold(relative float64) TemplateOption {
	return func(t *Template) {
		t.Params.RelativeThreshold = relative
	}
}

// WithTemplateRotateStep 设置粗搜索角度步长（度）
func WithTemplateRotateStep(step float64) TemplateOption {
	return func(t *Template) {
		t.Params.RotateStep = step
	}
}

// WithTemplateAngleResolution 设置角度细化分辨率（度）
func WithTemplateAngleResolution(resolution float64) TemplateOption {
	return func(t *Template) {
		t.Params.AngleResolution = resolution
	}
}

// WithTemplateInitialAngle 设置初始角度提示（度）
func WithTemplateInitialAngle(angle float64) TemplateOption {
	return func(t *Template) {
		t.InitialAngle = angle
	}
}

// WithTemplateKeypointHint 匹配前用 SIFT 特征估计初始角度
func WithTemplateKeypointHint() TemplateOption {
	return func(t *Template) {
		t.KeypointHint = true
	}
}

// MatchIn 在源图像中匹配模板，返回匹配中心
func (t *Template) MatchIn(source gocv.Mat) (*Point, error) {
	result, err := t.cvMatch(source)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	pos := result.Center.Round()
	return &pos, nil
}

// MatchResultIn 在源图像中匹配模板，返回完整匹配结果
func (t *Template) MatchResultIn(source gocv.Mat) (*RotatedMatchResult, error) {
	return t.cvMatch(source)
}

// MatchAllIn 在源图像中查找所有匹配
func (t *Template) MatchAllIn(source gocv.Mat) ([]*RotatedMatchResult, error) {
	image, err := t.readImage()
	if err != nil {
		return nil, err
	}
	defer image.Close()

	m := NewRotatedTemplateMatchingWithParams(image, source, t.Params)
	return m.FindAllResultsWithHint(t.hintAngle(image, source))
}

// cvMatch 执行 CV 匹配
func (t *Template) cvMatch(source gocv.Mat) (*RotatedMatchResult, error) {
	image, err := t.readImage()
	if err != nil {
		return nil, err
	}
	defer image.Close()

	m := NewRotatedTemplateMatchingWithParams(image, source, t.Params)
	return m.FindBestResultWithHint(t.hintAngle(image, source))
}

// hintAngle 计算本次匹配的初始角度提示
func (t *Template) hintAngle(image, source gocv.Mat) float64 {
	if t.KeypointHint {
		if angle, ok := EstimateOrientation(image, source, t.Params.ScoreThreshold); ok {
			return angle
		}
	}
	return t.InitialAngle
}

// readImage 读取模板图像
func (t *Template) readImage() (gocv.Mat, error) {
	filename := t.Filename

	if t.cachedMat != nil && !t.cachedMat.Empty() {
		return t.cachedMat.Clone(), nil
	}

	// 如果是 base64 data URL，直接读取，不处理路径
	if strings.HasPrefix(filename, "data:image/") {
		mat, err := ReadImage(filename)
		if err != nil {
			return mat, err
		}
		cached := mat.Clone()
		if t.cachedMat != nil {
			t.cachedMat.Close()
		}
		t.cachedMat = &cached
		return mat, nil
	}

	// 处理相对路径
	if CurrentPath != "" && !filepath.IsAbs(filename) {
		filename = filepath.Join(CurrentPath, filename)
	}

	mat, err := ReadImage(filename)
	if err != nil {
		return mat, err
	}
	cached := mat.Clone()
	if t.cachedMat != nil {
		t.cachedMat.Close()
	}
	t.cachedMat = &cached
	return mat, nil
}

// Close 释放资源
func (t *Template) Close() {
	if t.cachedMat != nil {
		t.cachedMat.Close()
		t.cachedMat = nil
	}
}

// String 返回字符串表示
func (t *Template) String() string {
	return fmt.Sprintf("Template(%s)", t.Filename)
}

// FindLocation 便捷函数：在源图像中查找模板中心位置
func FindLocation(source, template interface{}, opts ...TemplateOption) (*Point, error) {
	sourceMat, err := LoadImageInput(source)
	if err != nil {
		return nil, fmt.Errorf("加载源图像失败: %w", err)
	}
	defer sourceMat.Close()

	tmpl, err := asTemplate(template, opts...)
	if err != nil {
		return nil, err
	}

	return tmpl.MatchIn(sourceMat)
}

// FindAllLocations 便捷函数：在源图像中查找所有模板位置
func FindAllLocations(source, template interface{}, opts ...TemplateOption) ([]*RotatedMatchResult, error) {
	sourceMat, err := LoadImageInput(source)
	if err != nil {
		return nil, fmt.Errorf("加载源图像失败: %w", err)
	}
	defer sourceMat.Close()

	tmpl, err := asTemplate(template, opts...)
	if err != nil {
		return nil, err
	}

	return tmpl.MatchAllIn(sourceMat)
}

// asTemplate 把输入转换为 Template
func asTemplate(template interface{}, opts ...TemplateOption) (*Template, error) {
	switch v := template.(type) {
	case string:
		return NewTemplate(v, opts...), nil
	case *Template:
		return v, nil
	default:
		return nil, fmt.Errorf("不支持的模板类型: %T", template)
	}
}

// MatchLoop 循环匹配直到找到或超时
func MatchLoop(captureFn func() (gocv.Mat, error), template string, timeout time.Duration, opts ...TemplateOption) (*Point, error) {
	tmpl := NewTemplate(template, opts...)
	defer tmpl.Close()
	startTime := time.Now()

	for {
		source, err := captureFn()
		if err != nil {
			return nil, fmt.Errorf("采集图像失败: %w", err)
		}

		pos, err := tmpl.MatchIn(source)
		source.Close()

		if err != nil {
			return nil, err
		}
		if pos != nil {
			return pos, nil
		}

		if time.Since(startTime) > timeout {
			return nil, fmt.Errorf("匹配超时")
		}

		// 短暂休眠避免 CPU 占用过高
		time.Sleep(100 * time.Millisecond)
	}
}
