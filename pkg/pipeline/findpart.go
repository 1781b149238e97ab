package pipeline

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/internal/logger"
	"github.com/sunmech/partlocate/pkg/vision"
)

var pipeLog = logger.Module("pipeline")

// PropertyRotation 旋转角度提示属性名
// 由调用方在执行定位阶段前写入，通常取自载具旋转轴的当前读数。
const PropertyRotation = "rotation"

// FindPartStage 元件模板定位阶段
// 从流水线中按名称取模板图像，在工作图像中做旋转模板定位，
// 并把定位结果以阶段名称写回流水线。
type FindPartStage struct {
	// Name 阶段名称，定位结果以该名称写回
	Name string
	// TemplateResultName 模板图像所在结果的名称
	TemplateResultName string
	// ScoreThreshold 候选得分下限
	ScoreThreshold float64
	// RelativeThreshold 相对峰值比例
	RelativeThreshold float64
	// RotateStep 粗搜索角度步长（度）
	RotateStep float64
	// AngleResolution 角度细化分辨率（度）
	AngleResolution float64
	// Verbose 定位过程输出 info 级别日志
	Verbose bool
}

// NewFindPartStage 创建定位阶段（默认参数）
func NewFindPartStage(name, templateResultName string) *FindPartStage {
	return &FindPartStage{
		Name:               name,
		TemplateResultName: templateResultName,
		ScoreThreshold:     vision.DefaultOptions.ScoreThreshold,
		RelativeThreshold:  vision.DefaultOptions.RelativeThreshold,
		RotateStep:         vision.DefaultOptions.RotateStep,
		AngleResolution:    vision.DefaultOptions.AngleResolution,
	}
}

// Run 执行定位
// 模板名称为空或命名结果缺失时视为未找到，返回 (nil, nil) 并写回空结果；
// 工作图像缺失或几何校验失败返回错误。
func (s *FindPartStage) Run(p *Pipeline) (*vision.PartMatch, error) {
	work, ok := p.WorkingImage()
	if !ok {
		return nil, fmt.Errorf("流水线缺少工作图像")
	}

	tmpl, ok := s.templateImage(p)
	if !ok {
		s.logNotFound("模板结果缺失")
		p.AddResult(s.Name, &Result{})
		return nil, nil
	}

	opts := []vision.Option{
		vision.WithThreshold(s.ScoreThreshold),
		vision.WithRelativeThreshold(s.RelativeThreshold),
		vision.WithRotateStep(s.RotateStep),
		vision.WithAngleResolution(s.AngleResolution),
	}
	if angle, ok := s.rotationHint(p); ok {
		opts = append(opts, vision.WithOrientationHint(angle))
	}

	match, err := vision.FindPartInMat(work, tmpl, opts...)
	if err != nil {
		return nil, err
	}

	if match == nil {
		s.logNotFound("搜索区域内无匹配")
		p.AddResult(s.Name, &Result{})
		return nil, nil
	}

	s.logFound(match)
	p.AddResult(s.Name, &Result{Model: match})
	return match, nil
}

// templateImage 取模板图像
func (s *FindPartStage) templateImage(p *Pipeline) (gocv.Mat, bool) {
	if s.TemplateResultName == "" {
		return gocv.Mat{}, false
	}
	r, ok := p.Result(s.TemplateResultName)
	if !ok || r.Image == nil || r.Image.Empty() {
		return gocv.Mat{}, false
	}
	return *r.Image, true
}

// rotationHint 从流水线属性读取角度提示
func (s *FindPartStage) rotationHint(p *Pipeline) (float64, bool) {
	v, ok := p.Property(PropertyRotation)
	if !ok {
		return 0, false
	}
	switch a := v.(type) {
	case float64:
		return a, true
	case float32:
		return float64(a), true
	case int:
		return float64(a), true
	default:
		return 0, false
	}
}

func (s *FindPartStage) logFound(match *vision.PartMatch) {
	evt := pipeLog.Debug()
	if s.Verbose {
		evt = pipeLog.Info()
	}
	evt.Str("stage", s.Name).
		Float64("x", match.Center.X).
		Float64("y", match.Center.Y).
		Float64("angle", match.Angle).
		Float64("confidence", match.Confidence).
		Msg("元件定位成功")
}

func (s *FindPartStage) logNotFound(reason string) {
	evt := pipeLog.Debug()
	if s.Verbose {
		evt = pipeLog.Info()
	}
	evt.Str("stage", s.Name).Str("reason", reason).Msg("元件未找到")
}
