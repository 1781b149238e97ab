package source

import (
	"fmt"
	"image"
	"math"

	"github.com/go-vgo/robotgo"
	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/pkg/vision"
	"github.com/sunmech/partlocate/pkg/vision/cv"
)

// ScreenSource 屏幕图像源
// 通过帧采集卡把相机画面投到屏幕的产线上，可直接抓屏作为工作图像。
type ScreenSource struct {
	region *Region
}

// NewScreenSource 创建全屏图像源
func NewScreenSource() *ScreenSource {
	return &ScreenSource{}
}

// NewScreenRegionSource 创建区域图像源
func NewScreenRegionSource(region Region) *ScreenSource {
	return &ScreenSource{region: &region}
}

// Capture 抓取一帧屏幕图像
func (s *ScreenSource) Capture() (gocv.Mat, error) {
	mat, _, err := s.CaptureWithMeta()
	return mat, err
}

// CaptureWithMeta 抓取一帧屏幕图像并返回坐标换算元信息
func (s *ScreenSource) CaptureWithMeta() (gocv.Mat, CaptureMeta, error) {
	var img image.Image
	var err error

	if s.region != nil {
		img, err = robotgo.CaptureImg(s.region.X, s.region.Y, s.region.Width, s.region.Height)
	} else {
		img, err = robotgo.CaptureImg()
	}
	if err != nil {
		return gocv.Mat{}, CaptureMeta{}, fmt.Errorf("抓屏失败: %w", err)
	}

	mat, err := cv.ImageToMat(img)
	if err != nil {
		return gocv.Mat{}, CaptureMeta{}, err
	}

	return mat, s.buildMeta(img), nil
}

// Close 释放资源
func (s *ScreenSource) Close() error {
	return nil
}

// buildMeta 构建坐标换算元信息
func (s *ScreenSource) buildMeta(img image.Image) CaptureMeta {
	bounds := img.Bounds()
	imgW := bounds.Dx()
	imgH := bounds.Dy()

	var expectedW, expectedH int
	offsetX, offsetY := 0, 0
	if s.region != nil {
		expectedW = s.region.Width
		expectedH = s.region.Height
		offsetX = s.region.X
		offsetY = s.region.Y
	} else {
		expectedW, expectedH = robotgo.GetScreenSize()
	}

	scaleX := 1.0
	if expectedW > 0 && imgW > 0 {
		scaleX = float64(imgW) / float64(expectedW)
	}
	scaleY := 1.0
	if expectedH > 0 && imgH > 0 {
		scaleY = float64(imgH) / float64(expectedH)
	}

	return CaptureMeta{
		ScaleX:  scaleX,
		ScaleY:  scaleY,
		OffsetX: offsetX,
		OffsetY: offsetY,
	}
}

// CaptureMeta 采集元信息（缩放和偏移量）
// 把采集图像坐标换算回屏幕全局坐标。
type CaptureMeta struct {
	ScaleX  float64
	ScaleY  float64
	OffsetX int
	OffsetY int
}

// AdjustPartMatch 把定位结果坐标换算回屏幕全局坐标（反向缩放 + 偏移）
func AdjustPartMatch(result *vision.PartMatch, meta CaptureMeta) *vision.PartMatch {
	if result == nil {
		return nil
	}

	adjusted := *result
	adjusted.Center = vision.PointF{
		X: scaleCoordF(result.Center.X, meta.ScaleX) + float64(meta.OffsetX),
		Y: scaleCoordF(result.Center.Y, meta.ScaleY) + float64(meta.OffsetY),
	}
	adjusted.Width = scaleCoord(result.Width, meta.ScaleX)
	adjusted.Height = scaleCoord(result.Height, meta.ScaleY)
	adjusted.Rectangle = vision.Rectangle{
		TopLeft:     adjustPoint(result.Rectangle.TopLeft, meta),
		BottomLeft:  adjustPoint(result.Rectangle.BottomLeft, meta),
		BottomRight: adjustPoint(result.Rectangle.BottomRight, meta),
		TopRight:    adjustPoint(result.Rectangle.TopRight, meta),
	}

	return &adjusted
}

// adjustPoint 换算单个角点坐标
func adjustPoint(p vision.Point, meta CaptureMeta) vision.Point {
	return vision.Point{
		X: scaleCoord(p.X, meta.ScaleX) + meta.OffsetX,
		Y: scaleCoord(p.Y, meta.ScaleY) + meta.OffsetY,
	}
}

// scaleCoord 按比例换算坐标值
func scaleCoord(value int, scale float64) int {
	if scale <= 0 {
		return value
	}
	return int(math.Round(float64(value) / scale))
}

// scaleCoordF 按比例换算亚像素坐标值
func scaleCoordF(value, scale float64) float64 {
	if scale <= 0 {
		return value
	}
	return value / scale
}
