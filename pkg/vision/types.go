// Package vision 提供元件视觉定位功能
package vision

import (
	"image"
)

// Version 版本号
const Version = "1.0.0"

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewPoint 创建新的 Point
func NewPoint(x, y int) Point {
	return Point{X: x, Y: y}
}

// PointF 表示亚像素级二维坐标点
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rectangle 表示矩形区域（四个角点）
type Rectangle struct {
	TopLeft     Point `json:"top_left"`
	BottomLeft  Point `json:"bottom_left"`
	BottomRight Point `json:"bottom_right"`
	TopRight    Point `json:"top_right"`
}

// NewRectangle 从左上角坐标和宽高创建矩形
func NewRectangle(x, y, w, h int) Rectangle {
	return Rectangle{
		TopLeft:     Point{X: x, Y: y},
		BottomLeft:  Point{X: x, Y: y + h},
		BottomRight: Point{X: x + w, Y: y + h},
		TopRight:    Point{X: x + w, Y: y},
	}
}

// Center 返回矩形中心点
func (r Rectangle) Center() Point {
	return Point{
		X: (r.TopLeft.X + r.BottomRight.X) / 2,
		Y: (r.TopLeft.Y + r.BottomRight.Y) / 2,
	}
}

// ToImageRect 转换为包含全部角点的 image.Rectangle
func (r Rectangle) ToImageRect() image.Rectangle {
	minX, maxX := r.TopLeft.X, r.TopLeft.X
	minY, maxY := r.TopLeft.Y, r.TopLeft.Y
	for _, p := range []Point{r.BottomLeft, r.BottomRight, r.TopRight} {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return image.Rect(minX, minY, maxX, maxY)
}

// PartMatch 元件定位结果
type PartMatch struct {
	// Center 元件中心点（源图像坐标系）
	Center PointF `json:"center"`
	// Width 模板宽度
	Width int `json:"width"`
	// Height 模板高度
	Height int `json:"height"`
	// Angle 元件旋转角度（度）
	Angle float64 `json:"angle"`
	// Confidence 匹配置信度 (0-1)
	Confidence float64 `json:"confidence"`
	// Rectangle 旋转矩形的四个角点
	Rectangle Rectangle `json:"rectangle"`
	// Time 定位耗时（毫秒）
	Time float64 `json:"time,omitempty"`
}

// TargetPos 目标位置枚举，用于指定取匹配结果的哪个位置
type TargetPos int

const (
	// TargetPosMid 中心点（默认）
	TargetPosMid TargetPos = iota
	// TargetPosTopLeft 左上角
	TargetPosTopLeft
	// TargetPosTopRight 右上角
	TargetPosTopRight
	// TargetPosBottomLeft 左下角
	TargetPosBottomLeft
	// TargetPosBottomRight 右下角
	TargetPosBottomRight
)

// GetPosition 根据 TargetPos 从 PartMatch 获取对应位置
func (t TargetPos) GetPosition(result *PartMatch) Point {
	if result == nil {
		return Point{}
	}
	switch t {
	case TargetPosTopLeft:
		return result.Rectangle.TopLeft
	case TargetPosTopRight:
		return result.Rectangle.TopRight
	case TargetPosBottomLeft:
		return result.Rectangle.BottomLeft
	case TargetPosBottomRight:
		return result.Rectangle.BottomRight
	default:
		return Point{X: int(result.Center.X), Y: int(result.Center.Y)}
	}
}

// ImageInput 支持的图像输入类型
// 可以是文件路径 (string)、image.Image 或 gocv.Mat
type ImageInput interface{}

// MatchMethod 匹配方法枚举
type MatchMethod string

const (
	// MatchMethodRotated 旋转模板匹配
	MatchMethodRotated MatchMethod = "rtpl"
	// MatchMethodTemplate 模板匹配
	MatchMethodTemplate MatchMethod = "tpl"
	// MatchMethodSIFT SIFT 特征点匹配
	MatchMethodSIFT MatchMethod = "sift"
)
