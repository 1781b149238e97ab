// Package cv 提供图像匹配功能
package cv

import "math"

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PointF 表示亚像素级二维坐标点
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Round 四舍五入为整数坐标点
func (p PointF) Round() Point {
	return Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// Rectangle 表示矩形区域（四个角点）
type Rectangle struct {
	TopLeft     Point `json:"top_left"`
	BottomLeft  Point `json:"bottom_left"`
	BottomRight Point `json:"bottom_right"`
	TopRight    Point `json:"top_right"`
}

// MatchResult 图像匹配结果
type MatchResult struct {
	// Result 匹配到的中心点坐标
	Result Point `json:"result"`
	// Rectangle 匹配区域的四个角点
	Rectangle Rectangle `json:"rectangle"`
	// Confidence 匹配置信度 (0-1)
	Confidence float64 `json:"confidence"`
	// Time 匹配耗时（毫秒）
	Time float64 `json:"time,omitempty"`
}

// CandidateMatch 相关响应矩阵中的单个候选匹配
// X/Y 在候选提取阶段表示匹配区域左上角；经过旋转坐标还原后表示匹配中心。
// Score 为 0 的零值表示未匹配。
type CandidateMatch struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float64 `json:"score"`
}

// RotatedMatchResult 旋转模板匹配结果
type RotatedMatchResult struct {
	// Center 匹配中心点（源图像坐标系）
	Center PointF `json:"center"`
	// Width 模板宽度
	Width int `json:"width"`
	// Height 模板高度
	Height int `json:"height"`
	// Angle 最佳匹配旋转角度（度）
	Angle float64 `json:"angle"`
	// Confidence 匹配置信度 (0-1)
	Confidence float64 `json:"confidence"`
	// Time 匹配耗时（毫秒）
	Time float64 `json:"time,omitempty"`
}

// Corners 计算旋转矩形的四个角点
// 角点顺序与 Rectangle 一致：左上、左下、右下、右上（相对未旋转矩形）。
func (r *RotatedMatchResult) Corners() Rectangle {
	return RotatedCorners(r.Center, r.Width, r.Height, r.Angle)
}

// MatchMethod 特征点匹配方法标识
type MatchMethod string

const (
	MatchMethodSIFT MatchMethod = "sift" // SIFT 特征点匹配（更稳但更慢）
)
