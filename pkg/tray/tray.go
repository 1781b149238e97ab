// Package tray 提供料盘口袋网格定位
//
// 相机视野覆盖整个料盘时，按行列把视野划分成口袋网格，
// 在单个口袋范围内定位元件，避免跨口袋误匹配。
package tray

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/pkg/vision"
	"github.com/sunmech/partlocate/pkg/vision/source"
)

// Pocket 料盘口袋位置 (1 起始)
type Pocket struct {
	Rows int `json:"rows"` // 总行数
	Cols int `json:"cols"` // 总列数
	Row  int `json:"row"`  // 目标行 (1-based)
	Col  int `json:"col"`  // 目标列 (1-based)
}

// ParsePocket 解析口袋位置字符串
// 格式: rows.cols.row.col (如 "2.3.1.2" 表示 2x3 料盘的第 1 行第 2 列)
func ParsePocket(s string) (*Pocket, error) {
	if s == "" {
		return nil, fmt.Errorf("口袋位置字符串为空")
	}

	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("无效的口袋位置格式: %s (期望格式: rows.cols.row.col)", s)
	}

	rows, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("无效的行数: %s", parts[0])
	}

	cols, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("无效的列数: %s", parts[1])
	}

	row, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("无效的目标行: %s", parts[2])
	}

	col, err := strconv.Atoi(parts[3])
	if err != nil {
		return nil, fmt.Errorf("无效的目标列: %s", parts[3])
	}

	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("行数和列数必须大于 0: rows=%d, cols=%d", rows, cols)
	}
	if row < 1 || col < 1 {
		return nil, fmt.Errorf("目标行和目标列必须大于 0: row=%d, col=%d", row, col)
	}
	if row > rows || col > cols {
		return nil, fmt.Errorf("目标位置超出范围: row=%d > rows=%d 或 col=%d > cols=%d", row, rows, col, cols)
	}

	return &Pocket{
		Rows: rows,
		Cols: cols,
		Row:  row,
		Col:  col,
	}, nil
}

// FormatPocket 格式化口袋位置为字符串
func FormatPocket(rows, cols, row, col int) string {
	return fmt.Sprintf("%d.%d.%d.%d", rows, cols, row, col)
}

// Center 计算口袋在料盘区域内的中心点
// p 为 nil 时把整个区域视为单个口袋。
func (p *Pocket) Center(region source.Region) vision.Point {
	if p == nil {
		return vision.Point{
			X: region.X + region.Width/2,
			Y: region.Y + region.Height/2,
		}
	}

	cellWidth := float64(region.Width) / float64(p.Cols)
	cellHeight := float64(region.Height) / float64(p.Rows)

	x := float64(region.X) + (float64(p.Col)-0.5)*cellWidth
	y := float64(region.Y) + (float64(p.Row)-0.5)*cellHeight

	return vision.Point{
		X: int(x),
		Y: int(y),
	}
}

// Bounds 计算口袋在料盘区域内的矩形范围
// p 为 nil 时返回整个区域。
func (p *Pocket) Bounds(region source.Region) source.Region {
	if p == nil {
		return region
	}

	cellWidth := float64(region.Width) / float64(p.Cols)
	cellHeight := float64(region.Height) / float64(p.Rows)

	return source.Region{
		X:      int(float64(region.X) + float64(p.Col-1)*cellWidth),
		Y:      int(float64(region.Y) + float64(p.Row-1)*cellHeight),
		Width:  int(cellWidth),
		Height: int(cellHeight),
	}
}

// LocateIn 在工作图像的指定口袋内定位元件
// 搜索限制在口袋范围内，返回坐标换算回整图坐标系；未找到返回 (nil, nil)。
func LocateIn(work gocv.Mat, template vision.ImageInput, region source.Region, p *Pocket, opts ...vision.Option) (*vision.PartMatch, error) {
	b := p.Bounds(region)
	rect := image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
	if rect.Min.X < 0 || rect.Min.Y < 0 || rect.Max.X > work.Cols() || rect.Max.Y > work.Rows() {
		return nil, fmt.Errorf("口袋区域越界: (%d, %d)-(%d, %d) 超出 %dx%d",
			rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y, work.Cols(), work.Rows())
	}

	view := work.Region(rect)
	defer view.Close()

	match, err := vision.FindPart(view, template, opts...)
	if err != nil || match == nil {
		return nil, err
	}

	meta := source.CaptureMeta{ScaleX: 1, ScaleY: 1, OffsetX: b.X, OffsetY: b.Y}
	return source.AdjustPartMatch(match, meta), nil
}
