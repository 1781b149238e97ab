// Package motion 提供运动轴的坐标模型与安全运动序列
//
// 坐标单位为毫米/度。Location 中为 NaN 的轴不参与运动指令，
// 该轴保持当前位置不动。
package motion

import (
	"fmt"
	"math"
)

// Location 机台坐标
// X/Y 为平面位置，Z 为高度，Rotation 为旋转轴角度（度）。
type Location struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

// NewLocation 构造坐标
func NewLocation(x, y, z, rotation float64) Location {
	return Location{X: x, Y: y, Z: z, Rotation: rotation}
}

// Derive 以 l 为基础生成新坐标
// NaN 参数保留 l 的对应字段，其余参数覆盖。
func (l Location) Derive(x, y, z, rotation float64) Location {
	if !math.IsNaN(x) {
		l.X = x
	}
	if !math.IsNaN(y) {
		l.Y = y
	}
	if !math.IsNaN(z) {
		l.Z = z
	}
	if !math.IsNaN(rotation) {
		l.Rotation = rotation
	}
	return l
}

func (l Location) String() string {
	return fmt.Sprintf("X:%.3f Y:%.3f Z:%.3f C:%.3f", l.X, l.Y, l.Z, l.Rotation)
}
