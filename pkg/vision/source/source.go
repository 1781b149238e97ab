// Package source 提供工作图像采集
//
// ImageSource 把相机、屏幕帧或静态文件统一为同一采集接口，
// 供定位流程在每次搜索前获取最新的工作图像。
package source

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/pkg/vision/cv"
)

// ImageSource 工作图像源
type ImageSource interface {
	// Capture 采集一帧工作图像，调用方负责 Close
	Capture() (gocv.Mat, error)
	// Close 释放资源
	Close() error
}

// Region 采集区域
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FileSource 文件图像源
// 每次采集重新读取文件，适合模板目录或离线回放。
type FileSource struct {
	Filename string
}

// NewFileSource 创建文件图像源
func NewFileSource(filename string) *FileSource {
	return &FileSource{Filename: filename}
}

// Capture 读取图像文件
func (s *FileSource) Capture() (gocv.Mat, error) {
	return cv.ReadImage(s.Filename)
}

// Close 释放资源
func (s *FileSource) Close() error {
	return nil
}

// MatSource 预加载图像源
// 持有一份图像，每次采集返回克隆。
type MatSource struct {
	mat    gocv.Mat
	closed bool
}

// NewMatSource 创建预加载图像源（接管 Mat 所有权）
func NewMatSource(mat gocv.Mat) *MatSource {
	return &MatSource{mat: mat}
}

// Capture 返回图像克隆
func (s *MatSource) Capture() (gocv.Mat, error) {
	if s.closed {
		return gocv.Mat{}, fmt.Errorf("图像源已关闭")
	}
	if s.mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("图像源为空")
	}
	return s.mat.Clone(), nil
}

// Close 释放持有的图像，可重复调用
func (s *MatSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.mat.Close()
}
