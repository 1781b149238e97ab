package cv

import (
	"encoding/base64"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// ReadImage 读取图像文件
// filename 也支持 data:image/... 形式的数据 URL，编码结果可直接回读
func ReadImage(filename string) (gocv.Mat, error) {
	if strings.HasPrefix(filename, "data:image/") {
		return decodeDataURL(filename)
	}
	mat := gocv.IMRead(filename, gocv.IMReadColor)
	if mat.Empty() {
		return mat, fmt.Errorf("无法读取图像: %s", filename)
	}
	return mat, nil
}

// decodeDataURL 解码 base64 数据 URL
func decodeDataURL(url string) (gocv.Mat, error) {
	idx := strings.Index(url, ",")
	if idx < 0 {
		return gocv.Mat{}, fmt.Errorf("数据 URL 缺少内容分隔符")
	}
	raw, err := base64.StdEncoding.DecodeString(url[idx+1:])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("数据 URL 解码失败: %w", err)
	}
	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("图像解码失败: %w", err)
	}
	if mat.Empty() {
		return mat, fmt.Errorf("图像解码结果为空")
	}
	return mat, nil
}

// ReadImageGray 读取灰度图像
func ReadImageGray(filename string) (gocv.Mat, error) {
	mat := gocv.IMRead(filename, gocv.IMReadGrayScale)
	if mat.Empty() {
		return mat, fmt.Errorf("无法读取图像: %s", filename)
	}
	return mat, nil
}

// WriteImage 保存图像文件
func WriteImage(filename string, img gocv.Mat) error {
	// 确保目录存在
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	if ok := gocv.IMWrite(filename, img); !ok {
		return fmt.Errorf("保存图像失败: %s", filename)
	}
	return nil
}

// ToGray 转换为灰度图
func ToGray(src gocv.Mat) gocv.Mat {
	if src.Channels() == 1 {
		return src.Clone()
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	return dst
}

// GetResolution 获取图像分辨率 (width, height)
func GetResolution(img gocv.Mat) (int, int) {
	return img.Cols(), img.Rows()
}

// CropImage 裁剪图像
// rect: [xMin, yMin, xMax, yMax]
func CropImage(img gocv.Mat, rect [4]int) gocv.Mat {
	xMin, yMin, xMax, yMax := rect[0], rect[1], rect[2], rect[3]

	// 边界检查
	if xMin < 0 {
		xMin = 0
	}
	if yMin < 0 {
		yMin = 0
	}
	if xMax > img.Cols() {
		xMax = img.Cols()
	}
	if yMax > img.Rows() {
		yMax = img.Rows()
	}

	region := img.Region(image.Rect(xMin, yMin, xMax, yMax))
	return region.Clone()
}

// ResizeImage 调整图像大小
func ResizeImage(img gocv.Mat, width, height int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(img, &dst, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
	return dst
}

// RotateImage 绕图像中心旋转图像
func RotateImage(img gocv.Mat, angle float64) gocv.Mat {
	return RotateImageAbout(img, float64(img.Cols())/2.0, float64(img.Rows())/2.0, angle)
}

// RotateImageAbout 绕任意浮点中心旋转图像
// 线性插值，输出尺寸与输入一致，旋出区域填充为零。
func RotateImageAbout(img gocv.Mat, cx, cy, angle float64) gocv.Mat {
	rotMat := rotationMatrix2D(cx, cy, angle, 1.0)
	defer rotMat.Close()

	dst := gocv.NewMat()
	gocv.WarpAffine(img, &dst, rotMat, image.Point{X: img.Cols(), Y: img.Rows()})
	return dst
}

// rotationMatrix2D 构建绕浮点中心的 2x3 仿射旋转矩阵
// gocv.GetRotationMatrix2D 只接受整数中心点，这里按同一公式手工填充，
// 以保持几何中心在偶数尺寸图像上的半像素精度。
func rotationMatrix2D(cx, cy, angle, scale float64) gocv.Mat {
	theta := angle * math.Pi / 180.0
	alpha := scale * math.Cos(theta)
	beta := scale * math.Sin(theta)

	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, alpha)
	m.SetDoubleAt(0, 1, beta)
	m.SetDoubleAt(0, 2, (1-alpha)*cx-beta*cy)
	m.SetDoubleAt(1, 0, -beta)
	m.SetDoubleAt(1, 1, alpha)
	m.SetDoubleAt(1, 2, beta*cx+(1-alpha)*cy)
	return m
}

// ImageToMat 将 image.Image 转换为 gocv.Mat
func ImageToMat(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("图像转换失败: %w", err)
	}
	// 转换为 BGR（OpenCV 默认格式）
	dst := gocv.NewMat()
	gocv.CvtColor(mat, &dst, gocv.ColorRGBToBGR)
	mat.Close()
	return dst, nil
}

// MatToImage 将 gocv.Mat 转换为 image.Image
func MatToImage(mat gocv.Mat) (image.Image, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("Mat 转换失败: %w", err)
	}
	return img, nil
}

// LoadImageInput 加载图像输入
// 支持 string (文件路径)、image.Image、gocv.Mat
func LoadImageInput(input interface{}) (gocv.Mat, error) {
	switch v := input.(type) {
	case string:
		return ReadImage(v)
	case image.Image:
		return ImageToMat(v)
	case gocv.Mat:
		return v.Clone(), nil
	case *gocv.Mat:
		return v.Clone(), nil
	default:
		return gocv.Mat{}, fmt.Errorf("不支持的图像输入类型: %T", input)
	}
}

// min 返回较小值
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// max 返回较大值
func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// abs 返回绝对值
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
