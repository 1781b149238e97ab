// Package overlay 提供定位结果的诊断绘制
//
// 在工作图像副本上画出旋转矩形、中心十字与角度/得分标注，
// 用于人工核对定位质量。绘制只是旁路诊断，任何失败都不影响定位本身。
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sunmech/partlocate/pkg/vision"
	"github.com/sunmech/partlocate/pkg/vision/cv"
)

const labelFontSize = 16.0

// DrawPartMatch 在工作图像副本上绘制定位结果
// 返回标注后的新图像，调用方负责 Close。match 为 nil 时返回未标注的副本。
func DrawPartMatch(work gocv.Mat, match *vision.PartMatch) gocv.Mat {
	annotated := work.Clone()
	if match == nil {
		return annotated
	}

	green := color.RGBA{0, 255, 0, 255}
	rect := match.Rectangle

	// 旋转矩形
	drawLine(&annotated, rect.TopLeft, rect.TopRight, green, 2)
	drawLine(&annotated, rect.TopRight, rect.BottomRight, green, 2)
	drawLine(&annotated, rect.BottomRight, rect.BottomLeft, green, 2)
	drawLine(&annotated, rect.BottomLeft, rect.TopLeft, green, 2)

	// 中心十字
	cx, cy := int(match.Center.X), int(match.Center.Y)
	drawLine(&annotated, vision.Point{X: cx - 8, Y: cy}, vision.Point{X: cx + 8, Y: cy}, green, 1)
	drawLine(&annotated, vision.Point{X: cx, Y: cy - 8}, vision.Point{X: cx, Y: cy + 8}, green, 1)

	// 角度/得分标注
	label := fmt.Sprintf("%.1fdeg %.2f", match.Angle, match.Confidence)
	labelX := rect.TopLeft.X
	labelY := rect.TopLeft.Y - 22
	if labelY < 0 {
		labelY = 0
	}

	labeled, err := drawText(annotated, labelX, labelY, label, green)
	if err != nil {
		// 文字渲染失败只丢标注，矩形与十字仍然保留
		return annotated
	}
	annotated.Close()
	return labeled
}

// SaveAnnotated 绘制定位结果并保存到文件
func SaveAnnotated(filename string, work gocv.Mat, match *vision.PartMatch) error {
	annotated := DrawPartMatch(work, match)
	defer annotated.Close()
	return cv.WriteImage(filename, annotated)
}

// drawLine 画线段
func drawLine(mat *gocv.Mat, from, to vision.Point, col color.RGBA, thickness int) {
	gocv.Line(mat, image.Pt(from.X, from.Y), image.Pt(to.X, to.Y), col, thickness)
}

// drawText 在图像上绘制文字，返回新的 Mat
func drawText(mat gocv.Mat, x, y int, text string, col color.Color) (gocv.Mat, error) {
	img, err := mat.ToImage()
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("图像转换失败: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	if f := loadLabelFont(); f != nil {
		c := freetype.NewContext()
		c.SetDPI(72)
		c.SetFont(f)
		c.SetFontSize(labelFontSize)
		c.SetClip(rgba.Bounds())
		c.SetDst(rgba)
		c.SetSrc(image.NewUniform(col))
		c.SetHinting(font.HintingFull)

		pt := freetype.Pt(x, y+int(c.PointToFixed(labelFontSize)>>6))
		if _, err := c.DrawString(text, pt); err != nil {
			drawBasicText(rgba, x, y, text, col)
		}
	} else {
		// 无可用系统字体，回退到内置点阵字体
		drawBasicText(rgba, x, y, text, col)
	}

	return cv.ImageToMat(rgba)
}

// drawBasicText 用内置点阵字体绘制文字
func drawBasicText(rgba *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+13),
	}
	d.DrawString(text)
}

var (
	labelFont     *truetype.Font
	labelFontOnce sync.Once
)

// loadLabelFont 按常见路径查找系统字体
// 找不到时返回 nil，调用方回退到点阵字体。
func loadLabelFont() *truetype.Font {
	labelFontOnce.Do(func() {
		fontPaths := []string{
			// Linux
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
			"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
			// macOS
			"/System/Library/Fonts/Helvetica.ttc",
			"/Library/Fonts/Arial Unicode.ttf",
			// Windows
			"C:\\Windows\\Fonts\\arial.ttf",
			"C:\\Windows\\Fonts\\msyh.ttc",
		}

		for _, path := range fontPaths {
			fontBytes, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			f, err := truetype.Parse(fontBytes)
			if err != nil {
				continue
			}
			labelFont = f
			return
		}
	})
	return labelFont
}
