package cv

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"math"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestRotationMatrix2D(t *testing.T) {
	t.Run("零角度为单位变换", func(t *testing.T) {
		m := rotationMatrix2D(50, 50, 0, 1.0)
		defer m.Close()

		want := [2][3]float64{{1, 0, 0}, {0, 1, 0}}
		for r := 0; r < 2; r++ {
			for c := 0; c < 3; c++ {
				if got := m.GetDoubleAt(r, c); math.Abs(got-want[r][c]) > 1e-9 {
					t.Errorf("矩阵元素 (%d, %d) 应为 %.1f, 实际为 %v", r, c, want[r][c], got)
				}
			}
		}
	})

	t.Run("九十度", func(t *testing.T) {
		m := rotationMatrix2D(10, 20, 90, 1.0)
		defer m.Close()

		// alpha=0, beta=1: 平移项为 ((1-0)*10-1*20, 1*10+(1-0)*20)
		want := [2][3]float64{{0, 1, -10}, {-1, 0, 30}}
		for r := 0; r < 2; r++ {
			for c := 0; c < 3; c++ {
				if got := m.GetDoubleAt(r, c); math.Abs(got-want[r][c]) > 1e-9 {
					t.Errorf("矩阵元素 (%d, %d) 应为 %.1f, 实际为 %v", r, c, want[r][c], got)
				}
			}
		}
	})
}

func TestRotateImageAboutGeometry(t *testing.T) {
	// 中心右侧 20 像素处的白块，逆时针转 90 度后应出现在中心上方
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 101, 101, gocv.MatTypeCV8U)
	defer mat.Close()
	for y := 48; y <= 52; y++ {
		for x := 68; x <= 72; x++ {
			mat.SetUCharAt(y, x, 255)
		}
	}

	rotated := RotateImageAbout(mat, 50, 50, 90)
	defer rotated.Close()

	if rotated.Cols() != 101 || rotated.Rows() != 101 {
		t.Errorf("旋转后尺寸应保持 101x101, 实际为 %dx%d", rotated.Cols(), rotated.Rows())
	}
	if v := rotated.GetUCharAt(30, 50); v < 250 {
		t.Errorf("白块应移动到 (50, 30), 该处像素应接近 255, 实际为 %d", v)
	}
	if v := rotated.GetUCharAt(50, 70); v > 5 {
		t.Errorf("原位置 (70, 50) 应被清空, 实际为 %d", v)
	}
}

func TestRotateImageRoundTrip(t *testing.T) {
	work := buildPatternMat(t, 200, 200, 100, 100)
	defer work.Close()

	rotated := RotateImage(work, 13)
	defer rotated.Close()
	back := RotateImage(rotated, -13)
	defer back.Close()

	// 比较中央区域，避开旋出后补零的边角
	origCrop := CropImage(work, [4]int{50, 50, 150, 150})
	defer origCrop.Close()
	backCrop := CropImage(back, [4]int{50, 50, 150, 150})
	defer backCrop.Close()

	similarity := CalCcoeffConfidence(origCrop, backCrop)
	if similarity < 0.9 {
		t.Errorf("往返旋转后的相似度应不低于 0.9, 实际为 %.4f", similarity)
	}
	t.Logf("往返旋转相似度: %.4f", similarity)
}

func TestToGray(t *testing.T) {
	colored := buildPatternMat(t, 50, 50, 25, 25)
	defer colored.Close()

	gray := ToGray(colored)
	defer gray.Close()
	if gray.Channels() != 1 {
		t.Errorf("灰度图通道数应为 1, 实际为 %d", gray.Channels())
	}
	if gray.Cols() != 50 || gray.Rows() != 50 {
		t.Errorf("灰度图尺寸应为 50x50, 实际为 %dx%d", gray.Cols(), gray.Rows())
	}

	// 已是灰度图时返回副本
	gray2 := ToGray(gray)
	defer gray2.Close()
	if gray2.Channels() != 1 {
		t.Errorf("灰度图转换应保持单通道, 实际为 %d", gray2.Channels())
	}
}

func TestCropImage(t *testing.T) {
	work := buildPatternMat(t, 200, 200, 100, 100)
	defer work.Close()

	crop := CropImage(work, [4]int{75, 75, 125, 125})
	defer crop.Close()
	if crop.Cols() != 50 || crop.Rows() != 50 {
		t.Errorf("裁剪尺寸应为 50x50, 实际为 %dx%d", crop.Cols(), crop.Rows())
	}

	// 越界坐标收敛到图像边界
	clamped := CropImage(work, [4]int{-10, -10, 300, 300})
	defer clamped.Close()
	if clamped.Cols() != 200 || clamped.Rows() != 200 {
		t.Errorf("越界裁剪应收敛为 200x200, 实际为 %dx%d", clamped.Cols(), clamped.Rows())
	}
}

func TestReadWriteImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "pattern.png")

	work := buildPatternMat(t, 80, 60, 40, 30)
	defer work.Close()

	// 写入时自动创建目录
	if err := WriteImage(path, work); err != nil {
		t.Fatalf("写入图像失败: %v", err)
	}

	mat, err := ReadImage(path)
	if err != nil {
		t.Fatalf("读取图像失败: %v", err)
	}
	defer mat.Close()
	if mat.Cols() != 80 || mat.Rows() != 60 {
		t.Errorf("读取尺寸应为 80x60, 实际为 %dx%d", mat.Cols(), mat.Rows())
	}

	gray, err := ReadImageGray(path)
	if err != nil {
		t.Fatalf("读取灰度图失败: %v", err)
	}
	defer gray.Close()
	if gray.Channels() != 1 {
		t.Errorf("灰度读取通道数应为 1, 实际为 %d", gray.Channels())
	}

	if _, err := ReadImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("读取不存在的文件应报错, 实际为 nil")
	}
}

func TestReadImageDataURL(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, buildPatternImage(50, 50, 25, 25)); err != nil {
		t.Fatalf("PNG 编码失败: %v", err)
	}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	mat, err := ReadImage(url)
	if err != nil {
		t.Fatalf("读取数据 URL 失败: %v", err)
	}
	defer mat.Close()
	if mat.Cols() != 50 || mat.Rows() != 50 {
		t.Errorf("解码尺寸应为 50x50, 实际为 %dx%d", mat.Cols(), mat.Rows())
	}
	if mat.Channels() != 3 {
		t.Errorf("解码通道数应为 3, 实际为 %d", mat.Channels())
	}

	t.Run("缺少分隔符", func(t *testing.T) {
		if _, err := ReadImage("data:image/png;base64"); err == nil {
			t.Error("缺少逗号分隔符应报错, 实际为 nil")
		}
	})
	t.Run("非法编码", func(t *testing.T) {
		if _, err := ReadImage("data:image/png;base64,@@@@"); err == nil {
			t.Error("非法 base64 应报错, 实际为 nil")
		}
	})
	t.Run("非图像内容", func(t *testing.T) {
		garbage := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not an image"))
		if _, err := ReadImage(garbage); err == nil {
			t.Error("非图像数据应报错, 实际为 nil")
		}
	})
}

func TestLoadImageInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.png")

	work := buildPatternMat(t, 60, 60, 30, 30)
	defer work.Close()
	if err := WriteImage(path, work); err != nil {
		t.Fatalf("写入图像失败: %v", err)
	}

	t.Run("文件路径", func(t *testing.T) {
		mat, err := LoadImageInput(path)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		defer mat.Close()
		if mat.Cols() != 60 {
			t.Errorf("宽度应为 60, 实际为 %d", mat.Cols())
		}
	})

	t.Run("image.Image", func(t *testing.T) {
		mat, err := LoadImageInput(buildPatternImage(60, 60, 30, 30))
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		defer mat.Close()
		if mat.Cols() != 60 {
			t.Errorf("宽度应为 60, 实际为 %d", mat.Cols())
		}
	})

	t.Run("Mat 与指针", func(t *testing.T) {
		mat, err := LoadImageInput(work)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		defer mat.Close()

		matPtr, err := LoadImageInput(&work)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		defer matPtr.Close()

		if mat.Cols() != work.Cols() || matPtr.Cols() != work.Cols() {
			t.Error("Mat 输入应返回等尺寸副本")
		}
	})

	t.Run("不支持的类型", func(t *testing.T) {
		if _, err := LoadImageInput(42); err == nil {
			t.Error("整数输入应报错, 实际为 nil")
		}
	})
}

func TestResizeAndResolution(t *testing.T) {
	work := buildPatternMat(t, 100, 80, 50, 40)
	defer work.Close()

	w, h := GetResolution(work)
	if w != 100 || h != 80 {
		t.Errorf("分辨率应为 (100, 80), 实际为 (%d, %d)", w, h)
	}

	resized := ResizeImage(work, 50, 40)
	defer resized.Close()
	if resized.Cols() != 50 || resized.Rows() != 40 {
		t.Errorf("缩放后应为 50x40, 实际为 %dx%d", resized.Cols(), resized.Rows())
	}
}

func TestMatImageConversion(t *testing.T) {
	src := buildPatternImage(40, 30, 20, 15)

	mat, err := ImageToMat(src)
	if err != nil {
		t.Fatalf("ImageToMat 失败: %v", err)
	}
	defer mat.Close()
	if mat.Cols() != 40 || mat.Rows() != 30 || mat.Channels() != 3 {
		t.Errorf("转换结果应为 40x30x3, 实际为 %dx%dx%d", mat.Cols(), mat.Rows(), mat.Channels())
	}

	img, err := MatToImage(mat)
	if err != nil {
		t.Fatalf("MatToImage 失败: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 40 || bounds.Dy() != 30 {
		t.Errorf("还原图像应为 40x30, 实际为 %dx%d", bounds.Dx(), bounds.Dy())
	}
}
