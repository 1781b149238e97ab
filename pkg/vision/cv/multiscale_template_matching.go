package cv

import (
	"image"
	"math"
	"sort"
	"time"

	"gocv.io/x/gocv"
)

const (
	// ratioMin/ratioMax 模板相对源图像的搜索比例区间
	ratioMin = 0.01
	ratioMax = 0.99
	// minScaledSide 缩放后模板的最小边长，再小则相关响应不可靠
	minScaledSide = 10
	// scaleSearchBudget 尺度扫描的时间预算，超出后有合格结果即提前结束
	scaleSearchBudget = 3 * time.Second
)

// MultiScaleTemplateMatching 多尺度模板匹配
// 在一段连续的缩放比例区间内逐级缩放模板并匹配，取得分最高的
// 比例还原到源图像坐标。适用场景：
//   - 相机工作距离变动导致单位像素对应的实际尺寸漂移
//   - 模板采集时的镜头倍率与当前视野不一致
//   - 同一元件库复用在不同放大倍数的相机上
//
// 角度已知而尺度未知时用本匹配器；尺度已知而角度未知时用
// RotatedTemplateMatching。
type MultiScaleTemplateMatching struct {
	imSearch  gocv.Mat
	imSource  gocv.Mat
	threshold float64
	rgb       bool
	scaleMax  int     // 源图像最大尺寸限制，默认 800
	scaleStep float64 // 比例搜索步长，默认 0.005
}

// NewMultiScaleTemplateMatching 创建多尺度模板匹配器
func NewMultiScaleTemplateMatching(search, source gocv.Mat, threshold float64, rgb bool) *MultiScaleTemplateMatching {
	return NewMultiScaleTemplateMatchingWithParams(search, source, threshold, rgb, 800, 0.005)
}

// NewMultiScaleTemplateMatchingWithParams 创建多尺度模板匹配器（带参数）
func NewMultiScaleTemplateMatchingWithParams(search, source gocv.Mat, threshold float64, rgb bool, scaleMax int, scaleStep float64) *MultiScaleTemplateMatching {
	return &MultiScaleTemplateMatching{
		imSearch:  search,
		imSource:  source,
		threshold: threshold,
		rgb:       rgb,
		scaleMax:  scaleMax,
		scaleStep: scaleStep,
	}
}

// scaleCandidate 单个比例下的最佳响应
type scaleCandidate struct {
	score       float64 // 响应矩阵峰值
	loc         Point   // 峰值位置（缩放坐标系左上角）
	w, h        int     // 缩放后模板尺寸
	templRatio  float64 // 模板缩放比例
	sourceRatio float64 // 源图像缩放比例
}

// FindBestResult 查找最佳匹配结果
// 未找到时返回 (nil, nil)；模板大于源图像返回错误。
func (m *MultiScaleTemplateMatching) FindBestResult() (*MatchResult, error) {
	startTime := time.Now()

	if err := checkSourceLargerThanSearch(m.imSource, m.imSearch); err != nil {
		return nil, err
	}

	sourceGray := ToGray(m.imSource)
	searchGray := ToGray(m.imSearch)
	defer sourceGray.Close()
	defer searchGray.Close()

	best := m.scanScales(sourceGray, searchGray)
	if best == nil {
		return nil, nil
	}

	loc, w, h := m.toSourceCoords(best, best.loc)
	confidence := m.cropConfidence(loc, w, h)
	if confidence < m.threshold {
		return nil, nil
	}

	return m.buildResult(loc, w, h, confidence, startTime), nil
}

// FindAllResults 查找所有匹配结果
// 在最佳比例下提取响应矩阵的全部局部极大值，逐个按裁剪置信度
// 过滤后降序返回，最多 MaxResultCount 个。
func (m *MultiScaleTemplateMatching) FindAllResults() ([]*MatchResult, error) {
	startTime := time.Now()

	if err := checkSourceLargerThanSearch(m.imSource, m.imSearch); err != nil {
		return nil, err
	}

	sourceGray := ToGray(m.imSource)
	searchGray := ToGray(m.imSearch)
	defer sourceGray.Close()
	defer searchGray.Close()

	best := m.scanScales(sourceGray, searchGray)
	if best == nil {
		return nil, nil
	}

	// 在最佳比例下重新匹配，取全部合格峰值
	scaledSource, scaledSearch := m.scaleForRatio(sourceGray, searchGray, best.templRatio, best.sourceRatio)
	defer scaledSource.Close()
	defer scaledSearch.Close()

	response := gocv.NewMat()
	defer response.Close()
	gocv.MatchTemplate(scaledSource, scaledSearch, &response, gocv.TmCcoeffNormed, gocv.NewMat())

	_, maxVal, _, _ := gocv.MinMaxLoc(response)
	points := MatMaxima(response, m.threshold, float64(maxVal))

	var results []*MatchResult
	for _, p := range points {
		loc, w, h := m.toSourceCoords(best, Point{X: p.X, Y: p.Y})
		confidence := m.cropConfidence(loc, w, h)
		if confidence < m.threshold {
			continue
		}
		results = append(results, m.buildResult(loc, w, h, confidence, startTime))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	if len(results) > MaxResultCount {
		results = results[:MaxResultCount]
	}

	return results, nil
}

// scanScales 扫描比例区间，返回响应峰值最高的比例
// 超出时间预算且当前峰值已过阈值时提前结束扫描。
func (m *MultiScaleTemplateMatching) scanScales(sourceGray, searchGray gocv.Mat) *scaleCandidate {
	deadline := time.Now().Add(scaleSearchBudget)

	var best *scaleCandidate
	for ratio := ratioMin; ratio <= ratioMax; ratio += m.scaleStep {
		tr, sr := m.ratiosFor(sourceGray, searchGray, ratio)

		scaledSource, scaledSearch := m.scaleForRatio(sourceGray, searchGray, tr, sr)
		if scaledSearch.Rows() < minScaledSide || scaledSearch.Cols() < minScaledSide {
			scaledSource.Close()
			scaledSearch.Close()
			continue
		}

		response := gocv.NewMat()
		gocv.MatchTemplate(scaledSource, scaledSearch, &response, gocv.TmCcoeffNormed, gocv.NewMat())
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(response)
		response.Close()

		if best == nil || float64(maxVal) > best.score {
			best = &scaleCandidate{
				score:       float64(maxVal),
				loc:         Point{X: maxLoc.X, Y: maxLoc.Y},
				w:           scaledSearch.Cols(),
				h:           scaledSearch.Rows(),
				templRatio:  tr,
				sourceRatio: sr,
			}
		}

		scaledSource.Close()
		scaledSearch.Close()

		if best.score >= m.threshold && time.Now().After(deadline) {
			break
		}
	}
	return best
}

// ratiosFor 计算给定比例下模板与源图像各自的缩放系数
// 源图像先按 scaleMax 限幅，模板再按占满缩放后源图像 ratio 的
// 相对长边缩放。
func (m *MultiScaleTemplateMatching) ratiosFor(sourceGray, searchGray gocv.Mat, ratio float64) (tr, sr float64) {
	srcMaxDim := float64(max(sourceGray.Rows(), sourceGray.Cols()))
	sr = math.Min(float64(m.scaleMax)/srcMaxDim, 1.0)

	srcW := float64(sourceGray.Cols()) * sr
	srcH := float64(sourceGray.Rows()) * sr
	searchW := float64(searchGray.Cols())
	searchH := float64(searchGray.Rows())

	if searchH/srcH >= searchW/srcW {
		tr = (srcH * ratio) / searchH
	} else {
		tr = (srcW * ratio) / searchW
	}
	return tr, sr
}

// scaleForRatio 按给定系数缩放源图像与模板
func (m *MultiScaleTemplateMatching) scaleForRatio(sourceGray, searchGray gocv.Mat, tr, sr float64) (gocv.Mat, gocv.Mat) {
	scaledSource := gocv.NewMat()
	if sr < 1.0 {
		gocv.Resize(sourceGray, &scaledSource, image.Point{
			X: int(float64(sourceGray.Cols()) * sr),
			Y: int(float64(sourceGray.Rows()) * sr),
		}, 0, 0, gocv.InterpolationLinear)
	} else {
		sourceGray.CopyTo(&scaledSource)
	}

	newW := max(int(float64(searchGray.Cols())*tr), 1)
	newH := max(int(float64(searchGray.Rows())*tr), 1)

	scaledSearch := gocv.NewMat()
	gocv.Resize(searchGray, &scaledSearch, image.Point{X: newW, Y: newH}, 0, 0, gocv.InterpolationLinear)

	return scaledSource, scaledSearch
}

// toSourceCoords 把缩放坐标系下的位置与尺寸还原到源图像坐标系
func (m *MultiScaleTemplateMatching) toSourceCoords(c *scaleCandidate, loc Point) (Point, int, int) {
	return Point{
		X: int(float64(loc.X) / c.sourceRatio),
		Y: int(float64(loc.Y) / c.sourceRatio),
	}, int(float64(c.w) / c.sourceRatio), int(float64(c.h) / c.sourceRatio)
}

// cropConfidence 在源图像上裁剪候选区域，缩放回模板尺寸后计算置信度
// 越界候选直接判 0。
func (m *MultiScaleTemplateMatching) cropConfidence(loc Point, w, h int) float64 {
	if loc.X < 0 || loc.Y < 0 || loc.X+w > m.imSource.Cols() || loc.Y+h > m.imSource.Rows() {
		return 0
	}

	roi := m.imSource.Region(image.Rect(loc.X, loc.Y, loc.X+w, loc.Y+h))
	defer roi.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, image.Point{X: m.imSearch.Cols(), Y: m.imSearch.Rows()}, 0, 0, gocv.InterpolationLinear)

	if m.rgb {
		return CalRGBConfidence(resized, m.imSearch)
	}
	return CalCcoeffConfidence(resized, m.imSearch)
}

// buildResult 构建匹配结果
func (m *MultiScaleTemplateMatching) buildResult(loc Point, w, h int, confidence float64, startTime time.Time) *MatchResult {
	return &MatchResult{
		Result: Point{
			X: loc.X + w/2,
			Y: loc.Y + h/2,
		},
		Rectangle: Rectangle{
			TopLeft:     loc,
			BottomLeft:  Point{X: loc.X, Y: loc.Y + h},
			BottomRight: Point{X: loc.X + w, Y: loc.Y + h},
			TopRight:    Point{X: loc.X + w, Y: loc.Y},
		},
		Confidence: confidence,
		Time:       float64(time.Since(startTime).Milliseconds()),
	}
}
