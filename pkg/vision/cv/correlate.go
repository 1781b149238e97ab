package cv

import (
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

const (
	// maximaSuppressionRadius 局部极大值抑制半径（像素）
	maximaSuppressionRadius = 2
)

// FindMatches 在源图像中查找模板的所有候选匹配
// 使用 TM_CCOEFF_NORMED 计算相关响应矩阵，取 [rangeMin, maxVal] 范围内的
// 局部极大值作为候选，其中 rangeMin = max(scoreThreshold, relativeThreshold*maxVal)。
// 返回按得分降序排列的候选列表，得分相同时保持扫描顺序。
func FindMatches(source, search gocv.Mat, scoreThreshold, relativeThreshold float64) []CandidateMatch {
	srcGray := ToGray(source)
	searchGray := ToGray(search)
	defer srcGray.Close()
	defer searchGray.Close()

	result := gocv.NewMat()
	defer result.Close()
	gocv.MatchTemplate(srcGray, searchGray, &result, gocv.TmCcoeffNormed, gocv.NewMat())

	_, maxVal, _, _ := gocv.MinMaxLoc(result)

	rangeMin := math.Max(scoreThreshold, relativeThreshold*float64(maxVal))
	points := MatMaxima(result, rangeMin, float64(maxVal))

	w, h := search.Cols(), search.Rows()
	matches := make([]CandidateMatch, 0, len(points))
	for _, p := range points {
		matches = append(matches, CandidateMatch{
			X:      float64(p.X),
			Y:      float64(p.Y),
			Width:  w,
			Height: h,
			Score:  float64(result.GetFloatAt(p.Y, p.X)),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches
}

// MatMaxima 提取响应矩阵中 [rangeMin, rangeMax] 范围内的局部极大值点
// 某点是局部极大值，当且仅当抑制半径内不存在响应值严格更大的相邻点。
// 等值平台上的多个点都会被保留。
func MatMaxima(result gocv.Mat, rangeMin, rangeMax float64) []image.Point {
	rows, cols := result.Rows(), result.Cols()

	var points []image.Point
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := float64(result.GetFloatAt(y, x))
			if math.IsNaN(v) || v < rangeMin || v > rangeMax {
				continue
			}
			if hasGreaterNeighbor(result, x, y, v) {
				continue
			}
			points = append(points, image.Point{X: x, Y: y})
		}
	}
	return points
}

// hasGreaterNeighbor 检查抑制半径内是否存在严格更大的响应值
func hasGreaterNeighbor(result gocv.Mat, x, y int, v float64) bool {
	rows, cols := result.Rows(), result.Cols()

	for dy := -maximaSuppressionRadius; dy <= maximaSuppressionRadius; dy++ {
		ny := y + dy
		if ny < 0 || ny >= rows {
			continue
		}
		for dx := -maximaSuppressionRadius; dx <= maximaSuppressionRadius; dx++ {
			nx := x + dx
			if dx == 0 && dy == 0 {
				continue
			}
			if nx < 0 || nx >= cols {
				continue
			}
			if float64(result.GetFloatAt(ny, nx)) > v {
				return true
			}
		}
	}
	return false
}
