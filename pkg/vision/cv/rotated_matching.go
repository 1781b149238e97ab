package cv

import (
	"fmt"
	"image"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/internal/logger"
)

var cvLog = logger.Module("cv")

// RotatedMatchParams 旋转模板匹配参数
type RotatedMatchParams struct {
	// ScoreThreshold 候选得分下限
	ScoreThreshold float64
	// RelativeThreshold 相对峰值比例，候选下限取 max(ScoreThreshold, RelativeThreshold*峰值)
	RelativeThreshold float64
	// RotateStep 粗搜索角度步长（度）
	RotateStep float64
	// AngleResolution 角度细化终止分辨率（度）
	AngleResolution float64
}

// DefaultRotatedMatchParams 返回默认参数
func DefaultRotatedMatchParams() RotatedMatchParams {
	return RotatedMatchParams{
		ScoreThreshold:    0.3,
		RelativeThreshold: 0.85,
		RotateStep:        22.5,
		AngleResolution:   1.0,
	}
}

// RotatedTemplateMatching 旋转模板匹配器
// 在源图像中心的方形裁剪区域内旋转搜索模板，返回匹配中心、
// 旋转角度和得分。适用场景：
//   - 元件姿态未知或只有粗略角度提示
//   - 相机与载具坐标系存在固定旋转偏差
//   - 同一模板在不同角度重复出现
//
// 匹配器只携带构造期输入，单次搜索的全部状态都在调用栈上，
// 同一实例可被并发复用。
type RotatedTemplateMatching struct {
	imSearch gocv.Mat
	imSource gocv.Mat
	params   RotatedMatchParams
}

// NewRotatedTemplateMatching 创建旋转模板匹配器（默认参数）
func NewRotatedTemplateMatching(search, source gocv.Mat) *RotatedTemplateMatching {
	return NewRotatedTemplateMatchingWithParams(search, source, DefaultRotatedMatchParams())
}

// NewRotatedTemplateMatchingWithParams 创建旋转模板匹配器（带参数）
func NewRotatedTemplateMatchingWithParams(search, source gocv.Mat, params RotatedMatchParams) *RotatedTemplateMatching {
	return &RotatedTemplateMatching{
		imSearch: search,
		imSource: source,
		params:   params,
	}
}

// FindBestResult 查找最佳匹配结果
// 未找到时返回 (nil, nil)；几何校验失败返回错误。
func (m *RotatedTemplateMatching) FindBestResult() (*RotatedMatchResult, error) {
	return m.FindBestResultWithHint(0)
}

// FindBestResultWithHint 以给定初始角度提示查找最佳匹配结果
func (m *RotatedTemplateMatching) FindBestResultWithHint(initialAngle float64) (*RotatedMatchResult, error) {
	startTime := time.Now()

	clip, origin, err := m.cropCenterRegion()
	if err != nil {
		return nil, err
	}
	defer clip.Close()

	best, bestAngle := m.searchBestAngle(clip, initialAngle)
	if best.Score <= 0 {
		// 未找到：仅输出诊断位置（裁剪区域中心），不作为结果返回
		cvLog.Debug().
			Float64("initial_angle", initialAngle).
			Int("clip_x", origin.X+clip.Cols()/2).
			Int("clip_y", origin.Y+clip.Rows()/2).
			Msg("旋转匹配未找到模板")
		return nil, nil
	}

	result := m.buildResult(best, bestAngle, origin, startTime)
	return result, nil
}

// FindAllResults 查找所有匹配结果
// 先搜索最佳角度，再返回该角度下的全部候选（降序，最多 MaxResultCount 个）。
func (m *RotatedTemplateMatching) FindAllResults() ([]*RotatedMatchResult, error) {
	return m.FindAllResultsWithHint(0)
}

// FindAllResultsWithHint 以给定初始角度提示查找所有匹配结果
func (m *RotatedTemplateMatching) FindAllResultsWithHint(initialAngle float64) ([]*RotatedMatchResult, error) {
	startTime := time.Now()

	clip, origin, err := m.cropCenterRegion()
	if err != nil {
		return nil, err
	}
	defer clip.Close()

	best, bestAngle := m.searchBestAngle(clip, initialAngle)
	if best.Score <= 0 {
		return nil, nil
	}

	candidates := m.findRotatedCandidates(clip, bestAngle)
	var results []*RotatedMatchResult
	for _, c := range candidates {
		if len(results) >= MaxResultCount {
			break
		}
		results = append(results, m.buildResult(c, bestAngle, origin, startTime))
	}
	return results, nil
}

// searchBestAngle 两阶段角度搜索
// 第一阶段在初始角度匹配，失败时按固定顺序扰动 ±RotateStep；
// 第二阶段从最佳角度出发做非对称二分细化：改进则保留步长与方向，
// 未改进则仅在反向探测失败后减半步长，并总是翻转方向。
func (m *RotatedTemplateMatching) searchBestAngle(clip gocv.Mat, initialAngle float64) (CandidateMatch, float64) {
	bestAngle := initialAngle
	best := m.findRotatedMatch(clip, bestAngle)

	if best.Score == 0 && m.params.RotateStep > m.params.AngleResolution {
		for _, angle := range []float64{
			initialAngle - m.params.RotateStep,
			initialAngle + m.params.RotateStep,
		} {
			best = m.findRotatedMatch(clip, angle)
			bestAngle = angle
			if best.Score != 0 {
				break
			}
		}
	}

	if best.Score > 0 {
		delta := m.params.RotateStep / 2
		direction := false
		for delta > m.params.AngleResolution {
			sign := 1.0
			if direction {
				sign = -1.0
			}
			angle := bestAngle + delta*sign

			trial := m.findRotatedMatch(clip, angle)
			if trial.Score > best.Score {
				best = trial
				bestAngle = angle
				continue
			}
			if direction {
				delta /= 2
			}
			direction = !direction
		}
	}

	return best, bestAngle
}

// findRotatedMatch 在旋转后的裁剪图像中查找最佳候选
func (m *RotatedTemplateMatching) findRotatedMatch(clip gocv.Mat, angle float64) CandidateMatch {
	candidates := m.findRotatedCandidates(clip, angle)
	if len(candidates) == 0 {
		cvLog.Debug().Float64("angle", angle).Msg("角度探测无候选")
		return CandidateMatch{}
	}

	best := candidates[0]
	cvLog.Debug().
		Float64("angle", angle).
		Float64("score", best.Score).
		Int("candidates", len(candidates)).
		Msg("角度探测")
	return best
}

// findRotatedCandidates 把裁剪图像绕中心旋转 angle 度后做相关匹配，
// 再把每个候选的中心坐标还原到未旋转的裁剪坐标系。
// 返回的候选 X/Y 为匹配中心而非左上角。
func (m *RotatedTemplateMatching) findRotatedCandidates(clip gocv.Mat, angle float64) []CandidateMatch {
	cx := float64(clip.Cols()) / 2.0
	cy := float64(clip.Rows()) / 2.0

	rotated := RotateImageAbout(clip, cx, cy, angle)
	defer rotated.Close()

	candidates := FindMatches(rotated, m.imSearch, m.params.ScoreThreshold, m.params.RelativeThreshold)

	theta := math.Pi * angle / 180.0
	sin, cos := math.Sin(theta), math.Cos(theta)
	for i := range candidates {
		px := candidates[i].X + float64(candidates[i].Width)/2.0 - cx
		py := candidates[i].Y + float64(candidates[i].Height)/2.0 - cy
		candidates[i].X = cx + px*cos - py*sin
		candidates[i].Y = cy + px*sin + py*cos
	}
	return candidates
}

// cropCenterRegion 从源图像中心裁剪方形搜索区域
// 边长取 2.5 倍模板最大边，再受源图像两个维度约束；偶数边长减一，
// 保证区域存在唯一的中心像素。
func (m *RotatedTemplateMatching) cropCenterRegion() (gocv.Mat, image.Point, error) {
	if m.imSearch.Empty() || m.imSource.Empty() {
		return gocv.Mat{}, image.Point{}, fmt.Errorf("图像为空")
	}
	if err := checkSourceLargerThanSearch(m.imSource, m.imSearch); err != nil {
		return gocv.Mat{}, image.Point{}, err
	}

	side := int(2.5 * float64(max(m.imSearch.Cols(), m.imSearch.Rows())))
	side = min(side, min(m.imSource.Cols(), m.imSource.Rows()))
	if side%2 == 0 {
		side--
	}

	if side < m.imSearch.Cols() || side < m.imSearch.Rows() {
		return gocv.Mat{}, image.Point{}, &GeometryError{
			ClipSide:   side,
			SearchSize: [2]int{m.imSearch.Cols(), m.imSearch.Rows()},
		}
	}

	x0 := (m.imSource.Cols() - side) / 2
	y0 := (m.imSource.Rows() - side) / 2

	region := m.imSource.Region(image.Rect(x0, y0, x0+side, y0+side))
	defer region.Close()
	clip := region.Clone()

	return clip, image.Point{X: x0, Y: y0}, nil
}

// buildResult 构建匹配结果
// 候选中心从裁剪坐标系平移回源图像坐标系。
func (m *RotatedTemplateMatching) buildResult(c CandidateMatch, angle float64, origin image.Point, startTime time.Time) *RotatedMatchResult {
	return &RotatedMatchResult{
		Center: PointF{
			X: c.X + float64(origin.X),
			Y: c.Y + float64(origin.Y),
		},
		Width:      c.Width,
		Height:     c.Height,
		Angle:      angle,
		Confidence: c.Score,
		Time:       float64(time.Since(startTime).Milliseconds()),
	}
}

// RotatedCorners 计算以 center 为中心、按 angle 度旋转的 w x h 矩形的四个角点
func RotatedCorners(center PointF, w, h int, angle float64) Rectangle {
	theta := angle * math.Pi / 180.0
	b := math.Cos(theta) * 0.5
	a := math.Sin(theta) * 0.5

	fw, fh := float64(w), float64(h)
	bottomLeft := PointF{
		X: center.X - a*fh - b*fw,
		Y: center.Y + b*fh - a*fw,
	}
	topLeft := PointF{
		X: center.X + a*fh - b*fw,
		Y: center.Y - b*fh - a*fw,
	}
	topRight := PointF{
		X: 2*center.X - bottomLeft.X,
		Y: 2*center.Y - bottomLeft.Y,
	}
	bottomRight := PointF{
		X: 2*center.X - topLeft.X,
		Y: 2*center.Y - topLeft.Y,
	}

	round := func(p PointF) Point {
		return Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
	}
	return Rectangle{
		TopLeft:     round(topLeft),
		BottomLeft:  round(bottomLeft),
		BottomRight: round(bottomRight),
		TopRight:    round(topRight),
	}
}

// GeometryError 搜索区域几何错误
type GeometryError struct {
	ClipSide   int
	SearchSize [2]int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("裁剪区域边长 %d 小于模板尺寸 %dx%d", e.ClipSide, e.SearchSize[0], e.SearchSize[1])
}
