package vision

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sunmech/partlocate/internal/logger"
	"github.com/sunmech/partlocate/pkg/vision/cv"
)

// Options 全局配置选项
type Options struct {
	// 定位配置
	ScoreThreshold    float64       // 候选得分下限，默认 0.3
	RelativeThreshold float64       // 相对峰值比例，默认 0.85
	RotateStep        float64       // 粗搜索角度步长（度），默认 22.5
	AngleResolution   float64       // 角度细化分辨率（度），默认 1.0
	FindTimeout       time.Duration // 循环查找超时时间，默认 10s

	// 日志配置
	LogLevel   string // 日志级别
	LogConsole bool   // 是否输出到控制台
	LogFile    string // 日志文件路径，空表示不写文件

	// 路径配置
	CurrentPath string // 当前工作路径
}

// DefaultOptions 默认配置
var DefaultOptions = Options{
	ScoreThreshold:    0.3,
	RelativeThreshold: 0.85,
	RotateStep:        22.5,
	AngleResolution:   1.0,
	FindTimeout:       10 * time.Second,

	LogLevel:   "info",
	LogConsole: true,
	LogFile:    "",

	CurrentPath: "",
}

// globalOptions 全局配置实例
var globalOptions = DefaultOptions

// GetOptions 获取当前全局配置
func GetOptions() *Options {
	return &globalOptions
}

// SetOptions 设置全局配置，并把日志与路径配置同步到底层包
func SetOptions(opts Options) {
	globalOptions = opts
	applyOptions()
}

// ResetOptions 重置为默认配置
func ResetOptions() {
	globalOptions = DefaultOptions
	applyOptions()
}

// applyOptions 将全局配置同步到底层包
func applyOptions() {
	cv.CurrentPath = globalOptions.CurrentPath
	if err := logger.Setup(globalOptions.LogLevel, globalOptions.LogConsole, globalOptions.LogFile); err != nil {
		log.Warn().Err(err).Msg("日志配置应用失败")
	}
}

// Option 配置选项函数类型
type Option func(*matchConfig)

// matchConfig 单次定位的临时配置
type matchConfig struct {
	scoreThreshold    float64
	relativeThreshold float64
	rotateStep        float64
	angleResolution   float64
	initialAngle      float64
	keypointHint      bool
	timeout           time.Duration
}

// defaultMatchConfig 默认匹配配置
func defaultMatchConfig() *matchConfig {
	return &matchConfig{
		scoreThreshold:    globalOptions.ScoreThreshold,
		relativeThreshold: globalOptions.RelativeThreshold,
		rotateStep:        globalOptions.RotateStep,
		angleResolution:   globalOptions.AngleResolution,
		timeout:           globalOptions.FindTimeout,
	}
}

// WithThreshold 设置候选得分下限
func WithThreshold(threshold float64) Option {
	return func(c *matchConfig) {
		c.scoreThreshold = threshold
	}
}

// WithRelativeThreshold 设置相对峰值比例
func WithRelativeThreshold(relative float64) Option {
	return func(c *matchConfig) {
		c.relativeThreshold = relative
	}
}

// WithRotateStep 设置粗搜索角度步长（度）
func WithRotateStep(step float64) Option {
	return func(c *matchConfig) {
		c.rotateStep = step
	}
}

// WithAngleResolution 设置角度细化分辨率（度）
func WithAngleResolution(resolution float64) Option {
	return func(c *matchConfig) {
		c.angleResolution = resolution
	}
}

// WithOrientationHint 设置初始角度提示（度）
// 通常来自载具当前的旋转轴读数。
func WithOrientationHint(angle float64) Option {
	return func(c *matchConfig) {
		c.initialAngle = angle
	}
}

// WithKeypointHint 定位前用 SIFT 特征估计初始角度
func WithKeypointHint() Option {
	return func(c *matchConfig) {
		c.keypointHint = true
	}
}

// WithTimeout 设置循环查找的超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *matchConfig) {
		c.timeout = timeout
	}
}
