package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gocv.io/x/gocv"

	"github.com/sunmech/partlocate/internal/logger"
	"github.com/sunmech/partlocate/internal/sysinfo"
	"github.com/sunmech/partlocate/pkg/config"
	"github.com/sunmech/partlocate/pkg/permissions"
	"github.com/sunmech/partlocate/pkg/tray"
	"github.com/sunmech/partlocate/pkg/vision"
	"github.com/sunmech/partlocate/pkg/vision/overlay"
	"github.com/sunmech/partlocate/pkg/vision/source"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitFound    = 0 // 找到元件
	exitNotFound = 1 // 未找到元件
	exitInvalid  = 2 // 参数或输入无效
)

// locateResult 标准输出的结果文档
type locateResult struct {
	Found   bool              `json:"found"`
	Match   *vision.PartMatch `json:"match,omitempty"`
	Overlay string            `json:"overlay,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	// 命令行参数
	var (
		imagePath     = flag.String("image", "", "工作图像路径")
		templatePath  = flag.String("template", "", "模板图像路径")
		configPath    = flag.String("config", "", "配置文件路径 (默认 ~/.partlocate/config.json)")
		screenCapture = flag.Bool("screen", false, "从屏幕采集工作图像 (帧采集卡画面)")
		screenRegion  = flag.String("region", "", "屏幕采集区域 x,y,宽,高")
		watchTimeout  = flag.Duration("watch", 0, "循环采集直到找到元件或超时 (如 10s)")
		pocketSpec    = flag.String("pocket", "", "料盘口袋位置 rows.cols.row.col (如 2.3.1.2)")

		method            = flag.String("method", "rtpl", "匹配方法 rtpl/tpl/sift")
		threshold         = flag.Float64("threshold", 0.3, "候选得分下限")
		relativeThreshold = flag.Float64("relative-threshold", 0.85, "相对峰值比例")
		rotateStep        = flag.Float64("rotate-step", 22.5, "粗搜索角度步长 (度)")
		angleResolution   = flag.Float64("angle-resolution", 1.0, "角度细化精度 (度)")
		initialAngle      = flag.Float64("angle", 0, "初始角度提示 (度)")
		keypointHint      = flag.Bool("keypoint-hint", false, "用 SIFT 特征估计初始角度")

		overlayPath = flag.String("overlay", "", "标注图像输出路径")
		verbose     = flag.Bool("verbose", false, "输出搜索过程日志")
		stats       = flag.Bool("stats", false, "输出进程运行快照")
		saveConfig  = flag.Bool("save", false, "保存生效配置到本地")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本
	if *showVersion {
		printVersion()
		return exitFound
	}

	// 显示帮助
	if *showHelp {
		printHelp()
		return exitFound
	}

	// 记录显式传入的参数，用于覆盖配置文件
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// 加载配置
	var cfg *config.LocateConfig
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
			return exitInvalid
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] 加载配置失败: %v\n", err)
		}
	}

	// 命令行参数优先级高于配置文件
	if set["threshold"] {
		cfg.ScoreThreshold = *threshold
	}
	if set["relative-threshold"] {
		cfg.RelativeThreshold = *relativeThreshold
	}
	if set["rotate-step"] {
		cfg.RotateStep = *rotateStep
	}
	if set["angle-resolution"] {
		cfg.AngleResolution = *angleResolution
	}
	if *verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		return exitInvalid
	}

	// 模板可由配置提供
	tmplPath := *templatePath
	if tmplPath == "" {
		tmplPath = cfg.TemplateName
	}

	// 验证必要参数
	if *imagePath == "" && !*screenCapture {
		fmt.Fprintln(os.Stderr, "[ERROR] 缺少工作图像，请使用 -image 或 -screen 指定")
		printHelp()
		return exitInvalid
	}
	if *imagePath != "" && *screenCapture {
		fmt.Fprintln(os.Stderr, "[ERROR] -image 与 -screen 不能同时使用")
		return exitInvalid
	}
	if tmplPath == "" {
		fmt.Fprintln(os.Stderr, "[ERROR] 缺少模板图像，请使用 -template 参数指定")
		printHelp()
		return exitInvalid
	}

	// 料盘口袋模式只支持旋转匹配
	var pocket *tray.Pocket
	if *pocketSpec != "" {
		if *method != string(vision.MatchMethodRotated) {
			fmt.Fprintln(os.Stderr, "[ERROR] -pocket 仅支持 rtpl 匹配方法")
			return exitInvalid
		}
		pocket, err = tray.ParsePocket(*pocketSpec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
			return exitInvalid
		}
	}

	// 配置日志
	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	if err := logger.Setup(level, true, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 日志配置失败: %v\n", err)
	}
	defer logger.Close()

	// 保存配置
	if *saveConfig {
		if err := config.Save(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] 保存配置失败: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "[INFO] 配置已保存到 %s\n", config.GetDefaultManager().GetConfigFile())
		}
	}

	// 运行快照
	if *stats {
		if snap, err := sysinfo.Collect(); err == nil {
			fmt.Fprintf(os.Stderr, "[INFO] %s\n", snap)
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] 采集运行快照失败: %v\n", err)
		}
	}

	// 抓屏前检查授权，未授权时 macOS 只会给出空白画面
	if *screenCapture {
		if msg := permissions.Check().Instructions(); msg != "" {
			fmt.Fprintf(os.Stderr, "[WARN] %s\n", msg)
		}
	}

	// 工作图像源
	src, err := buildImageSource(*screenCapture, *screenRegion, *imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		return exitInvalid
	}
	defer src.Close()

	// 定位
	opts := []vision.Option{
		vision.WithThreshold(cfg.ScoreThreshold),
		vision.WithRelativeThreshold(cfg.RelativeThreshold),
		vision.WithRotateStep(cfg.RotateStep),
		vision.WithAngleResolution(cfg.AngleResolution),
	}
	if set["angle"] {
		opts = append(opts, vision.WithOrientationHint(*initialAngle))
	}
	if *keypointHint {
		opts = append(opts, vision.WithKeypointHint())
	}

	match, frame, meta, err := locateLoop(src, vision.MatchMethod(*method), tmplPath, pocket, *watchTimeout, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] 定位失败: %v\n", err)
		return exitInvalid
	}

	doc := locateResult{Found: match != nil}

	if match != nil {
		defer frame.Close()

		// 标注图像用采集帧坐标绘制，再换算屏幕坐标
		if *overlayPath != "" {
			if err := overlay.SaveAnnotated(*overlayPath, frame, match); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] 写入标注图像失败: %v\n", err)
			} else {
				doc.Overlay = *overlayPath
			}
		}

		if meta != nil {
			match = source.AdjustPartMatch(match, *meta)
		}
		doc.Match = match
	}

	printResult(&doc)

	if match == nil {
		return exitNotFound
	}
	return exitFound
}

// buildImageSource 按参数构建工作图像源
func buildImageSource(screen bool, regionSpec, imagePath string) (source.ImageSource, error) {
	if !screen {
		return source.NewFileSource(imagePath), nil
	}
	if regionSpec == "" {
		return source.NewScreenSource(), nil
	}
	region, err := parseRegion(regionSpec)
	if err != nil {
		return nil, err
	}
	return source.NewScreenRegionSource(region), nil
}

// parseRegion 解析 x,y,宽,高 形式的采集区域
func parseRegion(spec string) (source.Region, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return source.Region{}, fmt.Errorf("采集区域格式应为 x,y,宽,高: %s", spec)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return source.Region{}, fmt.Errorf("采集区域数值无效: %s", p)
		}
		vals[i] = v
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		return source.Region{}, fmt.Errorf("采集区域宽高应为正数: %s", spec)
	}
	return source.Region{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

// captureFrame 采集一帧工作图像及坐标换算信息
func captureFrame(src source.ImageSource) (gocv.Mat, *source.CaptureMeta, error) {
	if scr, ok := src.(*source.ScreenSource); ok {
		mat, meta, err := scr.CaptureWithMeta()
		if err != nil {
			return gocv.Mat{}, nil, err
		}
		return mat, &meta, nil
	}
	mat, err := src.Capture()
	return mat, nil, err
}

// locateLoop 循环采集定位；watch 为 0 时只尝试一次
// 找到时返回定位结果与对应采集帧，调用方负责关闭采集帧。
func locateLoop(src source.ImageSource, method vision.MatchMethod, tmplPath string, pocket *tray.Pocket, watch time.Duration, opts []vision.Option) (*vision.PartMatch, gocv.Mat, *source.CaptureMeta, error) {
	deadline := time.Now().Add(watch)
	for {
		frame, meta, err := captureFrame(src)
		if err != nil {
			return nil, gocv.Mat{}, nil, fmt.Errorf("采集图像失败: %w", err)
		}

		match, err := locateFrame(frame, method, tmplPath, pocket, opts)
		if err != nil {
			frame.Close()
			return nil, gocv.Mat{}, nil, err
		}
		if match != nil {
			return match, frame, meta, nil
		}
		frame.Close()

		if watch <= 0 || time.Now().After(deadline) {
			return nil, gocv.Mat{}, nil, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// locateFrame 在单帧上定位，口袋模式下把搜索限制在口袋范围
func locateFrame(frame gocv.Mat, method vision.MatchMethod, tmplPath string, pocket *tray.Pocket, opts []vision.Option) (*vision.PartMatch, error) {
	if pocket != nil {
		full := source.Region{X: 0, Y: 0, Width: frame.Cols(), Height: frame.Rows()}
		return tray.LocateIn(frame, tmplPath, full, pocket, opts...)
	}
	return vision.FindPartWith(method, frame, tmplPath, opts...)
}

// printResult 将结果文档输出到标准输出
func printResult(doc *locateResult) {
	data, err := sonic.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] 序列化结果失败: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("partlocate v%s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("partlocate - 元件旋转定位工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  partlocate -image 工作图像 -template 模板图像 [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -image string               工作图像路径")
	fmt.Println("  -screen                     从屏幕采集工作图像 (帧采集卡画面)")
	fmt.Println("  -region string              屏幕采集区域 x,y,宽,高")
	fmt.Println("  -watch duration             循环采集直到找到元件或超时 (如 10s)")
	fmt.Println("  -pocket string              料盘口袋位置 rows.cols.row.col (如 2.3.1.2)")
	fmt.Println("  -template string            模板图像路径")
	fmt.Println("  -config string              配置文件路径")
	fmt.Println("  -method string              匹配方法 rtpl/tpl/sift (默认 rtpl)")
	fmt.Println("  -threshold float            候选得分下限 (默认 0.3)")
	fmt.Println("  -relative-threshold float   相对峰值比例 (默认 0.85)")
	fmt.Println("  -rotate-step float          粗搜索角度步长 (默认 22.5)")
	fmt.Println("  -angle-resolution float     角度细化精度 (默认 1.0)")
	fmt.Println("  -angle float                初始角度提示 (度)")
	fmt.Println("  -keypoint-hint              用 SIFT 特征估计初始角度")
	fmt.Println("  -overlay string             标注图像输出路径")
	fmt.Println("  -verbose                    输出搜索过程日志")
	fmt.Println("  -stats                      输出进程运行快照")
	fmt.Println("  -save                       保存生效配置到本地")
	fmt.Println("  -version                    显示版本信息")
	fmt.Println("  -help                       显示帮助信息")
	fmt.Println()
	fmt.Println("退出码:")
	fmt.Println("  0  找到元件")
	fmt.Println("  1  未找到元件")
	fmt.Println("  2  参数或输入无效")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 定位并输出 JSON 结果")
	fmt.Println("  partlocate -image board.png -template part.png")
	fmt.Println()
	fmt.Println("  # 已知大致角度时缩小搜索范围")
	fmt.Println("  partlocate -image board.png -template part.png -angle 45 -rotate-step 10")
	fmt.Println()
	fmt.Println("  # 生成标注图像")
	fmt.Println("  partlocate -image board.png -template part.png -overlay result.png")
	fmt.Println()
	fmt.Println("  # 从屏幕采集并等待元件出现")
	fmt.Println("  partlocate -screen -region 0,0,1280,720 -template part.png -watch 10s")
	fmt.Println()
	fmt.Println("  # 在 2x3 料盘的第 1 行第 2 列口袋内定位")
	fmt.Println("  partlocate -image tray.png -template part.png -pocket 2.3.1.2")
	fmt.Println()
	fmt.Printf("配置文件位置: %s\n", config.GetDefaultManager().GetConfigFile())
}
