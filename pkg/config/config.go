package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// LocateConfig 定位配置
// 与 vision.Options 对应的持久化形态，核心包只消费内存中的选项值。
type LocateConfig struct {
	// TemplateName 默认模板图像路径，流水线阶段未配置模板结果时使用
	TemplateName string `json:"template_name"`
	// ScoreThreshold 相关得分下限
	ScoreThreshold float64 `json:"score_threshold"`
	// RelativeThreshold 相对峰值比例下限
	RelativeThreshold float64 `json:"relative_threshold"`
	// RotateStep 粗搜索角度步长（度）
	RotateStep float64 `json:"rotate_step"`
	// AngleResolution 角度细化终止精度（度）
	AngleResolution float64 `json:"angle_resolution"`
	// Verbose 是否输出搜索过程日志
	Verbose bool `json:"verbose"`
	// LogLevel 日志级别: debug/info/warn/error
	LogLevel string `json:"log_level"`
	// LogFile 日志文件路径，为空时只输出到控制台
	LogFile string `json:"log_file"`
}

// DefaultLocateConfig 默认定位配置
func DefaultLocateConfig() *LocateConfig {
	return &LocateConfig{
		ScoreThreshold:    0.3,
		RelativeThreshold: 0.85,
		RotateStep:        22.5,
		AngleResolution:   1.0,
		Verbose:           false,
		LogLevel:          "info",
	}
}

// Validate 校验配置取值
func (c *LocateConfig) Validate() error {
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold 应在 [0,1] 内, 实际为 %v", c.ScoreThreshold)
	}
	if c.RelativeThreshold < 0 || c.RelativeThreshold > 1 {
		return fmt.Errorf("relative_threshold 应在 [0,1] 内, 实际为 %v", c.RelativeThreshold)
	}
	if c.RotateStep <= 0 {
		return fmt.Errorf("rotate_step 应大于 0, 实际为 %v", c.RotateStep)
	}
	if c.AngleResolution <= 0 {
		return fmt.Errorf("angle_resolution 应大于 0, 实际为 %v", c.AngleResolution)
	}
	if c.RotateStep < c.AngleResolution {
		return fmt.Errorf("rotate_step (%v) 不应小于 angle_resolution (%v)", c.RotateStep, c.AngleResolution)
	}
	return nil
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	configDir := filepath.Join(homeDir, ".partlocate")
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// ensureDir 确保配置目录存在
func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.configDir, 0755)
}

// Load 加载配置
// 文件不存在时返回默认配置；解析失败或校验失败时返回默认配置与错误。
func (m *Manager) Load() (*LocateConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultLocateConfig(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultLocateConfig(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultLocateConfig()
	if err := sonic.Unmarshal(data, config); err != nil {
		return DefaultLocateConfig(), fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return DefaultLocateConfig(), fmt.Errorf("配置无效: %w", err)
	}

	return config, nil
}

// LoadFile 从指定文件加载配置
func LoadFile(path string) (*LocateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultLocateConfig()
	if err := sonic.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	return config, nil
}

// Save 保存配置
func (m *Manager) Save(config *LocateConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := sonic.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Clear 清除配置
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// 全局配置管理器
var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*LocateConfig, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(config *LocateConfig) error {
	return defaultManager.Save(config)
}

// Clear 使用默认管理器清除配置
func Clear() error {
	return defaultManager.Clear()
}
