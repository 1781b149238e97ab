// Package logger 提供统一的日志工具
// 基于 zerolog，支持控制台与文件双路输出。
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// switchWriter 可热切换的输出目标
// 包初始化阶段派生的子日志器经由它跟随后续 Setup 的输出配置。
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	w := s.w
	s.mu.RUnlock()
	return w.Write(p)
}

func (s *switchWriter) swap(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

var (
	output = &switchWriter{w: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}}

	mu      sync.Mutex
	fileOut *os.File
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// ParseLevel 解析日志级别字符串
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup 配置全局日志
// level: 日志级别
// console: 是否以控制台格式输出到标准错误，标准输出留给业务结果
// filePath: 日志文件路径，空表示不写文件
// 控制台与文件都关闭时丢弃全部日志。
func Setup(level string, console bool, filePath string) error {
	mu.Lock()
	defer mu.Unlock()

	zerolog.SetGlobalLevel(ParseLevel(level))

	// 关闭旧文件
	if fileOut != nil {
		fileOut.Close()
		fileOut = nil
	}

	var writers []io.Writer
	if console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("无法打开日志文件: %w", err)
		}
		fileOut = f
		writers = append(writers, f)
	}

	switch len(writers) {
	case 0:
		output.swap(io.Discard)
	case 1:
		output.swap(writers[0])
	default:
		output.swap(zerolog.MultiLevelWriter(writers...))
	}

	return nil
}

// Module 返回带模块名字段的子日志器
func Module(name string) zerolog.Logger {
	return log.With().Str("module", name).Logger()
}

// Close 关闭日志文件，释放资源
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if fileOut != nil {
		err := fileOut.Close()
		fileOut = nil
		return err
	}
	return nil
}
