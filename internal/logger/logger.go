package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别：trace, debug, info, warn, error
	Format     string // 输出格式：json 或 text
	File       string // 日志文件路径，为空时只输出到标准输出
	MaxSize    int    // 单个日志文件最大尺寸(MB)
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 旧日志文件保留天数
	Compress   bool   // 是否压缩旧日志文件
}

// DefaultConfig 返回默认日志配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

var (
	mu     sync.RWMutex
	global = logrus.StandardLogger()
)

// New 根据配置创建日志记录器
func New(cfg Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	log := logrus.New()
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	log.SetOutput(out)

	return log, nil
}

// SetLogger 替换全局日志记录器
func SetLogger(l *logrus.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l != nil {
		global = l
	}
}

// GetLogger 返回全局日志记录器
func GetLogger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}
