package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew 测试日志记录器创建
func TestNew(t *testing.T) {
	log, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.Format = "json"
	log, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

// TestNewInvalid 测试无效配置
func TestNewInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Format = "xml"
	_, err = New(cfg)
	assert.Error(t, err)
}

// TestFileOutput 日志同时写入文件
func TestFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.File = filepath.Join(t.TempDir(), "logs", "pipeline.log")

	log, err := New(cfg)
	require.NoError(t, err)
	log.WithField("component", "test").Info("written to file")

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written to file"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

// TestGlobalLogger 测试全局日志记录器
func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	log, err := New(DefaultConfig())
	require.NoError(t, err)

	SetLogger(log)
	assert.Same(t, log, GetLogger())

	SetLogger(nil)
	assert.Same(t, log, GetLogger())
}
