package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stage 流水线阶段
type Stage string

const (
	StagePending   Stage = "pending"   // 尚未开始
	StageReading   Stage = "reading"   // 读取源文件
	StageSplitting Stage = "splitting" // 分割片段
	StageStoring   Stage = "storing"   // 嵌入并写入集合
	StageQuerying  Stage = "querying"  // 执行检索
	StageCompleted Stage = "completed" // 已完成
	StageFailed    Stage = "failed"    // 失败
)

// stageOrder 阶段只能按此顺序前进
var stageOrder = map[Stage]int{
	StagePending:   0,
	StageReading:   1,
	StageSplitting: 2,
	StageStoring:   3,
	StageQuerying:  4,
	StageCompleted: 5,
}

// StageRecord 单个阶段的执行记录
type StageRecord struct {
	Stage    Stage         // 阶段
	Count    int           // 产出数量（页面、片段、写入数或结果数）
	Duration time.Duration // 耗时
}

// StatusTracker 流水线状态跟踪器
// 负责校验阶段转换并记录每个阶段的产出和耗时
type StatusTracker struct {
	mu      sync.Mutex
	current Stage
	failed  Stage // 失败时所处的阶段
	started time.Time
	records []StageRecord
	err     error
	logger  *logrus.Logger
}

// NewStatusTracker 创建状态跟踪器
func NewStatusTracker(logger *logrus.Logger) *StatusTracker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StatusTracker{
		current: StagePending,
		logger:  logger,
	}
}

// Begin 进入下一个阶段
func (t *StatusTracker) Begin(stage Stage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == StageFailed || t.current == StageCompleted {
		return fmt.Errorf("invalid state transition: pipeline already %s", t.current)
	}
	next, ok := stageOrder[stage]
	if !ok || stage == StagePending || next <= stageOrder[t.current] {
		return fmt.Errorf("invalid state transition: %s -> %s", t.current, stage)
	}

	t.current = stage
	t.started = time.Now()
	t.logger.WithField("stage", stage).Debug("Pipeline stage started")
	return nil
}

// Finish 记录当前阶段的产出
func (t *StatusTracker) Finish(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == StagePending || t.current == StageFailed || t.current == StageCompleted {
		return
	}
	rec := StageRecord{
		Stage:    t.current,
		Count:    count,
		Duration: time.Since(t.started),
	}
	t.records = append(t.records, rec)

	t.logger.WithFields(logrus.Fields{
		"stage":    rec.Stage,
		"count":    rec.Count,
		"duration": rec.Duration.String(),
	}).Debug("Pipeline stage finished")
}

// Complete 标记流水线完成
func (t *StatusTracker) Complete() error {
	return t.Begin(StageCompleted)
}

// Fail 标记流水线失败
func (t *StatusTracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"stage": t.current,
		"error": err,
	}).Error("Pipeline failed")

	t.failed = t.current
	t.current = StageFailed
	t.err = err
}

// Current 返回当前阶段
func (t *StatusTracker) Current() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// FailedAt 返回失败时所处的阶段，未失败时为空
func (t *StatusTracker) FailedAt() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Err 返回失败原因
func (t *StatusTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Records 返回已完成阶段的记录副本
func (t *StatusTracker) Records() []StageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageRecord, len(t.records))
	copy(out, t.records)
	return out
}
