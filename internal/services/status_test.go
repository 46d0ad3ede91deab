package services

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatusTrackerTransitions 测试阶段转换
func TestStatusTrackerTransitions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tracker := NewStatusTracker(logger)
	assert.Equal(t, StagePending, tracker.Current())

	require.NoError(t, tracker.Begin(StageReading))
	tracker.Finish(4)
	require.NoError(t, tracker.Begin(StageSplitting))
	tracker.Finish(10)

	// 不能回退
	assert.Error(t, tracker.Begin(StageReading))
	assert.Error(t, tracker.Begin(StageSplitting))
	assert.Error(t, tracker.Begin(StagePending))
	assert.Error(t, tracker.Begin(Stage("unknown")))

	// 允许跳过检索阶段
	require.NoError(t, tracker.Begin(StageStoring))
	tracker.Finish(10)
	require.NoError(t, tracker.Complete())
	assert.Equal(t, StageCompleted, tracker.Current())
	assert.Error(t, tracker.Begin(StageQuerying))

	records := tracker.Records()
	require.Len(t, records, 3)
	assert.Equal(t, StageReading, records[0].Stage)
	assert.Equal(t, 4, records[0].Count)
	assert.Equal(t, 10, records[2].Count)
}

// TestStatusTrackerFail 测试失败状态
func TestStatusTrackerFail(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tracker := NewStatusTracker(logger)

	require.NoError(t, tracker.Begin(StageReading))
	cause := errors.New("boom")
	tracker.Fail(cause)

	assert.Equal(t, StageFailed, tracker.Current())
	assert.Equal(t, cause, tracker.Err())
	assert.Equal(t, StageReading, tracker.FailedAt())
	assert.Error(t, tracker.Begin(StageSplitting))
	assert.Empty(t, tracker.Records())

	// 失败后Finish不产生记录
	tracker.Finish(3)
	assert.Empty(t, tracker.Records())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Pipeline failed", hook.LastEntry().Message)
	assert.Equal(t, StageReading, hook.LastEntry().Data["stage"])
}
