package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fachebot/vesuvius-study/internal/classifier"
	"github.com/fachebot/vesuvius-study/internal/config"
	"github.com/fachebot/vesuvius-study/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedGenerator 内容包含 "broken" 时返回 Frustration，包含 "down" 时调用失败，否则输出无法匹配
type fixedGenerator struct{}

func (fixedGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	switch {
	case strings.Contains(prompt, "broken"):
		return "Emotion: Frustration", nil
	case strings.Contains(prompt, "down"):
		return "", errors.New("server down")
	default:
		return "no idea", nil
	}
}

type fixture struct {
	labels *model.LabelModel
	runs   *model.RunModel
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := model.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return fixture{labels: model.NewLabelModel(store), runs: model.NewRunModel(store)}
}

func seedResiduals(t *testing.T, f fixture) {
	t.Helper()
	items := []model.LabelItem{
		{MessageID: "1", Content: "Thanks!"},
		{MessageID: "2", Content: "Why is this broken?"},
		{MessageID: "3", Content: "hmm"},
		{MessageID: "4", Content: "is the server down? broken"},
	}
	labels := []classifier.Label{
		{State: classifier.StateValid, Value: "gratitude", Attempts: 1},
		{State: classifier.StateInvalid, Attempts: 3},
		{State: classifier.StateInvalid, Attempts: 3},
		{State: classifier.StateError, Attempts: 1, Err: "timeout"},
	}
	require.NoError(t, f.labels.SaveResult(context.Background(), "emotion", items, labels))
}

func newTestScheduler(f fixture, retryErrors bool) *Scheduler {
	driver := classifier.NewDriver(fixedGenerator{}, classifier.Options{MaxRetries: 2, RetryErrors: retryErrors})
	tasks := []classifier.Task{
		classifier.NewTask("emotion", "Emotion", classifier.MessagePlaceholder, classifier.Emotions),
	}
	return NewScheduler(driver, tasks, retryErrors, f.labels, f.runs, &config.Retry{Cron: "0 3 * * *", MaxRetries: 2})
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedResiduals(t, f)

	s := newTestScheduler(f, false)
	reports, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, TaskReport{Task: "emotion", Residuals: 2, Recovered: 1, Retries: 2}, reports[0])

	all, err := f.labels.GetByTask(ctx, "emotion")
	require.NoError(t, err)
	assert.Equal(t, "frustration", all[1].Label.Value)
	assert.Equal(t, 4, all[1].Label.Attempts)
	assert.Equal(t, classifier.StateInvalid, all[2].Label.State)
	assert.Equal(t, 5, all[2].Label.Attempts)
	// 未开启 RetryErrors 时失败条目保持不变
	assert.Equal(t, classifier.StateError, all[3].Label.State)
	assert.Equal(t, 1, all[3].Label.Attempts)

	incomplete, err := f.runs.GetIncompleteRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func TestRunOnce_RetryErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedResiduals(t, f)

	s := newTestScheduler(f, true)
	reports, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, reports[0].Residuals)
	assert.Equal(t, 2, reports[0].Recovered)

	residuals, err := f.labels.GetResiduals(ctx, "emotion", true)
	require.NoError(t, err)
	require.Len(t, residuals, 1)
	assert.Equal(t, "3", residuals[0].MessageID)
}

func TestRunOnce_NoResiduals(t *testing.T) {
	f := newFixture(t)
	s := newTestScheduler(f, false)

	reports, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TaskReport{{Task: "emotion"}}, reports)
}

func TestRecover_MarksIncompleteRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedResiduals(t, f)

	stale, err := f.runs.Create(ctx, RunKindRetry)
	require.NoError(t, err)
	classifying, err := f.runs.Create(ctx, "classify")
	require.NoError(t, err)

	s := newTestScheduler(f, false)
	s.recoverRuns()

	got, err := f.runs.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "进程中断", got.ErrorMessage)

	// 其他进程中的分类运行不受影响
	got, err = f.runs.Get(ctx, classifying.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusInProgress, got.Status)

	// 恢复后立即补跑一次
	residuals, err := f.labels.GetResiduals(ctx, "emotion", false)
	require.NoError(t, err)
	assert.Len(t, residuals, 1)
}

type generatorFunc func(prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(prompt)
}

func TestRunOnce_CancelledWritesBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	seedResiduals(t, f)

	gen := generatorFunc(func(prompt string) (string, error) {
		if strings.Contains(prompt, "broken") {
			return "Emotion: Frustration", nil
		}
		// 重试进行中调度器被停止
		cancel()
		return "", context.Canceled
	})
	driver := classifier.NewDriver(gen, classifier.Options{Workers: 1, MaxRetries: 2})
	tasks := []classifier.Task{classifier.EmotionTask}
	s := NewScheduler(driver, tasks, false, f.labels, f.runs, &config.Retry{Cron: "0 3 * * *", MaxRetries: 2})

	reports, err := s.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Recovered)

	all, err := f.labels.GetByTask(context.Background(), "emotion")
	require.NoError(t, err)
	assert.Equal(t, "frustration", all[1].Label.Value)
	// 被中断的条目保持原状
	assert.Equal(t, classifier.Label{State: classifier.StateInvalid, Attempts: 3}, all[2].Label)

	incomplete, err := f.runs.GetIncompleteRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	s := newTestScheduler(f, false)
	require.NoError(t, s.Start())
	s.Stop()

	bad := newTestScheduler(f, false)
	bad.config = &config.Retry{Cron: "not a cron"}
	assert.Error(t, bad.Start())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "无任务", summarize(nil))
	assert.Equal(t, "emotion: 1/2, sentiment: 0/0", summarize([]TaskReport{
		{Task: "emotion", Residuals: 2, Recovered: 1},
		{Task: "sentiment"},
	}))
}
