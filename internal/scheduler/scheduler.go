package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fachebot/vesuvius-study/internal/classifier"
	"github.com/fachebot/vesuvius-study/internal/config"
	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/fachebot/vesuvius-study/internal/model"
	"github.com/robfig/cron/v3"
)

// RunKindRetry 定时重试在 runs 表中的类型
const RunKindRetry = "retry"

// Scheduler 定时对数据库中残留的无效/失败分类结果重新调用模型
type Scheduler struct {
	cron        *cron.Cron
	driver      *classifier.Driver
	tasks       []classifier.Task
	retryErrors bool
	labelModel  *model.LabelModel
	runModel    *model.RunModel
	config      *config.Retry
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	runMu       sync.Mutex
}

// locUTC 定时任务使用 UTC
var locUTC = time.UTC

func NewScheduler(
	driver *classifier.Driver,
	tasks []classifier.Task,
	retryErrors bool,
	labelModel *model.LabelModel,
	runModel *model.RunModel,
	cfg *config.Retry,
) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithLocation(locUTC)),
		driver:      driver,
		tasks:       tasks,
		retryErrors: retryErrors,
		labelModel:  labelModel,
		runModel:    runModel,
		config:      cfg,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	_, err := s.cron.AddFunc(s.config.Cron, s.runScheduled)
	if err != nil {
		return fmt.Errorf("注册重试任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，残留重试任务: %s", s.config.Cron)

	// 启动时处理上次中断的运行
	go s.recoverRuns()

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) runScheduled() {
	if _, err := s.RunOnce(s.runContext()); err != nil {
		logger.Errorf("[Scheduler] 残留重试失败: %v", err)
	}
}

// recoverRuns 把上次进程中断时未完成的重试运行标记为失败，然后立即补跑一次
func (s *Scheduler) recoverRuns() {
	ctx := s.runContext()

	runs, err := s.runModel.GetIncompleteRuns(ctx)
	if err != nil {
		logger.Errorf("[Scheduler] 查询未完成运行失败: %v", err)
		return
	}
	if len(runs) == 0 {
		return
	}

	for _, run := range runs {
		// 其他子命令的运行可能仍在另一个进程中进行
		if run.Kind != RunKindRetry {
			continue
		}
		logger.Warnf("[Scheduler] 发现未完成运行: id=%s, kind=%s, 创建于 %s",
			run.ID, run.Kind, run.CreateTime.Format(time.RFC3339))
		if err := s.runModel.MarkFailed(ctx, run.ID, "进程中断"); err != nil {
			logger.Errorf("[Scheduler] 标记运行失败状态出错: %v", err)
		}
	}

	if ctx.Err() != nil {
		return
	}
	s.runScheduled()
}

// TaskReport 单个任务一次重试的结果
type TaskReport struct {
	Task      string
	Residuals int // 重试前的残留条目数
	Recovered int // 重试后得到有效标签的条目数
	Retries   int
}

// RunOnce 对每个任务执行一次残留重试并写回数据库；同一时间只允许一次运行
func (s *Scheduler) RunOnce(ctx context.Context) ([]TaskReport, error) {
	if !s.runMu.TryLock() {
		logger.Warnf("[Scheduler] 上一次重试尚未结束，跳过本次")
		return nil, nil
	}
	defer s.runMu.Unlock()

	run, err := s.runModel.Create(ctx, RunKindRetry)
	if err != nil {
		return nil, fmt.Errorf("创建运行记录失败: %w", err)
	}

	// 停止调度器后仍要写回已完成的重试结果
	saveCtx := context.WithoutCancel(ctx)

	var reports []TaskReport
	for _, task := range s.tasks {
		if err := ctx.Err(); err != nil {
			s.markFailed(saveCtx, run.ID, err)
			return reports, err
		}
		report, err := s.retryTask(ctx, saveCtx, task)
		if err != nil {
			s.markFailed(saveCtx, run.ID, err)
			return reports, err
		}
		reports = append(reports, report)
	}
	if err := ctx.Err(); err != nil {
		s.markFailed(saveCtx, run.ID, err)
		return reports, err
	}

	summary := summarize(reports)
	if err := s.runModel.MarkCompleted(saveCtx, run.ID, summary); err != nil {
		logger.Errorf("[Scheduler] 标记运行完成失败: %v", err)
	}
	logger.Infof("[Scheduler] 残留重试完成: %s", summary)
	return reports, nil
}

func (s *Scheduler) markFailed(ctx context.Context, runID string, cause error) {
	if err := s.runModel.MarkFailed(ctx, runID, cause.Error()); err != nil {
		logger.Errorf("[Scheduler] 标记运行失败状态出错: %v", err)
	}
}

func (s *Scheduler) retryTask(ctx, saveCtx context.Context, task classifier.Task) (TaskReport, error) {
	report := TaskReport{Task: task.Name}

	records, err := s.labelModel.GetResiduals(ctx, task.Name, s.retryErrors)
	if err != nil {
		return report, fmt.Errorf("查询 %s 残留条目失败: %w", task.Name, err)
	}
	report.Residuals = len(records)
	if len(records) == 0 {
		logger.Debugf("[Scheduler] %s: 没有残留条目", task.Name)
		return report, nil
	}

	items := make([]string, len(records))
	labels := make([]classifier.Label, len(records))
	for i, r := range records {
		items[i] = r.Content
		labels[i] = r.Label
	}

	result, err := s.driver.Resume(ctx, task, items, labels)
	if err != nil {
		return report, err
	}
	report.Retries = result.Retries

	for i, r := range records {
		if result.Labels[i].State == classifier.StateValid {
			report.Recovered++
		}
		r.Label = result.Labels[i]
	}
	if err := s.labelModel.UpdateLabels(saveCtx, records); err != nil {
		return report, fmt.Errorf("写回 %s 重试结果失败: %w", task.Name, err)
	}

	logger.Infof("[Scheduler] %s: 残留 %d 条，本次恢复 %d 条", task.Name, report.Residuals, report.Recovered)
	return report, nil
}

func summarize(reports []TaskReport) string {
	if len(reports) == 0 {
		return "无任务"
	}
	parts := make([]string, len(reports))
	for i, r := range reports {
		parts[i] = fmt.Sprintf("%s: %d/%d", r.Task, r.Recovered, r.Residuals)
	}
	return strings.Join(parts, ", ")
}
