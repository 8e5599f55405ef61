package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/gammazero/workerpool"
)

// Generator 文本生成能力（便于测试注入 mock）
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Options 分类驱动的运行参数
type Options struct {
	Workers     int           // 每轮并发调用数
	MaxRetries  int           // 重试轮数上限
	RetryErrors bool          // 调用失败的条目是否参与重试
	MaxTokens   int           // 单次生成的最大 token 数
	CallTimeout time.Duration // 单次调用超时，0 表示不限制
}

type Driver struct {
	generator Generator
	opts      Options
}

func NewDriver(generator Generator, opts Options) *Driver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Driver{
		generator: generator,
		opts:      opts,
	}
}

// Run 对所有条目执行分类：第一轮逐条调用一次，之后对无效条目按轮重试直到全部有效或达到上限
// 单条失败只影响该条结果，不会中断整批
func (d *Driver) Run(ctx context.Context, task Task, items []string) *Result {
	result := &Result{
		Task:   task.Name,
		Labels: make([]Label, len(items)),
	}

	logger.Infof("[Classifier] %s: 开始分类 %d 条消息 (workers=%d)", task.Name, len(items), d.opts.Workers)
	all := make([]int, len(items))
	for i := range all {
		all[i] = i
	}
	d.runPass(ctx, task, items, result.Labels, all)

	counts := result.Counts()
	logger.Infof("[Classifier] %s: 第一轮完成，有效 %d 条，无效 %d 条，失败 %d 条",
		task.Name, counts.Valid, counts.Invalid, counts.Error)

	d.retryLoop(ctx, task, items, result)
	return result
}

// Resume 从已有结果继续重试（如从数据库恢复的残留条目），labels 与 items 按下标对应
func (d *Driver) Resume(ctx context.Context, task Task, items []string, labels []Label) (*Result, error) {
	if len(items) != len(labels) {
		return nil, fmt.Errorf("条目数 %d 与结果数 %d 不一致", len(items), len(labels))
	}
	result := &Result{
		Task:   task.Name,
		Labels: append([]Label(nil), labels...),
	}
	d.retryLoop(ctx, task, items, result)
	return result, nil
}

// RetryPass 额外执行一轮重试，返回本轮尝试的条目数；没有可重试条目时结果保持不变
func (d *Driver) RetryPass(ctx context.Context, task Task, items []string, result *Result) int {
	indices := d.retryIndices(result.Labels)
	if len(indices) == 0 {
		return 0
	}
	d.runPass(ctx, task, items, result.Labels, indices)
	result.Retries++
	result.Status = d.status(result.Labels)
	return len(indices)
}

func (d *Driver) retryLoop(ctx context.Context, task Task, items []string, result *Result) {
	for attempt := 0; attempt < d.opts.MaxRetries; attempt++ {
		indices := d.retryIndices(result.Labels)
		if len(indices) == 0 {
			break
		}
		if ctx.Err() != nil {
			logger.Warnf("[Classifier] %s: 任务已取消，停止重试", task.Name)
			break
		}

		logger.Infof("[Classifier] %s: 第 %d/%d 轮重试，剩余 %d 条待重试",
			task.Name, attempt+1, d.opts.MaxRetries, len(indices))
		d.runPass(ctx, task, items, result.Labels, indices)
		result.Retries++
	}

	result.Status = d.status(result.Labels)
	counts := result.Counts()
	if result.Status == StatusCompleted {
		logger.Infof("[Classifier] %s: 全部条目处理完成，共重试 %d 轮 (有效 %d 条，失败 %d 条)",
			task.Name, result.Retries, counts.Valid, counts.Error)
	} else {
		logger.Warnf("[Classifier] %s: 已达到最大重试次数 %d，仍有 %d 条无效，%d 条失败",
			task.Name, d.opts.MaxRetries, counts.Invalid, counts.Error)
	}
}

// retryable 无效条目总是可重试；调用失败的条目仅在 RetryErrors 开启时重试
func (d *Driver) retryable(l Label) bool {
	switch l.State {
	case StateInvalid, StateUnset:
		return true
	case StateError:
		return d.opts.RetryErrors
	default:
		return false
	}
}

func (d *Driver) retryIndices(labels []Label) []int {
	var indices []int
	for i, l := range labels {
		if d.retryable(l) {
			indices = append(indices, i)
		}
	}
	return indices
}

func (d *Driver) status(labels []Label) Status {
	for _, l := range labels {
		if d.retryable(l) {
			return StatusExhaustedWithResiduals
		}
	}
	return StatusCompleted
}

// runPass 在 worker pool 中处理一轮条目，每个下标只由一个 worker 写入，整轮结束后才返回
func (d *Driver) runPass(ctx context.Context, task Task, items []string, labels []Label, indices []int) {
	wp := workerpool.New(d.opts.Workers)
	for _, idx := range indices {
		i := idx
		wp.Submit(func() {
			labels[i] = d.attempt(ctx, task, i, items[i], labels[i])
		})
	}
	wp.StopWait()
}

// attempt 调用一次模型并更新该条目的结果
// 匹配成功 -> valid；输出不匹配 -> invalid；调用失败时未分类或失败的条目记为 error，无效条目保持 invalid
// 整批被取消时条目保持原状，不计入调用次数，留给下一次重试
func (d *Driver) attempt(ctx context.Context, task Task, index int, text string, prev Label) Label {
	if ctx.Err() != nil {
		return prev
	}

	next := prev
	next.Attempts++

	output, err := d.invoke(ctx, task.Render(text))
	if err != nil {
		if ctx.Err() != nil {
			logger.Debugf("[Classifier] %s: 第 %d 条调用被取消", task.Name, index)
			return prev
		}
		logger.Debugf("[Classifier] %s: 第 %d 条调用失败: %v", task.Name, index, err)
		if prev.State != StateInvalid {
			next.State = StateError
		}
		next.Value = ""
		next.Err = err.Error()
		return next
	}

	label, ok := task.Parse(output)
	if !ok {
		logger.Debugf("[Classifier] %s: 第 %d 条输出无法匹配: %q", task.Name, index, output)
		next.State = StateInvalid
		next.Value = ""
		next.Err = ""
		return next
	}

	next.State = StateValid
	next.Value = label
	next.Err = ""
	return next
}

// invoke 调用模型；超时或取消时立即返回错误，不等待 generator 返回
func (d *Driver) invoke(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()
	}

	type outcome struct {
		output string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("调用模型时发生 panic: %v", r)}
			}
		}()
		output, err := d.generator.Generate(ctx, prompt, d.opts.MaxTokens)
		ch <- outcome{output: output, err: err}
	}()

	select {
	case o := <-ch:
		return o.output, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("调用模型超时或已取消: %w", ctx.Err())
	}
}
