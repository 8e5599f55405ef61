package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fachebot/vesuvius-study/internal/chunker"
	"github.com/fachebot/vesuvius-study/internal/classifier"
	"github.com/fachebot/vesuvius-study/internal/export"
	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/fachebot/vesuvius-study/internal/model"
	"github.com/fachebot/vesuvius-study/internal/report"
	"github.com/fachebot/vesuvius-study/internal/topic"
)

// ClassifyResult 一次分类运行的全部结果
type ClassifyResult struct {
	Rows    []report.Row
	Results []*classifier.Result
}

// Columns 每个任务一列
func (r *ClassifyResult) Columns() []report.Column {
	columns := make([]report.Column, len(r.Results))
	for i, result := range r.Results {
		columns[i] = report.LabelColumn(result)
	}
	return columns
}

// Classify 对可分类消息逐任务运行分类驱动，结果写入 labels 表
// 单个任务未全部成功不视为错误，残留条目留给定时重试
// ctx 被取消后尚未处理的条目保持未分类并照常保存，返回的结果始终包含已完成的部分
func Classify(ctx context.Context, driver *classifier.Driver, tasks []classifier.Task, msgs []export.Message, labelModel *model.LabelModel) (*ClassifyResult, error) {
	msgs = export.ClassifiableMessages(msgs)
	logger.Infof("[Pipeline] 待分类消息 %d 条", len(msgs))

	items := make([]string, len(msgs))
	labelItems := make([]model.LabelItem, len(msgs))
	for i, m := range msgs {
		items[i] = m.Content
		labelItems[i] = model.LabelItem{
			MessageID: messageKey(m),
			Channel:   m.ChannelName,
			Content:   m.Content,
		}
	}

	// 保存结果不受取消影响
	saveCtx := context.WithoutCancel(ctx)

	var errs []error
	out := &ClassifyResult{Rows: report.NewRows(msgs)}
	for _, task := range tasks {
		result := driver.Run(ctx, task, items)
		report.Summarize(result)
		out.Results = append(out.Results, result)

		if err := labelModel.SaveResult(saveCtx, task.Name, labelItems, result.Labels); err != nil {
			logger.Errorf("[Pipeline] 保存 %s 分类结果失败: %v", task.Name, err)
			errs = append(errs, fmt.Errorf("保存 %s 分类结果失败: %w", task.Name, err))
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Warnf("[Pipeline] 分类被中断，已保存部分结果")
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// messageKey 消息在 labels 表中的键；导出文件缺少 id 时用频道和位置代替
func messageKey(m export.Message) string {
	if m.ID != "" {
		return m.ID
	}
	return m.ChannelName + "#" + strconv.Itoa(m.Index)
}

// BuildDocuments 把消息按时间间隔分组并生成文档，同时输出组大小分布
func BuildDocuments(msgs []export.Message, threshold time.Duration) []chunker.Document {
	groups := chunker.Group(msgs, threshold)
	logger.Infof("[Pipeline] %d 条消息分为 %d 组 (阈值 %s)", len(msgs), len(groups), threshold)
	for _, sc := range chunker.SizeDistribution(groups) {
		logger.Infof("[Pipeline] 组大小 %d: %d 组", sc.Size, sc.Count)
	}
	return chunker.AssembleAll(groups)
}

// Index 重建文档表，旧文档在同一事务中被替换
func Index(ctx context.Context, docs []chunker.Document, documentModel *model.DocumentModel) error {
	deleted, err := documentModel.Replace(ctx, docs)
	if err != nil {
		return fmt.Errorf("重建文档表失败: %w", err)
	}
	if deleted > 0 {
		logger.Infof("[Pipeline] 已删除旧文档 %d 篇", deleted)
	}
	logger.Infof("[Pipeline] 已写入文档 %d 篇", len(docs))
	return nil
}

// Topics 训练 LDA 模型并把每条普通消息归入主话题
func Topics(msgs []export.Message, opts topic.Options, topWords int) (*topic.TopicIndex, error) {
	selected := export.DefaultTexts(msgs)
	texts := make([]string, len(selected))
	for i, m := range selected {
		texts[i] = m.Content
	}
	logger.Infof("[Pipeline] 收集到 %d 条普通消息", len(texts))

	lda, err := topic.Train(texts, opts)
	if err != nil {
		return nil, err
	}
	for i, words := range lda.TopWords(topWords) {
		logger.Infof("[Topic] Topic %d: %s", i, topic.FormatTopWords(words))
	}

	assignments, err := topic.Assign(lda, texts)
	if err != nil {
		return nil, err
	}
	return topic.GroupByTopic(assignments), nil
}
