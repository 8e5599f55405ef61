package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fachebot/vesuvius-study/internal/classifier"
	"github.com/fachebot/vesuvius-study/internal/export"
	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/xuri/excelize/v2"
)

const (
	// MessagesSheet 明细表名
	MessagesSheet = "Messages"
	// TimestampLayout 明细表中的时间格式 (月/日/年 时:分)
	TimestampLayout = "01/02/2006 15:04"
	// ColumnPrefix 分类结果列名前缀
	ColumnPrefix = "llama_"
)

// Row 明细表中的一行
type Row struct {
	Channel   string
	User      string
	Timestamp string // 已格式化，无法解析时为空
	Content   string
}

// NewRows 由消息生成明细行，顺序与输入一致
func NewRows(msgs []export.Message) []Row {
	rows := make([]Row, len(msgs))
	for i, m := range msgs {
		user := m.Author.Name
		if user == "" {
			user = "Unknown"
		}
		var ts string
		if t, err := m.Time(); err == nil {
			ts = t.Format(TimestampLayout)
		}
		rows[i] = Row{
			Channel:   m.ChannelName,
			User:      user,
			Timestamp: ts,
			Content:   m.Content,
		}
	}
	return rows
}

// Column 一列分类结果
type Column struct {
	Task   string
	Values []string
}

// LabelColumn 把分类结果转为列，无效和失败的条目分别输出 "invalid" / "error"
func LabelColumn(result *classifier.Result) Column {
	return Column{Task: result.Task, Values: result.Values()}
}

// LabelCount 标签及其出现次数
type LabelCount struct {
	Label string
	Count int
}

// CountLabels 统计各标签出现次数，按次数降序，次数相同按标签升序
func CountLabels(values []string) []LabelCount {
	counter := make(map[string]int)
	for _, v := range values {
		counter[v]++
	}
	counts := make([]LabelCount, 0, len(counter))
	for label, n := range counter {
		counts = append(counts, LabelCount{Label: label, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Label < counts[j].Label
	})
	return counts
}

// CountsSheet 统计表名，如 "Emotion Counts"
func CountsSheet(task string) string {
	return fieldName(task) + " Counts"
}

func fieldName(task string) string {
	if task == "" {
		return task
	}
	return strings.ToUpper(task[:1]) + task[1:]
}

// WriteWorkbook 写出 xlsx：明细表 + 每个任务一张统计表
func WriteWorkbook(path string, rows []Row, columns []Column) error {
	for _, col := range columns {
		if len(col.Values) != len(rows) {
			return fmt.Errorf("任务 %s 的结果数 %d 与行数 %d 不一致", col.Task, len(col.Values), len(rows))
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", MessagesSheet); err != nil {
		return fmt.Errorf("重命名工作表失败: %w", err)
	}

	header := []interface{}{"channel", "user", "timestamp", "content"}
	for _, col := range columns {
		header = append(header, ColumnPrefix+col.Task)
	}
	if err := f.SetSheetRow(MessagesSheet, "A1", &header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}

	for i, row := range rows {
		values := []interface{}{row.Channel, row.User, row.Timestamp, row.Content}
		for _, col := range columns {
			values = append(values, col.Values[i])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(MessagesSheet, cell, &values); err != nil {
			return fmt.Errorf("写入第 %d 行失败: %w", i+1, err)
		}
	}

	for _, col := range columns {
		if err := writeCountsSheet(f, col); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存 xlsx 失败: %w", err)
	}

	logger.Infof("[Report] 结果已保存到 %s (%d 行，%d 个任务)", path, len(rows), len(columns))
	return nil
}

func writeCountsSheet(f *excelize.File, col Column) error {
	sheet := CountsSheet(col.Task)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("创建工作表 %s 失败: %w", sheet, err)
	}

	header := []interface{}{fieldName(col.Task), "Count"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, c := range CountLabels(col.Values) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{c.Label, c.Count}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// Summarize 输出任务结果统计日志
func Summarize(result *classifier.Result) classifier.Counts {
	counts := result.Counts()
	logger.Infof("[Report] %s: 状态 %s，重试 %d 轮，有效 %d 条，无效 %d 条，失败 %d 条",
		result.Task, result.Status, result.Retries, counts.Valid, counts.Invalid, counts.Error)
	for _, c := range CountLabels(result.Values()) {
		logger.Debugf("[Report] %s: %s = %d", result.Task, c.Label, c.Count)
	}
	return counts
}
