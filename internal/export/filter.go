package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fachebot/vesuvius-study/internal/logger"
)

// FilterStats 单个文件的过滤统计
type FilterStats struct {
	Total int
	Kept  int
}

// InRange 判断时间是否落在 [start, end] 区间内，零值表示该端不限
func InRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

// FilterFile 只保留时间戳落在日期区间内的消息，其余字段原样写出
// 时间戳丢弃 '+' 之后的时区部分再与日期比较；缺失或无法解析的时间戳直接丢弃
func FilterFile(inPath, outPath string, start, end time.Time) (FilterStats, error) {
	var stats FilterStats

	data, err := os.ReadFile(inPath)
	if err != nil {
		return stats, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return stats, fmt.Errorf("解析导出文件 %s 失败: %w", filepath.Base(inPath), err)
	}

	if raw, ok := doc["messages"]; ok {
		var messages []json.RawMessage
		if err := json.Unmarshal(raw, &messages); err != nil {
			return stats, fmt.Errorf("解析 messages 失败: %w", err)
		}
		stats.Total = len(messages)

		kept := make([]json.RawMessage, 0, len(messages))
		for _, m := range messages {
			var head struct {
				Timestamp *string `json:"timestamp"`
			}
			if err := json.Unmarshal(m, &head); err != nil || head.Timestamp == nil {
				continue
			}
			t, err := parseNaiveTimestamp(*head.Timestamp)
			if err != nil {
				continue
			}
			if InRange(t, start, end) {
				kept = append(kept, m)
			}
		}
		stats.Kept = len(kept)

		doc["messages"], err = json.Marshal(kept)
		if err != nil {
			return stats, err
		}
	}

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return stats, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return stats, err
	}
	return stats, os.WriteFile(outPath, out, 0644)
}

// FilteredName 过滤后文件名："<name>_filtered.json"
func FilteredName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_filtered.json"
}

// FilterDir 过滤目录下所有导出文件
func FilterDir(inDir, outDir string, start, end time.Time) error {
	paths, err := ListFiles(inDir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		outPath := filepath.Join(outDir, FilteredName(path))
		stats, err := FilterFile(path, outPath, start, end)
		if err != nil {
			return fmt.Errorf("过滤 %s 失败: %w", filepath.Base(path), err)
		}
		logger.Infof("[Filter] %s: 保留 %d/%d 条消息", filepath.Base(outPath), stats.Kept, stats.Total)
	}
	return nil
}

// MoveEmpty 把 messages 为空数组的导出文件移动到 dstDir，返回移动的文件名
func MoveEmpty(srcDir, dstDir string) ([]string, error) {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, err
	}

	paths, err := ListFiles(srcDir)
	if err != nil {
		return nil, err
	}

	var moved []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return moved, err
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			logger.Warnf("[Filter] 跳过无法解析的文件 %s: %v", filepath.Base(path), err)
			continue
		}
		raw, ok := doc["messages"]
		if !ok {
			continue
		}
		var messages []json.RawMessage
		if err := json.Unmarshal(raw, &messages); err != nil || len(messages) > 0 {
			continue
		}

		name := filepath.Base(path)
		if err := os.Rename(path, filepath.Join(dstDir, name)); err != nil {
			return moved, fmt.Errorf("移动文件 %s 失败: %w", name, err)
		}
		logger.Infof("[Filter] 已移动空文件 %s 到 %s", name, dstDir)
		moved = append(moved, name)
	}
	return moved, nil
}
