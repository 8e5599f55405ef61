package export

import (
	"fmt"
	"strings"
	"time"
)

// 导出工具常见的 ISO-8601 变体；小数秒位数不定
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp 解析 ISO-8601 风格的时间戳，无时区信息时按 UTC 处理
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("时间戳为空")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间戳 %q", s)
}

// parseNaiveTimestamp 丢弃 '+' 之后的时区部分后按本地时刻解析，与日期区间比较时使用
func parseNaiveTimestamp(s string) (time.Time, error) {
	if i := strings.Index(s, "+"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	return ParseTimestamp(s)
}
