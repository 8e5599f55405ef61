package chunker

import (
	"sort"
	"strings"
	"time"

	"github.com/fachebot/vesuvius-study/internal/export"
	"github.com/google/uuid"
)

// DefaultThreshold 相邻消息的默认最大时间间隔（约 16.6 分钟）
const DefaultThreshold = 1000 * time.Second

// Group 按时间相邻的一段消息，至少包含一条
type Group struct {
	Messages []export.Message
	Start    time.Time
	End      time.Time
}

// Document 由一个 Group 生成的检索文档，创建后不再修改
type Document struct {
	ID           string
	Text         string
	Authors      []string
	Start        time.Time
	End          time.Time
	MessageCount int
}

// Group 按时间间隔把有序消息切分为若干组：
// 与上一条有效消息的间隔不超过 threshold 时并入当前组，否则关闭当前组并开新组。
// 时间戳无法解析的消息直接跳过，且不更新上一条有效消息的时间。
func Group(msgs []export.Message, threshold time.Duration) []Group {
	if threshold < 0 {
		threshold = 0
	}

	var groups []Group
	var current []export.Message
	var start, prev time.Time
	hasPrev := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		groups = append(groups, Group{Messages: current, Start: start, End: prev})
		current = nil
	}

	for _, msg := range msgs {
		t, err := msg.Time()
		if err != nil {
			continue
		}

		if hasPrev && t.Sub(prev) > threshold {
			flush()
		}
		if len(current) == 0 {
			start = t
		}
		current = append(current, msg)
		prev = t
		hasPrev = true
	}
	flush()

	return groups
}

// SizeDistribution 统计每种组大小出现的次数，按组大小升序返回
func SizeDistribution(groups []Group) []SizeCount {
	counts := make(map[int]int)
	for _, g := range groups {
		counts[len(g.Messages)]++
	}

	result := make([]SizeCount, 0, len(counts))
	for size, n := range counts {
		result = append(result, SizeCount{Size: size, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Size < result[j].Size })
	return result
}

// SizeCount 组大小及其出现次数
type SizeCount struct {
	Size  int
	Count int
}

// Assemble 把一组消息渲染成文档，每行 "{timestamp} - {author}: {content}"
func Assemble(g Group) Document {
	lines := make([]string, len(g.Messages))
	seen := make(map[string]bool)
	authors := make([]string, 0)
	for i, msg := range g.Messages {
		author := msg.Author.DisplayName()
		if !seen[author] {
			seen[author] = true
			authors = append(authors, author)
		}
		lines[i] = msg.Timestamp + " - " + author + ": " + msg.Content
	}
	sort.Strings(authors)

	return Document{
		ID:           uuid.NewString(),
		Text:         strings.Join(lines, "\n"),
		Authors:      authors,
		Start:        g.Start,
		End:          g.End,
		MessageCount: len(g.Messages),
	}
}

// AssembleAll 为每个组生成文档，顺序与组一致
func AssembleAll(groups []Group) []Document {
	docs := make([]Document, len(groups))
	for i, g := range groups {
		docs[i] = Assemble(g)
	}
	return docs
}
