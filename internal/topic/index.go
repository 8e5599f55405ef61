package topic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/samber/mo"
)

// Assignment 一条文本及其主话题
type Assignment struct {
	Text  string
	Topic mo.Option[int]
}

// Assign 为每条文本选取权重最高的话题；推断结果为空时话题为 None
func Assign(model Model, texts []string) ([]Assignment, error) {
	assignments := make([]Assignment, len(texts))
	for i, text := range texts {
		weights, err := model.Infer(text)
		if err != nil {
			return nil, fmt.Errorf("第 %d 条文本: %w", i, err)
		}
		assignments[i] = Assignment{Text: text, Topic: dominant(weights)}
	}
	return assignments, nil
}

func dominant(weights []Weight) mo.Option[int] {
	if len(weights) == 0 {
		return mo.None[int]()
	}
	best := weights[0]
	for _, w := range weights[1:] {
		if w.Value > best.Value {
			best = w
		}
	}
	return mo.Some(best.Topic)
}

// TopicIndex 按话题编号升序组织的文本分组
type TopicIndex struct {
	Topics []int
	Items  map[int][]string
}

// GroupByTopic 按话题分组，丢弃没有话题的文本，组内保持输入顺序
func GroupByTopic(assignments []Assignment) *TopicIndex {
	index := &TopicIndex{Items: make(map[int][]string)}
	for _, a := range assignments {
		topic, ok := a.Topic.Get()
		if !ok {
			continue
		}
		if _, exists := index.Items[topic]; !exists {
			index.Topics = append(index.Topics, topic)
		}
		index.Items[topic] = append(index.Items[topic], a.Text)
	}
	sort.Ints(index.Topics)
	return index
}

// Len 话题个数
func (idx *TopicIndex) Len() int {
	return len(idx.Topics)
}

// MarshalJSON 输出以话题编号为键的对象，键按数值升序排列
func (idx *TopicIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, topic := range idx.Topics {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(strconv.Itoa(topic))
		buf.Write(key)
		buf.WriteByte(':')

		items, err := json.Marshal(idx.Items[topic])
		if err != nil {
			return nil, err
		}
		buf.Write(items)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WriteJSON 以 4 空格缩进写入文件
func (idx *TopicIndex) WriteJSON(path string) error {
	data, err := json.MarshalIndent(idx, "", "    ")
	if err != nil {
		return fmt.Errorf("序列化话题分组失败: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入话题分组失败: %w", err)
	}
	logger.Infof("[Topic] 话题分组已保存到 %s (%d 个话题)", path, idx.Len())
	return nil
}
