package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fachebot/vesuvius-study/internal/logger"
)

// LoadFile 读取单个导出文件
func LoadFile(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var e Export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("解析导出文件 %s 失败: %w", filepath.Base(path), err)
	}
	for i := range e.Messages {
		e.Messages[i].ChannelName = e.Channel.Name
	}
	return &e, nil
}

// WriteFile 以 4 空格缩进写出导出文件
func WriteFile(path string, e *Export) error {
	data, err := json.MarshalIndent(e, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ListFiles 列出目录下所有 .json 文件（按文件名排序）
func ListFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadDir 读取目录下所有导出文件，合并消息并按时间排序
func LoadDir(dir string) ([]Message, error) {
	paths, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}

	var all []Message
	for _, path := range paths {
		e, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, e.Messages...)
	}
	logger.Infof("[Loader] 从 %d 个文件中读取到 %d 条消息", len(paths), len(all))

	SortByTime(all)
	return all, nil
}

// SortByTime 按解析后的时间稳定排序，无法解析的时间戳保持原有相对顺序排在最后，并重新编号
func SortByTime(msgs []Message) {
	type keyed struct {
		msg Message
		at  int64
		ok  bool
	}
	keys := make([]keyed, len(msgs))
	for i, m := range msgs {
		t, err := m.Time()
		keys[i] = keyed{msg: m, ok: err == nil}
		if err == nil {
			keys[i].at = t.UnixNano()
		}
	}

	sort.SliceStable(keys, func(a, b int) bool {
		if keys[a].ok != keys[b].ok {
			return keys[a].ok
		}
		return keys[a].ok && keys[a].at < keys[b].at
	})

	for i := range keys {
		msgs[i] = keys[i].msg
		msgs[i].Index = i
	}
}

// DefaultTexts 选出类型为 Default 且内容非空的消息，作为话题模型的输入
func DefaultTexts(msgs []Message) []Message {
	var result []Message
	for _, m := range msgs {
		if m.Type == MessageTypeDefault && m.Content != "" {
			result = append(result, m)
		}
	}
	return result
}

// ClassifiableMessages 选出需要情绪分类的消息：内容非空且不是入群通知
func ClassifiableMessages(msgs []Message) []Message {
	var result []Message
	for _, m := range msgs {
		if m.Content == "" || strings.Contains(strings.ToLower(m.Content), "joined the server") {
			continue
		}
		result = append(result, m)
	}
	return result
}
