package classifier

import (
	"fmt"
	"regexp"
	"strings"
)

// Task 一个分类任务：提示词模板 + 从输出中提取标签的正则
type Task struct {
	Name     string
	Template string         // 含 {message} 占位符
	Pattern  *regexp.Regexp // 大小写不敏感，第一个捕获组为标签
}

// MessagePlaceholder 模板中消息内容的占位符
const MessagePlaceholder = "{message}"

// Render 渲染提示词
func (t Task) Render(text string) string {
	return strings.ReplaceAll(t.Template, MessagePlaceholder, text)
}

// Parse 从模型输出中提取标签，成功时返回小写标签
func (t Task) Parse(output string) (string, bool) {
	match := t.Pattern.FindStringSubmatch(output)
	if len(match) < 2 {
		return "", false
	}
	return strings.ToLower(match[1]), true
}

// NewTask 根据标签词表生成 "<Field>: <label>" 形式的匹配正则
func NewTask(name, field, template string, vocabulary []string) Task {
	quoted := make([]string, len(vocabulary))
	for i, v := range vocabulary {
		quoted[i] = regexp.QuoteMeta(v)
	}
	pattern := fmt.Sprintf(`(?i)%s:\s*(%s)`, regexp.QuoteMeta(field), strings.Join(quoted, "|"))
	return Task{
		Name:     name,
		Template: template,
		Pattern:  regexp.MustCompile(pattern),
	}
}

// Emotions 情绪标签词表
var Emotions = []string{
	"Gratitude", "Ingratitude", "Respect", "Disrespect", "Excitement", "Forgiveness", "Unforgiveness",
	"Arrogance", "Humility", "Eagerness", "Reluctance", "Helpfulness", "Frustration", "Confusion",
}

// Sentiments 情感倾向标签词表；提示词里的 None 不被接受，会被判为 invalid 并重试
var Sentiments = []string{"Positive", "Neutral", "Negative"}

const emotionPrompt = `
You are an assistant that analyzes Discord messages for emotion.
Reply with ONLY one of these emotions:
Emotion: [Gratitude, Ingratitude, Respect, Disrespect, Excitement, Forgiveness, Unforgiveness, Arrogance, Humility, Eagerness, Reluctance, Helpfulness, Frustration, Confusion]

Example:
Message: "Thanks for your help!"
Emotion: Gratitude

Now analyze this message:
Message: "{message}"
Emotion:
`

const sentimentPrompt = `
You are an assistant that analyzes Discord messages for sentiment.
Reply with ONLY one of the following:
Sentiment: [Positive, Neutral, Negative, None]

Example:
Message: "Thanks for your help!"
Sentiment: Positive

Now analyze this message:
Message: "{message}"
Sentiment:
`

var (
	EmotionTask   = NewTask("emotion", "Emotion", emotionPrompt, Emotions)
	SentimentTask = NewTask("sentiment", "Sentiment", sentimentPrompt, Sentiments)
)

// TaskByName 按名称查找内置任务
func TaskByName(name string) (Task, error) {
	switch name {
	case EmotionTask.Name:
		return EmotionTask, nil
	case SentimentTask.Name:
		return SentimentTask, nil
	default:
		return Task{}, fmt.Errorf("未知的分类任务 '%s'", name)
	}
}
