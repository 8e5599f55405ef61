package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout 配置文件中日期的格式
const DateLayout = "2006-01-02"

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type LLM struct {
	BaseURL        string  `yaml:"BaseURL"` // 兼容 OpenAI API 的端点，如本地部署的 Llama-3 服务
	APIKey         string  `yaml:"APIKey"`
	Model          string  `yaml:"Model"`          // 如 meta-llama/Meta-Llama-3-8B-Instruct
	MaxTokens      int     `yaml:"MaxTokens"`      // 模型上下文窗口大小
	Temperature    float32 `yaml:"Temperature"`    // 采样温度
	TimeoutSeconds int     `yaml:"TimeoutSeconds"` // 单次调用超时（秒），超时视为调用失败
}

type Paths struct {
	InputDir    string `yaml:"InputDir"`    // 原始导出 JSON 目录
	FilteredDir string `yaml:"FilteredDir"` // 按日期过滤后的 JSON 目录
	EmptyDir    string `yaml:"EmptyDir"`    // 空导出文件的移动目标目录
	OutputDir   string `yaml:"OutputDir"`   // 结果输出目录
	Database    string `yaml:"Database"`    // SQLite 数据库文件
}

type Filter struct {
	StartDate string `yaml:"StartDate"` // 如 "2023-03-15"
	EndDate   string `yaml:"EndDate"`   // 如 "2024-02-16"
}

type Grouping struct {
	ThresholdSeconds int `yaml:"ThresholdSeconds"` // 相邻消息时间间隔阈值，默认 1000 秒，0 表示只合并同一时刻的消息
}

type Classify struct {
	Workers      int      `yaml:"Workers"`      // 并发调用模型的 worker 数量
	MaxRetries   int      `yaml:"MaxRetries"`   // 重试轮数上限，默认 300，0 表示不重试
	RetryErrors  bool     `yaml:"RetryErrors"`  // 调用失败（error）的条目是否参与重试
	MaxNewTokens int      `yaml:"MaxNewTokens"` // 单次生成的最大 token 数
	Tasks        []string `yaml:"Tasks"`        // "emotion" / "sentiment"
	Output       string   `yaml:"Output"`       // xlsx 输出文件名
}

type Retry struct {
	Cron       string `yaml:"Cron"`       // cron 表达式，如 "0 3 * * *"
	MaxRetries int    `yaml:"MaxRetries"` // 每次定时任务的重试轮数
}

type Topics struct {
	NumTopics       int      `yaml:"NumTopics"`
	Iterations      int      `yaml:"Iterations"`
	CustomStopwords []string `yaml:"CustomStopwords"`
	Output          string   `yaml:"Output"` // 话题分组 JSON 输出文件名
}

type Search struct {
	TopK int `yaml:"TopK"`
}

type Discord struct {
	Token string `yaml:"Token"`
}

type Log struct {
	Level string `yaml:"Level"` // debug / info / warn / error
	Dir   string `yaml:"Dir"`
}

type Config struct {
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	LLM        LLM        `yaml:"LLM"`
	Paths      Paths      `yaml:"Paths"`
	Filter     Filter     `yaml:"Filter"`
	Grouping   Grouping   `yaml:"Grouping"`
	Classify   Classify   `yaml:"Classify"`
	Retry      Retry      `yaml:"Retry"`
	Topics     Topics     `yaml:"Topics"`
	Search     Search     `yaml:"Search"`
	Discord    Discord    `yaml:"Discord"`
	Log        Log        `yaml:"Log"`
}

// KnownTasks 支持的分类任务
var KnownTasks = map[string]bool{
	"emotion":   true,
	"sentiment": true,
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析 YAML 配置，补齐默认值并验证
func Parse(data []byte) (*Config, error) {
	// 0 是有效取值的字段在解析前设置默认值，配置文件中显式写 0 时保留 0
	c := Config{
		Grouping: Grouping{ThresholdSeconds: 1000},
		Classify: Classify{MaxRetries: 300},
		Retry:    Retry{MaxRetries: 3},
	}
	err := yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}

	// 环境变量兜底，避免把密钥写进配置文件
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
	if c.Discord.Token == "" {
		c.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}

	c.applyDefaults()

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Paths.InputDir == "" {
		c.Paths.InputDir = "data/raw"
	}
	if c.Paths.FilteredDir == "" {
		c.Paths.FilteredDir = "data/filtered"
	}
	if c.Paths.EmptyDir == "" {
		c.Paths.EmptyDir = "data/empty_files"
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = "output"
	}
	if c.Paths.Database == "" {
		c.Paths.Database = "data/sqlite.db"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 8192
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 120
	}
	if c.Classify.Workers == 0 {
		c.Classify.Workers = 1
	}
	if c.Classify.MaxNewTokens == 0 {
		c.Classify.MaxNewTokens = 50
	}
	if len(c.Classify.Tasks) == 0 {
		c.Classify.Tasks = []string{"emotion", "sentiment"}
	}
	if c.Classify.Output == "" {
		c.Classify.Output = "LLaMA_emotion_sentiment_ALL.xlsx"
	}
	if c.Retry.Cron == "" {
		c.Retry.Cron = "0 3 * * *"
	}
	if c.Topics.NumTopics == 0 {
		c.Topics.NumTopics = 10
	}
	if c.Topics.Iterations == 0 {
		c.Topics.Iterations = 50
	}
	if c.Topics.CustomStopwords == nil {
		c.Topics.CustomStopwords = []string{"scroll", "scrolls", "papyrus", "image", "ink"}
	}
	if c.Topics.Output == "" {
		c.Topics.Output = "discord_chat_topics.json"
	}
	if c.Search.TopK == 0 {
		c.Search.TopK = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 Grouping
	if c.Grouping.ThresholdSeconds < 0 {
		return fmt.Errorf("Grouping.ThresholdSeconds 必须 >= 0")
	}

	// 验证 Filter
	start, end, err := c.Filter.Range()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return fmt.Errorf("Filter.StartDate 不能晚于 Filter.EndDate")
	}

	// 验证 Classify
	if c.Classify.Workers < 1 {
		return fmt.Errorf("Classify.Workers 必须大于 0")
	}
	if c.Classify.MaxRetries < 0 {
		return fmt.Errorf("Classify.MaxRetries 必须 >= 0")
	}
	if c.Classify.MaxNewTokens < 0 {
		return fmt.Errorf("Classify.MaxNewTokens 必须 >= 0")
	}
	for _, name := range c.Classify.Tasks {
		if !KnownTasks[name] {
			return fmt.Errorf("Classify.Tasks 包含未知任务 '%s'", name)
		}
	}

	// 验证 Retry
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("Retry.MaxRetries 必须 >= 0")
	}

	// 验证 LLM
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM.MaxTokens 必须大于 0")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("LLM.TimeoutSeconds 必须 >= 0")
	}

	// 验证 Topics
	if c.Topics.NumTopics < 1 {
		return fmt.Errorf("Topics.NumTopics 必须大于 0")
	}
	if c.Topics.Iterations < 1 {
		return fmt.Errorf("Topics.Iterations 必须大于 0")
	}

	// 验证 Search
	if c.Search.TopK < 1 {
		return fmt.Errorf("Search.TopK 必须大于 0")
	}

	return nil
}

// ValidateLLM 仅在需要调用模型的子命令中验证 LLM 配置
func (c *Config) ValidateLLM() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM.BaseURL 不能为空")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM.Model 不能为空")
	}
	return nil
}

// Range 解析过滤日期区间，未配置的一端返回零值
func (f Filter) Range() (start, end time.Time, err error) {
	if f.StartDate != "" {
		start, err = time.Parse(DateLayout, f.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("Filter.StartDate 格式错误: %w", err)
		}
	}
	if f.EndDate != "" {
		end, err = time.Parse(DateLayout, f.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("Filter.EndDate 格式错误: %w", err)
		}
	}
	return start, end, nil
}

// Threshold 分组阈值
func (g Grouping) Threshold() time.Duration {
	return time.Duration(g.ThresholdSeconds) * time.Second
}

// CallTimeout 单次模型调用超时
func (l LLM) CallTimeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}
