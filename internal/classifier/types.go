package classifier

import "fmt"

// State 单条分类结果的状态
type State int

const (
	StateUnset   State = iota // 尚未分类
	StateValid                // 输出匹配标签词表
	StateInvalid              // 输出不匹配标签词表
	StateError                // 调用模型失败
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState 从持久化的字符串还原状态
func ParseState(s string) (State, error) {
	switch s {
	case "unset", "":
		return StateUnset, nil
	case "valid":
		return StateValid, nil
	case "invalid":
		return StateInvalid, nil
	case "error":
		return StateError, nil
	default:
		return StateUnset, fmt.Errorf("未知的分类状态 %q", s)
	}
}

// Label 单条消息在某个任务上的分类结果
type Label struct {
	State    State
	Value    string // 仅 StateValid 时有意义，已转为小写
	Attempts int    // 调用模型的次数
	Err      string // 最近一次调用失败的原因
}

// String 导出到表格时的取值：有效标签本身，或 "invalid" / "error" 哨兵值
func (l Label) String() string {
	switch l.State {
	case StateValid:
		return l.Value
	case StateInvalid:
		return "invalid"
	case StateError:
		return "error"
	default:
		return ""
	}
}

// Status 一次分类运行的最终状态
type Status int

const (
	StatusCompleted              Status = iota // 没有需要重试的条目
	StatusExhaustedWithResiduals               // 达到重试上限仍有残留
)

func (s Status) String() string {
	if s == StatusCompleted {
		return "completed"
	}
	return "exhausted_with_residuals"
}

// Counts 各状态的数量
type Counts struct {
	Valid   int
	Invalid int
	Error   int
	Unset   int
}

// Residuals 未得到有效标签的条目数
func (c Counts) Residuals() int {
	return c.Invalid + c.Error + c.Unset
}

// Result 一个任务的分类结果，Labels 与输入条目按下标一一对应
type Result struct {
	Task    string
	Labels  []Label
	Retries int // 实际执行的重试轮数（不含第一轮）
	Status  Status
}

// Counts 统计各状态数量
func (r *Result) Counts() Counts {
	var c Counts
	for _, l := range r.Labels {
		switch l.State {
		case StateValid:
			c.Valid++
		case StateInvalid:
			c.Invalid++
		case StateError:
			c.Error++
		default:
			c.Unset++
		}
	}
	return c
}

// Values 每条结果的导出取值
func (r *Result) Values() []string {
	values := make([]string, len(r.Labels))
	for i, l := range r.Labels {
		values[i] = l.String()
	}
	return values
}
