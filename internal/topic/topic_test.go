package topic

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess(t *testing.T) {
	pre := NewPreprocessor([]string{"scroll", "scrolls", "papyrus", "image", "ink"})

	tests := []struct {
		name string
		text string
		want string
	}{
		{"去掉链接和提及", "check https://scrollprize.org @casey segmentation results", "check segmentation results"},
		{"只保留字母", "v2.0 release!!! 100% done", "release done"},
		{"停用词和领域词", "The ink on this scroll is visible", "visible"},
		{"长度过滤", "a ok supercalifragilisticexpialidocious fine", "ok fine"},
		{"大小写统一", "Fragment FRAGMENT fragment", "fragment fragment fragment"},
		{"清洗后为空", "@everyone https://x.y", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pre.Preprocess(tt.text))
		})
	}
}

type fakeModel map[string][]Weight

func (f fakeModel) Infer(text string) ([]Weight, error) {
	if text == "fail" {
		return nil, errors.New("inference failed")
	}
	return f[text], nil
}

func TestAssign(t *testing.T) {
	model := fakeModel{
		"a": {{Topic: 3, Value: 0.7}, {Topic: 1, Value: 0.3}},
		"b": {{Topic: 0, Value: 0.2}, {Topic: 2, Value: 0.8}},
	}

	got, err := Assign(model, []string{"a", "b", "empty"})
	require.NoError(t, err)
	assert.Equal(t, []Assignment{
		{Text: "a", Topic: mo.Some(3)},
		{Text: "b", Topic: mo.Some(2)},
		{Text: "empty", Topic: mo.None[int]()},
	}, got)

	_, err = Assign(model, []string{"a", "fail"})
	assert.ErrorContains(t, err, "第 1 条文本")
}

func TestGroupByTopic(t *testing.T) {
	index := GroupByTopic([]Assignment{
		{Text: "m1", Topic: mo.Some(10)},
		{Text: "m2", Topic: mo.Some(2)},
		{Text: "m3", Topic: mo.None[int]()},
		{Text: "m4", Topic: mo.Some(10)},
		{Text: "m5", Topic: mo.Some(0)},
	})

	assert.Equal(t, []int{0, 2, 10}, index.Topics)
	assert.Equal(t, []string{"m1", "m4"}, index.Items[10])

	data, err := json.Marshal(index)
	require.NoError(t, err)
	// 数值升序而非字典序 ("10" 排在 "2" 之后)
	assert.Equal(t, `{"0":["m5"],"2":["m2"],"10":["m1","m4"]}`, string(data))
}

func TestGroupByTopic_Empty(t *testing.T) {
	index := GroupByTopic([]Assignment{{Text: "x", Topic: mo.None[int]()}})
	assert.Equal(t, 0, index.Len())

	data, err := json.Marshal(index)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestTopicIndex_WriteJSON(t *testing.T) {
	index := GroupByTopic([]Assignment{
		{Text: "hello", Topic: mo.Some(1)},
		{Text: "world", Topic: mo.Some(0)},
	})
	path := filepath.Join(t.TempDir(), "out", "topics.json")
	require.NoError(t, index.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"0\": [\n        \"world\"\n    ],\n    \"1\": [\n        \"hello\"\n    ]\n}", string(data))
}

func TestFormatTopWords(t *testing.T) {
	got := FormatTopWords([]WordWeight{{Word: "segment", Value: 3}, {Word: "model", Value: 1}})
	assert.Equal(t, `0.750*"segment" + 0.250*"model"`, got)
}

func TestTrain(t *testing.T) {
	texts := []string{
		"segmentation of the surface volume looks great",
		"surface segmentation volume mesh",
		"the ink detection model found letters",
		"letters detected by the ink detection model",
		"https://example.com",
	}

	_, err := Train(texts, Options{NumTopics: 0})
	assert.Error(t, err)

	_, err = Train([]string{"@someone", "!!!"}, Options{NumTopics: 2})
	assert.Error(t, err)

	model, err := Train(texts, Options{NumTopics: 2, Iterations: 20, Processes: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, model.NumTopics())

	tops := model.TopWords(3)
	require.Len(t, tops, 2)
	for _, words := range tops {
		assert.Len(t, words, 3)
		assert.GreaterOrEqual(t, words[0].Value, words[1].Value)
	}

	weights, err := model.Infer("segmentation surface volume")
	require.NoError(t, err)
	require.NotEmpty(t, weights)
	var total float64
	for i, w := range weights {
		assert.True(t, w.Topic >= 0 && w.Topic < 2)
		if i > 0 {
			assert.GreaterOrEqual(t, weights[i-1].Value, w.Value)
		}
		total += w.Value
	}
	assert.InDelta(t, 1.0, total, 0.05)

	// 词表外的文本没有话题
	weights, err = model.Infer("completely unrelated vocabulary " + strings.Repeat("zzz ", 3))
	require.NoError(t, err)
	assert.Empty(t, weights)
}
