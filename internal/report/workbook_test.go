package report

import (
	"path/filepath"
	"testing"

	"github.com/fachebot/vesuvius-study/internal/classifier"
	"github.com/fachebot/vesuvius-study/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNewRows(t *testing.T) {
	rows := NewRows([]export.Message{
		{ChannelName: "general", Timestamp: "2024-05-01T10:07:33.123+00:00", Content: "Thanks!", Author: export.Author{Name: "alice", Nickname: "Alice"}},
		{ChannelName: "general", Timestamp: "not-a-time", Content: "hi"},
	})
	assert.Equal(t, []Row{
		{Channel: "general", User: "alice", Timestamp: "05/01/2024 10:07", Content: "Thanks!"},
		{Channel: "general", User: "Unknown", Timestamp: "", Content: "hi"},
	}, rows)
}

func TestCountLabels(t *testing.T) {
	got := CountLabels([]string{"positive", "negative", "invalid", "positive", "negative", "neutral", "positive"})
	assert.Equal(t, []LabelCount{
		{Label: "positive", Count: 3},
		{Label: "negative", Count: 2},
		{Label: "invalid", Count: 1},
		{Label: "neutral", Count: 1},
	}, got)
}

func TestCountsSheet(t *testing.T) {
	assert.Equal(t, "Emotion Counts", CountsSheet("emotion"))
	assert.Equal(t, "Sentiment Counts", CountsSheet("sentiment"))
}

func TestLabelColumn(t *testing.T) {
	col := LabelColumn(&classifier.Result{
		Task: "emotion",
		Labels: []classifier.Label{
			{State: classifier.StateValid, Value: "gratitude"},
			{State: classifier.StateInvalid},
			{State: classifier.StateError},
		},
	})
	assert.Equal(t, Column{Task: "emotion", Values: []string{"gratitude", "invalid", "error"}}, col)
}

func TestWriteWorkbook(t *testing.T) {
	rows := []Row{
		{Channel: "general", User: "alice", Timestamp: "05/01/2024 10:00", Content: "Thanks!"},
		{Channel: "general", User: "bob", Timestamp: "05/01/2024 10:05", Content: "Why is this broken?"},
		{Channel: "dev", User: "carol", Timestamp: "05/02/2024 08:00", Content: "Thank you all"},
	}
	columns := []Column{
		{Task: "emotion", Values: []string{"gratitude", "frustration", "gratitude"}},
		{Task: "sentiment", Values: []string{"positive", "negative", "invalid"}},
	}

	path := filepath.Join(t.TempDir(), "out", "labels.xlsx")
	require.NoError(t, WriteWorkbook(path, rows, columns))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Messages", "Emotion Counts", "Sentiment Counts"}, f.GetSheetList())

	got, err := f.GetRows(MessagesSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"channel", "user", "timestamp", "content", "llama_emotion", "llama_sentiment"},
		{"general", "alice", "05/01/2024 10:00", "Thanks!", "gratitude", "positive"},
		{"general", "bob", "05/01/2024 10:05", "Why is this broken?", "frustration", "negative"},
		{"dev", "carol", "05/02/2024 08:00", "Thank you all", "gratitude", "invalid"},
	}, got)

	got, err = f.GetRows("Emotion Counts")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Emotion", "Count"},
		{"gratitude", "2"},
		{"frustration", "1"},
	}, got)
}

func TestWriteWorkbook_LengthMismatch(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "x.xlsx"),
		[]Row{{Content: "a"}},
		[]Column{{Task: "emotion", Values: []string{"gratitude", "respect"}}})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	counts := Summarize(&classifier.Result{
		Task: "sentiment",
		Labels: []classifier.Label{
			{State: classifier.StateValid, Value: "positive"},
			{State: classifier.StateInvalid},
		},
		Status: classifier.StatusExhaustedWithResiduals,
	})
	assert.Equal(t, classifier.Counts{Valid: 1, Invalid: 1}, counts)
}
