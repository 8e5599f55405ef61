package chunker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/fachebot/vesuvius-study/internal/export"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2023, 3, 15, 10, 0, 0, 0, time.UTC)

func msgAt(offset time.Duration, author, content string) export.Message {
	return export.Message{
		Type:      export.MessageTypeDefault,
		Timestamp: base.Add(offset).Format(time.RFC3339),
		Content:   content,
		Author:    export.Author{Name: author},
	}
}

func badMsg(content string) export.Message {
	return export.Message{Timestamp: "garbage", Content: content, Author: export.Author{Name: "x"}}
}

func contents(g Group) []string {
	out := make([]string, len(g.Messages))
	for i, m := range g.Messages {
		out[i] = m.Content
	}
	return out
}

func TestGroup_Examples(t *testing.T) {
	msgs := []export.Message{
		msgAt(0, "a", "0"),
		msgAt(500*time.Second, "b", "500"),
		msgAt(2000*time.Second, "c", "2000"),
	}
	groups := Group(msgs, 1000*time.Second)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"0", "500"}, contents(groups[0]))
	assert.Equal(t, []string{"2000"}, contents(groups[1]))
	assert.Equal(t, base, groups[0].Start)
	assert.Equal(t, base.Add(500*time.Second), groups[0].End)
}

func TestGroup_ThresholdIsInclusive(t *testing.T) {
	msgs := []export.Message{
		msgAt(0, "a", "0"),
		msgAt(1000*time.Second, "a", "1000"),
		msgAt(2001*time.Second, "a", "2001"),
	}
	groups := Group(msgs, DefaultThreshold)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"0", "1000"}, contents(groups[0]))
	assert.Equal(t, []string{"2001"}, contents(groups[1]))
}

func TestGroup_Empty(t *testing.T) {
	assert.Empty(t, Group(nil, DefaultThreshold))
	assert.Empty(t, Group([]export.Message{badMsg("x")}, DefaultThreshold))
}

func TestGroup_ZeroThreshold(t *testing.T) {
	msgs := []export.Message{
		msgAt(0, "a", "0"),
		msgAt(0, "b", "0b"),
		msgAt(time.Second, "c", "1"),
	}
	groups := Group(msgs, 0)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"0", "0b"}, contents(groups[0]))

	// 负阈值按 0 处理
	assert.Len(t, Group(msgs, -time.Hour), 2)
}

// 无法解析的时间戳被跳过，上一条有效消息的时间保持不变
func TestGroup_UnparseableTimestampKeepsAnchor(t *testing.T) {
	msgs := []export.Message{
		msgAt(0, "a", "0"),
		badMsg("bad"),
		msgAt(900*time.Second, "b", "900"),
		badMsg("bad2"),
		msgAt(2000*time.Second, "c", "2000"),
	}
	groups := Group(msgs, DefaultThreshold)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"0", "900"}, contents(groups[0]))
	assert.Equal(t, []string{"2000"}, contents(groups[1]))
}

func TestGroup_PartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		threshold := time.Duration(rng.Intn(2000)) * time.Second

		var msgs []export.Message
		var valid []export.Message
		offset := time.Duration(0)
		for i := 0; i < 1+rng.Intn(60); i++ {
			if rng.Intn(10) == 0 {
				msgs = append(msgs, badMsg("bad"))
				continue
			}
			offset += time.Duration(rng.Intn(3000)) * time.Second
			m := msgAt(offset, "u", offset.String())
			msgs = append(msgs, m)
			valid = append(valid, m)
		}

		groups := Group(msgs, threshold)

		var flat []export.Message
		for gi, g := range groups {
			require.NotEmpty(t, g.Messages)
			for i := 1; i < len(g.Messages); i++ {
				prev, _ := g.Messages[i-1].Time()
				cur, _ := g.Messages[i].Time()
				assert.LessOrEqual(t, cur.Sub(prev), threshold)
			}
			if gi > 0 {
				prevGroup := groups[gi-1]
				last, _ := prevGroup.Messages[len(prevGroup.Messages)-1].Time()
				first, _ := g.Messages[0].Time()
				assert.Greater(t, first.Sub(last), threshold)
			}
			flat = append(flat, g.Messages...)
		}
		assert.Equal(t, valid, flat)
	}
}

func TestAssemble(t *testing.T) {
	g := Group{Messages: []export.Message{
		msgAt(0, "bob", "Thanks!"),
		{Timestamp: "2023-03-15T10:01:00Z", Author: export.Author{Name: "alice", Nickname: "Alice"}, Content: ""},
		msgAt(120*time.Second, "bob", "Why is this broken?"),
	}}

	doc := Assemble(g)
	want := "2023-03-15T10:00:00Z - bob: Thanks!\n" +
		"2023-03-15T10:01:00Z - Alice: \n" +
		"2023-03-15T10:02:00Z - bob: Why is this broken?"
	assert.Equal(t, want, doc.Text)
	assert.Equal(t, []string{"Alice", "bob"}, doc.Authors)
	assert.Equal(t, 3, doc.MessageCount)
	_, err := uuid.Parse(doc.ID)
	assert.NoError(t, err)
}

func TestAssembleAll_KeepsOrder(t *testing.T) {
	msgs := []export.Message{
		msgAt(0, "a", "first"),
		msgAt(5000*time.Second, "b", "second"),
	}
	docs := AssembleAll(Group(msgs, DefaultThreshold))
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].Text, "first")
	assert.Contains(t, docs[1].Text, "second")
	assert.NotEqual(t, docs[0].ID, docs[1].ID)
}

func TestSizeDistribution(t *testing.T) {
	groups := []Group{
		{Messages: make([]export.Message, 2)},
		{Messages: make([]export.Message, 1)},
		{Messages: make([]export.Message, 2)},
		{Messages: make([]export.Message, 5)},
	}
	assert.Equal(t, []SizeCount{{1, 1}, {2, 2}, {5, 1}}, SizeDistribution(groups))
}
