package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/fachebot/vesuvius-study/internal/classifier"
)

// LabelItem 被分类的一条消息
type LabelItem struct {
	MessageID string
	Channel   string
	Content   string
}

// LabelRecord 持久化的分类结果
type LabelRecord struct {
	Task     string
	Position int // 在本次分类输入中的下标
	LabelItem
	Label classifier.Label
}

var labelColumns = []string{
	"task", "message_id", "position", "channel", "content",
	"state", "value", "attempts", "error_message", "update_time",
}

type LabelModel struct {
	store *Store
}

func NewLabelModel(store *Store) *LabelModel {
	return &LabelModel{store: store}
}

// SaveResult 保存一个任务的全部分类结果，已存在的 (task, message_id) 会被覆盖
func (m *LabelModel) SaveResult(ctx context.Context, task string, items []LabelItem, labels []classifier.Label) error {
	if len(items) != len(labels) {
		return fmt.Errorf("条目数 %d 与结果数 %d 不一致", len(items), len(labels))
	}

	now := time.Now().UTC()
	return m.store.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(items); start += insertBatchSize {
			end := min(start+insertBatchSize, len(items))

			insert := builder().Insert("labels").Columns(labelColumns...)
			for i := start; i < end; i++ {
				l := labels[i]
				insert.Values(task, items[i].MessageID, i, items[i].Channel, items[i].Content,
					l.State.String(), l.Value, l.Attempts, l.Err, now)
			}
			insert.OnConflict(
				entsql.ConflictColumns("task", "message_id"),
				entsql.ResolveWithNewValues(),
			)

			query, args := insert.Query()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("保存分类结果失败: %w", err)
			}
		}
		return nil
	})
}

// GetByTask 查询任务的全部结果，按下标排序
func (m *LabelModel) GetByTask(ctx context.Context, task string) ([]*LabelRecord, error) {
	return m.query(ctx, entsql.EQ("task", task))
}

// GetResiduals 查询任务中未得到有效标签的条目；includeErrors 为 false 时不含调用失败的条目
func (m *LabelModel) GetResiduals(ctx context.Context, task string, includeErrors bool) ([]*LabelRecord, error) {
	states := []any{classifier.StateInvalid.String(), classifier.StateUnset.String()}
	if includeErrors {
		states = append(states, classifier.StateError.String())
	}
	return m.query(ctx, entsql.And(
		entsql.EQ("task", task),
		entsql.In("state", states...),
	))
}

// UpdateLabels 写回重试后的结果
func (m *LabelModel) UpdateLabels(ctx context.Context, records []*LabelRecord) error {
	now := time.Now().UTC()
	return m.store.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			query, args := builder().Update("labels").
				Set("state", r.Label.State.String()).
				Set("value", r.Label.Value).
				Set("attempts", r.Label.Attempts).
				Set("error_message", r.Label.Err).
				Set("update_time", now).
				Where(entsql.And(
					entsql.EQ("task", r.Task),
					entsql.EQ("message_id", r.MessageID),
				)).
				Query()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("更新分类结果失败: %w", err)
			}
		}
		return nil
	})
}

func (m *LabelModel) query(ctx context.Context, where *entsql.Predicate) ([]*LabelRecord, error) {
	query, args := builder().Select(labelColumns[:len(labelColumns)-1]...).
		From(entsql.Table("labels")).
		Where(where).
		OrderBy("position").
		Query()
	rows, err := m.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*LabelRecord
	for rows.Next() {
		var r LabelRecord
		var state string
		if err := rows.Scan(&r.Task, &r.MessageID, &r.Position, &r.Channel, &r.Content,
			&state, &r.Label.Value, &r.Label.Attempts, &r.Label.Err); err != nil {
			return nil, err
		}
		if r.Label.State, err = classifier.ParseState(state); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
