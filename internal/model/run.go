package model

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Run 一次分类或重试运行的记录
type Run struct {
	ID           string
	Kind         string // classify / retry / index
	Status       RunStatus
	Summary      string
	ErrorMessage string
	CreateTime   time.Time
	UpdateTime   time.Time
}

var runColumns = []string{"id", "kind", "status", "summary", "error_message", "create_time", "update_time"}

type RunModel struct {
	store *Store
}

func NewRunModel(store *Store) *RunModel {
	return &RunModel{store: store}
}

// Create 创建 in_progress 状态的运行记录
func (m *RunModel) Create(ctx context.Context, kind string) (*Run, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:         uuid.NewString(),
		Kind:       kind,
		Status:     RunStatusInProgress,
		CreateTime: now,
		UpdateTime: now,
	}

	query, args := builder().Insert("runs").
		Columns(runColumns...).
		Values(run.ID, run.Kind, string(run.Status), run.Summary, run.ErrorMessage, run.CreateTime, run.UpdateTime).
		Query()
	if _, err := m.store.DB().ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	return run, nil
}

// Get 按 ID 查询，不存在时返回 ErrNotFound
func (m *RunModel) Get(ctx context.Context, id string) (*Run, error) {
	runs, err := m.query(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

// GetIncompleteRuns 查询所有未完成的运行（进程中断时会留下）
func (m *RunModel) GetIncompleteRuns(ctx context.Context) ([]*Run, error) {
	return m.query(ctx, entsql.EQ("status", string(RunStatusInProgress)))
}

// MarkCompleted 标记运行完成
func (m *RunModel) MarkCompleted(ctx context.Context, id, summary string) error {
	return m.update(ctx, id, RunStatusCompleted, summary, "")
}

// MarkFailed 标记运行失败
func (m *RunModel) MarkFailed(ctx context.Context, id, errorMsg string) error {
	return m.update(ctx, id, RunStatusFailed, "", errorMsg)
}

func (m *RunModel) update(ctx context.Context, id string, status RunStatus, summary, errorMsg string) error {
	query, args := builder().Update("runs").
		Set("status", string(status)).
		Set("summary", summary).
		Set("error_message", errorMsg).
		Set("update_time", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := m.store.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *RunModel) query(ctx context.Context, where *entsql.Predicate) ([]*Run, error) {
	query, args := builder().Select(runColumns...).
		From(entsql.Table("runs")).
		Where(where).
		OrderBy("create_time").
		Query()
	rows, err := m.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var status string
		if err := rows.Scan(&run.ID, &run.Kind, &status, &run.Summary, &run.ErrorMessage, &run.CreateTime, &run.UpdateTime); err != nil {
			return nil, err
		}
		run.Status = RunStatus(status)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
