package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/fachebot/vesuvius-study/internal/chunker"
)

var documentColumns = []string{"id", "text", "authors", "start_time", "end_time", "message_count", "create_time"}

type DocumentModel struct {
	store *Store
}

func NewDocumentModel(store *Store) *DocumentModel {
	return &DocumentModel{store: store}
}

// Replace 在同一事务中清空文档表并批量写入新文档，返回删除的旧文档数；写入失败时旧文档保持不变
func (m *DocumentModel) Replace(ctx context.Context, docs []chunker.Document) (int, error) {
	var deleted int
	err := m.store.withTx(ctx, func(tx *sql.Tx) error {
		query, args := builder().Delete("documents").Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("清空文档表失败: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return insertDocuments(ctx, tx, docs)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func insertDocuments(ctx context.Context, tx *sql.Tx, docs []chunker.Document) error {
	now := time.Now().UTC()
	for start := 0; start < len(docs); start += insertBatchSize {
		end := min(start+insertBatchSize, len(docs))

		insert := builder().Insert("documents").Columns(documentColumns...)
		for _, doc := range docs[start:end] {
			authors, err := json.Marshal(doc.Authors)
			if err != nil {
				return err
			}
			insert.Values(doc.ID, doc.Text, string(authors), doc.Start, doc.End, doc.MessageCount, now)
		}

		query, args := insert.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("保存文档失败: %w", err)
		}
	}
	return nil
}

// All 查询全部文档，按起始时间排序
func (m *DocumentModel) All(ctx context.Context) ([]chunker.Document, error) {
	query, args := builder().Select(documentColumns[:len(documentColumns)-1]...).
		From(entsql.Table("documents")).
		OrderBy("start_time", "id").
		Query()
	rows, err := m.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []chunker.Document
	for rows.Next() {
		var doc chunker.Document
		var authors string
		if err := rows.Scan(&doc.ID, &doc.Text, &authors, &doc.Start, &doc.End, &doc.MessageCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(authors), &doc.Authors); err != nil {
			return nil, fmt.Errorf("解析文档 %s 的作者列表失败: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
