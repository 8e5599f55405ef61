package search

import (
	"errors"
	"fmt"

	"github.com/fachebot/vesuvius-study/internal/chunker"
	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/fachebot/vesuvius-study/internal/topic"
	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"
)

// DefaultTopK 默认返回的文档数
const DefaultTopK = 8

// Hit 一条检索结果，Score 为余弦距离，越小越相似
type Hit struct {
	Document chunker.Document
	Score    float64
}

// Index 基于 TF-IDF 向量的相似度检索索引
type Index struct {
	pre      *topic.Preprocessor
	pipeline *nlp.Pipeline
	index    *nlp.LinearScanIndex
	docs     []chunker.Document
}

// Build 对文档建立 TF-IDF 索引
func Build(docs []chunker.Document) (*Index, error) {
	if len(docs) == 0 {
		return nil, errors.New("没有可建立索引的文档")
	}

	pre := topic.NewPreprocessor(nil)
	corpus := make([]string, len(docs))
	for i, doc := range docs {
		corpus[i] = pre.Preprocess(doc.Text)
	}

	pipeline := nlp.NewPipeline(nlp.NewCountVectoriser(), nlp.NewTfidfTransformer())
	termsOverDocs, err := pipeline.FitTransform(corpus...)
	if err != nil {
		return nil, fmt.Errorf("计算 TF-IDF 失败: %w", err)
	}

	index := nlp.NewLinearScanIndex(nlp.CosineDistance)
	for j := range docs {
		vec := columnVector(termsOverDocs, j)
		if vec == nil {
			continue
		}
		index.Index(vec, j)
	}

	logger.Infof("[Search] 已为 %d 篇文档建立索引", len(docs))
	return &Index{
		pre:      pre,
		pipeline: pipeline,
		index:    index,
		docs:     docs,
	}, nil
}

// Search 返回与 query 最相似的 k 篇文档，按距离升序；query 不含任何索引词时返回空
func (idx *Index) Search(query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vectors, err := idx.pipeline.Transform(idx.pre.Preprocess(query))
	if err != nil {
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}
	qv := columnVector(vectors, 0)
	if qv == nil {
		return nil, nil
	}

	matches := idx.index.Search(qv, k)
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		j, ok := m.ID.(int)
		if !ok {
			continue
		}
		hits = append(hits, Hit{Document: idx.docs[j], Score: m.Distance})
	}
	return hits, nil
}

// columnVector 取第 j 列；全零向量无法计算余弦距离，返回 nil
func columnVector(m mat.Matrix, j int) *mat.VecDense {
	rows, _ := m.Dims()
	col := mat.Col(nil, j, m)
	for _, v := range col {
		if v != 0 {
			return mat.NewVecDense(rows, col)
		}
	}
	return nil
}
