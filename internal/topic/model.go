package topic

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fachebot/vesuvius-study/internal/logger"
	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"
)

// MinProbability 低于该权重的话题不出现在推断结果中
const MinProbability = 0.01

// Weight 单个话题的权重
type Weight struct {
	Topic int
	Value float64
}

// Model 话题推断能力，返回按权重降序排列的话题列表；文本无可用词时返回空列表
type Model interface {
	Infer(text string) ([]Weight, error)
}

// Options LDA 训练参数
type Options struct {
	NumTopics  int
	Iterations int
	Processes  int      // 训练并行度，0 使用库默认值
	Stopwords  []string // 额外剔除的领域词
}

// LDAModel 基于词频向量的 LDA 话题模型
type LDAModel struct {
	pre        *Preprocessor
	vectoriser *nlp.CountVectoriser
	lda        *nlp.LatentDirichletAllocation
	pipeline   *nlp.Pipeline
	numTopics  int
}

// Train 在 texts 上训练 LDA 模型，清洗后为空的文本不参与训练
func Train(texts []string, opts Options) (*LDAModel, error) {
	if opts.NumTopics < 1 {
		return nil, fmt.Errorf("话题数必须 >= 1，当前为 %d", opts.NumTopics)
	}

	pre := NewPreprocessor(opts.Stopwords)
	corpus := make([]string, 0, len(texts))
	for _, text := range texts {
		if doc := pre.Preprocess(text); doc != "" {
			corpus = append(corpus, doc)
		}
	}
	if len(corpus) == 0 {
		return nil, errors.New("没有可用于训练的文本")
	}

	vectoriser := nlp.NewCountVectoriser()
	lda := nlp.NewLatentDirichletAllocation(opts.NumTopics)
	if opts.Iterations > 0 {
		lda.Iterations = opts.Iterations
		lda.TransformationPasses = max(opts.Iterations/2, 1)
	}
	if opts.Processes > 0 {
		lda.Processes = opts.Processes
	}

	pipeline := nlp.NewPipeline(vectoriser, lda)
	if _, err := pipeline.FitTransform(corpus...); err != nil {
		return nil, fmt.Errorf("训练 LDA 模型失败: %w", err)
	}

	logger.Infof("[Topic] LDA 训练完成，文档 %d 篇，词表 %d 个，话题 %d 个",
		len(corpus), len(vectoriser.Vocabulary), opts.NumTopics)
	return &LDAModel{
		pre:        pre,
		vectoriser: vectoriser,
		lda:        lda,
		pipeline:   pipeline,
		numTopics:  opts.NumTopics,
	}, nil
}

// NumTopics 话题数
func (m *LDAModel) NumTopics() int {
	return m.numTopics
}

// Infer 推断文本的话题分布
func (m *LDAModel) Infer(text string) ([]Weight, error) {
	tokens := m.pre.Tokens(text)
	known := tokens[:0]
	for _, t := range tokens {
		if _, ok := m.vectoriser.Vocabulary[t]; ok {
			known = append(known, t)
		}
	}
	if len(known) == 0 {
		return nil, nil
	}

	docsOverTopics, err := m.pipeline.Transform(strings.Join(known, " "))
	if err != nil {
		return nil, fmt.Errorf("推断话题失败: %w", err)
	}

	weights := make([]Weight, 0, m.numTopics)
	for topic := 0; topic < m.numTopics; topic++ {
		v := docsOverTopics.At(topic, 0)
		if v >= MinProbability {
			weights = append(weights, Weight{Topic: topic, Value: v})
		}
	}
	sortWeights(weights)
	return weights, nil
}

// WordWeight 话题中的词及其权重
type WordWeight struct {
	Word  string
	Value float64
}

// TopWords 每个话题权重最高的 n 个词
func (m *LDAModel) TopWords(n int) [][]WordWeight {
	vocab := make([]string, len(m.vectoriser.Vocabulary))
	for word, i := range m.vectoriser.Vocabulary {
		vocab[i] = word
	}

	topicsOverWords := m.lda.Components()
	rows, cols := topicsOverWords.Dims()
	tops := make([][]WordWeight, rows)
	for topic := 0; topic < rows; topic++ {
		words := make([]WordWeight, cols)
		row := mat.Row(nil, topic, topicsOverWords)
		for i, v := range row {
			words[i] = WordWeight{Word: vocab[i], Value: v}
		}
		sort.SliceStable(words, func(i, j int) bool {
			return words[i].Value > words[j].Value
		})
		if n < len(words) {
			words = words[:n]
		}
		tops[topic] = words
	}
	return tops
}

// FormatTopWords 生成 "0.123*"word" + ..." 形式的话题描述
func FormatTopWords(words []WordWeight) string {
	var total float64
	for _, w := range words {
		total += w.Value
	}
	parts := make([]string, len(words))
	for i, w := range words {
		v := w.Value
		if total > 0 {
			v /= total
		}
		parts[i] = fmt.Sprintf("%.3f*%q", v, w.Word)
	}
	return strings.Join(parts, " + ")
}

func sortWeights(weights []Weight) {
	sort.SliceStable(weights, func(i, j int) bool {
		if weights[i].Value != weights[j].Value {
			return weights[i].Value > weights[j].Value
		}
		return weights[i].Topic < weights[j].Topic
	})
}
