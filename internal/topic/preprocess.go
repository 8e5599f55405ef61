package topic

import (
	"regexp"
	"strings"
)

var (
	linkOrMentionRe = regexp.MustCompile(`http\S+|www\S+|@\S+`)
	nonLetterRe     = regexp.MustCompile(`[^a-zA-Z\s]`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

const (
	minTokenLen = 2
	maxTokenLen = 15
)

// englishStopwords NLTK 英文停用词表
var englishStopwords = []string{
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "you're", "you've", "you'll",
	"you'd", "your", "yours", "yourself", "yourselves", "he", "him", "his", "himself", "she", "she's",
	"her", "hers", "herself", "it", "it's", "its", "itself", "they", "them", "their", "theirs",
	"themselves", "what", "which", "who", "whom", "this", "that", "that'll", "these", "those", "am",
	"is", "are", "was", "were", "be", "been", "being", "have", "has", "had", "having", "do", "does",
	"did", "doing", "a", "an", "the", "and", "but", "if", "or", "because", "as", "until", "while",
	"of", "at", "by", "for", "with", "about", "against", "between", "into", "through", "during",
	"before", "after", "above", "below", "to", "from", "up", "down", "in", "out", "on", "off", "over",
	"under", "again", "further", "then", "once", "here", "there", "when", "where", "why", "how", "all",
	"any", "both", "each", "few", "more", "most", "other", "some", "such", "no", "nor", "not", "only",
	"own", "same", "so", "than", "too", "very", "s", "t", "can", "will", "just", "don", "don't",
	"should", "should've", "now", "d", "ll", "m", "o", "re", "ve", "y", "ain", "aren", "aren't",
	"couldn", "couldn't", "didn", "didn't", "doesn", "doesn't", "hadn", "hadn't", "hasn", "hasn't",
	"haven", "haven't", "isn", "isn't", "ma", "mightn", "mightn't", "mustn", "mustn't", "needn",
	"needn't", "shan", "shan't", "shouldn", "shouldn't", "wasn", "wasn't", "weren", "weren't", "won",
	"won't", "wouldn", "wouldn't",
}

// Preprocessor 把消息文本清洗为 LDA 使用的词列表
type Preprocessor struct {
	stopwords map[string]struct{}
}

// NewPreprocessor custom 为额外剔除的领域词
func NewPreprocessor(custom []string) *Preprocessor {
	stopwords := make(map[string]struct{}, len(englishStopwords)+len(custom))
	for _, w := range englishStopwords {
		stopwords[w] = struct{}{}
	}
	for _, w := range custom {
		stopwords[strings.ToLower(w)] = struct{}{}
	}
	return &Preprocessor{stopwords: stopwords}
}

// Tokens 去掉链接和 @ 提及，只保留字母，转小写后按长度和停用词过滤
func (p *Preprocessor) Tokens(text string) []string {
	text = linkOrMentionRe.ReplaceAllString(text, "")
	text = nonLetterRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))

	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(word) < minTokenLen || len(word) > maxTokenLen {
			continue
		}
		if _, ok := p.stopwords[word]; ok {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Preprocess 清洗后以空格连接，作为向量化的输入
func (p *Preprocessor) Preprocess(text string) string {
	return strings.Join(p.Tokens(text), " ")
}
