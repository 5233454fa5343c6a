package topics

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/sdt-zeiss/prototype-ai/pkg/embeddings"
)

// ErrNoAnalyzer is returned when the text analyzer is not registered.
var ErrNoAnalyzer = errors.New("text analyzer not available")

// Tokenizer splits text into lower-cased words with English stop words removed.
type Tokenizer struct {
	analyzer analysis.Analyzer
}

// NewTokenizer returns a tokenizer backed by the standard text analyzer.
func NewTokenizer() (*Tokenizer, error) {
	analyzer := bleve.NewIndexMapping().AnalyzerNamed(standard.Name)
	if analyzer == nil {
		return nil, ErrNoAnalyzer
	}

	return &Tokenizer{analyzer: analyzer}, nil
}

// Tokens returns the terms of text in order. Single characters and pure numbers are dropped.
func (t *Tokenizer) Tokens(text string) []string {
	stream := t.analyzer.Analyze([]byte(text))
	out := make([]string, 0, len(stream))

	for _, tok := range stream {
		term := string(tok.Term)
		if len([]rune(term)) < 2 || isNumber(term) {
			continue
		}

		out = append(out, term)
	}

	return out
}

func isNumber(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' && r != ',' }) < 0
}

// ClassTFIDF scores each term of each class (one class per topic, its documents concatenated).
// score(t, c) = tf(t, c) / |c| * log(1 + A / f(t)), where A is the mean class length in words
// and f(t) the frequency of t over all classes.
func ClassTFIDF(classes [][]string) []map[string]float64 {
	counts := make([]map[string]int, len(classes))
	freq := make(map[string]int)

	var totalWords int

	for c, tokens := range classes {
		counts[c] = make(map[string]int)

		for _, tok := range tokens {
			counts[c][tok]++
			freq[tok]++
		}

		totalWords += len(tokens)
	}

	scores := make([]map[string]float64, len(classes))
	if len(classes) == 0 || totalWords == 0 {
		for c := range scores {
			scores[c] = map[string]float64{}
		}

		return scores
	}

	avgWords := float64(totalWords) / float64(len(classes))

	for c, tokens := range classes {
		scores[c] = make(map[string]float64, len(counts[c]))
		if len(tokens) == 0 {
			continue
		}

		for term, n := range counts[c] {
			tf := float64(n) / float64(len(tokens))
			scores[c][term] = tf * math.Log(1+avgWords/float64(freq[term]))
		}
	}

	return scores
}

// TopTerms returns up to n terms by descending score; ties break alphabetically.
func TopTerms(scores map[string]float64, n int) []string {
	terms := make([]string, 0, len(scores))
	for term := range scores {
		terms = append(terms, term)
	}

	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(scores[b], scores[a]); c != 0 {
			return c
		}

		return strings.Compare(a, b)
	})

	if len(terms) > n {
		terms = terms[:n]
	}

	return terms
}

// RerankBySimilarity orders candidates by cosine similarity of their vectors to target and keeps n.
// Candidates without a vector are ranked last in their original order.
func RerankBySimilarity(candidates []string, vectors map[string][]float64, target []float64, n int) []string {
	type scored struct {
		term  string
		score float64
		pos   int
	}

	ranked := make([]scored, len(candidates))

	for i, term := range candidates {
		score := math.Inf(-1)
		if vec, ok := vectors[term]; ok {
			score = embeddings.CosineSimilarity(vec, target)
		}

		ranked[i] = scored{term: term, score: score, pos: i}
	}

	slices.SortStableFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}

		return cmp.Compare(a.pos, b.pos)
	})

	out := make([]string, 0, min(n, len(ranked)))
	for _, r := range ranked[:min(n, len(ranked))] {
		out = append(out, r.term)
	}

	return out
}

// RepresentativeDocs returns up to n distinct member texts closest to centroid.
func RepresentativeDocs(texts []string, points [][]float64, members []int, centroid []float64, n int) []string {
	ordered := slices.Clone(members)
	slices.SortStableFunc(ordered, func(a, b int) int {
		return cmp.Compare(squaredDistance(points[a], centroid), squaredDistance(points[b], centroid))
	})

	seen := make(map[string]bool, n)
	out := make([]string, 0, n)

	for _, i := range ordered {
		if len(out) == n {
			break
		}

		if seen[texts[i]] {
			continue
		}

		seen[texts[i]] = true
		out = append(out, texts[i])
	}

	return out
}

// TopicLabel builds the default "<id>_<kw1>_<kw2>_<kw3>_<kw4>" label.
func TopicLabel(id int, keywords []string) string {
	parts := append([]string{strconv.Itoa(id)}, keywords[:min(4, len(keywords))]...)

	return strings.Join(parts, "_")
}
