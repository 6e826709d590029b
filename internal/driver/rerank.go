package driver

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agenthands/graphsync/internal/core/model"
	"github.com/agenthands/graphsync/internal/llm"
)

const (
	bm25K1    = 1.2
	bm25B     = 0.75
	mmrLambda = 0.5
)

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// BM25 scores every document against the query with Okapi BM25.
func BM25(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	terms := Tokenize(query)
	if len(terms) == 0 || len(docs) == 0 {
		return scores
	}

	tokenized := make([][]string, len(docs))
	df := make(map[string]int)
	total := 0
	for i, d := range docs {
		tokenized[i] = Tokenize(d)
		total += len(tokenized[i])
		seen := make(map[string]bool)
		for _, tok := range tokenized[i] {
			if !seen[tok] {
				df[tok]++
				seen[tok] = true
			}
		}
	}
	avgLen := float64(total) / float64(len(docs))
	if avgLen == 0 {
		return scores
	}
	n := float64(len(docs))

	for i, toks := range tokenized {
		tf := make(map[string]int, len(toks))
		for _, tok := range toks {
			tf[tok]++
		}
		docLen := float64(len(toks))
		for _, term := range terms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			idf := math.Log((n-float64(df[term])+0.5)/(float64(df[term])+0.5) + 1)
			scores[i] += idf * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		}
	}
	return scores
}

// rankByScore returns document indices ordered by descending score, ties in input order.
func rankByScore(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}

// MMR orders documents by maximal marginal relevance: BM25 relevance traded against token
// overlap with the documents already picked.
func MMR(query string, docs []string) ([]int, []float64) {
	rel := BM25(query, docs)
	maxRel := 0.0
	for _, s := range rel {
		maxRel = math.Max(maxRel, s)
	}
	if maxRel > 0 {
		for i := range rel {
			rel[i] /= maxRel
		}
	}

	sets := make([]map[string]bool, len(docs))
	for i, d := range docs {
		sets[i] = make(map[string]bool)
		for _, tok := range Tokenize(d) {
			sets[i][tok] = true
		}
	}

	picked := make([]bool, len(docs))
	order := make([]int, 0, len(docs))
	scores := make([]float64, len(docs))
	for len(order) < len(docs) {
		best, bestScore := -1, math.Inf(-1)
		for i := range docs {
			if picked[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range order {
				maxSim = math.Max(maxSim, jaccard(sets[i], sets[j]))
			}
			score := mmrLambda*rel[i] - (1-mmrLambda)*maxSim
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		picked[best] = true
		scores[best] = bestScore
		order = append(order, best)
	}
	return order, scores
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// Ranker orders candidate texts for a search strategy.
type Ranker struct {
	// Cross is the LLM cross-ranker behind the cohere strategy. Nil falls back to bm25.
	Cross llm.RerankerClient
}

// Rank returns the order of docs and a score per document.
func (r Ranker) Rank(ctx context.Context, strategy model.Reranker, query string, docs []string) ([]int, []float64) {
	switch strategy {
	case model.RerankMMR:
		return MMR(query, docs)
	case model.RerankCohere:
		if r.Cross != nil {
			if order, err := r.Cross.Rank(ctx, query, docs); err == nil {
				scores := make([]float64, len(docs))
				for pos, idx := range order {
					scores[idx] = 1 / float64(pos+1)
				}
				return order, scores
			}
		}
	}
	scores := BM25(query, docs)
	return rankByScore(scores), scores
}
