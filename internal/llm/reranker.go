package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const maxDocPreview = 200

var indexPattern = regexp.MustCompile(`\d+`)

// rankerSystemPrompt is installed as the system instruction of clients built by NewReranker.
const rankerSystemPrompt = `You are a search relevance optimization system for an engineering knowledge graph.
Output ONLY the indices of the documents in order of relevance, separated by commas.
Example: 0, 2, 1
Do not output any other text.`

// SimpleLLMReranker asks a completion model to order documents by relevance.
type SimpleLLMReranker struct {
	LLM LLMClient
}

func NewSimpleLLMReranker(client LLMClient) *SimpleLLMReranker {
	return &SimpleLLMReranker{LLM: client}
}

// Rank returns a permutation of the document indices. Indices the model repeats or invents
// are dropped and the ones it leaves out are appended in input order.
func (r *SimpleLLMReranker) Rank(ctx context.Context, query string, docs []string) ([]int, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) == 1 {
		return []int{0}, nil
	}

	var docList strings.Builder
	for i, d := range docs {
		content := d
		if len(content) > maxDocPreview {
			content = content[:maxDocPreview] + "..."
		}
		fmt.Fprintf(&docList, "[%d] %s\n", i, content)
	}

	prompt := fmt.Sprintf("Query: %s\n\nDocuments:\n%s\nRank the documents above by relevance to the query.", query, docList.String())

	resp, err := r.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return completePermutation(parseIndices(resp), len(docs)), nil
}

func parseIndices(s string) []int {
	var indices []int
	for _, m := range indexPattern.FindAllString(s, -1) {
		if i, err := strconv.Atoi(m); err == nil {
			indices = append(indices, i)
		}
	}
	return indices
}

func completePermutation(indices []int, n int) []int {
	seen := make([]bool, n)
	out := make([]int, 0, n)
	for _, i := range indices {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			out = append(out, i)
		}
	}
	return out
}
