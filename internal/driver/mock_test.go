package driver

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type MockCall struct {
	Query  string
	Params map[string]interface{}
}

// MockDriver records every query and answers from per-query result queues.
type MockDriver struct {
	Calls   []MockCall
	Results map[string][]neo4j.EagerResult
	FailOn  string
	Err     error
}

func NewMockDriver() *MockDriver {
	return &MockDriver{Results: map[string][]neo4j.EagerResult{}}
}

func (m *MockDriver) Queue(query string, records ...*neo4j.Record) {
	m.Results[query] = append(m.Results[query], neo4j.EagerResult{Records: records})
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Calls = append(m.Calls, MockCall{Query: query, Params: params})
	if m.FailOn != "" && query == m.FailOn {
		if m.Err == nil {
			return neo4j.EagerResult{}, errors.New("mock failure")
		}
		return neo4j.EagerResult{}, m.Err
	}
	queue := m.Results[query]
	if len(queue) == 0 {
		return neo4j.EagerResult{}, nil
	}
	m.Results[query] = queue[1:]
	return queue[0], nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	return nil
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}

// CallsTo returns the recorded calls of one query, in order.
func (m *MockDriver) CallsTo(query string) []MockCall {
	var out []MockCall
	for _, c := range m.Calls {
		if c.Query == query {
			out = append(out, c)
		}
	}
	return out
}

func record(kv ...interface{}) *neo4j.Record {
	rec := &neo4j.Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Keys = append(rec.Keys, kv[i].(string))
		rec.Values = append(rec.Values, kv[i+1])
	}
	return rec
}

type MockReranker struct {
	Order []int
	Err   error
}

func (m *MockReranker) Rank(ctx context.Context, query string, documents []string) ([]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Order, nil
}
