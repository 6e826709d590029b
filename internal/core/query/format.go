package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agenthands/graphsync/internal/core/model"
)

// Fact is one edge of an entity context with its validity bounds.
type Fact struct {
	Fact       string `json:"fact"`
	ValidFrom  string `json:"validFrom,omitempty"`
	ValidUntil string `json:"validUntil,omitempty"`
	Expired    string `json:"expired,omitempty"`
}

type EntityContext struct {
	Facts           []Fact          `json:"facts"`
	RelatedEntities []model.Node    `json:"relatedEntities"`
	Summary         string          `json:"summary"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

func dump(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func dumpIndent(resp *model.SearchResponse) string {
	if len(resp.Raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, resp.Raw, "", "  "); err == nil {
			return buf.String()
		}
		return string(resp.Raw)
	}
	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func edgeText(e model.Edge) string {
	if s := firstNonEmpty(e.Fact, e.Description); s != "" {
		return s
	}
	return dump(e)
}

func episodeText(ep model.Episode) string {
	if s := firstNonEmpty(ep.Event, ep.Description); s != "" {
		return s
	}
	return dump(ep)
}

func validity(e model.Edge) string {
	switch {
	case e.InvalidAt != "":
		return "(Valid: " + e.ValidAt + " to " + e.InvalidAt + ")"
	case e.ValidAt != "":
		return "(Since: " + e.ValidAt + ")"
	default:
		return ""
	}
}

// BuildContext renders a search response as prompt-ready text. Sections appear for every
// shape present in the response, separated by a blank line. A response with none of them
// is dumped as indented JSON.
func BuildContext(resp *model.SearchResponse) string {
	if resp == nil {
		return "No results found"
	}

	var parts []string
	if resp.Edges != nil {
		parts = append(parts, "RELEVANT FACTS:")
		for _, e := range resp.Edges {
			line := "- " + edgeText(e)
			if v := validity(e); v != "" {
				line += " " + v
			}
			parts = append(parts, line)
		}
	}
	if resp.Nodes != nil {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "RELATED ENTITIES:")
		for _, n := range resp.Nodes {
			name := firstNonEmpty(n.Name, n.ID, "Unknown")
			parts = append(parts, "- "+name+": "+firstNonEmpty(n.Summary, n.Description))
		}
	}
	if resp.Episodes != nil {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "TEMPORAL SEQUENCE:")
		for _, ep := range resp.Episodes {
			ts := firstNonEmpty(ep.Timestamp, ep.CreatedAt)
			parts = append(parts, "- ["+ts+"] "+episodeText(ep))
		}
	}

	if len(parts) == 0 {
		return dumpIndent(resp)
	}
	return strings.Join(parts, "\n")
}

// episodeTime parses an episode's timestamp. Missing or unreadable values sort as the epoch.
func episodeTime(ep model.Episode) time.Time {
	if t, ok := model.ParseTime(firstNonEmpty(ep.Timestamp, ep.CreatedAt)); ok {
		return t
	}
	return time.Unix(0, 0).UTC()
}

// SortEpisodes orders episodes oldest first, keeping ties in their original order.
func SortEpisodes(episodes []model.Episode) []model.Episode {
	sorted := make([]model.Episode, len(episodes))
	copy(sorted, episodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return episodeTime(sorted[i]).Before(episodeTime(sorted[j]))
	})
	return sorted
}

// FormatTimeline lists episodes in ascending time order. Responses without episodes fall
// back to BuildContext.
func FormatTimeline(resp *model.SearchResponse) string {
	if resp == nil {
		return "No timeline data found"
	}
	if resp.Episodes == nil {
		return BuildContext(resp)
	}

	parts := []string{"TIMELINE:"}
	for _, ep := range SortEpisodes(resp.Episodes) {
		ts := firstNonEmpty(ep.Timestamp, ep.CreatedAt, "Unknown time")
		parts = append(parts, "["+ts+"] "+episodeText(ep))
	}
	return strings.Join(parts, "\n")
}

// FormatImpact lists affected entities and related changes.
func FormatImpact(resp *model.SearchResponse) string {
	if resp == nil {
		return "No impact data found"
	}

	parts := []string{"IMPACT ANALYSIS:"}
	if resp.Nodes != nil {
		parts = append(parts, "\nAFFECTED ENTITIES:")
		for _, n := range resp.Nodes {
			name := firstNonEmpty(n.Name, n.ID, "Unknown")
			parts = append(parts, "- "+name+": "+firstNonEmpty(n.Impact, n.Description, "Potentially affected"))
		}
	}
	if resp.Edges != nil {
		parts = append(parts, "\nRELATED CHANGES:")
		for _, e := range resp.Edges {
			parts = append(parts, "- "+edgeText(e))
		}
	}

	if len(parts) == 1 {
		return BuildContext(resp)
	}
	return strings.Join(parts, "\n")
}

// EntitySummary describes how many facts and entities were found, quoting up to three
// facts that have not expired.
func EntitySummary(facts []Fact, related []model.Node) string {
	var parts []string
	if len(facts) > 0 {
		parts = append(parts, fmt.Sprintf("Found %d facts.", len(facts)))

		var recent []string
		for _, f := range facts {
			if f.Expired != "" {
				continue
			}
			recent = append(recent, "- "+f.Fact)
			if len(recent) == 3 {
				break
			}
		}
		if len(recent) > 0 {
			parts = append(parts, "Recent facts:")
			parts = append(parts, recent...)
		}
	}
	if len(related) > 0 {
		parts = append(parts, fmt.Sprintf("Connected to %d entities.", len(related)))
	}
	return strings.Join(parts, " ")
}

// NewEntityContext collects an entity's facts and neighbours from a search response.
func NewEntityContext(resp *model.SearchResponse) EntityContext {
	ec := EntityContext{Facts: []Fact{}, RelatedEntities: []model.Node{}}
	if resp == nil {
		return ec
	}
	for _, e := range resp.Edges {
		ec.Facts = append(ec.Facts, Fact{
			Fact:       edgeText(e),
			ValidFrom:  e.ValidAt,
			ValidUntil: e.InvalidAt,
			Expired:    e.ExpiredAt,
		})
	}
	if resp.Nodes != nil {
		ec.RelatedEntities = resp.Nodes
	}
	ec.Raw = resp.Raw
	ec.Summary = EntitySummary(ec.Facts, ec.RelatedEntities)
	return ec
}
