// Package analysis provides impact analysis over the rule cross-reference
// graph.
package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// ImpactDirection represents the direction of impact analysis.
type ImpactDirection string

const (
	// DirectionIncoming finds rules that cite the target.
	DirectionIncoming ImpactDirection = "incoming"
	// DirectionOutgoing finds rules that the target cites.
	DirectionOutgoing ImpactDirection = "outgoing"
	// DirectionBoth finds both incoming and outgoing citations.
	DirectionBoth ImpactDirection = "both"
)

// ParseDirection converts a flag value into an ImpactDirection.
func ParseDirection(s string) (ImpactDirection, error) {
	switch direction := ImpactDirection(strings.ToLower(s)); direction {
	case DirectionIncoming, DirectionOutgoing, DirectionBoth:
		return direction, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want incoming, outgoing or both)", s)
	}
}

// ImpactType categorizes the type of impact.
type ImpactType string

const (
	ImpactDirect     ImpactType = "direct"
	ImpactTransitive ImpactType = "transitive"
)

// ImpactNode represents a rule reached by the analysis.
type ImpactNode struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Level     int             `json:"level"`
	Depth     int             `json:"depth"`
	Impact    ImpactType      `json:"impact"`
	Direction ImpactDirection `json:"direction"`

	// Dangling marks a cited id that does not resolve to a rule.
	Dangling bool `json:"dangling,omitempty"`
}

// ImpactEdge is one citation followed by the analysis, from citing rule to
// cited rule.
type ImpactEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Depth  int    `json:"depth"`
}

// ImpactResult contains the results of an impact analysis.
type ImpactResult struct {
	TargetID        string           `json:"target_id"`
	TargetTitle     string           `json:"target_title"`
	MaxDepth        int              `json:"max_depth"`
	Direction       ImpactDirection  `json:"direction"`
	DirectIncoming  []*ImpactNode    `json:"direct_incoming"`
	DirectOutgoing  []*ImpactNode    `json:"direct_outgoing"`
	TransitiveNodes []*ImpactNode    `json:"transitive_nodes"`
	Edges           []*ImpactEdge    `json:"edges"`
	Summary         *ImpactSummary   `json:"summary"`
	ByDepth         map[int][]string `json:"by_depth"`
}

// ImpactSummary provides summary statistics for the impact analysis.
type ImpactSummary struct {
	TotalAffected       int         `json:"total_affected"`
	DirectIncomingCount int         `json:"direct_incoming_count"`
	DirectOutgoingCount int         `json:"direct_outgoing_count"`
	TransitiveCount     int         `json:"transitive_count"`
	DanglingCount       int         `json:"dangling_count"`
	MaxDepthReached     int         `json:"max_depth_reached"`
	AffectedByLevel     map[int]int `json:"affected_by_level"`
	AffectedByDepth     map[int]int `json:"affected_by_depth"`
}

// ImpactAnalyzer walks citations outward from a rule.
type ImpactAnalyzer struct {
	selector *ruleset.Selector
}

// NewImpactAnalyzer creates a new impact analyzer.
func NewImpactAnalyzer(selector *ruleset.Selector) *ImpactAnalyzer {
	return &ImpactAnalyzer{selector: selector}
}

// Analyze performs impact analysis for the rule with the given id. Each rule
// is reported once, at the depth it was first reached. Dangling citations are
// reported but not followed.
func (a *ImpactAnalyzer) Analyze(id string, maxDepth int, direction ImpactDirection) (*ImpactResult, error) {
	target, ok := a.selector.ByID(id)
	if !ok {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	direction, err := ParseDirection(string(direction))
	if err != nil {
		return nil, err
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	result := &ImpactResult{
		TargetID:        target.ID,
		TargetTitle:     target.Title,
		MaxDepth:        maxDepth,
		Direction:       direction,
		DirectIncoming:  make([]*ImpactNode, 0),
		DirectOutgoing:  make([]*ImpactNode, 0),
		TransitiveNodes: make([]*ImpactNode, 0),
		Edges:           make([]*ImpactEdge, 0),
		ByDepth:         make(map[int][]string),
		Summary: &ImpactSummary{
			AffectedByLevel: make(map[int]int),
			AffectedByDepth: make(map[int]int),
		},
	}

	// Track visited rules to avoid cycles
	visited := map[string]bool{target.ID: true}
	currentDepthNodes := []string{target.ID}

	for depth := 1; depth <= maxDepth && len(currentDepthNodes) > 0; depth++ {
		nextDepthNodes := make([]string, 0)

		for _, nodeID := range currentDepthNodes {
			if direction == DirectionIncoming || direction == DirectionBoth {
				for _, referrer := range a.selector.ReferencedBy(nodeID) {
					if visited[referrer.ID] {
						continue
					}
					visited[referrer.ID] = true

					record(result, newImpactNode(referrer, depth, DirectionIncoming))
					result.Edges = append(result.Edges, &ImpactEdge{Source: referrer.ID, Target: nodeID, Depth: depth})
					nextDepthNodes = append(nextDepthNodes, referrer.ID)
				}
			}

			if direction == DirectionOutgoing || direction == DirectionBoth {
				node, _ := a.selector.ByID(nodeID)
				for _, ref := range node.CrossRefs {
					if visited[ref] {
						continue
					}
					visited[ref] = true

					cited, ok := a.selector.ByID(ref)
					impactNode := &ImpactNode{ID: ref, Depth: depth, Direction: DirectionOutgoing, Dangling: true}
					if ok {
						impactNode = newImpactNode(cited, depth, DirectionOutgoing)
						nextDepthNodes = append(nextDepthNodes, ref)
					}

					record(result, impactNode)
					result.Edges = append(result.Edges, &ImpactEdge{Source: nodeID, Target: ref, Depth: depth})
				}
			}
		}

		currentDepthNodes = nextDepthNodes
	}

	calculateSummary(result)
	return result, nil
}

func newImpactNode(entity *ruleset.Entity, depth int, direction ImpactDirection) *ImpactNode {
	return &ImpactNode{
		ID:        entity.ID,
		Title:     entity.Title,
		Level:     entity.Level,
		Depth:     depth,
		Direction: direction,
	}
}

func record(result *ImpactResult, node *ImpactNode) {
	result.ByDepth[node.Depth] = append(result.ByDepth[node.Depth], node.ID)

	if node.Depth > 1 {
		node.Impact = ImpactTransitive
		result.TransitiveNodes = append(result.TransitiveNodes, node)
		return
	}

	node.Impact = ImpactDirect
	if node.Direction == DirectionIncoming {
		result.DirectIncoming = append(result.DirectIncoming, node)
	} else {
		result.DirectOutgoing = append(result.DirectOutgoing, node)
	}
}

// calculateSummary calculates summary statistics.
func calculateSummary(result *ImpactResult) {
	result.Summary.DirectIncomingCount = len(result.DirectIncoming)
	result.Summary.DirectOutgoingCount = len(result.DirectOutgoing)
	result.Summary.TransitiveCount = len(result.TransitiveNodes)
	result.Summary.TotalAffected = result.Summary.DirectIncomingCount +
		result.Summary.DirectOutgoingCount + result.Summary.TransitiveCount

	for _, node := range result.AllNodes() {
		if node.Dangling {
			result.Summary.DanglingCount++
			continue
		}
		result.Summary.AffectedByLevel[node.Level]++
	}

	for depth, nodes := range result.ByDepth {
		result.Summary.AffectedByDepth[depth] = len(nodes)
		if depth > result.Summary.MaxDepthReached {
			result.Summary.MaxDepthReached = depth
		}
	}
}

// AllNodes returns every reached rule ordered by depth, then id.
func (r *ImpactResult) AllNodes() []*ImpactNode {
	allNodes := make([]*ImpactNode, 0, len(r.DirectIncoming)+len(r.DirectOutgoing)+len(r.TransitiveNodes))
	allNodes = append(allNodes, r.DirectIncoming...)
	allNodes = append(allNodes, r.DirectOutgoing...)
	allNodes = append(allNodes, r.TransitiveNodes...)

	sort.SliceStable(allNodes, func(i, j int) bool {
		if allNodes[i].Depth != allNodes[j].Depth {
			return allNodes[i].Depth < allNodes[j].Depth
		}
		return allNodes[i].ID < allNodes[j].ID
	})
	return allNodes
}

// ToJSON serializes the impact result to JSON.
func (r *ImpactResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// String returns a human-readable string representation.
func (r *ImpactResult) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Impact Analysis for: %s %s\n", r.TargetID, r.TargetTitle))
	sb.WriteString(fmt.Sprintf("Direction: %s, depth: %d\n", r.Direction, r.MaxDepth))
	sb.WriteString(strings.Repeat("=", 51) + "\n\n")

	sb.WriteString("Summary:\n")
	sb.WriteString(fmt.Sprintf("  Total affected rules: %d\n", r.Summary.TotalAffected))
	sb.WriteString(fmt.Sprintf("  Direct incoming (cite this): %d\n", r.Summary.DirectIncomingCount))
	sb.WriteString(fmt.Sprintf("  Direct outgoing (cited by this): %d\n", r.Summary.DirectOutgoingCount))
	sb.WriteString(fmt.Sprintf("  Transitive: %d\n", r.Summary.TransitiveCount))
	if r.Summary.DanglingCount > 0 {
		sb.WriteString(fmt.Sprintf("  Unresolved citations: %d\n", r.Summary.DanglingCount))
	}
	sb.WriteString(fmt.Sprintf("  Max depth reached: %d\n\n", r.Summary.MaxDepthReached))

	if len(r.DirectIncoming) > 0 {
		sb.WriteString("Direct Incoming (rules citing this):\n")
		for _, node := range r.DirectIncoming {
			sb.WriteString(fmt.Sprintf("  - %s\n", node.display()))
		}
		sb.WriteString("\n")
	}

	if len(r.DirectOutgoing) > 0 {
		sb.WriteString("Direct Outgoing (rules this cites):\n")
		for _, node := range r.DirectOutgoing {
			sb.WriteString(fmt.Sprintf("  - %s\n", node.display()))
		}
		sb.WriteString("\n")
	}

	if len(r.TransitiveNodes) > 0 {
		sb.WriteString("Transitive Impact:\n")

		byDepth := make(map[int][]*ImpactNode)
		for _, node := range r.TransitiveNodes {
			byDepth[node.Depth] = append(byDepth[node.Depth], node)
		}
		depths := make([]int, 0, len(byDepth))
		for d := range byDepth {
			depths = append(depths, d)
		}
		sort.Ints(depths)

		for _, depth := range depths {
			sb.WriteString(fmt.Sprintf("  Depth %d:\n", depth))
			for _, node := range byDepth[depth] {
				sb.WriteString(fmt.Sprintf("    - %s (%s)\n", node.display(), node.Direction))
			}
		}
	}

	return sb.String()
}

// FormatTable formats the result as a simple table.
func (r *ImpactResult) FormatTable() string {
	var sb strings.Builder

	border := "+-------+----------------+----------------------------------------+-----------+\n"
	sb.WriteString(border)
	sb.WriteString("| Depth | Rule           | Title                                  | Direction |\n")
	sb.WriteString(border)

	for _, node := range r.AllNodes() {
		title := node.Title
		if node.Dangling {
			title = "(unresolved)"
		}
		if len(title) > 38 {
			title = title[:35] + "..."
		}
		sb.WriteString(fmt.Sprintf("| %5d | %-14s | %-38s | %-9s |\n",
			node.Depth, node.ID, title, node.Direction))
	}

	sb.WriteString(border)
	return sb.String()
}

func (n *ImpactNode) display() string {
	if n.Dangling {
		return n.ID + " (unresolved)"
	}
	return n.ID + " " + n.Title
}
