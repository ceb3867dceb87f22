package analysis

import (
	"fmt"
	"strings"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// ToDOT generates a Graphviz DOT representation of the impact result. The
// target is highlighted and unresolved citations are drawn dashed.
func (r *ImpactResult) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph RuleImpact {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  fontname=\"Helvetica\";\n")
	sb.WriteString("  node [fontname=\"Helvetica\" fontsize=10 shape=box];\n")
	sb.WriteString("  edge [fontname=\"Helvetica\" fontsize=8];\n\n")

	sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\" style=filled fillcolor=gold];\n",
		escapeDOTLabel(r.TargetID), nodeLabel(r.TargetID, r.TargetTitle)))

	for _, node := range r.AllNodes() {
		if node.Dangling {
			sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\\n(unresolved)\" style=dashed color=red];\n",
				escapeDOTLabel(node.ID), escapeDOTLabel(node.ID)))
			continue
		}
		fill := "lightblue"
		if node.Direction == DirectionOutgoing {
			fill = "lightyellow"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\" style=filled fillcolor=%s];\n",
			escapeDOTLabel(node.ID), nodeLabel(node.ID, node.Title), fill))
	}

	sb.WriteString("\n")
	for _, edge := range r.Edges {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%d\"];\n",
			escapeDOTLabel(edge.Source), escapeDOTLabel(edge.Target), edge.Depth))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// ReferenceGraphDOT renders every rule that cites or is cited, with one edge
// per cross-reference. Hierarchy edges are drawn grey when withHierarchy is
// set.
func ReferenceGraphDOT(selector *ruleset.Selector, withHierarchy bool) string {
	var sb strings.Builder

	sb.WriteString("digraph RuleReferences {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  fontname=\"Helvetica\";\n")
	sb.WriteString("  node [fontname=\"Helvetica\" fontsize=10 shape=box];\n\n")

	seen := make(map[string]bool)
	for _, section := range selector.TopLevelSections() {
		writeSubtree(&sb, selector, section, withHierarchy, seen)
	}

	sb.WriteString("}\n")
	return sb.String()
}

func writeSubtree(sb *strings.Builder, selector *ruleset.Selector, entity *ruleset.Entity, withHierarchy bool, seen map[string]bool) {
	if seen[entity.ID] {
		return
	}
	seen[entity.ID] = true

	if withHierarchy || len(entity.CrossRefs) > 0 || len(selector.ReferencedBy(entity.ID)) > 0 {
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\"];\n",
			escapeDOTLabel(entity.ID), nodeLabel(entity.ID, entity.Title)))
	}

	for _, ref := range entity.CrossRefs {
		style := ""
		if _, ok := selector.ByID(ref); !ok {
			style = " [style=dashed color=red]"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\"%s;\n", escapeDOTLabel(entity.ID), escapeDOTLabel(ref), style))
	}

	for _, child := range selector.Children(entity.ID) {
		if withHierarchy {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [color=grey arrowhead=none];\n",
				escapeDOTLabel(entity.ID), escapeDOTLabel(child.ID)))
		}
		writeSubtree(sb, selector, child, withHierarchy, seen)
	}
}

func nodeLabel(id, title string) string {
	if len(title) > 32 {
		title = title[:29] + "..."
	}
	return escapeDOTLabel(id) + "\\n" + escapeDOTLabel(title)
}

// escapeDOTLabel escapes special characters for DOT label strings.
func escapeDOTLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
