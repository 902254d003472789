// Package display renders the type nests of a redefinition plan.
package display

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/redefine"
	"github.com/standardbeagle/redefine/internal/types"
)

// Node is one type of a nest.
type Node struct {
	Name string // compiled name
	// Target is the name the type will be known by.
	Target string
	// Previous is the identity it continues, "" for new types.
	Previous string
	Score    int
	Depth    int
	Children []*Node
}

// FromPlan builds one tree per root of plan.
func FromPlan(plan *redefine.Plan) []*Node {
	if plan == nil {
		return nil
	}
	byDescriptor := make(map[*descriptor.TypeDescriptor]redefine.Match, len(plan.Descriptors))
	for i, d := range plan.Descriptors {
		byDescriptor[d] = plan.Matches[i]
	}

	var build func(d *descriptor.TypeDescriptor, depth int) *Node
	build = func(d *descriptor.TypeDescriptor, depth int) *Node {
		m := byDescriptor[d]
		n := &Node{Name: m.Name, Target: m.Target, Previous: m.Previous, Score: m.Score, Depth: depth}
		if n.Name == "" {
			n.Name, n.Target = d.OriginalName(), d.CurrentName()
		}
		for _, c := range d.Nested() {
			n.Children = append(n.Children, build(c, depth+1))
		}
		return n
	}

	out := make([]*Node, 0, len(plan.Roots))
	for _, r := range plan.Roots {
		out = append(out, build(r, 0))
	}
	return out
}

// TreeFormatter formats nests for display
type TreeFormatter struct {
	options FormatterOptions
}

// FormatterOptions controls tree formatting
type FormatterOptions struct {
	Format     string // "text", "compact"
	ShowScores bool
	MaxDepth   int // 0 means unlimited
}

// NewTreeFormatter creates a new tree formatter
func NewTreeFormatter(options FormatterOptions) *TreeFormatter {
	return &TreeFormatter{options: options}
}

// Format formats the nests for display
func (tf *TreeFormatter) Format(roots []*Node) string {
	if len(roots) == 0 {
		return "No types in plan"
	}
	if tf.options.Format == "compact" {
		lines := make([]string, 0, len(roots))
		for _, r := range roots {
			lines = append(lines, tf.formatCompact(r))
		}
		return strings.Join(lines, "\n")
	}

	var sb strings.Builder
	for _, r := range roots {
		tf.formatNode(&sb, r, "", true, true)
	}
	return sb.String()
}

// formatNode recursively formats a tree node
func (tf *TreeFormatter) formatNode(sb *strings.Builder, node *Node, prefix string, isLast bool, isRoot bool) {
	if tf.options.MaxDepth > 0 && node.Depth > tf.options.MaxDepth {
		return
	}

	var branch string
	if isRoot {
		branch = "→ "
	} else if isLast {
		branch = "└─→ "
	} else {
		branch = "├─→ "
	}

	sb.WriteString(prefix)
	sb.WriteString(branch)
	sb.WriteString(tf.label(node))
	sb.WriteString("\n")

	for i, child := range node.Children {
		var childPrefix string
		if isRoot || isLast {
			childPrefix = prefix + "  "
		} else {
			childPrefix = prefix + "│ "
		}
		tf.formatNode(sb, child, childPrefix, i == len(node.Children)-1, false)
	}
}

func (tf *TreeFormatter) label(node *Node) string {
	name := node.Name
	if node.Target != "" && node.Target != node.Name {
		name += " => " + node.Target
	}
	if node.Previous == "" {
		return name + " (new)"
	}
	if tf.options.ShowScores {
		name += fmt.Sprintf(" (score %d/%d)", node.Score, types.MaxScore)
	}
	return name
}

// formatCompact lists a nest in pre-order on one line
func (tf *TreeFormatter) formatCompact(root *Node) string {
	var parts []string
	var collect func(n *Node)
	collect = func(n *Node) {
		if tf.options.MaxDepth > 0 && n.Depth > tf.options.MaxDepth {
			return
		}
		parts = append(parts, tf.label(n))
		for _, c := range n.Children {
			collect(c)
		}
	}
	collect(root)
	return strings.Join(parts, ", ")
}
