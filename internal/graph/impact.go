package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	rgerrors "github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

// RiskLevel grades the blast radius of a change
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ImpactEdgeTypes are walked backwards from the change targets
var ImpactEdgeTypes = []models.EdgeType{
	models.EdgeCalls,
	models.EdgeUsesService,
	models.EdgeUsesDependency,
}

// ImpactLimits bound the impact traversal
type ImpactLimits struct {
	MaxDepth  int `json:"max_depth"`
	MaxFanOut int `json:"max_fan_out"`
	MaxChains int `json:"max_chains"`
}

// DefaultImpactLimits returns the default traversal bounds
func DefaultImpactLimits() ImpactLimits {
	return ImpactLimits{MaxDepth: 5, MaxFanOut: 20, MaxChains: 100}
}

// withDefaults fills non-positive limits from the defaults
func (l ImpactLimits) withDefaults() ImpactLimits {
	d := DefaultImpactLimits()
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxFanOut <= 0 {
		l.MaxFanOut = d.MaxFanOut
	}
	if l.MaxChains <= 0 {
		l.MaxChains = d.MaxChains
	}
	return l
}

// maxExpansions bounds the partial paths a single trace may visit
func (l ImpactLimits) maxExpansions() int {
	return l.MaxChains * l.MaxFanOut * l.MaxDepth
}

// AffectedNode is a node reached by the impact walk
type AffectedNode struct {
	Node  *models.Node `json:"node"`
	Depth int          `json:"depth"`
}

// ImpactReport describes what depends on a set of change targets
type ImpactReport struct {
	RepositoryID   string         `json:"repository_id"`
	TargetNodeIDs  []string       `json:"target_node_ids"`
	AffectedNodes  []AffectedNode `json:"affected_nodes"`
	CallChains     [][]string     `json:"call_chains"`
	MaxDepth       int            `json:"max_depth"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Truncated      bool           `json:"truncated"`
	UnknownTargets []string       `json:"unknown_targets,omitempty"`
}

// ImpactTrace is the raw result of a traversal
type ImpactTrace struct {
	Depths    map[string]int // shortest distance per affected node
	Chains    [][]string
	MaxDepth  int // length of the longest explored path
	Truncated bool
	Limit     string // first bound that truncated the walk
	LimitAt   int
}

func (t *ImpactTrace) truncate(limit string, value int) {
	if !t.Truncated {
		t.Limit, t.LimitAt = limit, value
	}
	t.Truncated = true
}

// ClassifyRisk grades a change by how many nodes it reaches and how deep.
// The higher of the two grades wins.
func ClassifyRisk(affected, maxDepth int) RiskLevel {
	byCount := RiskLow
	switch {
	case affected > 10:
		byCount = RiskHigh
	case affected > 5:
		byCount = RiskMedium
	}

	byDepth := RiskLow
	switch {
	case maxDepth > 4:
		byDepth = RiskHigh
	case maxDepth > 2:
		byDepth = RiskMedium
	}

	if riskRank(byDepth) > riskRank(byCount) {
		return byDepth
	}
	return byCount
}

func riskRank(r RiskLevel) int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// TraceImpact walks incoming (target -> sources) breadth first from every
// target. Each partial path carries its own visited set, so cycles end the
// path instead of the walk. A path that cannot grow is recorded as a chain,
// root first. Bounds set Truncated; they never fail the trace.
func TraceImpact(incoming map[string][]string, targets []string, limits ImpactLimits) *ImpactTrace {
	limits = limits.withDefaults()
	trace := &ImpactTrace{Depths: make(map[string]int)}

	isTarget := make(map[string]bool, len(targets))
	for _, t := range targets {
		isTarget[t] = true
	}

	queue := make([][]string, 0, len(targets))
	for _, t := range targets {
		queue = append(queue, []string{t})
	}

	expansions := 0
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		expansions++
		if expansions > limits.maxExpansions() {
			trace.truncate("expansion", limits.maxExpansions())
			break
		}

		head := path[len(path)-1]
		depth := len(path) - 1
		if depth > trace.MaxDepth {
			trace.MaxDepth = depth
		}

		var next []string
		for _, src := range incoming[head] {
			if !onPath(path, src) {
				next = append(next, src)
			}
		}

		if len(next) > 0 && depth >= limits.MaxDepth {
			trace.truncate("max_depth", limits.MaxDepth)
			next = nil
		}
		if len(next) > limits.MaxFanOut {
			trace.truncate("max_fan_out", limits.MaxFanOut)
			next = next[:limits.MaxFanOut]
		}

		if len(next) == 0 {
			if depth > 0 {
				trace.addChain(path, limits.MaxChains)
			}
			continue
		}

		for _, src := range next {
			if !isTarget[src] {
				if d, ok := trace.Depths[src]; !ok || depth+1 < d {
					trace.Depths[src] = depth + 1
				}
			}
			extended := make([]string, len(path)+1)
			copy(extended, path)
			extended[len(path)] = src
			queue = append(queue, extended)
		}
	}

	return trace
}

func onPath(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

// addChain records path reversed so the chain reads root -> target
func (t *ImpactTrace) addChain(path []string, maxChains int) {
	if len(t.Chains) >= maxChains {
		t.truncate("max_chains", maxChains)
		return
	}
	chain := make([]string, len(path))
	for i, id := range path {
		chain[len(path)-1-i] = id
	}
	t.Chains = append(t.Chains, chain)
}

// BuildIncoming indexes edges by target, keeping each source once in id order
func BuildIncoming(edges []*models.Edge) map[string][]string {
	seen := make(map[[2]string]bool, len(edges))
	incoming := make(map[string][]string)
	for _, e := range edges {
		k := [2]string{e.TargetNodeID, e.SourceNodeID}
		if seen[k] || e.SourceNodeID == e.TargetNodeID {
			continue
		}
		seen[k] = true
		incoming[e.TargetNodeID] = append(incoming[e.TargetNodeID], e.SourceNodeID)
	}
	for _, sources := range incoming {
		sort.Strings(sources)
	}
	return incoming
}

// RefactoringImpact reports every node that reaches targetIDs through
// Calls, UsesService or UsesDependency edges of the repository.
func (q *QueryEngine) RefactoringImpact(ctx context.Context, repoID string, targetIDs []string, limits ImpactLimits) (*ImpactReport, error) {
	limits = limits.withDefaults()

	if _, err := q.store.GetRepository(ctx, repoID); err != nil {
		return nil, fmt.Errorf("repository %s: %w", repoID, err)
	}

	nodes, err := q.store.ListNodes(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	byID := make(map[string]*models.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	report := &ImpactReport{
		RepositoryID:  repoID,
		TargetNodeIDs: targetIDs,
		AffectedNodes: []AffectedNode{},
		CallChains:    [][]string{},
		RiskLevel:     RiskLow,
	}

	var known []string
	for _, id := range targetIDs {
		if _, ok := byID[id]; ok {
			known = append(known, id)
		} else {
			report.UnknownTargets = append(report.UnknownTargets, id)
		}
	}
	if len(known) == 0 {
		return report, nil
	}

	edges, err := q.store.ListEdgesByType(ctx, repoID, ImpactEdgeTypes)
	if err != nil {
		return nil, fmt.Errorf("list impact edges: %w", err)
	}

	trace := TraceImpact(BuildIncoming(edges), known, limits)

	for id, depth := range trace.Depths {
		if n, ok := byID[id]; ok {
			report.AffectedNodes = append(report.AffectedNodes, AffectedNode{Node: n, Depth: depth})
		}
	}
	sort.Slice(report.AffectedNodes, func(i, j int) bool {
		a, b := report.AffectedNodes[i], report.AffectedNodes[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.Node.ID < b.Node.ID
	})
	if trace.Chains != nil {
		report.CallChains = trace.Chains
	}
	report.MaxDepth = trace.MaxDepth
	report.Truncated = trace.Truncated
	report.RiskLevel = ClassifyRisk(len(report.AffectedNodes), report.MaxDepth)

	if report.Truncated {
		limitErr := rgerrors.TraversalLimitExceeded(trace.Limit, trace.LimitAt)
		q.logger.WithError(limitErr).
			WithFields(logrus.Fields(limitErr.Fields())).
			WithField("repository_id", repoID).
			Warn("impact traversal truncated")
	}

	q.logger.WithFields(logrus.Fields{
		"repository_id": repoID,
		"targets":       len(known),
		"affected":      len(report.AffectedNodes),
		"max_depth":     report.MaxDepth,
		"risk":          report.RiskLevel,
		"truncated":     report.Truncated,
	}).Debug("refactoring impact computed")

	return report, nil
}
