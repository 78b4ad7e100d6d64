package graph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rohankatakam/repograph/internal/models"
)

// CommonLabel is carried by every mirrored node so edges can match endpoints
// through one index.
const CommonLabel = "GraphNode"

// CypherBuilder builds parameterized Cypher queries. Values always travel as
// parameters; identifiers are validated before interpolation.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildDeleteRepository removes every mirrored node of a repository
func (b *CypherBuilder) BuildDeleteRepository(repoID string) string {
	repoParam := b.AddParam(repoID)
	return fmt.Sprintf("MATCH (n:%s {repository_id: %s}) DETACH DELETE n", CommonLabel, repoParam)
}

// BuildMergeNodes creates an UNWIND MERGE for a batch of nodes of one label
func (b *CypherBuilder) BuildMergeNodes(label string, nodes []GraphNode) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}

	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.Label != label {
			return "", fmt.Errorf("node %s has label %s, batch is %s", n.ID, n.Label, label)
		}
		for key := range n.Properties {
			if !isValidIdentifier(key) {
				return "", fmt.Errorf("invalid property key: %s (must be alphanumeric + underscore)", key)
			}
		}
		rows = append(rows, map[string]any{"id": n.ID, "props": n.Properties})
	}
	rowsParam := b.AddParam(rows)

	return fmt.Sprintf(
		"UNWIND %s AS row MERGE (n:%s {id: row.id}) SET n:%s SET n += row.props",
		rowsParam, CommonLabel, label,
	), nil
}

// BuildMergeEdges creates an UNWIND MERGE for a batch of edges of one type
func (b *CypherBuilder) BuildMergeEdges(relType string, edges []GraphEdge) (string, error) {
	if !isValidIdentifier(relType) {
		return "", fmt.Errorf("invalid edge label: %s", relType)
	}

	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e.Label != relType {
			return "", fmt.Errorf("edge %s has type %s, batch is %s", e.ID, e.Label, relType)
		}
		for key := range e.Properties {
			if !isValidIdentifier(key) {
				return "", fmt.Errorf("invalid edge property key: %s", key)
			}
		}
		rows = append(rows, map[string]any{"id": e.ID, "from": e.From, "to": e.To, "props": e.Properties})
	}
	rowsParam := b.AddParam(rows)

	return fmt.Sprintf(
		"UNWIND %s AS row MATCH (from:%s {id: row.from}) MATCH (to:%s {id: row.to}) "+
			"MERGE (from)-[r:%s {id: row.id}]->(to) SET r += row.props",
		rowsParam, CommonLabel, CommonLabel, relType,
	), nil
}

// NodeLabel maps a node type to its label: code_element -> CodeElement
func NodeLabel(t models.NodeType) string {
	parts := strings.Split(string(t), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

// RelationshipType maps an edge type to its relationship type: uses_service -> USES_SERVICE
func RelationshipType(t models.EdgeType) string {
	return strings.ToUpper(string(t))
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely used as a Cypher identifier
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

var nonIdentifierChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitizeIdentifier turns an arbitrary property key into a valid identifier
func sanitizeIdentifier(s string) string {
	s = nonIdentifierChars.ReplaceAllString(s, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}
