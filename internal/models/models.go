package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Repository is a registered local checkout that can be analyzed
type Repository struct {
	ID           string     `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Path         string     `json:"path" db:"path"`
	URL          string     `json:"url,omitempty" db:"url"`
	Branch       string     `json:"branch,omitempty" db:"branch"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	LastAnalyzed *time.Time `json:"last_analyzed,omitempty" db:"last_analyzed"`
}

// NodeType is the tagged variant of a graph node
type NodeType string

const (
	NodeRepository      NodeType = "repository"
	NodeDependency      NodeType = "dependency"
	NodeService         NodeType = "service"
	NodePackageManager  NodeType = "package_manager"
	NodeServiceProvider NodeType = "service_provider"
	NodeCodeElement     NodeType = "code_element"
	NodeSecurityEntity  NodeType = "security_entity"
	NodeTool            NodeType = "tool"
	NodeTest            NodeType = "test"
	NodeTestFramework   NodeType = "test_framework"
	NodeDocumentation   NodeType = "documentation"
)

// NodeTypes lists every node variant in display order
var NodeTypes = []NodeType{
	NodeRepository, NodeDependency, NodeService, NodePackageManager,
	NodeServiceProvider, NodeCodeElement, NodeSecurityEntity, NodeTool,
	NodeTest, NodeTestFramework, NodeDocumentation,
}

// Valid reports whether t is a known node type
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EdgeType is the tagged variant of a graph edge
type EdgeType string

const (
	EdgeDependsOn          EdgeType = "depends_on"
	EdgeUsesService        EdgeType = "uses_service"
	EdgeUsesDependency     EdgeType = "uses_dependency"
	EdgeHasDependency      EdgeType = "has_dependency"
	EdgeUsesPackageManager EdgeType = "uses_package_manager"
	EdgeProvidedBy         EdgeType = "provided_by"
	EdgeCalls              EdgeType = "calls"
	EdgeConfigures         EdgeType = "configures"
	EdgeSecures            EdgeType = "secures"
	EdgeHasTest            EdgeType = "has_test"
	EdgeTestUsesFramework  EdgeType = "test_uses_framework"
	EdgeTestTestsCode      EdgeType = "test_tests_code"
	EdgeUsesTool           EdgeType = "uses_tool"
	EdgeDocuments          EdgeType = "documents"
	EdgeRelatedTo          EdgeType = "related_to"
)

// EdgeTypes lists every edge variant
var EdgeTypes = []EdgeType{
	EdgeDependsOn, EdgeUsesService, EdgeUsesDependency, EdgeHasDependency,
	EdgeUsesPackageManager, EdgeProvidedBy, EdgeCalls, EdgeConfigures,
	EdgeSecures, EdgeHasTest, EdgeTestUsesFramework, EdgeTestTestsCode,
	EdgeUsesTool, EdgeDocuments, EdgeRelatedTo,
}

// Valid reports whether t is a known edge type
func (t EdgeType) Valid() bool {
	for _, known := range EdgeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Properties holds type-specific node attributes. Stored as a JSON column.
type Properties map[string]string

// Value implements driver.Valuer
func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (p *Properties) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Properties{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("properties: unsupported scan type %T", src)
	}
	out := Properties{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("properties: %w", err)
		}
	}
	*p = out
	return nil
}

// Equal reports whether both maps hold the same pairs
func (p Properties) Equal(other Properties) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns an independent copy
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Node is one typed vertex of a repository graph
type Node struct {
	ID           string     `json:"id" db:"id"`
	RepositoryID string     `json:"repository_id" db:"repository_id"`
	NodeType     NodeType   `json:"node_type" db:"node_type"`
	Name         string     `json:"name" db:"name"`
	NaturalKey   string     `json:"natural_key" db:"natural_key"`
	Properties   Properties `json:"properties" db:"properties"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Edge is a directed, confidence-scored relationship between two nodes
type Edge struct {
	ID           string    `json:"id" db:"id"`
	RepositoryID string    `json:"repository_id" db:"repository_id"`
	SourceNodeID string    `json:"source_node_id" db:"source_node_id"`
	TargetNodeID string    `json:"target_node_id" db:"target_node_id"`
	EdgeType     EdgeType  `json:"edge_type" db:"edge_type"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	Evidence     string    `json:"evidence,omitempty" db:"evidence"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NodeDegree is a node with its incident-edge count
type NodeDegree struct {
	ID       string   `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	NodeType NodeType `json:"node_type" db:"node_type"`
	Degree   int      `json:"degree" db:"degree"`
}

// AnalysisStatus is the state of a pipeline run
type AnalysisStatus string

const (
	StatusPending  AnalysisStatus = "pending"
	StatusRunning  AnalysisStatus = "running"
	StatusComplete AnalysisStatus = "complete"
	StatusFailed   AnalysisStatus = "failed"
)

// Terminal reports whether no further transitions happen
func (s AnalysisStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// AnalysisProgress is the polled view of one repository's current run
type AnalysisProgress struct {
	RepositoryID    string                 `json:"repository_id"`
	RunID           string                 `json:"run_id"`
	Status          AnalysisStatus         `json:"status"`
	CurrentStep     int                    `json:"current_step"`
	TotalSteps      int                    `json:"total_steps"`
	StepName        string                 `json:"step_name"`
	StatusMessage   string                 `json:"status_message"`
	ProgressPercent float64                `json:"progress_percent"`
	StartedAt       time.Time              `json:"started_at"`
	LastUpdated     time.Time              `json:"last_updated"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

// Clone returns a copy whose Details map can be read without locking
func (p *AnalysisProgress) Clone() *AnalysisProgress {
	out := *p
	if p.Details != nil {
		out.Details = make(map[string]interface{}, len(p.Details))
		for k, v := range p.Details {
			out.Details[k] = v
		}
	}
	return &out
}
