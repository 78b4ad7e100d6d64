// Package entity defines the raw shapes every producer emits before they
// become graph nodes and edges.
package entity

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

// Well-known property keys
const (
	PropVersion        = "version"
	PropPackageManager = "package_manager"
	PropProvider       = "provider"
	PropLanguage       = "language"
	PropFilePath       = "file_path"
	PropLineNumber     = "line_number"
	PropEndLine        = "end_line"
	PropElementType    = "element_type"
	PropEntityType     = "entity_type"
	PropTestFramework  = "test_framework"
	PropConfidence     = "confidence"
	PropProducer       = "producer"
)

// Entity is a raw typed entity with provenance
type Entity struct {
	Kind       models.NodeType   `json:"kind" validate:"required"`
	Name       string            `json:"name" validate:"required,max=512"`
	FilePath   string            `json:"file_path,omitempty" validate:"omitempty,max=4096"`
	LineNumber int               `json:"line_number,omitempty" validate:"gte=0"`
	Confidence float64           `json:"confidence,omitempty" validate:"gte=0,lte=1"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Ref identifies an entity by kind and natural key
type Ref struct {
	Kind models.NodeType `json:"kind"`
	Key  string          `json:"key"`
}

// String renders the ref for logs and evidence
func (r Ref) String() string {
	return string(r.Kind) + ":" + r.Key
}

// Relationship is a producer-reported edge between two entities
type Relationship struct {
	From       Ref             `json:"from"`
	To         Ref             `json:"to"`
	Kind       models.EdgeType `json:"kind"`
	Confidence float64         `json:"confidence"`
	Evidence   string          `json:"evidence,omitempty"`
}

// Candidate is an inferred relationship. It becomes an edge only when its
// confidence reaches the builder's threshold.
type Candidate = Relationship

// Get returns a property, falling back to the provenance fields
func (e *Entity) Get(key string) string {
	switch key {
	case PropFilePath:
		if e.FilePath != "" {
			return e.FilePath
		}
	case PropLineNumber:
		if e.LineNumber > 0 {
			return strconv.Itoa(e.LineNumber)
		}
	}
	return e.Properties[key]
}

// Set stores a property, allocating the map on first use
func (e *Entity) Set(key, value string) {
	if e.Properties == nil {
		e.Properties = make(map[string]string)
	}
	e.Properties[key] = value
}

// NodeProperties flattens provenance and metadata into node properties
func (e *Entity) NodeProperties() models.Properties {
	props := make(models.Properties, len(e.Properties)+3)
	for k, v := range e.Properties {
		props[k] = v
	}
	if e.FilePath != "" {
		props[PropFilePath] = e.FilePath
	}
	if e.LineNumber > 0 {
		props[PropLineNumber] = strconv.Itoa(e.LineNumber)
	}
	if e.Confidence > 0 {
		props[PropConfidence] = strconv.FormatFloat(e.Confidence, 'f', 2, 64)
	}
	return props
}

// Key computes the natural key of the entity
func (e *Entity) Key() (string, error) {
	return NaturalKey(e.Kind, e.Name, e.NodeProperties())
}

// Ref returns the entity's reference
func (e *Entity) Ref() (Ref, error) {
	key, err := e.Key()
	if err != nil {
		return Ref{}, err
	}
	return Ref{Kind: e.Kind, Key: key}, nil
}

// NaturalKey derives the identity of a node within its repository.
// Every node type lists its identifying fields explicitly.
func NaturalKey(kind models.NodeType, name string, props models.Properties) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.EntityErrorf("%s entity has no name", kind)
	}

	var fields []string
	switch kind {
	case models.NodeRepository:
		return name, nil
	case models.NodeDependency:
		fields = []string{PropVersion, PropPackageManager}
	case models.NodeService:
		return joinKey(kind, []string{props[PropProvider], name}, PropProvider)
	case models.NodePackageManager, models.NodeServiceProvider, models.NodeTestFramework:
		return strings.ToLower(name), nil
	case models.NodeCodeElement:
		return joinKey(kind, []string{props[PropFilePath], name, props[PropElementType], props[PropLineNumber]},
			PropFilePath, "", PropElementType, PropLineNumber)
	case models.NodeSecurityEntity:
		return joinKey(kind, []string{props[PropEntityType], name, props[PropFilePath]},
			PropEntityType, "", PropFilePath)
	case models.NodeTool:
		return joinKey(kind, []string{name, props[PropFilePath]}, "", PropFilePath)
	case models.NodeTest:
		return joinKey(kind, []string{props[PropFilePath], name, props[PropLineNumber]},
			PropFilePath, "", PropLineNumber)
	case models.NodeDocumentation:
		return joinKey(kind, []string{props[PropFilePath]}, PropFilePath)
	default:
		return "", errors.EntityErrorf("unknown node type %q", kind)
	}

	parts := []string{name}
	for _, f := range fields {
		if props[f] == "" {
			return "", errors.EntityErrorf("%s %q is missing %s", kind, name, f)
		}
		parts = append(parts, props[f])
	}
	return strings.Join(parts, "|"), nil
}

// joinKey joins parts, failing on an empty part. names labels each part for
// the error message; an empty label marks the name itself.
func joinKey(kind models.NodeType, parts []string, names ...string) (string, error) {
	for i, p := range parts {
		if p != "" {
			continue
		}
		label := "name"
		if i < len(names) && names[i] != "" {
			label = names[i]
		}
		return "", errors.EntityErrorf("%s entity is missing %s", kind, label)
	}
	return strings.Join(parts, "|"), nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that a natural key can be derived
func (e *Entity) Validate() error {
	if err := validate.Struct(e); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEntity, errors.SeverityLow, "invalid entity")
	}
	if !e.Kind.Valid() {
		return errors.EntityErrorf("unknown node type %q", e.Kind)
	}
	if _, err := e.Key(); err != nil {
		return err
	}
	return nil
}

// Validate checks the relationship shape
func (r *Relationship) Validate() error {
	if !r.Kind.Valid() {
		return errors.EntityErrorf("unknown relationship type %q", r.Kind)
	}
	if r.From.Key == "" || r.To.Key == "" {
		return errors.EntityErrorf("%s relationship has an empty endpoint", r.Kind)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.EntityErrorf("%s relationship confidence %.2f out of range", r.Kind, r.Confidence)
	}
	if r.Confidence < 1 && strings.TrimSpace(r.Evidence) == "" {
		return errors.EntityErrorf("%s relationship with confidence %.2f has no evidence", r.Kind, r.Confidence)
	}
	return nil
}
