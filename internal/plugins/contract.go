package plugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rohankatakam/repograph/internal/analysis"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

// Output is the document a plugin writes to stdout
type Output struct {
	CodeElements      []Element      `json:"code_elements"`
	CodeRelationships []Relationship `json:"code_relationships"`
}

// Element is one code element reported by a plugin. ID is local to the
// document and only used to resolve relationships.
type Element struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ElementType string            `json:"element_type"`
	FilePath    string            `json:"file_path"`
	LineNumber  int               `json:"line_number"`
	EndLine     int               `json:"end_line,omitempty"`
	Language    string            `json:"language,omitempty"`
	Signature   string            `json:"signature,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Relationship links two elements of the same document
type Relationship struct {
	SourceID         string   `json:"source_id"`
	TargetID         string   `json:"target_id"`
	RelationshipType string   `json:"relationship_type"`
	Confidence       *float64 `json:"confidence,omitempty"`
	Evidence         string   `json:"evidence,omitempty"`
}

// Decode parses plugin stdout. Exactly one JSON object is accepted;
// anything after it other than whitespace is an error. An empty object is
// a document with no findings.
func Decode(data []byte) (*Output, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty output")
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("invalid JSON: top-level value must be an object")
	}
	dec := json.NewDecoder(bytes.NewReader(data))

	var out Output
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("trailing content after JSON document")
	}
	return &out, nil
}

// Normalize converts a decoded document into entities and relationships.
// Elements that fail validation and relationships naming unknown ids are
// skipped and counted on out.
func Normalize(plugin string, doc *Output, out *entity.Set) {
	producer := "plugin:" + plugin
	ids := make(map[string]entity.Ref, len(doc.CodeElements))

	for _, el := range doc.CodeElements {
		e := entity.Entity{
			Kind:       models.NodeCodeElement,
			Name:       el.Name,
			FilePath:   el.FilePath,
			LineNumber: el.LineNumber,
			Properties: make(map[string]string, len(el.Properties)+5),
		}
		for k, v := range el.Properties {
			e.Properties[k] = v
		}
		e.Set(entity.PropElementType, el.ElementType)
		e.Set(entity.PropProducer, producer)
		if el.Language != "" {
			e.Set(entity.PropLanguage, el.Language)
		}
		if el.EndLine > 0 {
			e.Set(entity.PropEndLine, strconv.Itoa(el.EndLine))
		}
		if el.Signature != "" {
			e.Set(analysis.PropSignature, el.Signature)
		}
		if !out.Add(e) {
			continue
		}
		if el.ID != "" {
			ids[el.ID], _ = e.Ref()
		}
	}

	for _, r := range doc.CodeRelationships {
		from, ok := ids[r.SourceID]
		if !ok {
			out.Skip(errors.EntityErrorf("%s: relationship source %q is not a known element", producer, r.SourceID).Error())
			continue
		}
		to, ok := ids[r.TargetID]
		if !ok {
			out.Skip(errors.EntityErrorf("%s: relationship target %q is not a known element", producer, r.TargetID).Error())
			continue
		}
		kind := models.EdgeType(strings.ToLower(strings.TrimSpace(r.RelationshipType)))
		if !kind.Valid() {
			out.Skip(errors.EntityErrorf("%s: unknown relationship type %q", producer, r.RelationshipType).Error())
			continue
		}
		confidence := 1.0
		if r.Confidence != nil {
			confidence = *r.Confidence
		}
		evidence := r.Evidence
		if evidence == "" && confidence < 1 {
			evidence = "reported by " + producer
		}
		out.Relate(entity.Relationship{From: from, To: to, Kind: kind, Confidence: confidence, Evidence: evidence})
	}
}
