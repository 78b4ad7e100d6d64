package graph

import (
	"fmt"
	"math"
	"strings"
)

// EvidenceSeparator joins evidence entries accumulated on one edge
const EvidenceSeparator = "; "

// MergeConfidence combines repeated detections of the same relationship.
// The result is the maximum, so repeated weak matches never add up.
func MergeConfidence(old, new float64) float64 {
	return math.Max(old, new)
}

// MergeEvidence appends new evidence unless an identical entry is present.
// Entries may themselves contain the separator, so presence is checked on
// entry boundaries of the joined string rather than on split parts.
func MergeEvidence(existing, evidence string) string {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return existing
	}
	if existing == "" {
		return evidence
	}
	if hasEvidence(existing, evidence) {
		return existing
	}
	return existing + EvidenceSeparator + evidence
}

func hasEvidence(existing, evidence string) bool {
	return existing == evidence ||
		strings.HasPrefix(existing, evidence+EvidenceSeparator) ||
		strings.HasSuffix(existing, EvidenceSeparator+evidence) ||
		strings.Contains(existing, EvidenceSeparator+evidence+EvidenceSeparator)
}

// ValidateConfidence enforces the edge invariants: confidence within [0,1]
// and evidence present whenever confidence is below 1.
func ValidateConfidence(confidence float64, evidence string) error {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", confidence)
	}
	if confidence < 1 && strings.TrimSpace(evidence) == "" {
		return fmt.Errorf("evidence required for confidence %.2f", confidence)
	}
	return nil
}
