package entity

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rgerrors "github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

func TestNaturalKey(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.NodeType
		entName string
		props   models.Properties
		want    string
		wantErr bool
	}{
		{
			name:    "dependency",
			kind:    models.NodeDependency,
			entName: "firebase",
			props:   models.Properties{PropVersion: "9.0.0", PropPackageManager: "npm"},
			want:    "firebase|9.0.0|npm",
		},
		{
			name:    "dependency without version",
			kind:    models.NodeDependency,
			entName: "firebase",
			props:   models.Properties{PropPackageManager: "npm"},
			wantErr: true,
		},
		{
			name:    "code element",
			kind:    models.NodeCodeElement,
			entName: "getAdminStorage",
			props: models.Properties{
				PropFilePath: "storage.ts", PropElementType: "function", PropLineNumber: "3",
			},
			want: "storage.ts|getAdminStorage|function|3",
		},
		{
			name:    "code element without line",
			kind:    models.NodeCodeElement,
			entName: "getAdminStorage",
			props:   models.Properties{PropFilePath: "storage.ts", PropElementType: "function"},
			wantErr: true,
		},
		{
			name:    "service",
			kind:    models.NodeService,
			entName: "Firebase Storage",
			props:   models.Properties{PropProvider: "firebase"},
			want:    "firebase|Firebase Storage",
		},
		{
			name:    "package manager is case-insensitive",
			kind:    models.NodePackageManager,
			entName: "NPM",
			want:    "npm",
		},
		{
			name:    "documentation keyed by file",
			kind:    models.NodeDocumentation,
			entName: "README",
			props:   models.Properties{PropFilePath: "README.md"},
			want:    "README.md",
		},
		{
			name:    "empty name",
			kind:    models.NodeTool,
			entName: " ",
			wantErr: true,
		},
		{
			name:    "unknown type",
			kind:    models.NodeType("widget"),
			entName: "x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NaturalKey(tt.kind, tt.entName, tt.props)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, rgerrors.ErrEntity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntity_KeyUsesProvenance(t *testing.T) {
	e := Entity{
		Kind:       models.NodeCodeElement,
		Name:       "handler",
		FilePath:   "api/handler.go",
		LineNumber: 12,
		Properties: map[string]string{PropElementType: "function"},
	}
	key, err := e.Key()
	require.NoError(t, err)
	assert.Equal(t, "api/handler.go|handler|function|12", key)
}

func TestSet_SkipsMalformed(t *testing.T) {
	s := NewSet()

	assert.True(t, s.Add(Entity{
		Kind: models.NodeDependency, Name: "lodash", FilePath: "package.json",
		Properties: map[string]string{PropVersion: "4.17.21", PropPackageManager: "npm"},
	}))
	assert.False(t, s.Add(Entity{Kind: models.NodeDependency, Name: "broken"}))
	assert.False(t, s.Add(Entity{Kind: models.NodeTool, Name: "make", Confidence: 2}))

	assert.Equal(t, 1, s.Len())
	skipped, reasons := s.Skipped()
	assert.Equal(t, 2, skipped)
	assert.Len(t, reasons, 2)
}

func TestSet_DeduplicatesByNaturalKey(t *testing.T) {
	s := NewSet()
	base := Entity{
		Kind: models.NodeService, Name: "Stripe", FilePath: "billing.ts", Confidence: 0.6,
		Properties: map[string]string{PropProvider: "stripe"},
	}
	s.Add(base)

	again := base
	again.Confidence = 0.8
	again.Properties = map[string]string{PropProvider: "stripe", "env_var": "STRIPE_KEY"}
	s.Add(again)

	require.Equal(t, 1, s.Len())
	services := s.OfKind(models.NodeService)
	require.Len(t, services, 1)
	assert.Equal(t, 0.8, services[0].Confidence)
	assert.Equal(t, "STRIPE_KEY", services[0].Properties["env_var"])
}

func TestSet_ConcurrentAdd(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(Entity{
				Kind: models.NodeCodeElement, Name: fmt.Sprintf("fn%d", i), FilePath: "a.go", LineNumber: i + 1,
				Properties: map[string]string{PropElementType: "function"},
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
	assert.Equal(t, 50, s.CountByKind()[models.NodeCodeElement])
}

func TestRelationship_Validate(t *testing.T) {
	from := Ref{Kind: models.NodeCodeElement, Key: "a"}
	to := Ref{Kind: models.NodeCodeElement, Key: "b"}

	assert.NoError(t, (&Relationship{From: from, To: to, Kind: models.EdgeCalls, Confidence: 1}).Validate())
	assert.Error(t, (&Relationship{From: from, To: to, Kind: models.EdgeCalls, Confidence: 0.7}).Validate())
	assert.NoError(t, (&Relationship{From: from, To: to, Kind: models.EdgeCalls, Confidence: 0.7, Evidence: "a() calls b()"}).Validate())
	assert.Error(t, (&Relationship{From: from, To: to, Kind: "teleports", Confidence: 1}).Validate())
	assert.Error(t, (&Relationship{From: Ref{}, To: to, Kind: models.EdgeCalls, Confidence: 1}).Validate())
}

func TestRegistry_OrdersStages(t *testing.T) {
	r := NewRegistry()
	noop := func(name string) Producer {
		return ProducerFunc{ProducerName: name, Fn: func(context.Context, *models.Repository, *Set) error { return nil }}
	}
	r.Register("dependency extraction", noop("deps"))
	r.Register("indexing", noop("tools"))
	r.Register("indexing", noop("tests"))

	stages := r.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "dependency extraction", stages[0].Name)
	assert.Len(t, stages[1].Producers, 2)
	assert.Equal(t, "tests", stages[1].Producers[1].Name())
}
