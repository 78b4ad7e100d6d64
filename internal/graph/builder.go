package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/entity"
	rgerrors "github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/storage"
)

var (
	nodeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("repograph/node"))
	edgeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("repograph/edge"))
)

// UpsertResult says what an upsert did to the stored row
type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Created
	Updated
)

// BuildStats summarizes one graph build
type BuildStats struct {
	NodesCreated   int `json:"nodes_created"`
	NodesUpdated   int `json:"nodes_updated"`
	NodesUnchanged int `json:"nodes_unchanged"`
	NodesRemoved   int `json:"nodes_removed"`

	EdgesCreated   int `json:"edges_created"`
	EdgesUpdated   int `json:"edges_updated"`
	EdgesUnchanged int `json:"edges_unchanged"`
	EdgesRemoved   int `json:"edges_removed"`

	SkippedEntities      int `json:"skipped_entities"`
	SkippedRelationships int `json:"skipped_relationships"`
	DroppedCandidates    int `json:"dropped_candidates"`
}

func (s *BuildStats) countNode(r UpsertResult) {
	switch r {
	case Created:
		s.NodesCreated++
	case Updated:
		s.NodesUpdated++
	default:
		s.NodesUnchanged++
	}
}

func (s *BuildStats) countEdge(r UpsertResult) {
	switch r {
	case Created:
		s.EdgesCreated++
	case Updated:
		s.EdgesUpdated++
	default:
		s.EdgesUnchanged++
	}
}

// Builder turns entities and candidates into persisted nodes and edges
type Builder struct {
	store         storage.Store
	logger        *logrus.Logger
	minConfidence float64
	now           func() time.Time
}

// NewBuilder creates a graph builder. Candidates below minConfidence are
// dropped during Build.
func NewBuilder(store storage.Store, logger *logrus.Logger, minConfidence float64) *Builder {
	return &Builder{
		store:         store,
		logger:        logger,
		minConfidence: minConfidence,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NodeID returns the stable id of a node identity
func NodeID(repoID string, nodeType models.NodeType, naturalKey string) string {
	return uuid.NewSHA1(nodeNamespace, []byte(repoID+"\x00"+string(nodeType)+"\x00"+naturalKey)).String()
}

// EdgeID returns the stable id of an edge identity
func EdgeID(sourceID, targetID string, edgeType models.EdgeType) string {
	return uuid.NewSHA1(edgeNamespace, []byte(sourceID+"\x00"+targetID+"\x00"+string(edgeType))).String()
}

// UpsertNode returns the node for (repoID, nodeType, natural key), creating
// it when unknown and refreshing name and properties in place otherwise.
func (b *Builder) UpsertNode(ctx context.Context, repoID string, nodeType models.NodeType, name string, props models.Properties) (*models.Node, UpsertResult, error) {
	if props == nil {
		props = models.Properties{}
	}
	key, err := entity.NaturalKey(nodeType, name, props)
	if err != nil {
		return nil, Unchanged, err
	}

	existing, err := b.store.GetNodeByKey(ctx, repoID, nodeType, key)
	switch {
	case err == nil:
		if existing.Name == name && existing.Properties.Equal(props) {
			return existing, Unchanged, nil
		}
		existing.Name = name
		existing.Properties = props.Clone()
		existing.UpdatedAt = b.now()
		if err := b.store.UpdateNode(ctx, existing); err != nil {
			return nil, Unchanged, err
		}
		return existing, Updated, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, Unchanged, err
	}

	now := b.now()
	node := &models.Node{
		ID:           NodeID(repoID, nodeType, key),
		RepositoryID: repoID,
		NodeType:     nodeType,
		Name:         name,
		NaturalKey:   key,
		Properties:   props.Clone(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.store.InsertNode(ctx, node); err != nil {
		return nil, Unchanged, err
	}
	return node, Created, nil
}

// UpsertEdge records a relationship between two nodes of repoID. A repeated
// detection keeps the higher confidence and appends unseen evidence.
func (b *Builder) UpsertEdge(ctx context.Context, repoID, sourceID, targetID string, edgeType models.EdgeType, confidence float64, evidence string) (*models.Edge, UpsertResult, error) {
	for _, id := range []string{sourceID, targetID} {
		node, err := b.store.GetNode(ctx, id)
		if err != nil {
			return nil, Unchanged, fmt.Errorf("edge endpoint: %w", err)
		}
		if node.RepositoryID != repoID {
			return nil, Unchanged, rgerrors.ValidationErrorf("node %s belongs to repository %s, not %s", id, node.RepositoryID, repoID)
		}
	}
	return b.upsertEdge(ctx, repoID, sourceID, targetID, edgeType, confidence, evidence)
}

// upsertEdge skips the endpoint lookups; callers guarantee both nodes exist
// in repoID.
func (b *Builder) upsertEdge(ctx context.Context, repoID, sourceID, targetID string, edgeType models.EdgeType, confidence float64, evidence string) (*models.Edge, UpsertResult, error) {
	if !edgeType.Valid() {
		return nil, Unchanged, rgerrors.ValidationErrorf("unknown edge type %q", edgeType)
	}
	if err := ValidateConfidence(confidence, evidence); err != nil {
		return nil, Unchanged, rgerrors.Wrap(err, rgerrors.ErrorTypeValidation, rgerrors.SeverityHigh, string(edgeType))
	}

	existing, err := b.store.GetEdge(ctx, sourceID, targetID, edgeType)
	switch {
	case err == nil:
		merged := MergeConfidence(existing.Confidence, confidence)
		mergedEvidence := MergeEvidence(existing.Evidence, evidence)
		if merged == existing.Confidence && mergedEvidence == existing.Evidence {
			return existing, Unchanged, nil
		}
		existing.Confidence = merged
		existing.Evidence = mergedEvidence
		existing.UpdatedAt = b.now()
		if err := b.store.UpdateEdge(ctx, existing); err != nil {
			return nil, Unchanged, err
		}
		return existing, Updated, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, Unchanged, err
	}

	now := b.now()
	edge := &models.Edge{
		ID:           EdgeID(sourceID, targetID, edgeType),
		RepositoryID: repoID,
		SourceNodeID: sourceID,
		TargetNodeID: targetID,
		EdgeType:     edgeType,
		Confidence:   confidence,
		Evidence:     evidence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.store.InsertEdge(ctx, edge); err != nil {
		return nil, Unchanged, err
	}
	return edge, Created, nil
}

// Reconcile removes every node and edge of repoID that the current run did
// not touch. Edges go first so the removed count is exact.
func (b *Builder) Reconcile(ctx context.Context, repoID string, seenNodes, seenEdges map[string]struct{}) (nodesRemoved, edgesRemoved int, err error) {
	edgeIDs, err := b.store.ListEdgeIDs(ctx, repoID)
	if err != nil {
		return 0, 0, err
	}
	var staleEdges []string
	for _, id := range edgeIDs {
		if _, ok := seenEdges[id]; !ok {
			staleEdges = append(staleEdges, id)
		}
	}
	if edgesRemoved, err = b.store.DeleteEdges(ctx, repoID, staleEdges); err != nil {
		return 0, 0, err
	}

	nodeIDs, err := b.store.ListNodeIDs(ctx, repoID)
	if err != nil {
		return 0, edgesRemoved, err
	}
	var staleNodes []string
	for _, id := range nodeIDs {
		if _, ok := seenNodes[id]; !ok {
			staleNodes = append(staleNodes, id)
		}
	}
	if nodesRemoved, err = b.store.DeleteNodes(ctx, repoID, staleNodes); err != nil {
		return 0, edgesRemoved, err
	}

	if nodesRemoved > 0 || edgesRemoved > 0 {
		b.logger.WithFields(logrus.Fields{
			"repository_id": repoID,
			"nodes_removed": nodesRemoved,
			"edges_removed": edgesRemoved,
		}).Info("pruned stale graph elements")
	}
	return nodesRemoved, edgesRemoved, nil
}

// buildRun tracks what one Build touched
type buildRun struct {
	repoID    string
	stats     *BuildStats
	refs      map[entity.Ref]string
	seenNodes map[string]struct{}
	seenEdges map[string]struct{}
}

// Build persists the entity set and candidates for repo, then reconciles
// away everything the run did not produce.
func (b *Builder) Build(ctx context.Context, repo *models.Repository, set *entity.Set, candidates []entity.Candidate) (*BuildStats, error) {
	run := &buildRun{
		repoID:    repo.ID,
		stats:     &BuildStats{},
		refs:      make(map[entity.Ref]string),
		seenNodes: make(map[string]struct{}),
		seenEdges: make(map[string]struct{}),
	}

	repoProps := models.Properties{"path": repo.Path}
	if repo.URL != "" {
		repoProps["url"] = repo.URL
	}
	repoNode, err := b.node(ctx, run, models.NodeRepository, repoName(repo), repoProps)
	if err != nil {
		return nil, fmt.Errorf("repository node: %w", err)
	}

	entities, relationships := set.Snapshot()
	for i := range entities {
		e := &entities[i]
		node, err := b.node(ctx, run, e.Kind, e.Name, e.NodeProperties())
		if err != nil {
			if errors.Is(err, rgerrors.ErrEntity) {
				run.stats.SkippedEntities++
				b.logger.WithError(err).WithField("entity", e.Name).Debug("skipping malformed entity")
				continue
			}
			return nil, err
		}
		ref, _ := e.Ref()
		run.refs[ref] = node.ID

		if err := b.structural(ctx, run, repoNode, node, e); err != nil {
			return nil, err
		}
	}

	for _, r := range relationships {
		if err := b.relationship(ctx, run, r); err != nil {
			return nil, err
		}
	}

	for _, c := range candidates {
		if c.Confidence < b.minConfidence {
			run.stats.DroppedCandidates++
			continue
		}
		if err := b.relationship(ctx, run, c); err != nil {
			return nil, err
		}
	}

	nodesRemoved, edgesRemoved, err := b.Reconcile(ctx, repo.ID, run.seenNodes, run.seenEdges)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	run.stats.NodesRemoved = nodesRemoved
	run.stats.EdgesRemoved = edgesRemoved

	b.logger.WithFields(logrus.Fields{
		"repository_id": repo.ID,
		"nodes_created": run.stats.NodesCreated,
		"nodes_updated": run.stats.NodesUpdated,
		"nodes_removed": nodesRemoved,
		"edges_created": run.stats.EdgesCreated,
		"edges_updated": run.stats.EdgesUpdated,
		"edges_removed": edgesRemoved,
	}).Info("graph build complete")

	return run.stats, nil
}

func repoName(repo *models.Repository) string {
	if repo.Name != "" {
		return repo.Name
	}
	return repo.ID
}

func (b *Builder) node(ctx context.Context, run *buildRun, nodeType models.NodeType, name string, props models.Properties) (*models.Node, error) {
	node, result, err := b.UpsertNode(ctx, run.repoID, nodeType, name, props)
	if err != nil {
		return nil, err
	}
	if _, seen := run.seenNodes[node.ID]; !seen {
		run.stats.countNode(result)
	}
	run.seenNodes[node.ID] = struct{}{}
	return node, nil
}

func (b *Builder) edge(ctx context.Context, run *buildRun, sourceID, targetID string, edgeType models.EdgeType, confidence float64, evidence string) error {
	edge, result, err := b.upsertEdge(ctx, run.repoID, sourceID, targetID, edgeType, confidence, evidence)
	if err != nil {
		return err
	}
	if _, seen := run.seenEdges[edge.ID]; !seen {
		run.stats.countEdge(result)
	}
	run.seenEdges[edge.ID] = struct{}{}
	return nil
}

// implicit creates a node that exists only because an entity names it,
// such as the package manager of a dependency.
func (b *Builder) implicit(ctx context.Context, run *buildRun, nodeType models.NodeType, name string) (*models.Node, error) {
	return b.node(ctx, run, nodeType, name, models.Properties{})
}

// structural adds the edges implied by an entity's kind and properties
func (b *Builder) structural(ctx context.Context, run *buildRun, repoNode, node *models.Node, e *entity.Entity) error {
	evidence := e.FilePath

	switch e.Kind {
	case models.NodeDependency:
		if err := b.edge(ctx, run, repoNode.ID, node.ID, models.EdgeHasDependency, 1, evidence); err != nil {
			return err
		}
		pm, err := b.implicit(ctx, run, models.NodePackageManager, e.Get(entity.PropPackageManager))
		if err != nil {
			return err
		}
		if err := b.edge(ctx, run, node.ID, pm.ID, models.EdgeUsesPackageManager, 1, evidence); err != nil {
			return err
		}
		return b.edge(ctx, run, repoNode.ID, pm.ID, models.EdgeUsesPackageManager, 1, evidence)

	case models.NodeService:
		if err := b.edge(ctx, run, repoNode.ID, node.ID, models.EdgeUsesService, 1, evidence); err != nil {
			return err
		}
		provider, err := b.implicit(ctx, run, models.NodeServiceProvider, e.Get(entity.PropProvider))
		if err != nil {
			return err
		}
		return b.edge(ctx, run, node.ID, provider.ID, models.EdgeProvidedBy, 1, evidence)

	case models.NodeTest:
		if err := b.edge(ctx, run, repoNode.ID, node.ID, models.EdgeHasTest, 1, evidence); err != nil {
			return err
		}
		framework := e.Get(entity.PropTestFramework)
		if framework == "" {
			return nil
		}
		fw, err := b.implicit(ctx, run, models.NodeTestFramework, framework)
		if err != nil {
			return err
		}
		return b.edge(ctx, run, node.ID, fw.ID, models.EdgeTestUsesFramework, 1, evidence)

	case models.NodeTool:
		return b.edge(ctx, run, repoNode.ID, node.ID, models.EdgeUsesTool, 1, evidence)

	case models.NodeDocumentation:
		return b.edge(ctx, run, node.ID, repoNode.ID, models.EdgeDocuments, 1, evidence)

	case models.NodeSecurityEntity:
		return b.edge(ctx, run, repoNode.ID, node.ID, models.EdgeConfigures, 1, evidence)
	}
	return nil
}

// relationship resolves both endpoints and upserts the edge. Unresolvable or
// invalid relationships are skipped and counted.
func (b *Builder) relationship(ctx context.Context, run *buildRun, r entity.Relationship) error {
	sourceID, okSource := run.refs[r.From]
	targetID, okTarget := run.refs[r.To]
	if !okSource || !okTarget || sourceID == targetID {
		run.stats.SkippedRelationships++
		b.logger.WithFields(logrus.Fields{
			"from": r.From.String(),
			"to":   r.To.String(),
			"kind": r.Kind,
		}).Debug("skipping relationship with unresolved endpoint")
		return nil
	}

	err := b.edge(ctx, run, sourceID, targetID, r.Kind, r.Confidence, r.Evidence)
	if err != nil && errors.Is(err, rgerrors.ErrValidation) {
		run.stats.SkippedRelationships++
		b.logger.WithError(err).Debug("skipping invalid relationship")
		return nil
	}
	return err
}
