package inference

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/analysis"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/logging"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/treesitter"
)

func writeRepo(t *testing.T, files map[string]string) *models.Repository {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return &models.Repository{ID: "repo-1", Name: "fixture", Path: root}
}

// analyze runs the built-in producers the engine depends on
func analyze(t *testing.T, repo *models.Repository) *entity.Set {
	t.Helper()
	logger := logging.Discard()
	set := entity.NewSet()
	for _, p := range []entity.Producer{
		analysis.NewDependencyProducer(logger, 0),
		analysis.NewServiceProducer(logger, 0),
		analysis.NewCodeProducer(logger, 0, 2),
		analysis.NewSecurityProducer(logger, 0),
		analysis.NewToolProducer(logger, 0),
		analysis.NewTestProducer(logger, 0),
	} {
		require.NoError(t, p.Produce(context.Background(), repo, set))
	}
	return set
}

func element(name, file string, line, end int) entity.Entity {
	return entity.Entity{
		Kind:       models.NodeCodeElement,
		Name:       name,
		FilePath:   file,
		LineNumber: line,
		Properties: map[string]string{
			entity.PropElementType: treesitter.KindFunction,
			entity.PropEndLine:     strconv.Itoa(end),
		},
	}
}

func npmDependency(name, version string) entity.Entity {
	return entity.Entity{
		Kind:     models.NodeDependency,
		Name:     name,
		FilePath: "package.json",
		Properties: map[string]string{
			entity.PropVersion:        version,
			entity.PropPackageManager: "npm",
		},
	}
}

// find returns the candidate between the named source and target
func find(t *testing.T, set *entity.Set, candidates []entity.Candidate, kind models.EdgeType, from, to string) (entity.Candidate, bool) {
	t.Helper()
	for _, c := range candidates {
		if c.Kind != kind {
			continue
		}
		src, ok := set.Lookup(c.From)
		require.True(t, ok)
		dst, ok := set.Lookup(c.To)
		require.True(t, ok)
		if src.Name == from && dst.Name == to {
			return c, true
		}
	}
	return entity.Candidate{}, false
}

func TestInfer_FirebaseStorage(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"package.json": `{"dependencies":{"firebase":"^9.0.0"}}`,
		"storage.ts": `import firebase from 'firebase/app'

export function getAdminStorage() {
  return firebase.storage()
}
`,
	})
	set := analyze(t, repo)

	deps := set.OfKind(models.NodeDependency)
	require.Len(t, deps, 1)
	assert.Equal(t, "9.0.0", deps[0].Properties[entity.PropVersion])
	assert.Equal(t, "npm", deps[0].Properties[entity.PropPackageManager])
	require.Len(t, set.OfKind(models.NodeCodeElement), 1)

	engine := NewEngine(logging.Discard(), Options{})
	candidates, stats, err := engine.Infer(context.Background(), repo, set)
	require.NoError(t, err)

	c, ok := find(t, set, candidates, models.EdgeUsesDependency, "getAdminStorage", "firebase")
	require.True(t, ok, "missing getAdminStorage -> firebase in %+v", candidates)
	assert.GreaterOrEqual(t, c.Confidence, 0.8)
	assert.Contains(t, c.Evidence, "import statement: import firebase from 'firebase/app'")

	svc, ok := find(t, set, candidates, models.EdgeUsesService, "getAdminStorage", "Firebase")
	require.True(t, ok)
	assert.Equal(t, sdkSameFile, svc.Confidence)

	assert.Equal(t, 1, stats.Elements)
	assert.Equal(t, 0, stats.Failed)
}

func TestInfer_NoDuplicateCandidates(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"package.json": `{"dependencies":{"stripe":"14.0.0"}}`,
		"billing.js": `const Stripe = require('stripe');

function createStripeCustomer(email) {
  const stripe = new Stripe(process.env.STRIPE_SECRET_KEY);
  return stripe.customers.create({ email });
}
`,
	})
	set := analyze(t, repo)
	engine := NewEngine(logging.Discard(), Options{})

	first, _, err := engine.Infer(context.Background(), repo, set)
	require.NoError(t, err)
	second, _, err := engine.Infer(context.Background(), repo, set)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	type pair struct {
		from, to entity.Ref
		kind     models.EdgeType
	}
	seen := make(map[pair]bool)
	for _, c := range first {
		p := pair{c.From, c.To, c.Kind}
		assert.False(t, seen[p], "duplicate candidate %v", p)
		seen[p] = true
	}

	dep, ok := find(t, set, first, models.EdgeUsesDependency, "createStripeCustomer", "stripe")
	require.True(t, ok)
	assert.Equal(t, importAndReference, dep.Confidence)
}

func TestInfer_SignalStrengths(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"src/a.js": `function uploadAvatar(file) {
  return lodash.cloneDeep(file);
}

function axiosRetry() {
  return 1;
}
`,
	})
	set := entity.NewSet()
	set.Add(element("uploadAvatar", "src/a.js", 1, 3))
	set.Add(element("axiosRetry", "src/a.js", 5, 7))
	set.Add(npmDependency("lodash", "4.17.21"))
	set.Add(npmDependency("axios", "1.6.0"))

	engine := NewEngine(logging.Discard(), Options{})
	candidates, stats, err := engine.Infer(context.Background(), repo, set)
	require.NoError(t, err)

	body, ok := find(t, set, candidates, models.EdgeUsesDependency, "uploadAvatar", "lodash")
	require.True(t, ok)
	assert.Equal(t, nameInBody, body.Confidence)

	token, ok := find(t, set, candidates, models.EdgeUsesDependency, "axiosRetry", "axios")
	require.True(t, ok)
	assert.Equal(t, nameInIdentifier, token.Confidence)

	_, ok = find(t, set, candidates, models.EdgeUsesDependency, "uploadAvatar", "axios")
	assert.False(t, ok)
	assert.Equal(t, 0, stats.Dropped)

	strict := NewEngine(logging.Discard(), Options{MinConfidence: 0.55})
	candidates, stats, err = strict.Infer(context.Background(), repo, set)
	require.NoError(t, err)
	_, ok = find(t, set, candidates, models.EdgeUsesDependency, "axiosRetry", "axios")
	assert.False(t, ok)
	assert.Equal(t, 1, stats.Dropped)
}

func TestInfer_ServiceSignals(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"src/pay.js": `function charge() {
  return fetch("https://api.stripe.com/v1/charges");
}

function notify() {
  return process.env.TWILIO_AUTH_TOKEN;
}

function describeStack() {
  return "we run on Supabase";
}
`,
	})
	set := entity.NewSet()
	set.Add(element("charge", "src/pay.js", 1, 3))
	set.Add(element("notify", "src/pay.js", 5, 7))
	set.Add(element("describeStack", "src/pay.js", 9, 11))
	for _, svc := range []struct{ name, provider, file string }{
		{"Stripe", "stripe", "src/other.js"},
		{"Twilio", "twilio", ".env"},
		{"Supabase", "supabase", "src/pay.js"},
	} {
		set.Add(entity.Entity{
			Kind: models.NodeService, Name: svc.name, FilePath: svc.file, LineNumber: 1,
			Properties: map[string]string{entity.PropProvider: svc.provider, analysis.PropDetectedIn: svc.file},
		})
	}

	candidates, _, err := NewEngine(logging.Discard(), Options{}).Infer(context.Background(), repo, set)
	require.NoError(t, err)

	c, ok := find(t, set, candidates, models.EdgeUsesService, "charge", "Stripe")
	require.True(t, ok)
	assert.Equal(t, endpointOrEnv, c.Confidence)
	assert.Contains(t, c.Evidence, "api.stripe.com")

	c, ok = find(t, set, candidates, models.EdgeUsesService, "notify", "Twilio")
	require.True(t, ok)
	assert.Equal(t, endpointOrEnv, c.Confidence)
	assert.Contains(t, c.Evidence, "TWILIO_AUTH_TOKEN")

	c, ok = find(t, set, candidates, models.EdgeUsesService, "describeStack", "Supabase")
	require.True(t, ok)
	assert.InDelta(t, serviceNameInBody+sameFileBonus, c.Confidence, 1e-9)

	_, ok = find(t, set, candidates, models.EdgeUsesService, "charge", "Twilio")
	assert.False(t, ok)
}

func TestInfer_SecuresToolsAndTests(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"package.json": `{
  "scripts": {"lint": "eslint src"},
  "devDependencies": {"eslint": "8.57.0", "typescript": "5.4.0"}
}`,
		"tsconfig.json":   `{}`,
		"firestore.rules": "service cloud.firestore {}\n",
		"src/auth.ts": `import { getAuth } from 'firebase/auth';

export function signIn(email) {
  return getAuth();
}
`,
		"src/auth.test.ts": `import { signIn } from './auth';

it('signs in a user', () => {
  signIn('a@b.c');
});
`,
	})
	set := analyze(t, repo)

	candidates, stats, err := NewEngine(logging.Discard(), Options{}).Infer(context.Background(), repo, set)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Failed)

	sec, ok := find(t, set, candidates, models.EdgeSecures, "firestore.rules", "Firebase Auth")
	require.True(t, ok)
	assert.Equal(t, providerSecures, sec.Confidence)

	tsc, ok := find(t, set, candidates, models.EdgeUsesDependency, "typescript", "typescript")
	require.True(t, ok)
	assert.Equal(t, toolNameEqual, tsc.Confidence)

	lint, ok := find(t, set, candidates, models.EdgeUsesDependency, "lint", "eslint")
	require.True(t, ok)
	assert.Equal(t, toolNameContains, lint.Confidence)

	covers, ok := find(t, set, candidates, models.EdgeTestTestsCode, "signs in a user", "signIn")
	require.True(t, ok)
	assert.Equal(t, testSameStem, covers.Confidence)
}

func TestInfer_MissingFileCountsAsFailed(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"src/ok.js": "function useLodash() {\n  return lodash.noop();\n}\n",
	})
	set := entity.NewSet()
	set.Add(element("useLodash", "src/ok.js", 1, 3))
	set.Add(element("ghost", "src/deleted.js", 1, 2))
	set.Add(npmDependency("lodash", "4.17.21"))

	candidates, stats, err := NewEngine(logging.Discard(), Options{}).Infer(context.Background(), repo, set)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Elements)
	assert.Equal(t, 1, stats.Failed)

	_, ok := find(t, set, candidates, models.EdgeUsesDependency, "useLodash", "lodash")
	assert.True(t, ok)
}

func TestInfer_ParserPanicDoesNotFailRun(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"src/ok.js": "function useLodash() {\n  return lodash.noop();\n}\n",
	})
	set := entity.NewSet()
	set.Add(element("useLodash", "src/ok.js", 1, 3))
	set.Add(npmDependency("lodash", "4.17.21"))

	engine := NewEngine(logging.Discard(), Options{}).WithParser(func(string, []byte) (*treesitter.FileResult, error) {
		panic("boom")
	})
	candidates, stats, err := engine.Infer(context.Background(), repo, set)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Failed)

	c, ok := find(t, set, candidates, models.EdgeUsesDependency, "useLodash", "lodash")
	require.True(t, ok)
	assert.Equal(t, nameInBody, c.Confidence)
}

func TestCollector_KeepsStrongestWithStableTies(t *testing.T) {
	from := entity.Ref{Kind: models.NodeCodeElement, Key: "a.ts:f"}
	to := entity.Ref{Kind: models.NodeDependency, Key: "firebase"}

	for _, order := range [][]string{{"b evidence", "a evidence"}, {"a evidence", "b evidence"}} {
		c := newCollector()
		c.add(from, to, models.EdgeUsesDependency, 0.6, "weaker")
		for _, ev := range order {
			c.add(from, to, models.EdgeUsesDependency, 0.8, ev)
		}
		c.add(from, to, models.EdgeUsesDependency, 0.5, "weakest")

		got := c.sorted()
		require.Len(t, got, 1)
		assert.Equal(t, 0.8, got[0].Confidence)
		assert.Equal(t, "a evidence", got[0].Evidence)
	}
}
