package analysis

import (
	"context"
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/catalog"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/treesitter"
)

// Security entity types
const (
	SecurityAccessRules         = "access_rules"
	SecurityIAMPolicy           = "iam_policy"
	SecuritySecret              = "secret"
	SecurityHardcodedCredential = "hardcoded_credential"
	SecurityModule              = "security_module"
)

// Security entity properties
const (
	PropMatchedKeywords = "matched_keywords"
	PropStatements      = "statements"
)

// rulesFiles are access-rule files keyed by base name
var rulesFiles = map[string]string{
	"firestore.rules":     "firebase",
	"storage.rules":       "firebase",
	"database.rules.json": "firebase",
	"firebase.json":       "firebase",
}

// credentialPattern flags a hard-coded key. The matched value is never stored.
type credentialPattern struct {
	name     string
	provider string
	re       *regexp.Regexp
}

var credentialPatterns = []credentialPattern{
	{name: "stripe live secret key", provider: "stripe", re: regexp.MustCompile(`\bsk_live_[0-9A-Za-z]{16,}`)},
	{name: "stripe test secret key", provider: "stripe", re: regexp.MustCompile(`\bsk_test_[0-9A-Za-z]{16,}`)},
	{name: "aws access key id", provider: "aws", re: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{name: "google api key", provider: "firebase", re: regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}`)},
	{name: "openai api key", provider: "openai", re: regexp.MustCompile(`\bsk-(proj-)?[A-Za-z0-9]{32,}`)},
	{name: "sendgrid api key", provider: "sendgrid", re: regexp.MustCompile(`\bSG\.[A-Za-z0-9_\-]{22}\.[A-Za-z0-9_\-]{43}`)},
}

var secretNameWords = []string{"SECRET", "PASSWORD", "TOKEN", "PRIVATE_KEY", "API_KEY", "ACCESS_KEY", "CREDENTIALS"}

// SecurityProducer detects access rules, IAM policies, secret declarations,
// hard-coded credentials and security-sensitive modules.
type SecurityProducer struct {
	logger      *logrus.Logger
	maxFileSize int64
}

// NewSecurityProducer creates the security detector
func NewSecurityProducer(logger *logrus.Logger, maxFileSize int64) *SecurityProducer {
	return &SecurityProducer{logger: logger, maxFileSize: maxFileSize}
}

func (p *SecurityProducer) Name() string { return "security" }

func (p *SecurityProducer) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	w := NewWalker(repo.Path, p.maxFileSize)
	files, err := w.Files(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := path.Base(f.Path)
		provider, isRules := rulesFiles[base]
		isCode := treesitter.DetectLanguage(f.Path) != ""
		isJSON := strings.HasSuffix(base, ".json")
		if !isRules && !isCode && !isJSON && !isEnvFile(f.Path) {
			continue
		}

		content, err := w.Read(f)
		if err != nil {
			out.Skip(err.Error())
			continue
		}

		switch {
		case isRules:
			out.Add(p.entity(SecurityAccessRules, base, f.Path, 1, provider))
		case isEnvFile(f.Path):
			p.scanSecrets(f.Path, content, out)
		case isJSON:
			if statements, ok := iamStatements(content); ok {
				e := p.entity(SecurityIAMPolicy, base, f.Path, 1, "aws")
				e.Set(PropStatements, statements)
				out.Add(e)
			}
		}
		if isCode {
			p.scanCredentials(f.Path, content, out)
			p.scanModule(f.Path, content, out)
		}
	}
	return nil
}

func (p *SecurityProducer) entity(entityType, name, file string, line int, provider string) entity.Entity {
	e := entity.Entity{
		Kind:       models.NodeSecurityEntity,
		Name:       name,
		FilePath:   file,
		LineNumber: line,
		Properties: map[string]string{
			entity.PropEntityType: entityType,
			entity.PropProducer:   p.Name(),
		},
	}
	if provider != "" {
		e.Set(entity.PropProvider, provider)
	}
	return e
}

// scanSecrets records secret-looking variable names from dotenv files
func (p *SecurityProducer) scanSecrets(rel string, content []byte, out *entity.Set) {
	names, lines := envNames(content)
	for i, name := range names {
		if !isSecretName(name) {
			continue
		}
		provider := ""
		for _, candidate := range catalog.Providers() {
			if candidate.MatchEnv(name) {
				provider = candidate.Name
				break
			}
		}
		out.Add(p.entity(SecuritySecret, name, rel, lines[i], provider))
	}
}

func isSecretName(name string) bool {
	upper := strings.ToUpper(name)
	for _, word := range secretNameWords {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}

func (p *SecurityProducer) scanCredentials(rel string, content []byte, out *entity.Set) {
	for _, cp := range credentialPatterns {
		loc := cp.re.FindIndex(content)
		if loc == nil {
			continue
		}
		out.Add(p.entity(SecurityHardcodedCredential, cp.name, rel, lineOf(content, loc[0]), cp.provider))
	}
}

// scanModule flags code that implements authentication or authorization.
// A security path with one keyword, or two keywords anywhere, qualifies.
func (p *SecurityProducer) scanModule(rel string, content []byte, out *entity.Set) {
	paths, keywords := securityMatches(rel, string(content))
	if !(len(paths) > 0 && len(keywords) > 0) && len(keywords) < 2 {
		return
	}

	provider := ""
	if result, err := treesitter.Parse(rel, content); err == nil {
		for _, imp := range result.Imports {
			if prov, _, ok := catalog.ProviderForImport(imp.Path); ok {
				provider = prov.Name
				break
			}
		}
	}
	e := p.entity(SecurityModule, path.Base(rel), rel, 1, provider)
	e.Set(PropMatchedKeywords, strings.Join(keywords, ","))
	out.Add(e)
}

// iamStatements recognizes an AWS IAM policy document and summarizes its
// statements as "Effect:Action" pairs.
func iamStatements(content []byte) (string, bool) {
	var doc struct {
		Version   string          `json:"Version"`
		Statement json.RawMessage `json:"Statement"`
	}
	if err := json.Unmarshal(content, &doc); err != nil || doc.Version == "" || len(doc.Statement) == 0 {
		return "", false
	}

	type statement struct {
		Effect string `json:"Effect"`
		Action any    `json:"Action"`
	}
	var statements []statement
	if err := json.Unmarshal(doc.Statement, &statements); err != nil {
		var single statement
		if err := json.Unmarshal(doc.Statement, &single); err != nil {
			return "", false
		}
		statements = []statement{single}
	}

	var parts []string
	for _, s := range statements {
		switch action := s.Action.(type) {
		case string:
			parts = append(parts, s.Effect+":"+action)
		case []any:
			for _, a := range action {
				if str, ok := a.(string); ok {
					parts = append(parts, s.Effect+":"+str)
				}
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ","), true
}
