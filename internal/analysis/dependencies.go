package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
)

// Package managers
const (
	ManagerNPM    = "npm"
	ManagerYarn   = "yarn"
	ManagerPNPM   = "pnpm"
	ManagerPip    = "pip"
	ManagerPoetry = "poetry"
	ManagerGo     = "go"
	ManagerCargo  = "cargo"
	ManagerMaven  = "maven"
	ManagerPub    = "pub"
)

// AnyVersion stands in for unpinned requirements
const AnyVersion = "*"

// manifestDep is one declared dependency before it becomes an entity
type manifestDep struct {
	Name    string
	Version string
	Scope   string // runtime, dev, peer, indirect
}

type manifestParser func(content []byte) ([]manifestDep, error)

// DependencyProducer extracts declared dependencies from package manifests
type DependencyProducer struct {
	logger      *logrus.Logger
	maxFileSize int64
}

// NewDependencyProducer creates the manifest producer
func NewDependencyProducer(logger *logrus.Logger, maxFileSize int64) *DependencyProducer {
	return &DependencyProducer{logger: logger, maxFileSize: maxFileSize}
}

func (p *DependencyProducer) Name() string { return "dependencies" }

// Produce parses every recognized manifest in the repository
func (p *DependencyProducer) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	w := NewWalker(repo.Path, p.maxFileSize)
	files, err := w.Files(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}

	for _, f := range files {
		manager, parse := manifestFor(f.Path, present)
		if parse == nil {
			continue
		}
		content, err := w.Read(f)
		if err != nil {
			out.Skip(err.Error())
			continue
		}
		deps, err := parse(content)
		if err != nil {
			p.logger.WithError(err).WithField("file", f.Path).Warn("skipping unparsable manifest")
			out.Skip(fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}

		for _, d := range deps {
			e := entity.Entity{
				Kind:       models.NodeDependency,
				Name:       d.Name,
				FilePath:   f.Path,
				LineNumber: findLine(content, d.Name),
				Properties: map[string]string{
					entity.PropVersion:        normalizeVersion(d.Version),
					entity.PropPackageManager: manager,
					entity.PropProducer:       p.Name(),
				},
			}
			if d.Scope != "" {
				e.Set("scope", d.Scope)
			}
			out.Add(e)
		}
	}
	return nil
}

// manifestFor picks the parser and package manager for a manifest path.
// Lock files next to package.json decide between npm, yarn and pnpm.
func manifestFor(rel string, present map[string]bool) (string, manifestParser) {
	dir, base := path.Split(rel)
	switch {
	case base == "package.json":
		switch {
		case present[dir+"pnpm-lock.yaml"]:
			return ManagerPNPM, parsePackageJSON
		case present[dir+"yarn.lock"]:
			return ManagerYarn, parsePackageJSON
		}
		return ManagerNPM, parsePackageJSON
	case base == "requirements.txt" || (strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt")):
		return ManagerPip, parseRequirements
	case base == "pyproject.toml":
		if present[dir+"poetry.lock"] {
			return ManagerPoetry, parsePyproject
		}
		return ManagerPip, parsePyproject
	case base == "go.mod":
		return ManagerGo, parseGoMod
	case base == "Cargo.toml":
		return ManagerCargo, parseCargo
	case base == "pom.xml":
		return ManagerMaven, parsePom
	case base == "pubspec.yaml":
		return ManagerPub, parsePubspec
	}
	return "", nil
}

var versionPrefix = regexp.MustCompile(`^[\s^~=<>!v]+`)

// normalizeVersion strips range operators: "^9.0.0" -> "9.0.0"
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "*" || v == "latest" {
		return AnyVersion
	}
	v = versionPrefix.ReplaceAllString(v, "")
	if i := strings.IndexAny(v, ", "); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return AnyVersion
	}
	return v
}

func findLine(content []byte, name string) int {
	for _, needle := range []string{`"` + name + `"`, name} {
		if i := bytes.Index(content, []byte(needle)); i >= 0 {
			return lineOf(content, i)
		}
	}
	return 0
}

func parsePackageJSON(content []byte) ([]manifestDep, error) {
	var pkg struct {
		Dependencies         map[string]string `json:"dependencies"`
		DevDependencies      map[string]string `json:"devDependencies"`
		PeerDependencies     map[string]string `json:"peerDependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("package.json: %w", err)
	}
	var deps []manifestDep
	deps = appendSorted(deps, pkg.Dependencies, "runtime")
	deps = appendSorted(deps, pkg.DevDependencies, "dev")
	deps = appendSorted(deps, pkg.PeerDependencies, "peer")
	deps = appendSorted(deps, pkg.OptionalDependencies, "optional")
	return deps, nil
}

func appendSorted(deps []manifestDep, m map[string]string, scope string) []manifestDep {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		deps = append(deps, manifestDep{Name: name, Version: m[name], Scope: scope})
	}
	return deps
}

// requirementLine splits "name[extra]==1.2 ; marker" into name and version
var requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(\[[^\]]*\])?\s*(.*)$`)

func parseRequirement(line string) (manifestDep, bool) {
	if i := strings.Index(line, ";"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	m := requirementLine.FindStringSubmatch(line)
	if m == nil {
		return manifestDep{}, false
	}
	return manifestDep{Name: m[1], Version: m[3], Scope: "runtime"}, true
}

func parseRequirements(content []byte) ([]manifestDep, error) {
	var deps []manifestDep
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") || strings.Contains(line, "://") {
			continue
		}
		if d, ok := parseRequirement(line); ok {
			deps = append(deps, d)
		}
	}
	return deps, scanner.Err()
}

func parsePyproject(content []byte) ([]manifestDep, error) {
	var doc struct {
		Project struct {
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies    map[string]any `toml:"dependencies"`
				DevDependencies map[string]any `toml:"dev-dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("pyproject.toml: %w", err)
	}

	var deps []manifestDep
	for _, req := range doc.Project.Dependencies {
		if d, ok := parseRequirement(req); ok {
			deps = append(deps, d)
		}
	}
	for _, group := range sortedKeys(doc.Project.OptionalDependencies) {
		for _, req := range doc.Project.OptionalDependencies[group] {
			if d, ok := parseRequirement(req); ok {
				d.Scope = "optional"
				deps = append(deps, d)
			}
		}
	}
	deps = appendTable(deps, doc.Tool.Poetry.Dependencies, "runtime")
	deps = appendTable(deps, doc.Tool.Poetry.DevDependencies, "dev")
	return deps, nil
}

// appendTable handles TOML dependency tables where a value is either a
// version string or a table with a version key.
func appendTable(deps []manifestDep, table map[string]any, scope string) []manifestDep {
	for _, name := range sortedKeys(table) {
		if name == "python" {
			continue
		}
		version := ""
		switch v := table[name].(type) {
		case string:
			version = v
		case map[string]any:
			if s, ok := v["version"].(string); ok {
				version = s
			}
		}
		deps = append(deps, manifestDep{Name: name, Version: version, Scope: scope})
	}
	return deps
}

func parseGoMod(content []byte) ([]manifestDep, error) {
	f, err := modfile.ParseLax("go.mod", content, nil)
	if err != nil {
		return nil, err
	}
	deps := make([]manifestDep, 0, len(f.Require))
	for _, r := range f.Require {
		scope := "runtime"
		if r.Indirect {
			scope = "indirect"
		}
		deps = append(deps, manifestDep{Name: r.Mod.Path, Version: r.Mod.Version, Scope: scope})
	}
	return deps, nil
}

func parseCargo(content []byte) ([]manifestDep, error) {
	var doc struct {
		Dependencies      map[string]any `toml:"dependencies"`
		DevDependencies   map[string]any `toml:"dev-dependencies"`
		BuildDependencies map[string]any `toml:"build-dependencies"`
	}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("Cargo.toml: %w", err)
	}
	var deps []manifestDep
	deps = appendTable(deps, doc.Dependencies, "runtime")
	deps = appendTable(deps, doc.DevDependencies, "dev")
	deps = appendTable(deps, doc.BuildDependencies, "build")
	return deps, nil
}

func parsePom(content []byte) ([]manifestDep, error) {
	var pom struct {
		Dependencies []struct {
			GroupID    string `xml:"groupId"`
			ArtifactID string `xml:"artifactId"`
			Version    string `xml:"version"`
			Scope      string `xml:"scope"`
		} `xml:"dependencies>dependency"`
	}
	if err := xml.Unmarshal(content, &pom); err != nil {
		return nil, fmt.Errorf("pom.xml: %w", err)
	}
	deps := make([]manifestDep, 0, len(pom.Dependencies))
	for _, d := range pom.Dependencies {
		if d.ArtifactID == "" {
			continue
		}
		version := d.Version
		if strings.HasPrefix(version, "${") {
			version = ""
		}
		scope := d.Scope
		if scope == "" {
			scope = "runtime"
		}
		deps = append(deps, manifestDep{Name: d.GroupID + ":" + d.ArtifactID, Version: version, Scope: scope})
	}
	return deps, nil
}

func parsePubspec(content []byte) ([]manifestDep, error) {
	var doc struct {
		Dependencies    map[string]any `yaml:"dependencies"`
		DevDependencies map[string]any `yaml:"dev_dependencies"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("pubspec.yaml: %w", err)
	}
	var deps []manifestDep
	for _, section := range []struct {
		table map[string]any
		scope string
	}{{doc.Dependencies, "runtime"}, {doc.DevDependencies, "dev"}} {
		for _, name := range sortedKeys(section.table) {
			version := ""
			switch v := section.table[name].(type) {
			case string:
				version = v
			case map[string]any:
				if _, sdk := v["sdk"]; sdk {
					continue
				}
				if s, ok := v["version"].(string); ok {
					version = s
				}
			}
			deps = append(deps, manifestDep{Name: name, Version: version, Scope: section.scope})
		}
	}
	return deps, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
