package analysis

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/repograph/internal/catalog"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/treesitter"
)

// Service entity properties
const (
	PropDetectedIn = "detected_in"
	PropDetection  = "detection"
	PropEnvVars    = "env_vars"
	PropEndpoint   = "endpoint"
	PropImage      = "image"
)

// Detection methods, strongest first
const (
	DetectionImport   = "import"
	DetectionEndpoint = "endpoint"
	DetectionEnv      = "env"
	DetectionCompose  = "compose"
)

var detectionConfidence = map[string]float64{
	DetectionImport:   0.9,
	DetectionEndpoint: 0.75,
	DetectionEnv:      0.7,
	DetectionCompose:  0.8,
}

// detection accumulates every place one service was found
type detection struct {
	provider   string
	name       string
	files      map[string]bool
	firstFile  string
	firstLine  int
	method     string
	envVars    map[string]bool
	endpoint   string
	image      string
	confidence float64
}

func (d *detection) record(file string, line int, method string) {
	if d.files == nil {
		d.files = make(map[string]bool)
	}
	d.files[file] = true
	if d.firstFile == "" || file < d.firstFile || (file == d.firstFile && line < d.firstLine) {
		d.firstFile, d.firstLine = file, line
	}
	if c := detectionConfidence[method]; c > d.confidence {
		d.confidence = c
		d.method = method
	}
}

// ServiceProducer detects external services from SDK imports, environment
// files, hard-coded endpoints and docker-compose images.
type ServiceProducer struct {
	logger      *logrus.Logger
	maxFileSize int64
}

// NewServiceProducer creates the service detector
func NewServiceProducer(logger *logrus.Logger, maxFileSize int64) *ServiceProducer {
	return &ServiceProducer{logger: logger, maxFileSize: maxFileSize}
}

func (p *ServiceProducer) Name() string { return "services" }

func (p *ServiceProducer) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	w := NewWalker(repo.Path, p.maxFileSize)
	files, err := w.Files(ctx)
	if err != nil {
		return err
	}

	found := make(map[string]*detection)
	get := func(provider, name string) *detection {
		key := provider + "|" + name
		d, ok := found[key]
		if !ok {
			d = &detection{provider: provider, name: name, envVars: make(map[string]bool)}
			found[key] = d
		}
		return d
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case treesitter.DetectLanguage(f.Path) != "":
			content, err := w.Read(f)
			if err != nil {
				out.Skip(err.Error())
				continue
			}
			p.scanCode(f.Path, content, get)
		case isEnvFile(f.Path):
			content, err := w.Read(f)
			if err != nil {
				out.Skip(err.Error())
				continue
			}
			scanEnv(f.Path, content, get)
		case isComposeFile(f.Path):
			content, err := w.Read(f)
			if err != nil {
				out.Skip(err.Error())
				continue
			}
			if err := scanCompose(f.Path, content, get); err != nil {
				p.logger.WithError(err).WithField("file", f.Path).Warn("skipping unparsable compose file")
				out.Skip(f.Path + ": " + err.Error())
			}
		}
	}

	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d := found[k]
		e := entity.Entity{
			Kind:       models.NodeService,
			Name:       d.name,
			FilePath:   d.firstFile,
			LineNumber: d.firstLine,
			Confidence: d.confidence,
			Properties: map[string]string{
				entity.PropProvider: d.provider,
				entity.PropProducer: p.Name(),
				PropDetectedIn:      joinSorted(d.files),
				PropDetection:       d.method,
			},
		}
		if len(d.envVars) > 0 {
			e.Set(PropEnvVars, joinSorted(d.envVars))
		}
		if d.endpoint != "" {
			e.Set(PropEndpoint, d.endpoint)
		}
		if d.image != "" {
			e.Set(PropImage, d.image)
		}
		out.Add(e)
	}
	return nil
}

func (p *ServiceProducer) scanCode(rel string, content []byte, get func(provider, name string) *detection) {
	result, err := treesitter.Parse(rel, content)
	if err != nil {
		p.logger.WithError(err).WithField("file", rel).Debug("import scan failed")
	} else {
		for _, imp := range result.Imports {
			provider, service, ok := catalog.ProviderForImport(imp.Path)
			if !ok {
				continue
			}
			get(provider.Name, service).record(rel, imp.Line, DetectionImport)
		}
	}

	text := string(content)
	for _, provider := range catalog.Providers() {
		endpoint := provider.MatchEndpoint(text)
		if endpoint == "" {
			continue
		}
		line := lineOf(content, strings.Index(strings.ToLower(text), endpoint))
		d := get(provider.Name, provider.DefaultService)
		d.record(rel, line, DetectionEndpoint)
		if d.endpoint == "" {
			d.endpoint = endpoint
		}
	}
}

func isEnvFile(rel string) bool {
	base := path.Base(rel)
	return base == ".env" || strings.HasPrefix(base, ".env.")
}

func isComposeFile(rel string) bool {
	base := path.Base(rel)
	return (strings.HasPrefix(base, "docker-compose") || strings.HasPrefix(base, "compose.") || base == "compose.yml") &&
		(strings.HasSuffix(base, ".yml") || strings.HasSuffix(base, ".yaml"))
}

// envNames returns the variable names declared in a dotenv file with their
// lines. Values are never returned.
func envNames(content []byte) ([]string, []int) {
	var names []string
	var lines []int
	scanner := bufio.NewScanner(bytes.NewReader(content))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.TrimPrefix(text, "export ")
		eq := strings.Index(text, "=")
		if eq <= 0 {
			continue
		}
		names = append(names, strings.TrimSpace(text[:eq]))
		lines = append(lines, line)
	}
	return names, lines
}

func scanEnv(rel string, content []byte, get func(provider, name string) *detection) {
	names, lines := envNames(content)
	for i, name := range names {
		for _, provider := range catalog.Providers() {
			if !provider.MatchEnv(name) {
				continue
			}
			d := get(provider.Name, provider.DefaultService)
			d.record(rel, lines[i], DetectionEnv)
			d.envVars[name] = true
		}
	}
}

type composeFile struct {
	Services map[string]struct {
		Image string `yaml:"image"`
	} `yaml:"services"`
}

func scanCompose(rel string, content []byte, get func(provider, name string) *detection) error {
	var doc composeFile
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return err
	}
	for _, name := range sortedKeys(doc.Services) {
		image := doc.Services[name].Image
		if image == "" {
			continue
		}
		provider, ok := catalog.ProviderForImage(image)
		if !ok {
			continue
		}
		d := get(provider.Name, provider.DefaultService)
		d.record(rel, findLine(content, image), DetectionCompose)
		if d.image == "" {
			d.image = image
		}
	}
	return nil
}

func joinSorted(set map[string]bool) string {
	items := make([]string, 0, len(set))
	for k := range set {
		items = append(items, k)
	}
	sort.Strings(items)
	return strings.Join(items, ",")
}
