package inference

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/rohankatakam/repograph/internal/analysis"
	"github.com/rohankatakam/repograph/internal/catalog"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
)

// Signal confidences
const (
	importAndReference = 0.9
	importOnly         = 0.8
	nameInBody         = 0.6
	nameInIdentifier   = 0.5

	sdkSameFile       = 0.9
	sdkImport         = 0.8
	endpointOrEnv     = 0.75
	serviceNameInBody = 0.6
	sameFileBonus     = 0.15

	providerSecures = 0.8

	toolNameEqual    = 0.9
	toolNameContains = 0.6

	testReference = 0.7
	testSameStem  = 0.85
)

// minTextualLength keeps very short names like "pg" or "ms" from matching
// prose. Import signals still apply to them.
const minTextualLength = 3

var envToken = regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}\b`)

// referenceTerms are the words a code body uses to refer to a dependency:
// the name itself and, for path-like names, the last non-version segment.
// "github.com/jackc/pgx/v5" -> [github.com/jackc/pgx/v5 pgx],
// "junit:junit" -> [junit:junit junit].
func referenceTerms(name string) []string {
	terms := []string{name}
	short := name
	if i := strings.LastIndex(short, ":"); i >= 0 {
		short = short[i+1:]
	}
	segments := strings.Split(short, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		s := segments[i]
		if s == "" || isVersionSegment(s) {
			continue
		}
		short = s
		break
	}
	if short != name && len(short) >= minTextualLength {
		terms = append(terms, short)
	}
	return terms
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// dependencySignal scores a code element against one dependency
func dependencySignal(el target, body string, file *fileInfo, dep target) (float64, string) {
	var statement string
	for _, imp := range file.imports {
		if catalog.ImportMatches(imp.Path, dep.Name) {
			statement = imp.Statement
			break
		}
	}

	referenced := ""
	for _, term := range referenceTerms(dep.Name) {
		if len(term) >= minTextualLength && containsWord(body, term) {
			referenced = term
			break
		}
	}

	switch {
	case statement != "" && referenced != "":
		return importAndReference, fmt.Sprintf("import statement: %s, %q referenced in %s", statement, referenced, el.Name)
	case statement != "":
		return importOnly, "import statement: " + statement
	case referenced != "":
		return nameInBody, fmt.Sprintf("dependency name %q in body of %s (%s:%d)", referenced, el.Name, el.FilePath, el.LineNumber)
	}
	for _, term := range referenceTerms(dep.Name) {
		if len(term) >= minTextualLength && hasToken(el.Name, term) {
			return nameInIdentifier, fmt.Sprintf("identifier %s contains %q", el.Name, term)
		}
	}
	return 0, ""
}

// detectedIn reports whether the service was detected in file
func detectedIn(svc target, file string) bool {
	for _, f := range strings.Split(svc.Properties[analysis.PropDetectedIn], ",") {
		if f == file {
			return true
		}
	}
	return svc.FilePath == file
}

// serviceSignal scores a code element against one service. Each signal
// that fires proposes a score; the strongest wins.
func serviceSignal(el target, body string, file *fileInfo, svc target) (float64, string) {
	best, evidence := 0.0, ""
	propose := func(confidence float64, why string) {
		if confidence > best {
			best, evidence = confidence, why
		}
	}

	sameFile := detectedIn(svc, el.FilePath)
	provider, known := catalog.Lookup(svc.Properties[entity.PropProvider])

	if known {
		for _, imp := range file.imports {
			if _, ok := provider.MatchImport(imp.Path); !ok {
				continue
			}
			if sameFile {
				propose(sdkSameFile, fmt.Sprintf("SDK import in file where %s was detected: %s", svc.Name, imp.Statement))
			} else {
				propose(sdkImport, "SDK import: "+imp.Statement)
			}
			break
		}

		if endpoint := provider.MatchEndpoint(body); endpoint != "" {
			propose(endpointOrEnv, fmt.Sprintf("endpoint %s in body of %s", endpoint, el.Name))
		}
		for _, token := range envToken.FindAllString(body, -1) {
			if provider.MatchEnv(token) {
				propose(endpointOrEnv, fmt.Sprintf("environment variable %s in body of %s", token, el.Name))
				break
			}
		}
	}
	for _, name := range strings.Split(svc.Properties[analysis.PropEnvVars], ",") {
		if name != "" && containsWord(body, name) {
			propose(endpointOrEnv, fmt.Sprintf("environment variable %s in body of %s", name, el.Name))
			break
		}
	}

	if len(svc.Name) >= minTextualLength && containsWord(body, svc.Name) {
		confidence := serviceNameInBody
		why := fmt.Sprintf("service name %q in body of %s", svc.Name, el.Name)
		if sameFile {
			confidence += sameFileBonus
			why += ", detected in the same file"
		}
		propose(confidence, why)
	}
	return best, evidence
}

// inferSecures links security entities to the services of their provider
func (e *Engine) inferSecures(security, services []target, col *collector) {
	for _, sec := range security {
		provider := sec.Properties[entity.PropProvider]
		if provider == "" {
			continue
		}
		for _, svc := range services {
			if !strings.EqualFold(svc.Properties[entity.PropProvider], provider) {
				continue
			}
			col.add(sec.ref, svc.ref, models.EdgeSecures, providerSecures,
				fmt.Sprintf("%s %s in %s configures provider %s",
					sec.Properties[entity.PropEntityType], sec.Name, sec.FilePath, provider))
		}
	}
}

// inferTools links tools to the dependencies that provide them
func (e *Engine) inferTools(tools, deps []target, col *collector) {
	for _, tool := range tools {
		command := tool.Properties[analysis.PropCommand]
		for _, dep := range deps {
			short := referenceTerms(dep.Name)
			switch {
			case strings.EqualFold(tool.Name, dep.Name) || strings.EqualFold(tool.Name, short[len(short)-1]):
				col.add(tool.ref, dep.ref, models.EdgeUsesDependency, toolNameEqual,
					fmt.Sprintf("tool %s is provided by dependency %s", tool.Name, dep.Name))
			case len(dep.Name) >= minTextualLength && (containsWord(tool.Name, dep.Name) || containsWord(command, dep.Name)):
				col.add(tool.ref, dep.ref, models.EdgeUsesDependency, toolNameContains,
					fmt.Sprintf("tool %s references dependency %s", tool.Name, dep.Name))
			}
		}
	}
}

// inferTests links tests to the code elements they name. Returns the number
// of tests that could not be processed.
func (e *Engine) inferTests(tests, elements []target, files *fileCache, col *collector) int {
	failed := 0
	for _, t := range tests {
		if err := e.inferTest(t, elements, files, col); err != nil {
			failed++
			e.logger.WithError(err).WithField("test", t.Name).Warn("inference skipped test")
		}
	}
	return failed
}

func (e *Engine) inferTest(t target, elements []target, files *fileCache, col *collector) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	file, err := files.get(t.FilePath)
	if err != nil {
		return err
	}
	text := t.Name + "\n" + file.body(t.LineNumber, endLine(t.Entity), e.opts.ContextLines)
	stem := analysis.FileStem(t.FilePath)

	for _, el := range elements {
		if analysis.IsTestFile(el.FilePath) {
			continue
		}
		name := el.Name
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		if len(name) < minTextualLength || !containsWord(text, name) {
			continue
		}
		confidence := testReference
		why := fmt.Sprintf("test %q references %s", t.Name, el.Name)
		if stem == fileStem(el.FilePath) {
			confidence = testSameStem
			why += " and covers " + path.Base(el.FilePath)
		}
		col.add(t.ref, el.ref, models.EdgeTestTestsCode, confidence, why)
	}
	return nil
}

// fileStem strips directory and extension: "src/auth.ts" -> "auth"
func fileStem(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
