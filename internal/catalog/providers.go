// Package catalog holds the table of known external service providers: the
// SDK import paths, environment variable prefixes, endpoints and container
// images that identify each one.
package catalog

import (
	"sort"
	"strings"
)

// Service is a named service of a provider with the import paths that
// identify it specifically.
type Service struct {
	Name    string
	Imports []string
}

// Provider describes how one service provider shows up in a repository
type Provider struct {
	Name           string
	DefaultService string
	SDKImports     []string
	EnvPrefixes    []string
	Endpoints      []string
	Images         []string
	Services       []Service
}

var providers = []*Provider{
	{
		Name:           "firebase",
		DefaultService: "Firebase",
		SDKImports:     []string{"firebase", "firebase-admin", "@firebase", "firebase_admin", "firebase.google.com/go"},
		EnvPrefixes:    []string{"FIREBASE_", "NEXT_PUBLIC_FIREBASE_", "REACT_APP_FIREBASE_", "VITE_FIREBASE_"},
		Endpoints:      []string{"firebaseio.com", "firebaseapp.com", "firebasestorage.googleapis.com"},
		Services: []Service{
			{Name: "Firebase Auth", Imports: []string{"firebase/auth", "@firebase/auth", "firebase-admin/auth", "firebase_admin.auth"}},
			{Name: "Firestore", Imports: []string{"firebase/firestore", "@firebase/firestore", "firebase-admin/firestore", "firebase_admin.firestore"}},
			{Name: "Firebase Storage", Imports: []string{"firebase/storage", "@firebase/storage", "firebase-admin/storage", "firebase_admin.storage"}},
		},
	},
	{
		Name:           "aws",
		DefaultService: "AWS",
		SDKImports:     []string{"aws-sdk", "@aws-sdk", "boto3", "botocore", "github.com/aws/aws-sdk-go", "github.com/aws/aws-sdk-go-v2"},
		EnvPrefixes:    []string{"AWS_"},
		Endpoints:      []string{"amazonaws.com"},
		Services: []Service{
			{Name: "AWS S3", Imports: []string{"@aws-sdk/client-s3", "aws-sdk/clients/s3", "github.com/aws/aws-sdk-go-v2/service/s3"}},
			{Name: "AWS DynamoDB", Imports: []string{"@aws-sdk/client-dynamodb", "@aws-sdk/lib-dynamodb", "github.com/aws/aws-sdk-go-v2/service/dynamodb"}},
			{Name: "AWS Lambda", Imports: []string{"@aws-sdk/client-lambda", "github.com/aws/aws-sdk-go-v2/service/lambda", "github.com/aws/aws-lambda-go"}},
			{Name: "AWS SQS", Imports: []string{"@aws-sdk/client-sqs", "github.com/aws/aws-sdk-go-v2/service/sqs"}},
			{Name: "AWS SES", Imports: []string{"@aws-sdk/client-ses", "github.com/aws/aws-sdk-go-v2/service/ses"}},
		},
	},
	{
		Name:           "stripe",
		DefaultService: "Stripe",
		SDKImports:     []string{"stripe", "@stripe", "github.com/stripe/stripe-go"},
		EnvPrefixes:    []string{"STRIPE_", "NEXT_PUBLIC_STRIPE_"},
		Endpoints:      []string{"api.stripe.com"},
	},
	{
		Name:           "clerk",
		DefaultService: "Clerk",
		SDKImports:     []string{"@clerk", "github.com/clerk/clerk-sdk-go"},
		EnvPrefixes:    []string{"CLERK_", "NEXT_PUBLIC_CLERK_"},
		Endpoints:      []string{"api.clerk.com", "clerk.accounts.dev"},
	},
	{
		Name:           "vercel",
		DefaultService: "Vercel",
		SDKImports:     []string{"@vercel"},
		EnvPrefixes:    []string{"VERCEL_"},
		Endpoints:      []string{"api.vercel.com", "vercel.app"},
	},
	{
		Name:           "openai",
		DefaultService: "OpenAI",
		SDKImports:     []string{"openai", "github.com/openai/openai-go", "github.com/sashabaranov/go-openai"},
		EnvPrefixes:    []string{"OPENAI_"},
		Endpoints:      []string{"api.openai.com"},
	},
	{
		Name:           "anthropic",
		DefaultService: "Anthropic",
		SDKImports:     []string{"@anthropic-ai/sdk", "anthropic", "github.com/anthropics/anthropic-sdk-go"},
		EnvPrefixes:    []string{"ANTHROPIC_"},
		Endpoints:      []string{"api.anthropic.com"},
	},
	{
		Name:           "supabase",
		DefaultService: "Supabase",
		SDKImports:     []string{"@supabase", "supabase", "github.com/supabase-community/supabase-go"},
		EnvPrefixes:    []string{"SUPABASE_", "NEXT_PUBLIC_SUPABASE_"},
		Endpoints:      []string{"supabase.co"},
	},
	{
		Name:           "sendgrid",
		DefaultService: "SendGrid",
		SDKImports:     []string{"@sendgrid", "sendgrid", "github.com/sendgrid/sendgrid-go"},
		EnvPrefixes:    []string{"SENDGRID_"},
		Endpoints:      []string{"api.sendgrid.com"},
	},
	{
		Name:           "twilio",
		DefaultService: "Twilio",
		SDKImports:     []string{"twilio", "github.com/twilio/twilio-go"},
		EnvPrefixes:    []string{"TWILIO_"},
		Endpoints:      []string{"api.twilio.com"},
	},
	{
		Name:           "postgres",
		DefaultService: "PostgreSQL",
		SDKImports:     []string{"pg", "postgres", "psycopg2", "psycopg", "asyncpg", "github.com/lib/pq", "github.com/jackc/pgx"},
		EnvPrefixes:    []string{"POSTGRES_", "PGHOST", "PGPASSWORD"},
		Endpoints:      []string{"postgres://", "postgresql://"},
		Images:         []string{"postgres", "postgis/postgis"},
	},
	{
		Name:           "redis",
		DefaultService: "Redis",
		SDKImports:     []string{"redis", "ioredis", "github.com/redis/go-redis", "github.com/go-redis/redis"},
		EnvPrefixes:    []string{"REDIS_"},
		Endpoints:      []string{"redis://", "rediss://"},
		Images:         []string{"redis", "redis/redis-stack"},
	},
	{
		Name:           "mongodb",
		DefaultService: "MongoDB",
		SDKImports:     []string{"mongodb", "mongoose", "pymongo", "motor", "go.mongodb.org/mongo-driver"},
		EnvPrefixes:    []string{"MONGO_", "MONGODB_"},
		Endpoints:      []string{"mongodb://", "mongodb+srv://"},
		Images:         []string{"mongo"},
	},
	{
		Name:           "mysql",
		DefaultService: "MySQL",
		SDKImports:     []string{"mysql", "mysql2", "pymysql", "github.com/go-sql-driver/mysql"},
		EnvPrefixes:    []string{"MYSQL_"},
		Endpoints:      []string{"mysql://"},
		Images:         []string{"mysql", "mariadb"},
	},
}

var byName = func() map[string]*Provider {
	m := make(map[string]*Provider, len(providers))
	for _, p := range providers {
		m[p.Name] = p
	}
	return m
}()

// Providers returns every known provider
func Providers() []*Provider {
	return providers
}

// Lookup finds a provider by name, case-insensitively
func Lookup(name string) (*Provider, bool) {
	p, ok := byName[strings.ToLower(name)]
	return p, ok
}

// ImportMatches reports whether an import path refers to pattern or to a
// sub-path of it: "firebase/app" and "firebase" both match "firebase",
// "stripe.error" matches "stripe", "firebaseui" does not.
func ImportMatches(path, pattern string) bool {
	path = strings.ToLower(path)
	pattern = strings.ToLower(pattern)
	if path == pattern {
		return true
	}
	if !strings.HasPrefix(path, pattern) {
		return false
	}
	switch path[len(pattern)] {
	case '/', '.':
		return true
	}
	return false
}

// MatchImport reports whether an import belongs to the provider and which
// service it names. Service-specific imports win over the generic SDK.
func (p *Provider) MatchImport(path string) (service string, ok bool) {
	for _, s := range p.Services {
		for _, imp := range s.Imports {
			if ImportMatches(path, imp) {
				return s.Name, true
			}
		}
	}
	for _, imp := range p.SDKImports {
		if ImportMatches(path, imp) {
			return p.DefaultService, true
		}
	}
	return "", false
}

// MatchEnv reports whether an environment variable name belongs to the provider
func (p *Provider) MatchEnv(name string) bool {
	upper := strings.ToUpper(name)
	for _, prefix := range p.EnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// MatchEndpoint returns the first provider endpoint found in text
func (p *Provider) MatchEndpoint(text string) string {
	lower := strings.ToLower(text)
	for _, e := range p.Endpoints {
		if strings.Contains(lower, e) {
			return e
		}
	}
	return ""
}

// ServiceNames lists every service the provider can be detected as
func (p *Provider) ServiceNames() []string {
	names := []string{p.DefaultService}
	for _, s := range p.Services {
		names = append(names, s.Name)
	}
	return names
}

// ProviderForImage maps a container image reference to its provider.
// "postgres:16-alpine" and "docker.io/library/redis" both resolve.
func ProviderForImage(image string) (*Provider, bool) {
	ref := strings.ToLower(image)
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		ref = ref[:i]
	}
	ref = strings.TrimPrefix(ref, "docker.io/")
	ref = strings.TrimPrefix(ref, "library/")
	for _, p := range providers {
		for _, img := range p.Images {
			if ref == img {
				return p, true
			}
		}
	}
	return nil, false
}

// ProviderForImport finds the provider owning an import path. When several
// match, the longest SDK pattern wins so "@aws-sdk/client-s3" beats a
// shorter generic prefix.
func ProviderForImport(path string) (*Provider, string, bool) {
	type match struct {
		p       *Provider
		service string
		length  int
	}
	var matches []match
	for _, p := range providers {
		service, ok := p.MatchImport(path)
		if !ok {
			continue
		}
		longest := 0
		for _, imp := range append(append([]string{}, p.SDKImports...), serviceImports(p)...) {
			if ImportMatches(path, imp) && len(imp) > longest {
				longest = len(imp)
			}
		}
		matches = append(matches, match{p: p, service: service, length: longest})
	}
	if len(matches) == 0 {
		return nil, "", false
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].length > matches[j].length })
	return matches[0].p, matches[0].service, true
}

func serviceImports(p *Provider) []string {
	var out []string
	for _, s := range p.Services {
		out = append(out, s.Imports...)
	}
	return out
}
