package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportMatches(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"firebase", "firebase", true},
		{"firebase/app", "firebase", true},
		{"stripe.error", "stripe", true},
		{"@aws-sdk/client-s3", "@aws-sdk", true},
		{"firebaseui", "firebase", false},
		{"pgx", "pg", false},
		{"Stripe", "stripe", true},
	}
	for _, tt := range tests {
		t.Run(tt.path+"~"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, ImportMatches(tt.path, tt.pattern))
		})
	}
}

func TestProviderForImport(t *testing.T) {
	tests := []struct {
		path     string
		provider string
		service  string
	}{
		{"firebase/app", "firebase", "Firebase"},
		{"firebase/auth", "firebase", "Firebase Auth"},
		{"@aws-sdk/client-s3", "aws", "AWS S3"},
		{"boto3", "aws", "AWS"},
		{"github.com/stripe/stripe-go/v76", "stripe", "Stripe"},
		{"ioredis", "redis", "Redis"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, service, ok := ProviderForImport(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.provider, p.Name)
			assert.Equal(t, tt.service, service)
		})
	}

	_, _, ok := ProviderForImport("lodash")
	assert.False(t, ok)
}

func TestProviderForImage(t *testing.T) {
	p, ok := ProviderForImage("postgres:16-alpine")
	require.True(t, ok)
	assert.Equal(t, "postgres", p.Name)

	p, ok = ProviderForImage("docker.io/library/redis:7")
	require.True(t, ok)
	assert.Equal(t, "redis", p.Name)

	_, ok = ProviderForImage("nginx:latest")
	assert.False(t, ok)
}

func TestProviderMatchers(t *testing.T) {
	p, ok := Lookup("Stripe")
	require.True(t, ok)
	assert.True(t, p.MatchEnv("STRIPE_SECRET_KEY"))
	assert.False(t, p.MatchEnv("GITHUB_TOKEN"))
	assert.Equal(t, "api.stripe.com", p.MatchEndpoint(`fetch("https://API.stripe.com/v1/charges")`))
	assert.Equal(t, []string{"Stripe"}, p.ServiceNames())
}
