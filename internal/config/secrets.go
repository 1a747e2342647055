package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, reads the secret from that file path.
// Otherwise falls back to the value of envName.
// Returns empty string if neither is set.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(envName), nil
}

// Credentials is a basic-auth user and password pair.
type Credentials struct {
	User string
	Pass string
}

// Set returns true if both user and password are present.
func (c Credentials) Set() bool {
	return c.User != "" && c.Pass != ""
}

// Secrets groups every secret the server reads at startup.
type Secrets struct {
	PGPassword string
	Admin      Credentials
	Operator   Credentials
}

// LoadSecrets resolves PGPASSWORD and the STORY_ADMIN_* / STORY_OPERATOR_*
// credentials. The error names the variable but never its content.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	targets := []struct {
		env string
		dst *string
	}{
		{"PGPASSWORD", &s.PGPassword},
		{"STORY_ADMIN_USER", &s.Admin.User},
		{"STORY_ADMIN_PASS", &s.Admin.Pass},
		{"STORY_OPERATOR_USER", &s.Operator.User},
		{"STORY_OPERATOR_PASS", &s.Operator.Pass},
	}
	for _, t := range targets {
		v, err := ResolveSecret(t.env)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}
	return &s, nil
}
