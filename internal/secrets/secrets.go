// Package secrets provides scoped credential retrieval for pipeline stages.
// A stage declares the secret names it needs; the controller fetches them into
// a Bundle immediately before the stage body runs and destroys the bundle when
// the stage returns, on every exit path.
package secrets

import (
	"context"
	"fmt"

	"github.com/lodestar-cd/lodestar/internal/config"
)

// Provider abstracts the source of secrets, allowing integration with
// external secret management backends (Vault, AWS Secrets Manager, etc.).
type Provider interface {
	// GetSecret retrieves a secret by name and returns a map with credential
	// data. The map must include a "type" field and other fields as required
	// by the credential type; see the config package for the supported types.
	GetSecret(ctx context.Context, name string) (map[string]any, error)
}

// ConfigProvider resolves secrets from the configuration's secrets section,
// expanding ${ENV} references at fetch time.
type ConfigProvider struct {
	secrets map[string]*config.Secret
}

func NewConfigProvider(secrets map[string]*config.Secret) *ConfigProvider {
	return &ConfigProvider{secrets: secrets}
}

func (p *ConfigProvider) GetSecret(_ context.Context, name string) (map[string]any, error) {
	secret, ok := p.secrets[name]
	if !ok {
		return nil, fmt.Errorf("secret %q not found", name)
	}

	return secret.Fields()
}

// Bundle holds the credentials fetched for a single stage invocation, keyed
// by secret name. It is owned exclusively by that stage and must not outlive
// it.
type Bundle map[string]map[string]any

// FetchBundle retrieves all named secrets. Any missing secret fails the whole
// fetch; a stage may not execute with a partial credential set.
func FetchBundle(ctx context.Context, p Provider, names []string) (Bundle, error) {
	b := make(Bundle, len(names))
	for _, name := range names {
		fields, err := p.GetSecret(ctx, name)
		if err != nil {
			b.Destroy()
			return nil, err
		}
		b[name] = fields
	}
	return b, nil
}

// Fields returns the credential fields fetched under the given name, or nil.
func (b Bundle) Fields(name string) map[string]any {
	return b[name]
}

// Destroy scrubs the bundle in place. Best effort: string values are
// overwritten before the maps are emptied so the credentials do not linger in
// reachable memory.
func (b Bundle) Destroy() {
	for name, fields := range b {
		for k, v := range fields {
			if _, ok := v.(string); ok {
				fields[k] = ""
			}
			delete(fields, k)
		}
		delete(b, name)
	}
}

// String implements fmt.Stringer so that an accidentally logged bundle never
// prints credential values.
func (Bundle) String() string {
	return "secrets.Bundle{<redacted>}"
}
