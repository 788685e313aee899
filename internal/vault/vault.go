// Package vault resolves dataset object-store credentials through a
// JWT-authenticated Vault lookup.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"

	"dremio-provisioner/internal/util"
)

// ErrMissingCredentials is returned whenever the secret cannot be resolved or
// is incomplete. Provisioning must not proceed without both keys.
var ErrMissingCredentials = errors.New("vault credentials are missing")

// Defaults applied when the dataset config omits a field.
const (
	DefaultJWTFilePath = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	DefaultAddress     = "https://localhost:8200"
	DefaultSecretPath  = "/v1/secret/data/cred"
	DefaultAuthPath    = "/v1/auth/kubernetes/login"
	DefaultRole        = "demo"
)

// Credentials is the resolved access/secret key pair. Both fields are
// guaranteed non-empty by Resolver.Resolve.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Config locates one secret. Paths follow the Vault HTTP API contract and may
// carry the "/v1/" prefix; it is stripped before the lookup since the API
// client re-adds it.
type Config struct {
	JWTFilePath string
	Address     string
	SecretPath  string
	AuthPath    string
	Role        string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.JWTFilePath) == "" {
		c.JWTFilePath = DefaultJWTFilePath
	}
	if strings.TrimSpace(c.Address) == "" {
		c.Address = DefaultAddress
	}
	if strings.TrimSpace(c.SecretPath) == "" {
		c.SecretPath = DefaultSecretPath
	}
	if strings.TrimSpace(c.AuthPath) == "" {
		c.AuthPath = DefaultAuthPath
	}
	if strings.TrimSpace(c.Role) == "" {
		c.Role = DefaultRole
	}
	return c
}

// Resolver exchanges a JWT for a Vault session token and reads key/value
// secrets. No caching, no renewal: each Resolve is a fresh login.
type Resolver struct {
	logger *log.Logger
}

// NewResolver constructs a Resolver. A nil logger defaults to stdout.
func NewResolver(logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &Resolver{logger: logger}
}

// Resolve reads the JWT from cfg.JWTFilePath, logs in against the auth path,
// and fetches the secret. Every resolution failure surfaces as
// ErrMissingCredentials; the underlying cause is logged, never returned.
func (r *Resolver) Resolve(ctx context.Context, cfg Config, datasetID string) (Credentials, error) {
	cfg = cfg.withDefaults()

	jwt, err := os.ReadFile(cfg.JWTFilePath)
	if err != nil {
		return Credentials{}, fmt.Errorf("dataset %s: read jwt file: %w", datasetID, err)
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return Credentials{}, fmt.Errorf("dataset %s: vault client: %w", datasetID, err)
	}

	auth, err := client.Logical().WriteWithContext(ctx, apiPath(cfg.AuthPath), map[string]interface{}{
		"jwt":  strings.TrimSpace(string(jwt)),
		"role": cfg.Role,
	})
	if err != nil {
		r.logger.Printf("vault authentication failed: dataset=%s path=%s: %s",
			datasetID, cfg.AuthPath, util.RedactSecrets(err.Error()))
		return Credentials{}, fmt.Errorf("dataset %s: %w", datasetID, ErrMissingCredentials)
	}
	if auth == nil || auth.Auth == nil || strings.TrimSpace(auth.Auth.ClientToken) == "" {
		r.logger.Printf("malformed vault authorization response: dataset=%s", datasetID)
		return Credentials{}, fmt.Errorf("dataset %s: %w", datasetID, ErrMissingCredentials)
	}
	client.SetToken(auth.Auth.ClientToken)

	secret, err := client.Logical().ReadWithContext(ctx, apiPath(cfg.SecretPath))
	if err != nil {
		r.logger.Printf("error reading credentials from vault: dataset=%s path=%s: %s",
			datasetID, cfg.SecretPath, util.RedactSecrets(err.Error()))
		return Credentials{}, fmt.Errorf("dataset %s: %w", datasetID, ErrMissingCredentials)
	}
	if secret == nil || secret.Data == nil {
		r.logger.Printf("empty secret response from vault: dataset=%s path=%s", datasetID, cfg.SecretPath)
		return Credentials{}, fmt.Errorf("dataset %s: %w", datasetID, ErrMissingCredentials)
	}

	accessKey, _ := secret.Data["access_key"].(string)
	secretKey, _ := secret.Data["secret_key"].(string)
	if accessKey == "" {
		r.logger.Printf("'access_key' must be present and non-empty: dataset=%s", datasetID)
	}
	if secretKey == "" {
		r.logger.Printf("'secret_key' must be present and non-empty: dataset=%s", datasetID)
	}
	if accessKey == "" || secretKey == "" {
		return Credentials{}, fmt.Errorf("dataset %s: %w", datasetID, ErrMissingCredentials)
	}

	return Credentials{AccessKey: accessKey, SecretKey: secretKey}, nil
}

// apiPath translates a raw Vault HTTP path ("/v1/secret/data/cred") into the
// logical path the API client expects ("secret/data/cred").
func apiPath(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	return strings.TrimPrefix(p, "v1/")
}
