// Package config loads the dataset provisioning document: a YAML file whose
// "data"-keyed sections list datasets with their connection details, vault
// credential locations, and an embedded transformation policy.
package config

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dremio-provisioner/internal/vault"
)

// Dataset describes one configured dataset. Immutable after Load.
type Dataset struct {
	// ID is the full slash-separated dataset identifier from the document.
	ID string
	// Name is the local name: the second path segment of ID.
	Name   string
	Format string
	// Endpoint is the object-store endpoint URL, scheme included when the
	// document carries one.
	Endpoint string
	Path     string
	// Transformation names the redaction rule; TransformationColumns are the
	// columns it protects.
	Transformation        string
	TransformationColumns []string
	Credentials           vault.Credentials
}

// CredentialResolver resolves a dataset's vault credentials.
type CredentialResolver func(ctx context.Context, cfg vault.Config, datasetID string) (vault.Credentials, error)

type fileEntry struct {
	Name            string `yaml:"name"`
	Format          string `yaml:"format"`
	Path            string `yaml:"path"`
	Transformations string `yaml:"transformations"`
	Connection      struct {
		S3 struct {
			EndpointURL      string        `yaml:"endpoint_url"`
			VaultCredentials vaultCredsDoc `yaml:"vault_credentials"`
		} `yaml:"s3"`
	} `yaml:"connection"`
}

type vaultCredsDoc struct {
	JWTFilePath string `yaml:"jwt_file_path"`
	Address     string `yaml:"address"`
	SecretPath  string `yaml:"secretPath"`
	AuthPath    string `yaml:"authPath"`
	Role        string `yaml:"role"`
}

// Load parses the document at path and returns every configured dataset
// keyed by local name. All entries are returned; selecting which one to
// provision is the caller's decision.
func Load(ctx context.Context, path string, resolve CredentialResolver) (map[string]Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	out := make(map[string]Dataset)
	for key, node := range doc {
		if !strings.Contains(key, "data") {
			continue
		}
		var entries []fileEntry
		if err := node.Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode %q entries: %w", key, err)
		}
		for _, entry := range entries {
			ds, err := buildDataset(ctx, entry, resolve)
			if err != nil {
				return nil, err
			}
			out[ds.Name] = ds
		}
	}
	return out, nil
}

func buildDataset(ctx context.Context, entry fileEntry, resolve CredentialResolver) (Dataset, error) {
	id := strings.TrimSpace(entry.Name)
	if id == "" {
		return Dataset{}, fmt.Errorf("dataset entry missing name")
	}

	creds, err := resolve(ctx, vault.Config{
		JWTFilePath: entry.Connection.S3.VaultCredentials.JWTFilePath,
		Address:     entry.Connection.S3.VaultCredentials.Address,
		SecretPath:  entry.Connection.S3.VaultCredentials.SecretPath,
		AuthPath:    entry.Connection.S3.VaultCredentials.AuthPath,
		Role:        entry.Connection.S3.VaultCredentials.Role,
	}, id)
	if err != nil {
		return Dataset{}, err
	}

	transformation, cols, err := decodeTransformations(entry.Transformations)
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset %s: %w", id, err)
	}

	return Dataset{
		ID:                    id,
		Name:                  localName(id),
		Format:                entry.Format,
		Endpoint:              entry.Connection.S3.EndpointURL,
		Path:                  entry.Path,
		Transformation:        transformation,
		TransformationColumns: cols,
		Credentials:           creds,
	}, nil
}

// localName is the second slash-separated segment of the dataset id
// ("namespace/name" form), or the whole id when there is no namespace.
func localName(id string) string {
	segments := strings.Split(id, "/")
	if len(segments) >= 2 {
		return segments[1]
	}
	return segments[0]
}

// decodeTransformations unpacks the base64+JSON transformation descriptor.
// The wire shape is a JSON array whose first element carries a "name" field
// and, under that same name, an object with the protected "columns" list.
func decodeTransformations(encoded string) (string, []string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", nil, fmt.Errorf("decode transformations base64: %w", err)
	}

	var actions []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &actions); err != nil {
		return "", nil, fmt.Errorf("decode transformations JSON: %w", err)
	}
	if len(actions) == 0 {
		return "", nil, fmt.Errorf("transformations list is empty")
	}

	first := actions[0]
	var name string
	if err := json.Unmarshal(first["name"], &name); err != nil {
		return "", nil, fmt.Errorf("transformation missing name: %w", err)
	}

	var action struct {
		Columns []string `json:"columns"`
	}
	body, ok := first[name]
	if !ok {
		return "", nil, fmt.Errorf("transformation %q has no action body", name)
	}
	if err := json.Unmarshal(body, &action); err != nil {
		return "", nil, fmt.Errorf("decode transformation %q: %w", name, err)
	}
	return name, action.Columns, nil
}
