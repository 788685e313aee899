package dremio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"dremio-provisioner/internal/util"
)

// TableFormatIceberg is the fixed table format assigned to promoted datasets.
const TableFormatIceberg = "Iceberg"

// User is the account payload for the unauthenticated first-user bootstrap.
type User struct {
	UserName  string `json:"userName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"createdAt"`
	Password  string `json:"password"`
}

// NewUser is the account payload for the authenticated user endpoint.
type NewUser struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	Password  string `json:"password"`
}

// SourceParams describes the S3 source to register.
type SourceParams struct {
	Name      string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// BootstrapFirstUser registers the initial admin account through the
// unauthenticated bootstrap endpoint.
func (c *Client) BootstrapFirstUser(ctx context.Context, user User) error {
	return c.do(ctx, "bootstrapFirstUser", http.MethodPut, "apiv2/bootstrap/firstuser", user, nil)
}

// Login exchanges credentials for a session token. The token is held by the
// client and sent on every subsequent call; there is no expiry handling.
func (c *Client) Login(ctx context.Context, userName, password string) error {
	var out loginResponse
	if err := c.do(ctx, "login", http.MethodPost, "apiv2/login", loginRequest{
		UserName: userName,
		Password: password,
	}, &out); err != nil {
		return err
	}
	if strings.TrimSpace(out.Token) == "" {
		return fmt.Errorf("login response missing token")
	}
	c.auth = authScheme + out.Token
	return nil
}

// CreateSource registers an S3 source bound to the resolved credentials.
// The engine-tuning flags (caching, async access, path-style addressing)
// match what the Dremio console itself sends for a compatible S3 store.
func (c *Client) CreateSource(ctx context.Context, p SourceParams) error {
	body := map[string]any{
		"entityType": "source",
		"name":       p.Name,
		"type":       "S3",
		"config": map[string]any{
			"accessKey":             p.AccessKey,
			"accessSecret":          p.SecretKey,
			"secure":                "false",
			"allowCreateDrop":       "true",
			"rootPath":              "/",
			"credentialType":        "ACCESS_KEY",
			"enableAsync":           "true",
			"compatibilityMode":     "true",
			"isCachingEnabled":      "true",
			"maxCacheSpacePct":      100,
			"requesterPays":         "false",
			"enableFileStatusCheck": "true",
			"propertyList": []map[string]string{
				{"name": "fs.s3a.path.style.access", "value": "true"},
				{"name": "fs.s3a.endpoint", "value": p.Endpoint},
			},
		},
	}
	var out map[string]any
	if err := c.do(ctx, "createSource", http.MethodPost, "api/v3/catalog", body, &out); err != nil {
		return err
	}
	c.logger.Printf("new source response: %s", util.RedactSecrets(fmt.Sprintf("%v", out)))
	return nil
}

// LookupByPath fetches the catalog entity at source/path. Diagnostic only:
// the provisioning sequence logs the result and does not consume it.
func (c *Client) LookupByPath(ctx context.Context, source, path string) (map[string]any, error) {
	var out map[string]any
	endpoint := "api/v3/catalog/by-path/" + escapePathSegments(source+"/"+path)
	if err := c.do(ctx, "lookupByPath", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PromoteFolder promotes the filesystem path under source to an Iceberg
// physical dataset and returns the resolved path-segment list (source name
// first), which downstream steps use for SQL-path construction and as the
// virtual dataset's query context.
func (c *Client) PromoteFolder(ctx context.Context, source, path string) ([]string, error) {
	segments := append([]string{source}, strings.Split(path, "/")...)
	id := "dremio:/" + source + "/" + path

	body := map[string]any{
		"entityType": "dataset",
		"id":         id,
		"path":       segments,
		"type":       "PHYSICAL_DATASET",
		"format":     map[string]string{"type": TableFormatIceberg},
	}
	var out map[string]any
	endpoint := "api/v3/catalog/" + escapeCatalogID(id)
	if err := c.do(ctx, "promoteFolder", http.MethodPost, endpoint, body, &out); err != nil {
		return nil, err
	}
	c.logger.Printf("promote response: %s", util.RedactSecrets(fmt.Sprintf("%v", out)))
	return segments, nil
}

// CreateSpace creates the named space. Dremio answers 409 when the space
// already exists; callers decide whether that is tolerable.
func (c *Client) CreateSpace(ctx context.Context, name string) error {
	body := map[string]any{
		"entityType": "space",
		"name":       name,
	}
	return c.do(ctx, "createSpace", http.MethodPost, "api/v3/catalog", body, nil)
}

// CreateVDS saves sql as a virtual dataset under space, with the promoted
// dataset's path segments as the query context.
func (c *Client) CreateVDS(ctx context.Context, space, name, sql string, sqlContext []string) error {
	body := map[string]any{
		"entityType": "dataset",
		"path":       []string{space, name},
		"type":       "VIRTUAL_DATASET",
		"sql":        sql,
		"sqlContext": sqlContext,
	}
	return c.do(ctx, "createVDS", http.MethodPost, "api/v3/catalog", body, nil)
}

// CreateUser registers an additional account through the authenticated user
// endpoint.
func (c *Client) CreateUser(ctx context.Context, user NewUser) error {
	return c.do(ctx, "createUser", http.MethodPost, "api/v3/user", user, nil)
}

// escapeCatalogID percent-encodes a catalog entity id for use as a single
// path segment; Dremio expects ":" and "/" escaped inside the id.
func escapeCatalogID(id string) string {
	esc := url.PathEscape(id)
	return strings.ReplaceAll(esc, ":", "%3A")
}

// escapePathSegments escapes each "/"-separated segment while preserving the
// separators, for the by-path endpoint.
func escapePathSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
