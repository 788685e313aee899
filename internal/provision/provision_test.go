package provision_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dremio-provisioner/internal/mockdremio"
	"dremio-provisioner/internal/netwait"
	"dremio-provisioner/internal/provision"
	"dremio-provisioner/internal/vault"
)

// fakeVaultHandler serves the JWT login and secret read the resolver issues.
func fakeVaultHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/kubernetes/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"auth":{"client_token":"session-token"}}`))
	})
	mux.HandleFunc("/v1/secret/data/cred", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "session-token" {
			http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"access_key":"AKIA123","secret_key":"shhh"}}`))
	})
	return mux
}

func writeTestConf(t *testing.T, vaultAddr string, protected []string) string {
	t.Helper()
	dir := t.TempDir()

	jwtPath := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(jwtPath, []byte("test-jwt"), 0600))

	cols, err := json.Marshal(protected)
	require.NoError(t, err)
	transformations := base64.StdEncoding.EncodeToString(
		[]byte(fmt.Sprintf(`[{"name":"RedactAction","RedactAction":{"columns":%s}}]`, cols)))
	conf := fmt.Sprintf(`data:
  - name: fybrik-notebook-sample/data-csv
    format: csv
    path: bucket/dir
    transformations: %s
    connection:
      s3:
        endpoint_url: http://s3.example.test:9090
        vault_credentials:
          address: %s
          secretPath: /v1/secret/data/cred
          authPath: /v1/auth/kubernetes/login
          role: demo
          jwt_file_path: %s
`, transformations, vaultAddr, jwtPath)

	confPath := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0644))
	return confPath
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u := rawURL[len("http://"):]
	host, portStr, err := net.SplitHostPort(u)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestRunEndToEnd(t *testing.T) {
	mock := mockdremio.New([]string{"id", "name", "ssn", "salary"})
	mock.SetRunningPolls(1)
	dremioTS := httptest.NewServer(mock.Handler())
	defer dremioTS.Close()

	vaultTS := httptest.NewServer(fakeVaultHandler())
	defer vaultTS.Close()

	host, port := hostPort(t, dremioTS.URL)
	confPath := writeTestConf(t, vaultTS.URL, []string{"ssn", "salary"})

	err := provision.Run(context.Background(), provision.Params{
		Server:          dremioTS.URL,
		Host:            host,
		Port:            port,
		ConfPath:        confPath,
		AdminUser:       "adminUser",
		AdminPassword:   "adminPwd1",
		NewUser:         "newUser",
		NewUserPassword: "testpassword123",
		SourceName:      "sample-iceberg",
		SpaceName:       "Space-api",
		VDSName:         "sample-iceberg-vds",
		ReadyAttempts:   3,
		ReadyInterval:   time.Millisecond,
		JobPollInterval: time.Millisecond,
		JobPollAttempts: 10,
		Logger:          log.New(os.Stderr, "", 0),
	})
	require.NoError(t, err)

	// The admin account was bootstrapped with the configured credentials.
	admin := mock.Admin()
	require.Equal(t, "adminUser", admin["userName"])

	// The discovery query ran against the promoted path.
	sqls := mock.SQLs()
	require.Len(t, sqls, 1)
	require.Equal(t, `SELECT * FROM "sample-iceberg"."bucket"."dir" LIMIT 0`, sqls[0])

	// Source, space, promoted dataset, and VDS all landed in the catalog.
	var source, space, vds, promoted *mockdremio.Entity
	for _, ent := range mock.Entities() {
		ent := ent
		switch {
		case ent.EntityType == "source":
			source = &ent
		case ent.EntityType == "space":
			space = &ent
		case ent.EntityType == "dataset" && ent.SQL != "":
			vds = &ent
		case ent.EntityType == "dataset":
			promoted = &ent
		}
	}
	require.NotNil(t, source)
	require.Equal(t, "sample-iceberg", source.Name)
	require.NotNil(t, space)
	require.Equal(t, "Space-api", space.Name)
	require.NotNil(t, promoted)
	require.Equal(t, []string{"sample-iceberg", "bucket", "dir"}, promoted.Path)

	// The VDS exposes only the non-protected columns, with the promoted path
	// as query context.
	require.NotNil(t, vds)
	require.Equal(t, []string{"Space-api", "sample-iceberg-vds"}, vds.Path)
	require.Equal(t, `SELECT id, name FROM "sample-iceberg"."bucket"."dir"`, vds.SQL)
	require.Equal(t, []string{"sample-iceberg", "bucket", "dir"}, vds.SQLContext)

	// The additional account was created.
	users := mock.Users()
	require.Len(t, users, 1)
	require.Equal(t, "newUser", users[0]["name"])
}

// A policy protecting every column still provisions the virtual dataset,
// with an empty query body.
func TestRunCreatesEmptyVDSWhenAllColumnsProtected(t *testing.T) {
	mock := mockdremio.New([]string{"ssn", "salary"})
	dremioTS := httptest.NewServer(mock.Handler())
	defer dremioTS.Close()

	vaultTS := httptest.NewServer(fakeVaultHandler())
	defer vaultTS.Close()

	host, port := hostPort(t, dremioTS.URL)
	confPath := writeTestConf(t, vaultTS.URL, []string{"ssn", "salary"})

	err := provision.Run(context.Background(), provision.Params{
		Server:          dremioTS.URL,
		Host:            host,
		Port:            port,
		ConfPath:        confPath,
		AdminUser:       "adminUser",
		AdminPassword:   "adminPwd1",
		NewUser:         "newUser",
		NewUserPassword: "testpassword123",
		SourceName:      "sample-iceberg",
		SpaceName:       "Space-api",
		VDSName:         "sample-iceberg-vds",
		ReadyAttempts:   3,
		ReadyInterval:   time.Millisecond,
		JobPollInterval: time.Millisecond,
		JobPollAttempts: 10,
		Logger:          log.New(os.Stderr, "", 0),
	})
	require.NoError(t, err)

	var vds *mockdremio.Entity
	for _, ent := range mock.Entities() {
		ent := ent
		if ent.EntityType == "dataset" && len(ent.Path) == 2 && ent.Path[0] == "Space-api" {
			vds = &ent
		}
	}
	require.NotNil(t, vds)
	require.Equal(t, []string{"Space-api", "sample-iceberg-vds"}, vds.Path)
	require.Empty(t, vds.SQL)
	require.Equal(t, []string{"sample-iceberg", "bucket", "dir"}, vds.SQLContext)
}

func TestRunFailsWhenCatalogNeverReady(t *testing.T) {
	confPath := writeTestConf(t, "http://127.0.0.1:1", []string{"ssn"})

	err := provision.Run(context.Background(), provision.Params{
		Server:        "http://127.0.0.1:1",
		Host:          "127.0.0.1",
		Port:          1,
		ConfPath:      confPath,
		AdminUser:     "adminUser",
		AdminPassword: "adminPwd1",
		ReadyAttempts: 2,
		ReadyInterval: time.Millisecond,
		Logger:        log.New(os.Stderr, "", 0),
	})
	require.ErrorIs(t, err, netwait.ErrNotReady)
}

func TestRunRequiresDatasetSelectionWhenAmbiguous(t *testing.T) {
	mock := mockdremio.New([]string{"id"})
	dremioTS := httptest.NewServer(mock.Handler())
	defer dremioTS.Close()

	host, port := hostPort(t, dremioTS.URL)

	dir := t.TempDir()
	transformations := base64.StdEncoding.EncodeToString(
		[]byte(`[{"name":"RedactAction","RedactAction":{"columns":[]}}]`))
	conf := ""
	for _, name := range []string{"ns/first", "ns/second"} {
		if conf == "" {
			conf = "data:\n"
		}
		conf += fmt.Sprintf(`  - name: %s
    format: csv
    path: bucket/%s
    transformations: %s
    connection:
      s3:
        endpoint_url: http://s3.example.test:9090
        vault_credentials: {}
`, name, name, transformations)
	}
	confPath := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0644))

	stub := func(context.Context, vault.Config, string) (vault.Credentials, error) {
		return vault.Credentials{AccessKey: "a", SecretKey: "b"}, nil
	}

	err := provision.Run(context.Background(), provision.Params{
		Server:        dremioTS.URL,
		Host:          host,
		Port:          port,
		ConfPath:      confPath,
		AdminUser:     "adminUser",
		AdminPassword: "adminPwd1",
		ReadyAttempts: 2,
		ReadyInterval: time.Millisecond,
		Resolver:      stub,
		Logger:        log.New(os.Stderr, "", 0),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "-dataset")
}
