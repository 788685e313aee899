// Package provision drives the one-shot provisioning sequence: wait for the
// catalog, bootstrap and log in as admin, load the dataset config, register
// the source, promote the dataset, derive the policy-filtered view, and
// create the virtual dataset and the additional user.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dremio-provisioner/internal/config"
	"dremio-provisioner/internal/dremio"
	"dremio-provisioner/internal/netwait"
	"dremio-provisioner/internal/policy"
	"dremio-provisioner/internal/util"
	"dremio-provisioner/internal/vault"
)

// Params configures a provisioning run. Zero values fall back to the
// in-cluster defaults; every name and credential can be overridden.
type Params struct {
	Server   string
	Host     string
	Port     int
	ConfPath string

	// Dataset selects which configured dataset to provision. Optional when
	// the config holds exactly one entry.
	Dataset string

	AdminUser     string
	AdminPassword string

	NewUser         string
	NewUserPassword string

	SourceName string
	SpaceName  string
	VDSName    string

	ReadyAttempts int
	ReadyInterval time.Duration

	RateLimitRPS    float64
	JobPollInterval time.Duration
	JobPollAttempts int

	Logger *log.Logger

	// Dialer overrides the readiness dialer; tests use it.
	Dialer netwait.Dialer

	// Resolver overrides credential resolution; nil uses a Vault resolver.
	Resolver config.CredentialResolver
}

// Run executes the full sequence. Every step depends on the previous step's
// output, so the flow is strictly linear.
func Run(ctx context.Context, p Params) error {
	logger := p.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	runID := uuid.NewString()
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}

	logf("provisioning start: server=%s conf=%s source=%s space=%s vds=%s",
		p.Server, p.ConfPath, p.SourceName, p.SpaceName, p.VDSName)

	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	logf("waiting for catalog at %s", addr)
	if err := netwait.Wait(ctx, addr, netwait.Options{
		Attempts: p.ReadyAttempts,
		Interval: p.ReadyInterval,
		Dialer:   p.Dialer,
	}); err != nil {
		return err
	}

	client, err := dremio.NewClient(p.Server, dremio.Options{
		RateLimitRPS:    p.RateLimitRPS,
		JobPollInterval: p.JobPollInterval,
		JobPollAttempts: p.JobPollAttempts,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	// A bootstrap conflict is expected when the server was provisioned
	// before; login decides whether the admin account is actually usable.
	if err := client.BootstrapFirstUser(ctx, dremio.User{
		UserName:  p.AdminUser,
		FirstName: "user",
		LastName:  "admin",
		Email:     "test@test.com",
		CreatedAt: 1526186430755,
		Password:  p.AdminPassword,
	}); err != nil {
		logf("bootstrap first user failed, continuing to login: %s", util.RedactSecrets(err.Error()))
	}

	if err := client.Login(ctx, p.AdminUser, p.AdminPassword); err != nil {
		return fmt.Errorf("login as %s: %w", p.AdminUser, err)
	}
	logf("logged in as %s", p.AdminUser)

	resolver := p.Resolver
	if resolver == nil {
		resolver = vault.NewResolver(logger).Resolve
	}
	datasets, err := config.Load(ctx, p.ConfPath, resolver)
	if err != nil {
		return err
	}
	ds, err := selectDataset(datasets, p.Dataset)
	if err != nil {
		return err
	}
	logf("provisioning dataset %s (path=%s transformation=%s protects=%v)",
		ds.ID, ds.Path, ds.Transformation, ds.TransformationColumns)

	endpoint := stripScheme(ds.Endpoint)

	logf("creating S3 source %s", p.SourceName)
	if err := client.CreateSource(ctx, dremio.SourceParams{
		Name:      p.SourceName,
		Endpoint:  endpoint,
		AccessKey: ds.Credentials.AccessKey,
		SecretKey: ds.Credentials.SecretKey,
	}); err != nil {
		return fmt.Errorf("create source %s: %w", p.SourceName, err)
	}

	// Diagnostic only: confirms the data folder is visible under the source.
	if entry, err := client.LookupByPath(ctx, p.SourceName, ds.Path); err != nil {
		logf("catalog path lookup failed (non-fatal): %s", util.RedactSecrets(err.Error()))
	} else {
		logf("data folder catalog entry: %v", entry)
	}

	pathList, err := client.PromoteFolder(ctx, p.SourceName, ds.Path)
	if err != nil {
		return fmt.Errorf("promote %s/%s: %w", p.SourceName, ds.Path, err)
	}

	sqlPath := policy.SQLPath(pathList)
	cols, err := client.TableColumns(ctx, sqlPath)
	if err != nil {
		return fmt.Errorf("discover columns of %s: %w", sqlPath, err)
	}

	vdsSQL := policy.BuildQuery(ds.TransformationColumns, sqlPath, cols)
	if vdsSQL == "" {
		logf("policy leaves no columns to expose for %s", ds.ID)
	} else {
		logf("derived view SQL: %s", vdsSQL)
	}

	if err := client.CreateSpace(ctx, p.SpaceName); err != nil {
		var httpErr *dremio.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == 409 {
			logf("space %s already exists", p.SpaceName)
		} else {
			return fmt.Errorf("create space %s: %w", p.SpaceName, err)
		}
	}

	logf("creating virtual dataset %s/%s", p.SpaceName, p.VDSName)
	if err := client.CreateVDS(ctx, p.SpaceName, p.VDSName, vdsSQL, pathList); err != nil {
		return fmt.Errorf("create virtual dataset %s: %w", p.VDSName, err)
	}

	if err := client.CreateUser(ctx, dremio.NewUser{
		Name:      p.NewUser,
		FirstName: "first",
		Password:  p.NewUserPassword,
	}); err != nil {
		return fmt.Errorf("create user %s: %w", p.NewUser, err)
	}

	logf("provisioning finished")
	return nil
}

// selectDataset picks the dataset to act on. With a name it must exist; with
// no name the config must hold exactly one entry.
func selectDataset(datasets map[string]config.Dataset, name string) (config.Dataset, error) {
	if len(datasets) == 0 {
		return config.Dataset{}, fmt.Errorf("no datasets configured")
	}
	if name != "" {
		ds, ok := datasets[name]
		if !ok {
			return config.Dataset{}, fmt.Errorf("dataset %q not found in config (have %s)", name, datasetNames(datasets))
		}
		return ds, nil
	}
	if len(datasets) > 1 {
		return config.Dataset{}, fmt.Errorf("config holds %d datasets (%s); select one with -dataset", len(datasets), datasetNames(datasets))
	}
	for _, ds := range datasets {
		return ds, nil
	}
	return config.Dataset{}, fmt.Errorf("no datasets configured")
}

func datasetNames(datasets map[string]config.Dataset) string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// stripScheme drops a leading "scheme://" from an endpoint host.
func stripScheme(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[i+len("://"):]
	}
	return endpoint
}
