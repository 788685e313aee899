package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dremio-provisioner/internal/provision"
	"dremio-provisioner/internal/util"
	"dremio-provisioner/internal/version"
)

// Defaults target the in-cluster Dremio service that fybrik blueprints deploy.
const (
	defaultServer   = "http://dremio-client.fybrik-blueprints.svc.cluster.local:9047"
	defaultHost     = "dremio-client.fybrik-blueprints.svc.cluster.local"
	defaultPort     = 9047
	defaultConfPath = "/etc/conf/conf.yaml"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("provisioner", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { usage(os.Stderr, fs) }

	server := fs.String("server", envString("DREMIO_SERVER", defaultServer), "Dremio server base URL (env: DREMIO_SERVER)")
	host := fs.String("host", envString("DREMIO_HOST", defaultHost), "Dremio host for the readiness probe (env: DREMIO_HOST)")
	defaultPortVal, err := envInt("DREMIO_PORT", defaultPort)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	port := fs.Int("port", defaultPortVal, "Dremio port for the readiness probe (env: DREMIO_PORT)")
	confPath := fs.String("conf", envString("CONF_PATH", defaultConfPath), "Dataset config YAML path (env: CONF_PATH)")
	dataset := fs.String("dataset", envString("DATASET_NAME", ""), "Dataset to provision; required when the config holds several (env: DATASET_NAME)")

	adminUser := fs.String("admin-user", envString("ADMIN_USER", "adminUser"), "Admin account to bootstrap and log in as (env: ADMIN_USER)")
	adminPassword := fs.String("admin-password", envString("ADMIN_PASSWORD", "adminPwd1"), "Admin account password (env: ADMIN_PASSWORD)")
	newUser := fs.String("new-user", envString("NEW_USER", "newUser"), "Additional account to create (env: NEW_USER)")
	newUserPassword := fs.String("new-user-password", envString("NEW_USER_PASSWORD", "testpassword123"), "Additional account password (env: NEW_USER_PASSWORD)")

	sourceName := fs.String("source", envString("SOURCE_NAME", "sample-iceberg"), "Name for the registered S3 source (env: SOURCE_NAME)")
	spaceName := fs.String("space", envString("SPACE_NAME", "Space-api"), "Space holding the virtual dataset (env: SPACE_NAME)")
	vdsName := fs.String("vds", envString("VDS_NAME", "sample-iceberg-vds"), "Name for the virtual dataset (env: VDS_NAME)")

	defaultReadyAttempts, err := envInt("READY_ATTEMPTS", 30)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defaultReadyInterval, err := envDuration("READY_INTERVAL", 10*time.Second)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defaultJobPollAttempts, err := envInt("JOB_POLL_ATTEMPTS", 30)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defaultJobPollInterval, err := envDuration("JOB_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defaultRateLimitRPS, err := envFloat("RATE_LIMIT_RPS", 0)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}

	readyAttempts := fs.Int("ready-attempts", defaultReadyAttempts, "Readiness probe attempt budget (env: READY_ATTEMPTS)")
	readyInterval := fs.Duration("ready-interval", defaultReadyInterval, "Sleep between readiness probes (env: READY_INTERVAL)")
	jobPollAttempts := fs.Int("job-poll-attempts", defaultJobPollAttempts, "Job state poll attempt budget (env: JOB_POLL_ATTEMPTS)")
	jobPollInterval := fs.Duration("job-poll-interval", defaultJobPollInterval, "Sleep between job state polls (env: JOB_POLL_INTERVAL)")
	rateLimitRPS := fs.Float64("rate-limit-rps", defaultRateLimitRPS, "Global catalog request rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	showVersion := fs.Bool("version", false, "Print the provisioner version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println(version.Current)
		return 0
	}

	err = provision.Run(ctx, provision.Params{
		Server:          *server,
		Host:            *host,
		Port:            *port,
		ConfPath:        *confPath,
		Dataset:         *dataset,
		AdminUser:       *adminUser,
		AdminPassword:   *adminPassword,
		NewUser:         *newUser,
		NewUserPassword: *newUserPassword,
		SourceName:      *sourceName,
		SpaceName:       *spaceName,
		VDSName:         *vdsName,
		ReadyAttempts:   *readyAttempts,
		ReadyInterval:   *readyInterval,
		RateLimitRPS:    *rateLimitRPS,
		JobPollInterval: *jobPollInterval,
		JobPollAttempts: *jobPollAttempts,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "provisioning failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func usage(w *os.File, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `provisioner: one-shot Dremio catalog provisioning (version %s)

Waits for a Dremio coordinator, bootstraps the admin account, registers an
S3 source from the dataset config, promotes the data path to an Iceberg
dataset, and saves a column-redacted virtual dataset next to a new user.

Usage:
  provisioner [flags]

Flags:
`, version.Current)
	fs.PrintDefaults()
}

func envString(varName, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		return v
	}
	return fallback
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
