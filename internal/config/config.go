package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL  string
	ProjectsFile string
	ScratchDir   string

	// Log store pool sizing. Zero keeps the pgx default.
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnLifetime time.Duration
	DBMaxConnIdleTime time.Duration

	MySQLDefaultsFile string

	// Cron expressions for the schedules the worker registers with Temporal.
	BackupCron     string
	ComplianceCron string

	// ReplicationTimeout bounds a single offsite copy. A copy that runs past it
	// is abandoned and the backup is recorded as partial.
	ReplicationTimeout time.Duration

	TemporalAddress       string
	TemporalNamespace     string
	TemporalTaskQueue     string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	MetricsListenAddr string
	WebhookURL        string
	WebhookTemplate   string

	LogLevel    string
	LogFile     string
	ServiceName string
	NodeName    string
}

func Load() (*Config, error) {
	timeout, err := getDuration("REPLICATION_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	maxConns, err := getInt32("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	minConns, err := getInt32("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, err
	}
	lifetime, err := getDuration("DB_MAX_CONN_LIFETIME", time.Hour)
	if err != nil {
		return nil, err
	}
	idle, err := getDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()

	cfg := &Config{
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DBMaxConns:            maxConns,
		DBMinConns:            minConns,
		DBMaxConnLifetime:     lifetime,
		DBMaxConnIdleTime:     idle,
		ProjectsFile:          getEnv("PROJECTS_FILE", "/etc/hostbackup/projects.yaml"),
		ScratchDir:            getEnv("SCRATCH_DIR", os.TempDir()),
		ReplicationTimeout:    timeout,
		MySQLDefaultsFile:     getEnv("MYSQL_DEFAULTS_FILE", ""),
		BackupCron:            getEnv("BACKUP_CRON", "0 2 * * *"),
		ComplianceCron:        getEnv("COMPLIANCE_CRON", "0 6 * * 1"),
		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:     getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue:     getEnv("TEMPORAL_TASK_QUEUE", "backup-tasks"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),
		MetricsListenAddr:     getEnv("METRICS_LISTEN_ADDR", ":9090"),
		WebhookURL:            getEnv("WEBHOOK_URL", ""),
		WebhookTemplate:       getEnv("WEBHOOK_TEMPLATE", "generic"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFile:               getEnv("LOG_FILE", ""),
		ServiceName:           getEnv("SERVICE_NAME", "hostbackup"),
		NodeName:              getEnv("NODE_NAME", hostname),
	}

	return cfg, nil
}

// Validate checks that the settings required by the named component are present.
func (c *Config) Validate(component string) error {
	var missing []string

	switch component {
	case "worker":
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.TemporalAddress == "" {
			missing = append(missing, "TEMPORAL_ADDRESS")
		}
		if c.ProjectsFile == "" {
			missing = append(missing, "PROJECTS_FILE")
		}
	case "backupctl":
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.ProjectsFile == "" {
			missing = append(missing, "PROJECTS_FILE")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS and DB_MIN_CONNS must not be negative")
	}
	if c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}
	if c.ReplicationTimeout <= 0 {
		return fmt.Errorf("REPLICATION_TIMEOUT must be positive")
	}
	if c.WebhookTemplate != "generic" && c.WebhookTemplate != "slack" {
		return fmt.Errorf("WEBHOOK_TEMPLATE must be generic or slack")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt32(key string, fallback int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return int32(n), nil
}
