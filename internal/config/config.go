package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"dbbackup/internal/cpu"
	"dbbackup/internal/tunnel"
)

// Config holds all configuration options
type Config struct {
	// Version information
	Version   string
	BuildTime string
	GitCommit string

	// Database connection (spec.md §3 "Connection Profile")
	Host         string
	Port         int
	User         string
	Database     string
	Password     string
	DatabaseType string // "postgres" only; validated in Validate()
	SSLMode      string
	Insecure     bool

	// SSH transport sub-profile of the Connection Profile (spec.md §3,
	// internal/tunnel.Profile). SSHEnabled gates whether the Keeper is
	// set up before a backup/restore operation connects.
	SSHEnabled        bool
	SSHHost           string
	SSHPort           int
	SSHUser           string
	SSHPassword       string
	SSHPrivateKeyPath string
	SSHLocalPort      int

	// Backup options
	BackupDir        string
	CompressionLevel int
	Jobs             int
	DumpJobs         int
	MaxCores         int
	AutoDetectCores  bool
	CPUWorkloadType  string // "cpu-intensive", "io-intensive", "balanced"

	// CPU detection
	CPUDetector *cpu.Detector
	CPUInfo     *cpu.CPUInfo

	// Object-storage upload (spec.md §4.B), mirrors internal/cloud.Config.
	CloudEnabled    bool
	CloudAutoUpload bool
	CloudProvider   string // "s3", "minio", "azure", "gcs", "b2"
	CloudBucket     string
	CloudRegion     string
	CloudEndpoint   string
	CloudPrefix     string
	CloudAccessKey  string
	CloudSecretKey  string
	CloudPathStyle  bool

	// Retention policy (applied against the catalog by cmd/cleanup.go)
	RetentionDays int
	MinBackups    int

	// Security checks (internal/security)
	AllowRoot      bool
	CheckResources bool
	MaxRetries     int

	// Output options
	NoColor      bool
	Debug        bool
	LogLevel     string
	LogFormat    string
	OutputLength int

	// Local config file persistence (cmd/root.go PersistentPreRunE)
	NoLoadConfig bool
	NoSaveConfig bool
}

// New creates a new configuration with default values
func New() *Config {
	// Get default backup directory
	backupDir := getEnvString("BACKUP_DIR", getDefaultBackupDir())

	// Initialize CPU detector
	cpuDetector := cpu.NewDetector()
	cpuInfo, _ := cpuDetector.DetectCPU()

	return &Config{
		// Database defaults
		Host:         getEnvString("PG_HOST", "localhost"),
		Port:         getEnvInt("PG_PORT", 5432),
		User:         getEnvString("PG_USER", getCurrentUser()),
		Database:     getEnvString("PG_DATABASE", "postgres"),
		Password:     getEnvString("PGPASSWORD", ""),
		DatabaseType: getEnvString("DB_TYPE", "postgres"),
		SSLMode:      getEnvString("PG_SSLMODE", "prefer"),
		Insecure:     getEnvBool("INSECURE", false),

		// SSH tunnel defaults
		SSHEnabled:        getEnvBool("SSH_ENABLED", false),
		SSHHost:           getEnvString("SSH_HOST", ""),
		SSHPort:           getEnvInt("SSH_PORT", 22),
		SSHUser:           getEnvString("SSH_USER", ""),
		SSHPassword:       getEnvString("SSH_PASSWORD", ""),
		SSHPrivateKeyPath: getEnvString("SSH_PRIVATE_KEY_PATH", ""),
		SSHLocalPort:      getEnvInt("SSH_LOCAL_PORT", 0),

		// Backup defaults
		BackupDir:        backupDir,
		CompressionLevel: getEnvInt("COMPRESS_LEVEL", 6),
		Jobs:             getEnvInt("JOBS", getDefaultJobs(cpuInfo)),
		DumpJobs:         getEnvInt("DUMP_JOBS", getDefaultDumpJobs(cpuInfo)),
		MaxCores:         getEnvInt("MAX_CORES", getDefaultMaxCores(cpuInfo)),
		AutoDetectCores:  getEnvBool("AUTO_DETECT_CORES", true),
		CPUWorkloadType:  getEnvString("CPU_WORKLOAD_TYPE", "balanced"),

		// CPU detection
		CPUDetector: cpuDetector,
		CPUInfo:     cpuInfo,

		// Cloud storage defaults
		CloudEnabled:    getEnvBool("CLOUD_ENABLED", false),
		CloudAutoUpload: getEnvBool("CLOUD_AUTO_UPLOAD", false),
		CloudProvider:   getEnvString("CLOUD_PROVIDER", ""),
		CloudBucket:     getEnvString("CLOUD_BUCKET", ""),
		CloudRegion:     getEnvString("CLOUD_REGION", "us-east-1"),
		CloudEndpoint:   getEnvString("CLOUD_ENDPOINT", ""),
		CloudPrefix:     getEnvString("CLOUD_PREFIX", ""),
		CloudAccessKey:  getEnvString("CLOUD_ACCESS_KEY", ""),
		CloudSecretKey:  getEnvString("CLOUD_SECRET_KEY", ""),
		CloudPathStyle:  getEnvBool("CLOUD_PATH_STYLE", false),

		// Retention defaults
		RetentionDays: getEnvInt("RETENTION_DAYS", 0),
		MinBackups:    getEnvInt("MIN_BACKUPS", 1),

		// Security defaults
		AllowRoot:      getEnvBool("ALLOW_ROOT", false),
		CheckResources: getEnvBool("CHECK_RESOURCES", true),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		// Output defaults
		NoColor:      getEnvBool("NO_COLOR", false),
		Debug:        getEnvBool("DEBUG", false),
		LogLevel:     getEnvString("LOG_LEVEL", "info"),
		LogFormat:    getEnvString("LOG_FORMAT", "text"),
		OutputLength: getEnvInt("OUTPUT_LENGTH", 0),
	}
}

// UpdateFromEnvironment updates configuration from environment variables
func (c *Config) UpdateFromEnvironment() {
	if password := os.Getenv("PGPASSWORD"); password != "" {
		c.Password = password
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabaseType != "postgres" {
		return &ConfigError{Field: "database-type", Value: c.DatabaseType, Message: "must be 'postgres'"}
	}

	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		return &ConfigError{Field: "compression", Value: string(rune(c.CompressionLevel)), Message: "must be between 0-9"}
	}

	if c.Jobs < 1 {
		return &ConfigError{Field: "jobs", Value: string(rune(c.Jobs)), Message: "must be at least 1"}
	}

	if c.DumpJobs < 1 {
		return &ConfigError{Field: "dump-jobs", Value: string(rune(c.DumpJobs)), Message: "must be at least 1"}
	}

	return nil
}

// IsPostgreSQL reports whether DatabaseType is "postgres" (kept for
// call-site clarity at connection-setup boundaries).
func (c *Config) IsPostgreSQL() bool {
	return c.DatabaseType == "postgres"
}

// GetDefaultPort returns the default PostgreSQL port.
func (c *Config) GetDefaultPort() int {
	return 5432
}

// SetDatabaseType validates and sets the database type.
func (c *Config) SetDatabaseType(dbType string) error {
	if dbType != "postgres" {
		return &ConfigError{Field: "database-type", Value: dbType, Message: "must be 'postgres'"}
	}
	c.DatabaseType = dbType
	return nil
}

// SSHProfile builds the tunnel sub-profile for the configured SSH jump
// host, forwarding to the configured database Host/Port (spec.md §3
// "Connection Profile", §4.C).
func (c *Config) SSHProfile() tunnel.Profile {
	return tunnel.Profile{
		Host:           c.SSHHost,
		Port:           c.SSHPort,
		User:           c.SSHUser,
		Password:       c.SSHPassword,
		PrivateKeyPath: c.SSHPrivateKeyPath,
		LocalPort:      c.SSHLocalPort,
		RemoteHost:     c.Host,
		RemotePort:     c.Port,
	}
}

// OptimizeForCPU optimizes job settings based on detected CPU
func (c *Config) OptimizeForCPU() error {
	if c.CPUDetector == nil {
		c.CPUDetector = cpu.NewDetector()
	}
	
	if c.CPUInfo == nil {
		info, err := c.CPUDetector.DetectCPU()
		if err != nil {
			return err
		}
		c.CPUInfo = info
	}
	
	if c.AutoDetectCores {
		// Optimize jobs based on workload type
		if jobs, err := c.CPUDetector.CalculateOptimalJobs(c.CPUWorkloadType, c.MaxCores); err == nil {
			c.Jobs = jobs
		}
		
		// Optimize dump jobs (more conservative for database dumps)
		if dumpJobs, err := c.CPUDetector.CalculateOptimalJobs("cpu-intensive", c.MaxCores/2); err == nil {
			c.DumpJobs = dumpJobs
			if c.DumpJobs > 8 {
				c.DumpJobs = 8 // Conservative limit for dumps
			}
		}
	}
	
	return nil
}

// GetCPUInfo returns CPU information, detecting if necessary
func (c *Config) GetCPUInfo() (*cpu.CPUInfo, error) {
	if c.CPUInfo != nil {
		return c.CPUInfo, nil
	}
	
	if c.CPUDetector == nil {
		c.CPUDetector = cpu.NewDetector()
	}
	
	info, err := c.CPUDetector.DetectCPU()
	if err != nil {
		return nil, err
	}
	
	c.CPUInfo = info
	return info, nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "' with value '" + e.Value + "': " + e.Message
}

// Helper functions
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getCurrentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "postgres"
}

func getDefaultBackupDir() string {
	// Try to create a sensible default backup directory
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		return filepath.Join(homeDir, "db_backups")
	}
	
	// Fallback based on OS
	if runtime.GOOS == "windows" {
		return "C:\\db_backups"
	}
	
	// For PostgreSQL user on Linux/Unix
	if getCurrentUser() == "postgres" {
		return "/var/lib/pgsql/pg_backups"
	}
	
	return "/tmp/db_backups"
}

// CPU-related helper functions
func getDefaultJobs(cpuInfo *cpu.CPUInfo) int {
	if cpuInfo == nil {
		return 1
	}
	// Default to logical cores for restore operations
	jobs := cpuInfo.LogicalCores
	if jobs < 1 {
		jobs = 1
	}
	if jobs > 16 {
		jobs = 16 // Safety limit
	}
	return jobs
}

func getDefaultDumpJobs(cpuInfo *cpu.CPUInfo) int {
	if cpuInfo == nil {
		return 1
	}
	// Use physical cores for dump operations (CPU intensive)
	jobs := cpuInfo.PhysicalCores
	if jobs < 1 {
		jobs = 1
	}
	if jobs > 8 {
		jobs = 8 // Conservative limit for dumps
	}
	return jobs
}

func getDefaultMaxCores(cpuInfo *cpu.CPUInfo) int {
	if cpuInfo == nil {
		return 16
	}
	// Set max cores to 2x logical cores, with reasonable upper limit
	maxCores := cpuInfo.LogicalCores * 2
	if maxCores < 4 {
		maxCores = 4
	}
	if maxCores > 64 {
		maxCores = 64
	}
	return maxCores
}