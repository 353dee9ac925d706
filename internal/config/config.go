// Package config reads the per-tier option table from spec §6 from the
// environment, with unexported fields and getter methods so values are
// immutable once loaded.
//
// Grounded on distributed-agent/internal/config/config.go: godotenv for
// an optional .env file, os.Getenv plus a parsed-with-default fallback
// for each option, unexported struct fields.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ConfigError reports a bad or missing required configuration value
// (spec §7: "ConfigError — bad port, bad paths, missing required
// value" and "ConfigError aborts startup").
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Option, e.Reason)
}

// Common holds the options shared across all three tiers from spec §6's
// table: the wire-level and session-level knobs.
type Common struct {
	encryptMode       bool
	compressMode      bool
	compressBlockSize int
	connectionKey     string
	highPriority      int
	normalPriority    int
	lowPriority       int
	sessionLimit      int
	loggingLevel      string
	writeConsole      bool
	writeConsoleOnly  bool
}

func (c Common) EncryptMode() bool        { return c.encryptMode }
func (c Common) CompressMode() bool       { return c.compressMode }
func (c Common) CompressBlockSize() int   { return c.compressBlockSize }
func (c Common) ConnectionKey() string    { return c.connectionKey }
func (c Common) HighPriorityCount() int   { return c.highPriority }
func (c Common) NormalPriorityCount() int { return c.normalPriority }
func (c Common) LowPriorityCount() int    { return c.lowPriority }
func (c Common) SessionLimitCount() int   { return c.sessionLimit }
func (c Common) LoggingLevel() string     { return c.loggingLevel }
func (c Common) WriteConsole() bool       { return c.writeConsole }
func (c Common) WriteConsoleOnly() bool   { return c.writeConsoleOnly }

func loadCommon() (Common, error) {
	blockSize, err := envInt("COMPRESS_BLOCK_SIZE", 1024)
	if err != nil {
		return Common{}, err
	}
	high, err := envInt("HIGH_PRIORITY_COUNT", 2)
	if err != nil {
		return Common{}, err
	}
	normal, err := envInt("NORMAL_PRIORITY_COUNT", 2)
	if err != nil {
		return Common{}, err
	}
	low, err := envInt("LOW_PRIORITY_COUNT", 1)
	if err != nil {
		return Common{}, err
	}
	limit, err := envInt("SESSION_LIMIT_COUNT", 0)
	if err != nil {
		return Common{}, err
	}
	connectionKey := os.Getenv("CONNECTION_KEY")
	if connectionKey == "" {
		return Common{}, &ConfigError{Option: "CONNECTION_KEY", Reason: "required value is missing"}
	}
	return Common{
		encryptMode:       envBool("ENCRYPT_MODE", true),
		compressMode:      envBool("COMPRESS_MODE", true),
		compressBlockSize: blockSize,
		connectionKey:     connectionKey,
		highPriority:      high,
		normalPriority:    normal,
		lowPriority:       low,
		sessionLimit:      limit,
		loggingLevel:      envString("LOGGING_LEVEL", "info"),
		writeConsole:      envBool("WRITE_CONSOLE", true),
		writeConsoleOnly:  envBool("WRITE_CONSOLE_ONLY", false),
	}, nil
}

// MainServer is the configuration for the main_server tier: it only
// accepts downstream (middle-tier) sessions.
type MainServer struct {
	Common
	port int
}

func (c MainServer) Port() int { return c.port }

// LoadMainServer reads main_server configuration, loading an optional
// .env file first (grounded on the teacher's godotenv.Load() call).
func LoadMainServer() (*MainServer, error) {
	_ = godotenv.Load()
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	port, err := envInt("MAIN_SERVER_PORT", 9000)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, &ConfigError{Option: "MAIN_SERVER_PORT", Reason: "must be in 1..65535"}
	}
	return &MainServer{Common: common, port: port}, nil
}

// MiddleServer is the configuration for the middle-tier router: it
// dials the main server and accepts downstream clients.
type MiddleServer struct {
	Common
	port           int
	mainServerIP   string
	mainServerPort int
}

func (c MiddleServer) Port() int           { return c.port }
func (c MiddleServer) MainServerIP() string { return c.mainServerIP }
func (c MiddleServer) MainServerPort() int  { return c.mainServerPort }

// LoadMiddleServer reads middle_server configuration.
func LoadMiddleServer() (*MiddleServer, error) {
	_ = godotenv.Load()
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	port, err := envInt("MIDDLE_SERVER_PORT", 9100)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, &ConfigError{Option: "MIDDLE_SERVER_PORT", Reason: "must be in 1..65535"}
	}
	mainPort, err := envInt("MAIN_SERVER_PORT", 9000)
	if err != nil {
		return nil, err
	}
	mainIP := envString("MAIN_SERVER_IP", "127.0.0.1")
	if mainIP == "" {
		return nil, &ConfigError{Option: "MAIN_SERVER_IP", Reason: "required value is missing"}
	}
	return &MiddleServer{Common: common, port: port, mainServerIP: mainIP, mainServerPort: mainPort}, nil
}

// RestGateway is the configuration for the restapi_gateway process: an
// HTTP listener plus the middle-tier address it dials.
type RestGateway struct {
	Common
	restPort       int
	middleServerIP string
	middlePort     int
}

func (c RestGateway) RestPort() int          { return c.restPort }
func (c RestGateway) MiddleServerIP() string { return c.middleServerIP }
func (c RestGateway) MiddleServerPort() int  { return c.middlePort }

// LoadRestGateway reads restapi_gateway configuration.
func LoadRestGateway() (*RestGateway, error) {
	_ = godotenv.Load()
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	restPort, err := envInt("REST_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if restPort <= 0 || restPort > 65535 {
		return nil, &ConfigError{Option: "REST_PORT", Reason: "must be in 1..65535"}
	}
	middlePort, err := envInt("MIDDLE_SERVER_PORT", 9100)
	if err != nil {
		return nil, err
	}
	middleIP := envString("MIDDLE_SERVER_IP", "127.0.0.1")
	return &RestGateway{Common: common, restPort: restPort, middleServerIP: middleIP, middlePort: middlePort}, nil
}

// SampleDriver is the small configuration shared by the upload/download
// sample CLI drivers: where to read/write files and which server to
// dial.
type SampleDriver struct {
	Common
	sourceFolder string
	targetFolder string
	serverIP     string
	serverPort   int
}

func (c SampleDriver) SourceFolder() string { return c.sourceFolder }
func (c SampleDriver) TargetFolder() string { return c.targetFolder }
func (c SampleDriver) ServerIP() string     { return c.serverIP }
func (c SampleDriver) ServerPort() int      { return c.serverPort }

// LoadSampleDriver reads sample-driver configuration.
func LoadSampleDriver() (*SampleDriver, error) {
	_ = godotenv.Load()
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	port, err := envInt("SERVER_PORT", 9100)
	if err != nil {
		return nil, err
	}
	return &SampleDriver{
		Common:       common,
		sourceFolder: envString("SOURCE_FOLDER", "."),
		targetFolder: envString("TARGET_FOLDER", "."),
		serverIP:     envString("SERVER_IP", "127.0.0.1"),
		serverPort:   port,
	}, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigError{Option: key, Reason: fmt.Sprintf("not an integer: %q", v)}
	}
	return n, nil
}
