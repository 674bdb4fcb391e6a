package config

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/pkg/dialect"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
)

type EnvKey string

const (
	EnvPort      EnvKey = "PORT"
	EnvDataDir   EnvKey = "DATA_DIR"
	EnvLogLevel  EnvKey = "LOG_LEVEL"
	EnvLogToFile EnvKey = "LOG_TO_FILE"

	EnvDBDialect EnvKey = "DB_DIALECT"
	EnvDBHost    EnvKey = "DB_HOST"
	EnvDBPort    EnvKey = "DB_PORT"
	EnvDBName    EnvKey = "DB_NAME"
	EnvDBUser    EnvKey = "DB_USER"
	EnvDBPass    EnvKey = "DB_PASSWORD"
	EnvDBSSLMode EnvKey = "DB_SSLMODE"

	EnvSettingsFile     EnvKey = "SETTINGS_FILE"
	EnvHistoryQueueSize EnvKey = "HISTORY_QUEUE_SIZE"

	EnvMQTTBrokerPort EnvKey = "MQTT_SERVER_PORT"

	EnvMQTTClientID       EnvKey = "MQTT_CLIENT_ID"
	EnvMQTTUsername       EnvKey = "MQTT_USERNAME"
	EnvMQTTPassword       EnvKey = "MQTT_PASSWORD"
	EnvMQTTConnectTimeout EnvKey = "MQTT_CONNECT_TIMEOUT"
	EnvMQTTConnectRetry   EnvKey = "MQTT_CONNECT_RETRY"

	EnvSimBroker       EnvKey = "SIM_BROKER"
	EnvSimDataTopic    EnvKey = "SIM_TOPIC_DATA"
	EnvSimControlTopic EnvKey = "SIM_TOPIC_CONTROL"
	EnvSimInterval     EnvKey = "SIM_INTERVAL"
	EnvSimSeed         EnvKey = "SIM_SEED"
)

type Config struct {
	Port      int
	DataDir   string
	Database  string
	Dialect   dialect.Dialect
	LogLevel  slog.Leveler
	LogOutput io.Writer

	SettingsFile     string
	HistoryQueueSize int

	// Embedded broker port, 0 disables it.
	MQTTBrokerPort int

	// Broker address and topics come from the settings store.
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTConnectTimeout time.Duration
	// Keep dialing until the first connection succeeds instead of giving up after
	// one attempt.
	MQTTConnectRetry bool
}

func New() (*Config, error) {
	dataDir := getStringEnv(EnvDataDir, "data")

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbDialect, err := dialect.Parse(getStringEnv(EnvDBDialect, string(dialect.SQLite)))
	if err != nil {
		return nil, fmt.Errorf("invalid database dialect: %w", err)
	}

	var dbConnString string

	switch dbDialect {
	case dialect.SQLite:
		dbConnString = filepath.Join(dataDir, "history.sqlite")
	case dialect.PostgreSQL:
		host := getStringEnv(EnvDBHost, "localhost")
		port := getIntEnv(EnvDBPort, 5432)
		dbName := getStringEnv(EnvDBName, "mimamori")
		user := getStringEnv(EnvDBUser, "mimamori")
		password := getStringEnv(EnvDBPass, "")
		sslmode := getStringEnv(EnvDBSSLMode, "disable")

		dbConnString = fmt.Sprintf(
			"postgresql://%s:%s@%s/%s?sslmode=%s",
			url.QueryEscape(user),
			url.QueryEscape(password),
			net.JoinHostPort(host, strconv.Itoa(port)),
			dbName, sslmode,
		)
	}

	var logOutput io.Writer = os.Stdout

	if getBoolEnv(EnvLogToFile, false) {
		f, err := os.OpenFile(filepath.Join(dataDir, "app.log"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		logOutput = f
	}

	return &Config{
		Port:               getIntEnv(EnvPort, 8080),
		DataDir:            dataDir,
		Database:           dbConnString,
		Dialect:            dbDialect,
		LogLevel:           getLogLevelEnv(EnvLogLevel, slog.LevelInfo),
		LogOutput:          logOutput,
		SettingsFile:       getStringEnv(EnvSettingsFile, filepath.Join(dataDir, "settings.yaml")),
		HistoryQueueSize:   getIntEnv(EnvHistoryQueueSize, history.DefaultQueueSize),
		MQTTBrokerPort:     getIntEnv(EnvMQTTBrokerPort, 0),
		MQTTClientID:       getStringEnv(EnvMQTTClientID, mqtt.DefaultClientIDPrefix),
		MQTTUsername:       getStringEnv(EnvMQTTUsername, ""),
		MQTTPassword:       getStringEnv(EnvMQTTPassword, ""),
		MQTTConnectTimeout: getDurationEnv(EnvMQTTConnectTimeout, mqtt.DefaultConnectTimeout),
		MQTTConnectRetry:   getBoolEnv(EnvMQTTConnectRetry, true),
	}, nil
}

// SessionOptions returns the broker session parameters that do not live in the
// settings store.
func (c *Config) SessionOptions() mqtt.SessionOptions {
	return mqtt.SessionOptions{
		ClientIDPrefix:      c.MQTTClientID,
		Username:            c.MQTTUsername,
		Password:            c.MQTTPassword,
		ConnectTimeout:      c.MQTTConnectTimeout,
		RetryInitialConnect: c.MQTTConnectRetry,
	}
}

// SimulatorConfig configures the device simulator.
type SimulatorConfig struct {
	Broker       string
	DataTopic    string
	ControlTopic string
	Interval     time.Duration
	Seed         int
	ClientID     string
	Username     string
	Password     string
	LogLevel     slog.Leveler
}

// NewSimulator reads the simulator configuration. Topics and interval default to
// the dashboard's settings defaults so both sides agree out of the box.
func NewSimulator() (*SimulatorConfig, error) {
	c := &SimulatorConfig{
		Broker:       getStringEnv(EnvSimBroker, "tcp://127.0.0.1:1883"),
		DataTopic:    getStringEnv(EnvSimDataTopic, settings.DefaultDataTopic),
		ControlTopic: getStringEnv(EnvSimControlTopic, settings.DefaultControlTopic),
		Interval:     getDurationEnv(EnvSimInterval, settings.DefaultUpdateInterval*time.Second),
		Seed:         getIntEnv(EnvSimSeed, int(time.Now().UnixNano()%math.MaxInt32)),
		ClientID:     getStringEnv(EnvMQTTClientID, "mimamori-devicesim"),
		Username:     getStringEnv(EnvMQTTUsername, ""),
		Password:     getStringEnv(EnvMQTTPassword, ""),
		LogLevel:     getLogLevelEnv(EnvLogLevel, slog.LevelInfo),
	}

	cfg := mqtt.SessionConfig{Broker: c.Broker, DataTopic: c.DataTopic, ControlTopic: c.ControlTopic}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator configuration: %w", err)
	}

	return c, nil
}

func (c *Config) Close() error {
	if f, ok := c.LogOutput.(*os.File); ok {
		if f != os.Stdout && f != os.Stderr {
			return f.Close()
		}
	}

	return nil
}

func getStringEnv(key EnvKey, defaultVal string) string {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	return val
}

func getBoolEnv(key EnvKey, defaultVal bool) bool {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	switch strings.ToLower(val) {
	case "true", "1":
		return true
	default:
		return false
	}
}

func getIntEnv(key EnvKey, defaultVal int) int {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	if intVal, err := strconv.Atoi(val); err == nil {
		return intVal
	}

	return defaultVal
}

// getDurationEnv accepts Go durations ("1m30s") or a plain number of seconds.
func getDurationEnv(key EnvKey, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}

	if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func getLogLevelEnv(key EnvKey, defaultVal slog.Leveler) slog.Leveler {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	switch strings.ToUpper(val) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}

	return defaultVal
}
