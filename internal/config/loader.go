package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Load reads configuration from a TOML file using viper.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = "./config.toml"
	}
	if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("configuration file not found: %s", configFile)
	}

	viper.SetConfigFile(configFile)
	viper.SetConfigType("toml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&conf)

	log.Infof("Configuration loaded from %s", configFile)
	return &conf, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	conf := &Config{}
	applyDefaults(conf)
	return conf
}

func applyDefaults(conf *Config) {
	if conf.Server.ListenAddress == "" {
		conf.Server.ListenAddress = "9999"
	}
	if conf.Server.StoragePath == "" {
		conf.Server.StoragePath = "./server_storage"
	}
	if conf.Server.MetricsPort == "" {
		conf.Server.MetricsPort = "9090"
	}
	if conf.Server.MaxUploadSize == "" {
		conf.Server.MaxUploadSize = "1GB"
	}
	if conf.Server.ShutdownTimeout == "" {
		conf.Server.ShutdownTimeout = "30s"
	}

	if conf.Transfer.ChunkSize == "" {
		conf.Transfer.ChunkSize = "64KB"
	}
	if conf.Transfer.MaxMessageSize == "" {
		conf.Transfer.MaxMessageSize = "1MB"
	}
	if conf.Transfer.PreviewBytes == 0 {
		conf.Transfer.PreviewBytes = 1024
	}

	if conf.Auth.CredentialsFile == "" {
		conf.Auth.CredentialsFile = "./id_passwd.txt"
	}
	if conf.Auth.JWTExpiration == "" {
		conf.Auth.JWTExpiration = "24h"
	}

	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	if conf.Logging.MaxSize == 0 {
		conf.Logging.MaxSize = 100
	}
	if conf.Logging.MaxBackups == 0 {
		conf.Logging.MaxBackups = 7
	}
	if conf.Logging.MaxAge == 0 {
		conf.Logging.MaxAge = 30
	}

	if conf.Metadata.DBPath == "" {
		conf.Metadata.DBPath = "./metadata/journal.db"
	}

	if conf.Workers.NumWorkers == 0 {
		conf.Workers.NumWorkers = 4
	}
	if conf.Workers.QueueSize == 0 {
		conf.Workers.QueueSize = 64
	}
}

// ExampleConfig is the template printed by --genconfig.
const ExampleConfig = `# Socket File Server configuration

[server]
listen_address = "9999"
bind_ip = "0.0.0.0"
storage_path = "./server_storage"
metrics_enabled = true
metrics_port = "9090"
pid_file_path = "/var/run/socketfileserver.pid"
max_upload_size = "1GB"
shutdown_timeout = "30s"

[transfer]
chunk_size = "64KB"
max_message_size = "1MB"
preview_bytes = 1024

[auth]
credentials_file = "./id_passwd.txt"
watch_credentials = true
enable_jwt = false
jwt_secret = "change-me"
jwt_expiration = "24h"

[logging]
level = "info"
file = ""
max_size = 100
max_backups = 7
max_age = 30
compress = true

[metadata]
enabled = true
db_path = "./metadata/journal.db"

[workers]
num_workers = 4
queue_size = 64
`
