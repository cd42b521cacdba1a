// Package config contains all configuration types and loading logic.
package config

// ServerConfig holds server-level configuration.
type ServerConfig struct {
	ListenAddress   string `toml:"listen_address" mapstructure:"listen_address"`
	BindIP          string `toml:"bind_ip" mapstructure:"bind_ip"`
	StoragePath     string `toml:"storage_path" mapstructure:"storage_path"`
	MetricsEnabled  bool   `toml:"metrics_enabled" mapstructure:"metrics_enabled"`
	MetricsPort     string `toml:"metrics_port" mapstructure:"metrics_port"`
	PIDFilePath     string `toml:"pid_file_path" mapstructure:"pid_file_path"`
	MaxUploadSize   string `toml:"max_upload_size" mapstructure:"max_upload_size"`
	ShutdownTimeout string `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// TransferConfig holds chunked transfer configuration.
type TransferConfig struct {
	ChunkSize      string `toml:"chunk_size" mapstructure:"chunk_size"`
	MaxMessageSize string `toml:"max_message_size" mapstructure:"max_message_size"`
	PreviewBytes   int    `toml:"preview_bytes" mapstructure:"preview_bytes"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	CredentialsFile  string `toml:"credentials_file" mapstructure:"credentials_file"`
	WatchCredentials bool   `toml:"watch_credentials" mapstructure:"watch_credentials"`
	EnableJWT        bool   `toml:"enable_jwt" mapstructure:"enable_jwt"`
	JWTSecret        string `toml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTExpiration    string `toml:"jwt_expiration" mapstructure:"jwt_expiration"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSize    int    `toml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `toml:"max_age" mapstructure:"max_age"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// MetadataConfig holds transfer journal configuration.
type MetadataConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DBPath  string `toml:"db_path" mapstructure:"db_path"`
}

// WorkersConfig holds worker pool configuration.
type WorkersConfig struct {
	NumWorkers int `toml:"num_workers" mapstructure:"num_workers"`
	QueueSize  int `toml:"queue_size" mapstructure:"queue_size"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Transfer TransferConfig `toml:"transfer" mapstructure:"transfer"`
	Auth     AuthConfig     `toml:"auth" mapstructure:"auth"`
	Logging  LoggingConfig  `toml:"logging" mapstructure:"logging"`
	Metadata MetadataConfig `toml:"metadata" mapstructure:"metadata"`
	Workers  WorkersConfig  `toml:"workers" mapstructure:"workers"`
}
