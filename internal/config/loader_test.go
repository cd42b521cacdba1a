package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `
[server]
listen_address = "7777"
storage_path = "/tmp/files"

[transfer]
chunk_size = "32KB"

[auth]
credentials_file = "/etc/sfs/id_passwd.txt"
enable_jwt = true
jwt_secret = "s"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if conf.Server.ListenAddress != "7777" {
		t.Errorf("ListenAddress = %q", conf.Server.ListenAddress)
	}
	if conf.Server.StoragePath != "/tmp/files" {
		t.Errorf("StoragePath = %q", conf.Server.StoragePath)
	}
	if conf.Transfer.ChunkSize != "32KB" {
		t.Errorf("ChunkSize = %q", conf.Transfer.ChunkSize)
	}
	if !conf.Auth.EnableJWT {
		t.Error("EnableJWT not parsed")
	}

	// Unset values fall back to defaults.
	if conf.Transfer.PreviewBytes != 1024 {
		t.Errorf("PreviewBytes default = %d, want 1024", conf.Transfer.PreviewBytes)
	}
	if conf.Logging.Level != "info" {
		t.Errorf("Logging level default = %q, want info", conf.Logging.Level)
	}
	if conf.Workers.NumWorkers != 4 {
		t.Errorf("NumWorkers default = %d, want 4", conf.Workers.NumWorkers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDefault(t *testing.T) {
	conf := Default()
	if conf.Server.ListenAddress == "" || conf.Transfer.ChunkSize == "" {
		t.Errorf("defaults not applied: %+v", conf)
	}
}
