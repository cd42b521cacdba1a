package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/socket-file-server/internal/auth"
	"git.uuxo.net/uuxo/socket-file-server/internal/config"
	"git.uuxo.net/uuxo/socket-file-server/internal/logging"
	"git.uuxo.net/uuxo/socket-file-server/internal/metrics"
	"git.uuxo.net/uuxo/socket-file-server/internal/server"
	"git.uuxo.net/uuxo/socket-file-server/internal/storage"
	"git.uuxo.net/uuxo/socket-file-server/internal/transfer"
	"git.uuxo.net/uuxo/socket-file-server/internal/utils"
	"git.uuxo.net/uuxo/socket-file-server/internal/workers"
)

const version = "1.0.0"

var log = logrus.New()

func main() {
	var (
		configFile  string
		genConfig   bool
		showVersion bool
	)
	flag.StringVar(&configFile, "config", "./config.toml", "Path to configuration file \"config.toml\".")
	flag.BoolVar(&genConfig, "genconfig", false, "Print example configuration and exit.")
	flag.BoolVar(&showVersion, "version", false, "Show version information and exit.")
	flag.Parse()

	if showVersion {
		fmt.Printf("Socket File Server v%s\n", version)
		os.Exit(0)
	}
	if genConfig {
		fmt.Print(config.ExampleConfig)
		os.Exit(0)
	}

	conf, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Info("Configuration loaded successfully.")

	logging.Setup(&conf.Logging, log)
	setPackageLoggers(log)
	logging.LogSystemInfo(log, version)

	if conf.Server.PIDFilePath != "" {
		if err := logging.WritePIDFile(conf.Server.PIDFilePath, log); err != nil {
			log.Fatalf("Failed to write PID file: %v", err)
		}
	}

	chunkSize, err := utils.ParseSize(conf.Transfer.ChunkSize)
	if err != nil {
		log.Fatalf("Invalid transfer.chunk_size: %v", err)
	}
	maxMessageSize, err := utils.ParseSize(conf.Transfer.MaxMessageSize)
	if err != nil {
		log.Fatalf("Invalid transfer.max_message_size: %v", err)
	}
	var maxUploadSize int64
	if conf.Server.MaxUploadSize != "" {
		maxUploadSize, err = utils.ParseSize(conf.Server.MaxUploadSize)
		if err != nil {
			log.Fatalf("Invalid server.max_upload_size: %v", err)
		}
	}

	authStore, err := auth.Load(conf.Auth.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to load credentials from %s: %v", conf.Auth.CredentialsFile, err)
	}
	if conf.Auth.WatchCredentials {
		watcher, err := auth.Watch(authStore)
		if err != nil {
			log.Warnf("Credentials file watching disabled: %v", err)
		} else {
			defer watcher.Close()
			log.Infof("Watching %s for credential changes", conf.Auth.CredentialsFile)
		}
	}

	store, err := storage.New(conf.Server.StoragePath)
	if err != nil {
		log.Fatalf("Failed to initialize storage at %s: %v", conf.Server.StoragePath, err)
	}

	var metadata *storage.MetadataStore
	if conf.Metadata.Enabled {
		metadata, err = storage.OpenMetadata(conf.Metadata.DBPath)
		if err != nil {
			log.Fatalf("Failed to open metadata store at %s: %v", conf.Metadata.DBPath, err)
		}
		defer metadata.Close()
	}

	pool := workers.NewPool(conf.Workers.NumWorkers, conf.Workers.QueueSize)
	pool.Start()

	metrics.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if conf.Server.MetricsEnabled {
		metrics.ServeHTTP(conf.Server.MetricsPort)
		metrics.StartSystemMonitor(ctx, 15*time.Second)
	}

	jwtTTL := 24 * time.Hour
	if conf.Auth.JWTExpiration != "" {
		jwtTTL, err = time.ParseDuration(conf.Auth.JWTExpiration)
		if err != nil {
			log.Fatalf("Invalid auth.jwt_expiration: %v", err)
		}
	}

	disp := server.NewDispatcher(server.Options{
		Auth:          authStore,
		Store:         store,
		Metadata:      metadata,
		Pool:          pool,
		MaxUploadSize: maxUploadSize,
		PreviewBytes:  conf.Transfer.PreviewBytes,
		ChunkSize:     clampChunk(chunkSize),
		EnableJWT:     conf.Auth.EnableJWT,
		JWTSecret:     conf.Auth.JWTSecret,
		JWTTTL:        jwtTTL,
	})

	addr := net.JoinHostPort(conf.Server.BindIP, conf.Server.ListenAddress)
	srv := server.New(addr, disp, uint32(maxMessageSize))
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}
	log.Infof("Server listening on %s", srv.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Received shutdown signal, initiating graceful shutdown...")
	cancel()

	shutdownTimeout := 30 * time.Second
	if conf.Server.ShutdownTimeout != "" {
		if d, err := time.ParseDuration(conf.Server.ShutdownTimeout); err == nil {
			shutdownTimeout = d
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	} else {
		log.Info("Server shutdown completed")
	}

	pool.Stop()
	log.Info("Worker pool stopped")

	if conf.Server.PIDFilePath != "" {
		logging.RemovePIDFile(conf.Server.PIDFilePath, log)
	}
}

func clampChunk(n int64) int {
	if n <= 0 || n > 1<<20 {
		return transfer.DefaultChunkSize
	}
	return int(n)
}

func setPackageLoggers(l *logrus.Logger) {
	auth.SetLogger(l)
	config.SetLogger(l)
	metrics.SetLogger(l)
	server.SetLogger(l)
	storage.SetLogger(l)
	transfer.SetLogger(l)
	workers.SetLogger(l)
}
