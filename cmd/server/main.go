// Package main is the entry point for the Our World server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
//  1. Read configuration (environment variables, see internal/config)
//  2. Create dependencies (logger, document store, upload store, password)
//  3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...). A failure in steps 1 or 2 exits with status 1
// before the server listens.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/sakif/ourworld/internal/auth"
	"github.com/sakif/ourworld/internal/config"
	"github.com/sakif/ourworld/internal/repository/jsonfile"
	"github.com/sakif/ourworld/internal/server"
	"github.com/sakif/ourworld/internal/upload"
)

// storeFile is the name of the document inside the data directory.
const storeFile = "store.json"

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// tint renders slog records in colour on a terminal and as plain text
	// when stderr is a pipe (systemd, the hosting platform's log tail).
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	// === 3. STORAGE ===
	dataDir, err := config.ResolveDataDir(cfg.DataDirCandidates, logger)
	if err != nil {
		logger.Error("no usable data directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := jsonfile.Open(filepath.Join(dataDir, storeFile), logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	uploads, err := upload.New(cfg.UploadDir, logger)
	if err != nil {
		logger.Error("failed to prepare upload directory",
			slog.String("dir", cfg.UploadDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. SHARED PASSWORD ===
	// Hashed once here; each login then costs one bcrypt compare.
	if cfg.Password == config.DefaultPassword {
		logger.Warn("OURWORLD_PASSWORD not set, using the default password")
	}
	secret, err := auth.NewSharedSecret(auth.NewPasswordService(), cfg.Password)
	if err != nil {
		logger.Error("unusable password", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 5. CREATE AND START THE SERVER ===
	srv := server.New(server.Config{
		Port:           cfg.Port,
		StaticDir:      cfg.StaticDir,
		SecureCookies:  cfg.Production,
		MetricsEnabled: cfg.MetricsEnabled,
		LoginRate:      cfg.Login.Rate,
		LoginBurst:     cfg.Login.Burst,
		TrustedProxies: cfg.TrustedProxies,
	}, store, uploads, secret, logger)

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
