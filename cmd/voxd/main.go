// Command voxd runs the voice-assistant daemon. Startup is gated on an
// offline license check: without a valid license artifact the process
// logs the reason and exits non-zero instead of serving.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"voxd/internal/app"
	"voxd/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults to config.yaml next to the binary)")
	licensePath := flag.String("license", "", "license artifact path, overriding the configuration")
	check := flag.Bool("check", false, "verify the license and exit without serving")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Println("voxd", app.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration load failed", "error", err)
		os.Exit(1)
	}
	if *licensePath != "" {
		cfg.License.File = *licensePath
	}

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verdict := application.CheckLicense(ctx)

	if *check {
		if !verdict.Valid {
			fmt.Printf("FAIL: %s\n", verdict.Message)
			os.Exit(1)
		}
		fmt.Printf("PASS: %s\n", verdict.Message)
		return
	}

	if !verdict.Valid {
		application.Logger.Error("license check failed, refusing to start",
			slog.String("status", verdict.Status),
			slog.String("reason", verdict.Message))
		fmt.Fprintf(os.Stderr, "voxd: license check failed: %s\n", verdict.Message)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		application.Logger.Error("daemon error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
