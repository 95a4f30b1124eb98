package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/ersim-ai-platform/internal/config"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	if err := newRootCmd(newDeps(cfg, logging.New(cfg.LogLevel))).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
