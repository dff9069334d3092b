package main

import (
	"flag"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/zeromicro/go-zero/rest"

	"botfleet/internal/cli"
	"botfleet/internal/config"
	"botfleet/internal/handler"
	"botfleet/internal/svc"
)

func main() {
	// Auto-load environment variables from .env at startup.
	// It's fine if the file does not exist; envs can still be provided by the OS.
	_ = godotenv.Load()

	flag.Parse()

	cfg := config.MustLoad()
	cli.LogConfigSummary(cfg)

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()

	ctx := svc.NewServiceContext(*cfg)
	handler.RegisterHandlers(server, ctx)

	fmt.Printf("Starting server at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()
}
