package main

import (
	"log"
	"os"

	"github.com/zetadesk/mailgate/config"
	"github.com/zetadesk/mailgate/server"
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Server initialization failed: %v", err)
	}

	if err := srv.Run(); err != nil {
		os.Exit(1)
	}
}
