// @title Frô API
// @version 1.0
// @description Identificação de plantas e diagnóstico de saúde a partir de fotos.
// @host localhost:8080
// @BasePath /api
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"fro-server/internal/bootstrap"
	platformconfig "fro-server/internal/platform/config"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to ./config.yaml when present)")
	dotEnv := flag.Bool("dotenv", true, "load .env before reading the config")
	initConfig := flag.String("init-config", "", "write a default config to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := platformconfig.WriteDefault(*initConfig); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "fro-server: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("default config written to %s\n", *initConfig)
		return
	}

	fmt.Printf("[%s] [INFO] [BOOT] starting fro-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background(), bootstrap.Options{ConfigPath: *configPath, DotEnv: *dotEnv}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "fro-server failed: %v\n", err)
		os.Exit(1)
	}
}
