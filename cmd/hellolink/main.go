package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	// .env opcional; las env vars del sistema siguen valiendo
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "hellolink",
		Short: "Broker de login passwordless (magic link + código de 6 dígitos)",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("HELLOLINK_CONFIG", "config.yaml"), "ruta del config YAML (env HELLOLINK_CONFIG)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(clientsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
