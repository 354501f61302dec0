// Command kvsql loads parquet files into an in-memory key-value store and
// runs JSON statements against it through the query engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vegasq/kvsql/config"
	"github.com/vegasq/kvsql/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "kvsql",
	Short:         "SQL-shaped queries over a key-value store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("namespace", "", "default namespace")
	flags.Int("sample-size", 0, "records sampled for type discovery and SELECT *")
	flags.Bool("lossy-order", false, "bound ORDER BY memory with the lossy evict-before-admit buffer")
	flags.String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	flags.String("log-format", "", "log format: json, text")
	flags.StringP("format", "f", "", "output format: json, csv, table")
	flags.String("pk", "", "column used as record key when loading files")

	rootCmd.AddCommand(newRunCmd(), newSchemaCmd())
}

// loadConfig reads the configuration and sets up logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Prefix: config.EnvPrefix,
		File:   configFile,
		Flags:  cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.Source,
	})
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
