// Command tandem runs one coordination agent over a replicated vault.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vinayprograms/tandem/config"
)

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Two-agent work coordination over a replicated file vault",
	Long: `tandem coordinates two agents - a continuously available desk agent
and an intermittently connected field agent - processing a shared queue
of work items through a version-replicated file store.

Folder membership is the authoritative item state. Agents claim work by
atomically renaming records into their own folder, reconcile replicas
periodically, and resolve double-claims deterministically. One agent
(the writer) owns the human-readable status artifact; everyone else
proposes changes through append-only envelopes.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initEnv)
	addPersistentFlags()
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(auditCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initEnv() {
	viper.SetEnvPrefix("TANDEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file path")
	pf.String("store", "", "vault replica root (overrides config)")
	pf.String("agent", "", "agent ID (overrides config)")
	pf.Bool("dry-run", false, "compute decisions without relocating or executing")
	pf.Duration("interval", 0, "override every loop interval")
	for _, name := range []string{"config", "store", "agent", "dry-run", "interval"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

// loadConfig resolves configuration from the file (if any) plus flag
// and environment overrides.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if store := viper.GetString("store"); store != "" {
		cfg.Store = store
	}
	if agent := viper.GetString("agent"); agent != "" {
		cfg.Agent = agent
	}
	if viper.GetBool("dry-run") {
		cfg.DryRun = true
	}
	if d := viper.GetDuration("interval"); d > 0 {
		cfg.OverrideIntervals(d)
	}
	return cfg, cfg.Validate()
}
