package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/tandem/agent"
	"github.com/vinayprograms/tandem/audit"
	"github.com/vinayprograms/tandem/config"
	"github.com/vinayprograms/tandem/credentials"
	"github.com/vinayprograms/tandem/llm"
	"github.com/vinayprograms/tandem/logging"
	"github.com/vinayprograms/tandem/notify"
	"github.com/vinayprograms/tandem/reconcile"
	"github.com/vinayprograms/tandem/search"
	"github.com/vinayprograms/tandem/telemetry"
	"github.com/vinayprograms/tandem/triage"
	"github.com/vinayprograms/tandem/vault"
)

// buildAgent assembles an agent from config plus ambient wiring:
// credentials-backed classifier, git history when the store is a git
// checkout, NATS mirror when configured.
func buildAgent(cfg config.Config, log *logging.Logger) (*agent.Agent, error) {
	opts := []agent.Option{agent.WithLogger(log)}

	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	if key := creds.GetAPIKey(cfg.Classifier.Provider); key != "" {
		provider, err := llm.NewProvider(llm.ProviderConfig{
			Provider:  cfg.Classifier.Provider,
			Model:     cfg.Classifier.Model,
			APIKey:    key,
			MaxTokens: cfg.Classifier.MaxTokens,
			BaseURL:   cfg.Classifier.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("building classifier: %w", err)
		}
		opts = append(opts, agent.WithClassifier(triage.NewModelClassifier(provider)))
	} else {
		log.Warn("no classifier API key; every item defaults to manual review", map[string]interface{}{
			"provider": cfg.Classifier.Provider,
		})
	}

	if _, err := os.Stat(filepath.Join(cfg.Store, ".git")); err == nil {
		opts = append(opts, agent.WithHistory(
			reconcile.NewGitHistory(cfg.Store, cfg.Sync.Remote, cfg.Sync.Branch)))
	} else {
		log.Warn("store is not a git checkout; running replica-local without sync")
	}

	if cfg.Notify.URL != "" {
		n, err := notify.NewNATSNotifier(notify.Config{
			URL:     cfg.Notify.URL,
			Subject: cfg.Notify.Subject,
			Name:    "tandem-" + cfg.Agent,
			Token:   creds.GetToken("nats"),
		})
		if err != nil {
			log.Warn("notify mirror unavailable", map[string]interface{}{
				"url":   cfg.Notify.URL,
				"error": err.Error(),
			})
		} else {
			opts = append(opts, agent.WithNotifier(n))
		}
	}

	return agent.New(cfg, opts...)
}

// loadCredentials honors an explicit path first, then the standard
// search locations. A nil result is usable: lookups fall through to
// environment variables.
func loadCredentials(cfg config.Config) (*credentials.Credentials, error) {
	if cfg.Credentials != "" {
		return credentials.LoadFile(cfg.Credentials)
	}
	creds, path, err := credentials.Load()
	if err != nil {
		return nil, fmt.Errorf("loading credentials %s: %w", path, err)
	}
	return creds, nil
}

func initTracing(ctx context.Context, cfg config.Config, log *logging.Logger) func() {
	if cfg.Telemetry.Endpoint == "" {
		return func() {}
	}
	provider, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Insecure: cfg.Telemetry.Insecure,
		AgentID:  cfg.Agent,
	})
	if err != nil {
		log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
		return func() {}
	}
	return func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		provider.Shutdown(shutCtx) //nolint:errcheck
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent loops until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logging.New()
			stopTracing := initTracing(cmd.Context(), cfg, log)
			defer stopTracing()

			a, err := buildAgent(cfg, log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single pass of every loop, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logging.New()
			a, err := buildAgent(cfg, log)
			if err != nil {
				return err
			}
			return a.Once(cmd.Context())
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "tandem.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize vault folder populations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := vault.Open(cfg.Store)
			if err != nil {
				return err
			}
			entries, err := v.Scan()
			if err != nil {
				return err
			}

			counts := map[string]int{}
			for _, e := range entries {
				key := e.Location.State.String()
				if e.Location.Agent != "" {
					key += " (" + e.Location.Agent + ")"
				}
				counts[key]++
			}
			keys := make([]string, 0, len(counts))
			for k := range counts {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"State", "Items"})
			for _, k := range keys {
				tw.AppendRow(table.Row{k, counts[k]})
			}
			tw.AppendFooter(table.Row{"total", len(entries)})
			tw.Render()

			if info, err := os.Stat(filepath.Join(cfg.Store, ".sync")); err == nil {
				fmt.Println("last sync:", info.ModTime().UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over item records",
		Long: `Search rebuilds a replica-local index from the vault, then runs the
query. Field filters work on state and kind, e.g. 'invoice state:claimed'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := vault.Open(cfg.Store)
			if err != nil {
				return err
			}
			idx, err := search.Open(filepath.Join(cfg.Store, ".index"))
			if err != nil {
				return err
			}
			defer idx.Close()
			if _, err := idx.Reindex(v); err != nil {
				return err
			}

			hits, err := idx.Query(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "State", "Kind", "Score"})
			for _, h := range hits {
				tw.AppendRow(table.Row{h.ID, h.State, h.Kind, fmt.Sprintf("%.3f", h.Score)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum hits")
	return cmd
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Apply retention: drop expired audit partitions and terminal items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			partitions := 0
			for _, log := range auditLogs(cfg.Store) {
				removed, err := log.Purge(cfg.Retention.Audit.Std())
				if err != nil {
					return err
				}
				partitions += len(removed)
			}

			v, err := vault.Open(cfg.Store)
			if err != nil {
				return err
			}
			swept, err := v.SweepTerminal(cfg.Retention.Items.Std(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("purged %d audit partitions, %d terminal items\n", partitions, len(swept))
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var period string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit events across all agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if period == "" {
				period = time.Now().UTC().Format("2006-01")
			}

			var events []audit.Event
			for _, log := range auditLogs(cfg.Store) {
				evs, err := log.Read(period)
				if err != nil {
					return err
				}
				events = append(events, evs...)
			}
			sort.Slice(events, func(i, j int) bool {
				return events[i].Time.Before(events[j].Time)
			})
			if len(events) > limit {
				events = events[len(events)-limit:]
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Time", "Type", "Item", "Agent", "Rationale"})
			for _, ev := range events {
				tw.AppendRow(table.Row{
					ev.Time.UTC().Format(time.RFC3339),
					string(ev.Type),
					ev.ItemID,
					ev.AgentID,
					truncate(ev.Rationale, 48),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "partition to read (YYYY-MM, default current)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum events")
	return cmd
}

// auditLogs opens every agent's audit partition directory under the
// store. Missing directories yield an empty slice.
func auditLogs(store string) []*audit.Log {
	root := filepath.Join(store, vault.AuditDir)
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var logs []*audit.Log
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		log, err := audit.NewLog(filepath.Join(root, d.Name()))
		if err != nil {
			continue
		}
		logs = append(logs, log)
	}
	return logs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

