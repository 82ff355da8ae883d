package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnTengye/contractdash/backend/config"
	"github.com/AnTengye/contractdash/backend/model"
	"github.com/AnTengye/contractdash/backend/pkg/logger"
	"github.com/AnTengye/contractdash/backend/service"
	"github.com/AnTengye/contractdash/backend/storage"
)

type globalOptions struct {
	configPath string
	driver     string
	path       string
	tenant     string
	apiURL     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "contractctl",
		Short: "Analyze contracts from the terminal",
		Long: `contractctl drives a contract dashboard kept in a local store.

Settings, the last analysis result and the analysis history persist between
runs. A directory store can be shared with a running server or another
contractctl; "contractctl watch" prints the changes they make.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(&logger.Config{Level: opts.logLevel, Format: "text"})
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Config file, ignored when missing")
	root.PersistentFlags().StringVar(&opts.driver, "store", "", "Store driver (sqlite, dir, memory)")
	root.PersistentFlags().StringVar(&opts.path, "path", "", "Store location")
	root.PersistentFlags().StringVarP(&opts.tenant, "tenant", "t", "default", "Tenant whose dashboard to use")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Analysis API base URL")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	root.AddCommand(configCmd(opts))
	root.AddCommand(typeCmd(opts))
	root.AddCommand(analyzeCmd(opts))
	root.AddCommand(showCmd(opts))
	root.AddCommand(newCmd(opts))
	root.AddCommand(clearCmd(opts))
	root.AddCommand(historyCmd(opts))
	root.AddCommand(keysCmd(opts))
	root.AddCommand(watchCmd(opts))

	return root
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", o.configPath, err)
	}

	if o.driver != "" && o.driver != cfg.Storage.Driver {
		cfg.Storage.Driver = o.driver
		cfg.Storage.Path = config.DefaultStoragePath(o.driver)
	}
	if o.path != "" {
		cfg.Storage.Path = o.path
	}
	if o.apiURL != "" {
		cfg.Analysis.APIURL = o.apiURL
	}
	return cfg, nil
}

type session struct {
	cfg       *config.Config
	backend   storage.Backend
	dashboard *service.Dashboard
	analyzer  *service.AnalysisClient
	close     func()
}

// open builds the tenant's dashboard over the configured store
func (o *globalOptions) open(ctx context.Context) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	backend, closeBackend, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	analyzer := service.NewAnalysisClient(cfg.Analysis.APIURL, time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second)
	registry := service.NewRegistry(backend, analyzer, service.DashboardOptions{HistoryLimit: cfg.Storage.HistoryLimit})

	return &session{
		cfg:       cfg,
		backend:   backend,
		dashboard: registry.Get(o.tenant),
		analyzer:  analyzer,
		close: func() {
			registry.Close()
			closeBackend()
		},
	}, nil
}

func (o *globalOptions) withDashboard(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := o.open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

func configCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the analysis API settings",
	}

	var baseURL string
	setKey := &cobra.Command{
		Use:   "set-key <api-key>",
		Short: "Store the OpenAI API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				err := s.dashboard.ConfigureAPI(model.APIConfig{
					OpenAIAPIKey: strings.TrimSpace(args[0]),
					BaseURL:      baseURL,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key saved (%s)\n", s.dashboard.APIConfig().MaskedKey())
				return nil
			})
		},
	}
	setKey.Flags().StringVar(&baseURL, "base-url", "", "Analysis API base URL for this tenant")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				snap := s.dashboard.Snapshot()
				out := cmd.OutOrStdout()

				if snap.Configured {
					fmt.Fprintf(out, "API key:       %s\n", snap.MaskedAPIKey)
				} else {
					fmt.Fprintln(out, "API key:       not configured")
				}
				apiURL := s.analyzer.BaseURL()
				if cfg := s.dashboard.APIConfig(); cfg != nil && cfg.BaseURL != "" {
					apiURL = cfg.BaseURL
				}
				fmt.Fprintf(out, "API URL:       %s\n", apiURL)
				fmt.Fprintf(out, "Analysis type: %s\n", snap.AnalysisType.Type)
				if snap.CustomQuery != "" {
					fmt.Fprintf(out, "Custom query:  %s\n", snap.CustomQuery)
				}
				fmt.Fprintf(out, "Store:         %s %s\n", s.cfg.Storage.Driver, s.cfg.Storage.Path)
				return nil
			})
		},
	}

	cmd.AddCommand(setKey, show)
	return cmd
}

func typeCmd(opts *globalOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "type <kind>",
		Short: "Select the analysis type",
		Long: `Select the analysis type used by the next analyze.

Kinds: "Contract Review", "Legal Research", "Risk Assessment", "Custom Query".
The query given with --query is kept until replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				if err := s.dashboard.SelectAnalysisType(args[0]); err != nil {
					return err
				}
				if cmd.Flags().Changed("query") {
					if err := s.dashboard.SetCustomQuery(query); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Analysis type: %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Question for a Custom Query analysis")

	return cmd
}

func analyzeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a PDF, DOCX or TXT document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return opts.withDashboard(cmd, func(s *session) error {
				fmt.Fprintf(cmd.ErrOrStderr(), "Analyzing %s...\n", filepath.Base(args[0]))
				data, err := s.dashboard.Analyze(ctx, service.Upload{
					Filename: filepath.Base(args[0]),
					Content:  content,
				})
				if err != nil {
					if errors.Is(err, service.ErrNotConfigured) {
						return errors.New("please configure your API settings first: contractctl config set-key <key>")
					}
					return err
				}
				printTab(cmd, data, s.dashboard.Snapshot().ActiveTab)
				return nil
			})
		},
	}
}

func showCmd(opts *globalOptions) *cobra.Command {
	var tab string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the last analysis result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				if tab != "" {
					if err := s.dashboard.SetActiveTab(tab); err != nil {
						return fmt.Errorf("%w %q (analysis, keyPoints, negotiations)", err, tab)
					}
				}
				snap := s.dashboard.Snapshot()
				if snap.ContractData == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No analysis yet. Run: contractctl analyze <file>")
					return nil
				}
				printTab(cmd, snap.ContractData, snap.ActiveTab)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "", "Tab to show and remember (analysis, keyPoints, negotiations)")

	return cmd
}

func printTab(cmd *cobra.Command, data *model.ContractData, tab string) {
	out := cmd.OutOrStdout()
	var body string
	switch tab {
	case model.TabKeyPoints:
		body = data.KeyPoints
	case model.TabNegotiations:
		body = data.Negotiations
	default:
		tab = model.TabAnalysis
		body = data.Analysis
	}
	fmt.Fprintf(out, "== %s ==\n%s\n", tab, body)
}

func newCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Discard the current result before another upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				if err := s.dashboard.NewUpload(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Ready for a new upload")
				return nil
			})
		},
	}
}

func clearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the result and every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				if err := s.dashboard.ClearAll(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All stored data cleared")
				return nil
			})
		},
	}
}

func historyCmd(opts *globalOptions) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				if clearAll {
					return s.dashboard.ClearHistory(cmd.Context())
				}

				records := s.dashboard.History()
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No analyses yet")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tFILE\tTYPE\tSTATUS\tDETAIL")
				for _, r := range records {
					detail := r.ErrorMsg
					if detail == "" {
						detail = r.ArchiveURL
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						r.CreatedAt.Local().Format(time.DateTime), r.Filename, r.AnalysisType, r.Status, detail)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete the history instead of listing it")

	return cmd
}

func keysCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List what the tenant has in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDashboard(cmd, func(s *session) error {
				backend := storage.Namespace(s.backend, opts.tenant)
				keys, err := storage.Keys(backend)
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing stored")
					return nil
				}

				safe := storage.NewSafe(backend)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tGROUP\tBYTES")
				for _, key := range keys {
					value, _ := safe.Get(key)
					fmt.Fprintf(w, "%s\t%s\t%d\n", key, keyGroup(key), len(value))
				}
				return w.Flush()
			})
		},
	}
}

// keyGroup tells dashboard keys, which clear removes, from preferences it keeps.
func keyGroup(key string) string {
	switch {
	case slices.Contains(storage.ContractKeys(), key):
		return "dashboard"
	case slices.Contains(storage.ReservedKeys(), key):
		return "preference"
	default:
		return "other"
	}
}

func watchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print changes made by other processes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return opts.withDashboard(cmd, func(s *session) error {
				// nothing outside this process can write to a memory store
				if s.cfg.Storage.Driver == storage.DriverMemory {
					return fmt.Errorf("store %q cannot report changes from other processes, use dir", s.cfg.Storage.Driver)
				}
				safe := storage.NewSafe(storage.Namespace(s.backend, opts.tenant))
				out := cmd.OutOrStdout()

				changes := make(chan storage.Change, 16)
				cancel, ok := safe.Subscribe(func(c storage.Change) {
					select {
					case changes <- c:
					case <-ctx.Done():
					}
				})
				if !ok {
					return fmt.Errorf("store %q cannot report changes", s.cfg.Storage.Driver)
				}
				defer cancel()

				fmt.Fprintf(cmd.ErrOrStderr(), "Watching tenant %s, press Ctrl+C to stop\n", opts.tenant)
				for {
					select {
					case <-ctx.Done():
						return nil
					case c := <-changes:
						if c.Removed {
							fmt.Fprintf(out, "%s removed\n", c.Key)
						} else {
							fmt.Fprintf(out, "%s updated\n", c.Key)
						}
					}
				}
			})
		},
	}
}
