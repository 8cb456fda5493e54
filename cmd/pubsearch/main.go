package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/pubsearch/internal/actions"
	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/debuglog"
	"github.com/pders01/pubsearch/internal/query"
	"github.com/pders01/pubsearch/internal/registry"
	"github.com/pders01/pubsearch/internal/render"
	"github.com/pders01/pubsearch/internal/tui"
	"github.com/pders01/pubsearch/internal/validation"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	flagConfig   string
	flagLogLevel string
	flagQuiet    bool

	flagSearchJSON    bool
	flagSearchLimit   int
	flagSearchTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "pubsearch [query]",
	Short:        "Search the Dart & Flutter package registry from the terminal",
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	Long: `pubsearch is a search palette for pub.dev. Type to search; enter runs
the primary action (copy the install command or open the package).`,
	RunE: runTUI,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pubsearch %s\n", Version)
		fmt.Println("Dart & Flutter package search")
		fmt.Println("github.com/pders01/pubsearch")
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the default configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		configFile := config.DefaultPath()
		if err := config.GenerateDefaultConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search once and print the results",
	Args:  cobra.ArbitraryArgs,
	RunE:  runSearch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error, off); overrides config")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Skip startup banner")

	searchCmd.Flags().BoolVar(&flagSearchJSON, "json", false, "Print results as JSON")
	searchCmd.Flags().IntVarP(&flagSearchLimit, "limit", "n", 0, "Maximum number of results to print (0 for all)")
	searchCmd.Flags().DurationVar(&flagSearchTimeout, "timeout", 30*time.Second, "Give up after this long")

	configCmd.AddCommand(configGenCmd)
	rootCmd.AddCommand(versionCmd, configCmd, searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and starts logging. The returned func closes the
// log file.
func setup() (*config.Config, func(), error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(level), cfg.Log.File); err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return cfg, func() { _ = debuglog.Close() }, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if !flagQuiet {
		tui.ShowBanner(Version)
	}
	tui.ApplyTheme(cfg.UI.Colors)

	initial := validation.SanitizeQuery(strings.Join(args, " "), cfg.Search.MaxQueryLength)

	client := registry.NewClient(cfg)
	ctrl := query.New(client, query.WithInitialQuery(initial))
	defer ctrl.Close()

	app := tui.NewApp(cfg, ctrl, actions.NewExecutor(cfg), client)
	defer app.Close()

	debuglog.Infof("starting TUI against %s", cfg.Registry.BaseURL)

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	q := validation.SanitizeQuery(strings.Join(args, " "), cfg.Search.MaxQueryLength)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if flagSearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagSearchTimeout)
		defer cancel()
	}

	ctrl := query.New(registry.NewClient(cfg), query.WithInitialQuery(q))
	defer ctrl.Close()

	if err := ctrl.Wait(ctx); err != nil {
		return fmt.Errorf("search %q failed: %w", q, err)
	}

	entries := render.Entries(ctrl.State().Results, cfg.Actions.Primary, cfg.Registry.PackageManager)
	if flagSearchLimit > 0 && len(entries) > flagSearchLimit {
		entries = entries[:flagSearchLimit]
	}

	out := cmd.OutOrStdout()
	if flagSearchJSON {
		return writeJSON(out, entries)
	}
	return writeTable(out, entries)
}

type jsonEntry struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Install string `json:"install"`
	Primary string `json:"primary"`
}

func writeJSON(w io.Writer, entries []render.Entry) error {
	out := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		cp, _ := e.Action(render.ActionCopy)
		out = append(out, jsonEntry{
			Name:    e.Name,
			URL:     e.URL,
			Install: cp.Payload,
			Primary: e.Primary().Payload,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeTable(w io.Writer, entries []render.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No packages found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tINSTALL\tURL")
	for _, e := range entries {
		cp, _ := e.Action(render.ActionCopy)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, cp.Payload, e.URL)
	}
	return tw.Flush()
}
