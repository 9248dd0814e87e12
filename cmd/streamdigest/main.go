package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/StreamDigest/internal/config"
	"github.com/TobiSchelling/StreamDigest/internal/events"
	"github.com/TobiSchelling/StreamDigest/internal/ingest"
	"github.com/TobiSchelling/StreamDigest/internal/ledger"
	"github.com/TobiSchelling/StreamDigest/internal/llm"
	"github.com/TobiSchelling/StreamDigest/internal/pipeline"
	"github.com/TobiSchelling/StreamDigest/internal/reputation"
	"github.com/TobiSchelling/StreamDigest/internal/server"
	"github.com/TobiSchelling/StreamDigest/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "streamdigest",
	Short:   "Curated AI digests from social timelines",
	Long:    "StreamDigest ingests timeline posts, scores them with an LLM judge, tracks author reputation, and renders a ranked daily digest.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("streamdigest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/streamdigest/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, API keys, and LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline and archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := cfg.GetDataDir()

		state := ingest.LoadState(filepath.Join(dataDir, "state.json"))
		led := ledger.Load(filepath.Join(dataDir, "processed.json"))
		rep := reputation.LoadStore(filepath.Join(dataDir, "authors.json"))

		fmt.Printf("Data directory: %s\n\n", dataDir)
		fmt.Println("Cursor:")
		if state.LastFetchTime.IsZero() {
			fmt.Println("  No runs yet")
		} else {
			fmt.Printf("  Last fetch: %s\n", state.LastFetchTime.Format("2006-01-02 15:04"))
			fmt.Printf("  Last post id: %d\n", state.LastPostID)
			fmt.Printf("  Total fetched: %d\n", state.TotalFetched)
		}
		fmt.Println("\nState:")
		fmt.Printf("  Processed posts in ledger: %d\n", led.Len())
		fmt.Printf("  Tracked authors: %d\n", rep.Len())

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		total, accepted, err := db.CountPosts()
		if err != nil {
			return fmt.Errorf("counting archived posts: %w", err)
		}
		digests, err := db.ListDigests(1000)
		if err != nil {
			return fmt.Errorf("listing digests: %w", err)
		}
		fmt.Println("\nArchive:")
		fmt.Printf("  Evaluated posts: %d (%d accepted)\n", total, accepted)
		fmt.Printf("  Digests: %d\n", len(digests))
		return nil
	},
}

// --- run command ---

var (
	inputPath  string
	dryRun     bool
	emitEvents bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ingest -> evaluate -> classify -> render",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := cfg.GetDataDir()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		var source ingest.Source
		if inputPath != "" {
			source = &ingest.FileSource{Path: inputPath}
		} else {
			if len(cfg.Ingestion.Feeds) == 0 {
				return fmt.Errorf("no feeds configured and no --input file given")
			}
			source = ingest.NewFeedSource(cfg.Ingestion.Feeds, cfg.Ingestion.MaxPerFeed)
		}

		if dryRun {
			return runDry(source, dataDir)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var emitter *events.Emitter
		if emitEvents {
			emitter, err = events.New(filepath.Join(dataDir, "events"))
			if err != nil {
				return err
			}
			fmt.Printf("Emitting events to %s\n", emitter.Path())
		}

		provider := llm.CreateProvider(llm.Options{
			Provider:       cfg.Evaluation.Provider,
			Model:          cfg.Evaluation.Model,
			OllamaURL:      cfg.Evaluation.OllamaURL,
			OpenAIModel:    cfg.Evaluation.OpenAIModel,
			AnthropicModel: cfg.Evaluation.AnthropicModel,
			APIKeyEnv:      cfg.Evaluation.APIKeyEnv,
		})

		pipe := pipeline.New(cfg, db, provider, source, emitter, dataDir)
		result := pipe.Run(context.Background())

		for i, step := range result.Steps {
			fmt.Printf("\nStage %d: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		switch result.Outcome {
		case pipeline.OutcomeDigest:
			fmt.Printf("\nDigest written: %s\n", result.OutputPath)
			fmt.Println("Run 'streamdigest serve' to browse it.")
		case pipeline.OutcomeNoNewPosts:
			fmt.Println("\nNo new posts since the last run.")
		case pipeline.OutcomeNothingAccepted:
			fmt.Printf("\n%d posts evaluated, none made the cut.\n", result.Rejected)
		case pipeline.OutcomeFailed:
			return fmt.Errorf("run failed")
		}
		return nil
	},
}

func runDry(source ingest.Source, dataDir string) error {
	state := ingest.LoadState(filepath.Join(dataDir, "state.json"))
	led := ledger.Load(filepath.Join(dataDir, "processed.json"))

	posts, err := source.Fetch(context.Background(), state.LastPostID)
	if err != nil {
		return fmt.Errorf("fetching posts: %w", err)
	}

	fresh := 0
	for _, p := range posts {
		if !led.Contains(p.ID) {
			fresh++
		}
	}

	fmt.Printf("[dry-run] %d posts fetched, %d new\n", len(posts), fresh)
	fmt.Printf("[dry-run] Would evaluate in batches of %d with threshold %d\n",
		cfg.Evaluation.BatchSize, cfg.Evaluation.ValueThreshold)
	return nil
}

func init() {
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Read posts from a JSON capture file instead of feeds")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without calling the oracle")
	runCmd.Flags().BoolVar(&emitEvents, "emit-events", false, "Write run progress to a JSONL event file")
}

// --- report command ---

var (
	minPosts int
	kolCheck bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the author quality report",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := cfg.GetDataDir()
		rep := reputation.LoadStore(filepath.Join(dataDir, "authors.json"))

		if rep.Len() == 0 {
			fmt.Println("No author history yet. Run 'streamdigest run' first.")
			return nil
		}

		report := rep.BuildReport(minPosts)

		var screened map[string]reputation.Assessment
		if kolCheck {
			provider := llm.CreateProvider(llm.Options{
				Provider:       cfg.Evaluation.Provider,
				Model:          cfg.Evaluation.Model,
				OllamaURL:      cfg.Evaluation.OllamaURL,
				OpenAIModel:    cfg.Evaluation.OpenAIModel,
				AnthropicModel: cfg.Evaluation.AnthropicModel,
				APIKeyEnv:      cfg.Evaluation.APIKeyEnv,
			})
			checker := reputation.NewChecker(provider)
			screened = checker.Screen(context.Background(), rep, report)
		}

		printReport(report, screened)
		return nil
	},
}

func printReport(report *reputation.Report, screened map[string]reputation.Assessment) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Printf("Author quality report (%d authors with enough history)\n", report.TotalAuthors)

	if len(report.HighQuality) > 0 {
		green.Println("\nHigh quality:")
		for _, a := range report.HighQuality {
			fmt.Printf("  @%-20s %3.0f%% pass rate, avg %.1f (%d posts, %d followers)\n",
				a.Handle, a.PassRate*100, a.AvgScore, a.Total, a.Followers)
		}
	}

	if len(report.LowQuality) > 0 {
		yellow.Println("\nLow quality:")
		for _, a := range report.LowQuality {
			fmt.Printf("  @%-20s %3.0f%% pass rate, avg %.1f (%d posts, %d followers)\n",
				a.Handle, a.PassRate*100, a.AvgScore, a.Total, a.Followers)
		}
	}

	if len(report.RecommendRemove) > 0 {
		red.Println("\nRecommend removing:")
		for _, a := range report.RecommendRemove {
			fmt.Printf("  @%-20s recent avg %.1f over %d posts\n", a.Handle, a.RecentAvg, a.Total)
		}
	}

	for handle, assessment := range screened {
		if assessment.IsImportant {
			fmt.Printf("\nKept @%s despite low scores: %s\n", handle, assessment.Reason)
		}
	}
}

func init() {
	reportCmd.Flags().IntVar(&minPosts, "min-posts", 5, "Minimum evaluated posts before an author is reported")
	reportCmd.Flags().BoolVar(&kolCheck, "kol-check", false, "Ask the oracle whether flagged authors are known figures")
}

// --- schedule command ---

var cronExpr string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Ingestion.Feeds) == 0 {
			return fmt.Errorf("no feeds configured")
		}

		dataDir := cfg.GetDataDir()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		provider := llm.CreateProvider(llm.Options{
			Provider:       cfg.Evaluation.Provider,
			Model:          cfg.Evaluation.Model,
			OllamaURL:      cfg.Evaluation.OllamaURL,
			OpenAIModel:    cfg.Evaluation.OpenAIModel,
			AnthropicModel: cfg.Evaluation.AnthropicModel,
			APIKeyEnv:      cfg.Evaluation.APIKeyEnv,
		})

		c := cron.New()
		_, err = c.AddFunc(cronExpr, func() {
			source := ingest.NewFeedSource(cfg.Ingestion.Feeds, cfg.Ingestion.MaxPerFeed)
			result := pipeline.New(cfg, db, provider, source, nil, dataDir).Run(context.Background())
			log.Printf("Scheduled run finished: %s (%d accepted)", result.Outcome, result.Accepted)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}

		fmt.Printf("Scheduling runs with %q. Press Ctrl+C to stop.\n", cronExpr)
		c.Start()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		ctx := c.Stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&cronExpr, "cron", "0 8 * * *", "Cron expression for pipeline runs")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (defaults to config)")
}

func openDB() (*store.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "streamdigest.db")
	return store.Open(dbPath)
}
