package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/coolbeans/rulebook/pkg/analysis"
	"github.com/coolbeans/rulebook/pkg/config"
	"github.com/coolbeans/rulebook/pkg/extract"
	"github.com/coolbeans/rulebook/pkg/pattern"
	"github.com/coolbeans/rulebook/pkg/ruleset"
	"github.com/coolbeans/rulebook/pkg/store"
	"github.com/coolbeans/rulebook/pkg/validate"
	"github.com/coolbeans/rulebook/pkg/watch"
)

var version = "0.1.0"

// Global state shared by subcommands
var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rulebook",
		Short: "Numbered rules parser and query tool",
		Long: `Rulebook turns numbered rules documents into a hierarchical,
cross-referenced dataset and answers questions about it.

It ingests plain text rulebooks and produces:
  - JSON snapshots (optionally xz-compressed) with a lookup index
  - Parent/child hierarchy with an anomaly audit trail
  - Resolved cross-references and back-references
  - Ranked search, in memory or through a SQLite FTS5 export`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Log.Level = logLevel
			}
			cfg = loaded
			return setupLogging(cfg.Log)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./rulebook.yaml or $HOME/.rulebook/rulebook.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(sectionsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(childrenCmd())
	rootCmd.AddCommand(refsCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(impactCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(profilesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(logConfig config.LogConfig) error {
	level, err := zerolog.ParseLevel(logConfig.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logConfig.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	if logConfig.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	return nil
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <source>...",
		Short: "Parse rules text into a snapshot",
		Long: `Parse one or more numbered rules documents and write JSON snapshots.

With a single source --output names the snapshot file. With several sources
--output is a directory and each snapshot is named after its source. A
".xz" suffix compresses the snapshot.

Example:
  rulebook parse rules.txt
  rulebook parse rules.txt --output rules.json.xz --stats
  rulebook parse core.txt expansion.txt --output snapshots/
  rulebook parse house.txt --profile house-rules`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := stringFlagOr(cmd, "output", cfg.Snapshot.Path)
			profileID := stringFlagOr(cmd, "profile", cfg.Parser.Profile)
			datasetVersion := stringFlagOr(cmd, "dataset-version", cfg.Parser.Version)
			compress := boolFlagOr(cmd, "compress", cfg.Snapshot.Compress)
			omitIndex := boolFlagOr(cmd, "omit-index", cfg.Snapshot.OmitIndex)
			showStats, _ := cmd.Flags().GetBool("stats")

			parser, err := newParser(profileID, datasetVersion)
			if err != nil {
				return err
			}

			results, err := parser.ParseFiles(cmd.Context(), args, cfg.Parser.Workers)
			if err != nil {
				return fmt.Errorf("failed to parse: %w", err)
			}

			multiple := len(results) > 1
			if multiple && !cmd.Flags().Changed("output") {
				output = filepath.Dir(output)
			}

			opts := ruleset.SnapshotOptions{Compress: compress, OmitIndex: omitIndex, Indent: !compress}
			for _, result := range results {
				path := snapshotPathFor(result.Source, output, multiple)
				if err := ruleset.SaveSnapshot(path, result.Dataset, opts); err != nil {
					return err
				}

				fmt.Printf("Parsed %s: %d entities, %d cross-references, %d anomalies\n",
					result.Source, result.Stats.Entities, result.Stats.CrossRefs, result.Stats.Anomalies)
				fmt.Printf("  Snapshot: %s (version %s)\n", path, result.Dataset.Version)

				if showStats {
					printParseStats(result)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Snapshot path, or directory for several sources")
	cmd.Flags().StringP("profile", "p", "", "Parsing profile id")
	cmd.Flags().String("dataset-version", "", "Version tag (default: checksum prefix)")
	cmd.Flags().Bool("compress", false, "Compress the snapshot with xz")
	cmd.Flags().Bool("omit-index", false, "Write an empty index; readers rebuild it")
	cmd.Flags().Bool("stats", false, "Show parse statistics")

	return cmd
}

func printParseStats(result *extract.Result) {
	stats := result.Dataset.Statistics()
	fmt.Println("  Statistics:")
	fmt.Printf("    Lines:          %d (%d labelled, %d continuation, %d blank)\n",
		result.Stats.Lines, result.Stats.LabelledLines, result.Stats.ContinuationLines, result.Stats.BlankLines)
	fmt.Printf("    Preamble lines: %d\n", result.Stats.PreambleLines)
	fmt.Printf("    Sections:       %d\n", stats.Sections)
	fmt.Printf("    Max depth:      %d\n", stats.MaxLevel)
	fmt.Printf("    Leaves:         %d\n", stats.LeafCount)
	fmt.Printf("    Dangling refs:  %d\n", stats.Dangling)
	fmt.Printf("    Duration:       %v\n", result.Duration)

	for _, anomaly := range result.Dataset.Anomalies {
		fmt.Printf("    [%s] line %d: %s\n", anomaly.Kind, anomaly.Line, anomaly.Message)
	}
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <source>",
		Short: "Run the validation gates over a rules source",
		Long: `Parse a rules source and run the validation gates:

  V0  source     - file is readable, non-empty and within size limits
  V1  structure  - entities, sections, titles and label density
  V2  references - cross-reference resolution
  V3  hierarchy  - index consistency, parent links, levels, anomalies

Example:
  rulebook validate rules.txt
  rulebook validate rules.txt --format md > report.md
  rulebook validate rules.txt --strict --threshold V2.reference_resolution=0.95
  rulebook validate rules.txt --skip-gates V3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			formatStr, _ := cmd.Flags().GetString("format")
			profileID := stringFlagOr(cmd, "profile", cfg.Parser.Profile)
			strictMode, _ := cmd.Flags().GetBool("strict")
			failOnWarn, _ := cmd.Flags().GetBool("fail-on-warn")
			skipGates, _ := cmd.Flags().GetStringSlice("skip-gates")
			thresholdFlags, _ := cmd.Flags().GetStringToString("threshold")

			thresholds, err := parseThresholds(thresholdFlags)
			if err != nil {
				return err
			}

			validationConfig := validate.DefaultValidationConfig()
			validationConfig.StrictMode = strictMode
			validationConfig.FailOnWarn = failOnWarn
			validationConfig.SkipGates = skipGates
			validationConfig.Thresholds = thresholds

			var sourceSize int64
			if fileInfo, err := os.Stat(source); err == nil {
				sourceSize = fileInfo.Size()
			}

			parser, err := newParser(profileID, cfg.Parser.Version)
			if err != nil {
				return err
			}
			result, parseErr := parser.ParseFile(source)
			if parseErr != nil {
				log.Warn().Err(parseErr).Str("source", source).Msg("parse failed, running gates without a dataset")
			}

			validationContext := validate.NewValidationContext(result, sourceSize, validationConfig)
			validationContext.SourcePath = source

			pipeline := validate.NewGatePipeline(validationConfig)
			pipeline.RegisterDefaultGates()
			report := pipeline.Run(validationContext)

			switch formatStr {
			case "json":
				data, err := report.ToJSON()
				if err != nil {
					return fmt.Errorf("failed to encode report: %w", err)
				}
				fmt.Println(string(data))
			case "md", "markdown":
				fmt.Print(report.ToMarkdown())
			default:
				fmt.Print(report.String())
			}

			if !report.OverallPass {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "text", "Output format (text, json, md)")
	cmd.Flags().StringP("profile", "p", "", "Parsing profile id")
	cmd.Flags().Bool("strict", false, "Halt on the first failing gate")
	cmd.Flags().Bool("fail-on-warn", false, "Halt on the first warning")
	cmd.Flags().StringSlice("skip-gates", nil, "Gates to skip (e.g., V2,V3)")
	cmd.Flags().StringToString("threshold", nil, "Threshold overrides (e.g., V2.reference_resolution=0.95)")

	return cmd
}

// parseThresholds converts "Gate.metric=value" flags into gate thresholds.
func parseThresholds(raw map[string]string) (map[string]float64, error) {
	thresholds := make(map[string]float64, len(raw))
	for key, value := range raw {
		if !strings.Contains(key, ".") {
			return nil, fmt.Errorf("threshold %q must be of the form Gate.metric", key)
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("threshold %s: %w", key, err)
		}
		if parsed < 0 || parsed > 1 {
			return nil, fmt.Errorf("threshold %s must be between 0 and 1", key)
		}
		thresholds[key] = parsed
	}
	return thresholds, nil
}

func sectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List top-level sections",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")

			selector, err := loadSelector(cmd)
			if err != nil {
				return err
			}
			sections := selector.TopLevelSections()

			if formatStr == "json" {
				return printJSON(sections)
			}

			fmt.Printf("%-10s %-48s %8s\n", "ID", "TITLE", "CHILDREN")
			fmt.Println(strings.Repeat("-", 68))
			for _, section := range sections {
				fmt.Printf("%-10s %-48s %8d\n", section.ID, truncateString(section.Title, 48), len(section.Children))
			}
			fmt.Printf("\n%d section(s), dataset version %s\n", len(sections), selector.Version())
			return nil
		},
	}

	addDatasetFlags(cmd)
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one rule with its context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")

			selector, err := loadSelector(cmd)
			if err != nil {
				return err
			}
			entity, ok := selector.ByID(args[0])
			if !ok {
				return fmt.Errorf("rule %s not found", args[0])
			}

			if formatStr == "json" {
				return printJSON(entity)
			}

			breadcrumb := make([]string, 0)
			for _, ancestor := range selector.Ancestors(entity.ID) {
				breadcrumb = append(breadcrumb, ancestor.Label+" "+ancestor.Title)
			}
			if len(breadcrumb) > 0 {
				fmt.Println(strings.Join(breadcrumb, " > "))
				fmt.Println()
			}

			fmt.Printf("%s %s\n", entity.Label, entity.Title)
			fmt.Println(strings.Repeat("=", 60))
			fmt.Println(entity.Content)
			fmt.Println()
			fmt.Printf("Level:     %d\n", entity.Level)
			if len(entity.Children) > 0 {
				fmt.Printf("Children:  %s\n", strings.Join(entity.Children, ", "))
			}
			if len(entity.CrossRefs) > 0 {
				fmt.Printf("Cites:     %s\n", strings.Join(entity.CrossRefs, ", "))
			}
			if referrers := selector.ReferencedBy(entity.ID); len(referrers) > 0 {
				fmt.Printf("Cited by:  %s\n", strings.Join(entityIDs(referrers), ", "))
			}
			return nil
		},
	}

	addDatasetFlags(cmd)
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func childrenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "children <id>",
		Short: "List the immediate children of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")

			selector, err := loadSelector(cmd)
			if err != nil {
				return err
			}
			if _, ok := selector.ByID(args[0]); !ok {
				return fmt.Errorf("rule %s not found", args[0])
			}
			children := selector.Children(args[0])

			if formatStr == "json" {
				return printJSON(children)
			}

			if len(children) == 0 {
				fmt.Printf("%s has no children\n", args[0])
				return nil
			}
			printEntityTable(children)
			return nil
		},
	}

	addDatasetFlags(cmd)
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func refsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refs <id>",
		Short: "Show the cross-references of a rule in both directions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")

			selector, err := loadSelector(cmd)
			if err != nil {
				return err
			}
			entity, ok := selector.ByID(args[0])
			if !ok {
				return fmt.Errorf("rule %s not found", args[0])
			}

			resolved := make(map[string]bool)
			for _, target := range selector.ResolveRefs(entity.ID) {
				resolved[target.ID] = true
			}
			dangling := make([]string, 0)
			for _, ref := range entity.CrossRefs {
				if !resolved[ref] {
					dangling = append(dangling, ref)
				}
			}
			referrers := selector.ReferencedBy(entity.ID)

			if formatStr == "json" {
				return printJSON(map[string]any{
					"id":            entity.ID,
					"cites":         entity.CrossRefs,
					"dangling":      dangling,
					"referenced_by": entityIDs(referrers),
				})
			}

			fmt.Printf("Rule %s cites %d rule(s):\n", entity.ID, len(entity.CrossRefs))
			for _, ref := range entity.CrossRefs {
				if target, ok := selector.ByID(ref); ok {
					fmt.Printf("  -> %-14s %s\n", ref, truncateString(target.Title, 56))
				} else {
					fmt.Printf("  -> %-14s (unresolved)\n", ref)
				}
			}
			fmt.Printf("\nRule %s is cited by %d rule(s):\n", entity.ID, len(referrers))
			for _, referrer := range referrers {
				fmt.Printf("  <- %-14s %s\n", referrer.ID, truncateString(referrer.Title, 56))
			}
			return nil
		},
	}

	addDatasetFlags(cmd)
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search rules by id, title and content",
		Long: `Search rules with a case-insensitive substring match. Identifier
matches rank above title matches, which rank above content matches.

With --fts the query runs against the SQLite export using FTS5 prefix
matching and bm25 ranking.

Example:
  rulebook search initiative
  rulebook search "attack dice" --limit 5
  rulebook search terr --fts`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			formatStr, _ := cmd.Flags().GetString("format")
			limit := intFlagOr(cmd, "limit", cfg.Search.Limit)
			useFTS, _ := cmd.Flags().GetBool("fts")

			if useFTS {
				return searchStore(cmd, query, limit, formatStr)
			}

			selector, err := loadSelector(cmd)
			if err != nil {
				return err
			}
			results := selector.WithWeights(ruleset.SearchWeights{
				ID:      cfg.Search.ID,
				Title:   cfg.Search.Title,
				Content: cfg.Search.Content,
			}).Search(query)
			total := len(results)
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			if formatStr == "json" {
				return printJSON(results)
			}

			if total == 0 {
				fmt.Printf("No rules match %q\n", query)
				return nil
			}
			for _, result := range results {
				fields := make([]string, 0, len(result.Matches))
				snippet := ""
				for _, match := range result.Matches {
					fields = append(fields, string(match.Field))
					if match.Snippet != "" {
						snippet = match.Snippet
					}
				}
				fmt.Printf("%-14s %3d  %-40s [%s]\n", result.Entity.ID, result.Score,
					truncateString(result.Entity.Title, 40), strings.Join(fields, ","))
				if snippet != "" {
					fmt.Printf("%-14s      %s\n", "", snippet)
				}
			}
			fmt.Printf("\n%d of %d result(s)\n", len(results), total)
			return nil
		},
	}

	addDatasetFlags(cmd)
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().IntP("limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().Bool("fts", false, "Search the SQLite export with FTS5")

	return cmd
}

func searchStore(cmd *cobra.Command, query string, limit int, formatStr string) error {
	dbPath := stringFlagOr(cmd, "db", cfg.Store.Path)
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.SearchFTS(cmd.Context(), query, limit)
	if err != nil {
		return err
	}

	if formatStr == "json" {
		return printJSON(results)
	}
	if len(results) == 0 {
		fmt.Printf("No rules match %q\n", query)
		return nil
	}
	for _, result := range results {
		fmt.Printf("%-14s %8.3f  %s\n", result.ID, result.Rank, truncateString(result.Title, 48))
		fmt.Printf("%-14s           %s\n", "", result.Snippet)
	}
	fmt.Printf("\n%d result(s)\n", len(results))
	return nil
}

func impactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "impact <id>",
		Short: "Find the rules affected by a change to a rule",
		Long: `Walk cross-references outward from a rule. Incoming impact lists the
rules that cite it, directly or through other rules. Outgoing impact lists
the rules it depends on.

Example:
  rulebook impact 100.1
  rulebook impact 100.1 --depth 3 --direction both
  rulebook impact 100.1 --format dot | dot -Tsvg > impact.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			maxDepth, _ := cmd.Flags().GetInt("depth")
			directionStr, _ := cmd.Flags().GetString("direction")

			direction, err := analysis.ParseDirection(directionStr)
			if err != nil {
				return err
			}

			selector, err := loadSelector(cmd)
			if err != nil {
				return err
			}
			result, err := analysis.NewImpactAnalyzer(selector).Analyze(args[0], maxDepth, direction)
			if err != nil {
				return err
			}

			switch formatStr {
			case "json":
				data, err := result.ToJSON()
				if err != nil {
					return fmt.Errorf("failed to encode result: %w", err)
				}
				fmt.Println(string(data))
			case "dot":
				fmt.Print(result.ToDOT())
			case "table":
				fmt.Print(result.FormatTable())
			default:
				fmt.Print(result.String())
			}
			return nil
		},
	}

	addDatasetFlags(cmd)
	cmd.Flags().StringP("format", "f", "text", "Output format (text, table, json, dot)")
	cmd.Flags().IntP("depth", "d", 2, "Maximum citation hops to follow")
	cmd.Flags().String("direction", string(analysis.DirectionIncoming), "Direction (incoming, outgoing, both)")

	return cmd
}

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the cross-reference graph as Graphviz DOT",
		Long: `Render every rule that cites or is cited as a Graphviz DOT digraph.
Unresolved citations are drawn dashed red.

Example:
  rulebook graph | dot -Tsvg > references.svg
  rulebook graph --hierarchy --source rules.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			withHierarchy, _ := cmd.Flags().GetBool("hierarchy")

			selector, err := loadSelector(cmd)
			if err != nil {
				return err
			}
			fmt.Print(analysis.ReferenceGraphDOT(selector, withHierarchy))
			return nil
		},
	}

	addDatasetFlags(cmd)
	cmd.Flags().Bool("hierarchy", false, "Include parent/child edges")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a dataset to SQLite",
		Long: `Export the dataset to a SQLite database with an FTS5 index over titles
and content. Use --reverse to write a JSON snapshot from the database.

Example:
  rulebook export --snapshot rules.json --db rules.db
  rulebook export --source rules.txt
  rulebook export --reverse --db rules.db --snapshot restored.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := stringFlagOr(cmd, "db", cfg.Store.Path)
			reverse, _ := cmd.Flags().GetBool("reverse")

			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if reverse {
				snapshotPath := stringFlagOr(cmd, "snapshot", cfg.Snapshot.Path)
				dataset, err := db.LoadDataset(cmd.Context())
				if err != nil {
					return err
				}
				opts := ruleset.SnapshotOptions{Compress: cfg.Snapshot.Compress, OmitIndex: cfg.Snapshot.OmitIndex, Indent: true}
				if err := ruleset.SaveSnapshot(snapshotPath, dataset, opts); err != nil {
					return err
				}
				fmt.Printf("Wrote %d entities from %s to %s\n", dataset.Len(), dbPath, snapshotPath)
				return nil
			}

			loader := ruleset.NewLoader(datasetFetcher(cmd))
			dataset, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}
			if err := db.SaveDataset(cmd.Context(), dataset); err != nil {
				return err
			}

			stats := dataset.Statistics()
			fmt.Printf("Exported %d entities, %d cross-references and %d anomalies to %s\n",
				stats.Entities, stats.CrossRefs, stats.Anomalies, db.Path())
			return nil
		},
	}

	cmd.Flags().String("snapshot", "", "Snapshot path (default from config)")
	cmd.Flags().String("source", "", "Parse this rules source instead of reading a snapshot")
	cmd.Flags().String("db", "", "SQLite database path (default from config)")
	cmd.Flags().Bool("reverse", false, "Read the database and write a snapshot")

	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <source>",
		Short: "Re-parse a rules source whenever it changes",
		Long: `Watch a rules source and re-parse it on every change. Each successful
reload rewrites the snapshot, and with --export also refreshes the SQLite
database. A failed reload is logged and the watcher keeps running.

Example:
  rulebook watch rules.txt
  rulebook watch rules.txt --output rules.json --export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			output := stringFlagOr(cmd, "output", cfg.Snapshot.Path)
			profileID := stringFlagOr(cmd, "profile", cfg.Parser.Profile)
			exportDB, _ := cmd.Flags().GetBool("export")
			debounce, _ := cmd.Flags().GetDuration("debounce")

			parser, err := newParser(profileID, cfg.Parser.Version)
			if err != nil {
				return err
			}

			var db *store.DB
			if exportDB {
				db, err = store.Open(cfg.Store.Path)
				if err != nil {
					return err
				}
				defer db.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loader := ruleset.NewLoader(parser.Fetcher(source))
			watcher := watch.NewSourceWatcher(source, loader)
			watcher.SetDebounce(debounce)
			watcher.OnReload(func(status watch.Status, reloadErr error) {
				if reloadErr != nil {
					return
				}
				dataset, err := loader.Dataset()
				if err != nil {
					return
				}
				opts := ruleset.SnapshotOptions{Compress: cfg.Snapshot.Compress, OmitIndex: cfg.Snapshot.OmitIndex, Indent: true}
				if err := ruleset.SaveSnapshot(output, dataset, opts); err != nil {
					log.Error().Err(err).Str("snapshot", output).Msg("failed to write snapshot")
					return
				}
				if db != nil {
					if err := db.SaveDataset(ctx, dataset); err != nil {
						log.Error().Err(err).Str("db", db.Path()).Msg("failed to export dataset")
					}
				}
				log.Info().
					Str("version", dataset.Version).
					Int("reloads", status.Reloads).
					Str("snapshot", output).
					Msg("snapshot updated")
			})

			if err := watcher.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("initial load failed, waiting for changes")
			}
			defer watcher.Stop()

			fmt.Printf("Watching %s (Ctrl+C to stop)\n", source)
			<-ctx.Done()

			status := watcher.Status()
			fmt.Printf("\nStopped after %d reload(s), %d failure(s)\n", status.Reloads, status.Failures)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Snapshot path (default from config)")
	cmd.Flags().StringP("profile", "p", "", "Parsing profile id")
	cmd.Flags().Bool("export", false, "Also refresh the SQLite database")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before reloading")

	return cmd
}

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List parsing profiles",
		Long: `List the parsing profiles available from the profile directory.

A profile is a YAML file that sets the section divisor and adds citation
patterns. Each pattern needs one capture group holding the cited id.

Example profile:
  name: House Rules
  profile_id: house-rules
  version: "1.0"
  section_divisor: 10
  references:
    - name: section-sign
      pattern: '§\s*(\d{3}(?:\.\d+)?)'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			dir := stringFlagOr(cmd, "dir", cfg.Parser.ProfileDir)

			registry, err := pattern.NewRegistryWithDirectory(dir)
			if err != nil {
				return err
			}
			profiles := registry.List()

			if formatStr == "json" {
				return printJSON(profiles)
			}

			fmt.Printf("%-20s %-28s %-8s %8s %10s\n", "ID", "NAME", "VERSION", "DIVISOR", "PATTERNS")
			fmt.Println(strings.Repeat("-", 78))
			for _, profile := range profiles {
				fmt.Printf("%-20s %-28s %-8s %8d %10d\n",
					truncateString(profile.ProfileID, 20),
					truncateString(profile.Name, 28),
					profile.Version,
					profile.SectionDivisor,
					len(profile.References),
				)
			}
			fmt.Printf("\n%d profile(s) from %s\n", len(profiles), dir)
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().String("dir", "", "Profile directory (default from config)")

	return cmd
}

// newParser builds a parser for the given profile. The configured section
// divisor applies to the default profile; named profiles carry their own.
func newParser(profileID, datasetVersion string) (*extract.Parser, error) {
	registry, err := pattern.NewRegistryWithDirectory(cfg.Parser.ProfileDir)
	if err != nil {
		return nil, err
	}
	profile, err := registry.Lookup(profileID)
	if err != nil {
		return nil, err
	}

	opts := profile.ParserOptions()
	if profile.ProfileID == pattern.DefaultProfileID {
		opts.SectionDivisor = cfg.Parser.SectionDivisor
	}
	opts.Version = datasetVersion

	log.Debug().
		Str("profile", profile.ProfileID).
		Int("section_divisor", opts.SectionDivisor).
		Int("extra_matchers", len(opts.Matchers)).
		Msg("parser configured")
	return extract.NewParserWithOptions(opts), nil
}

func addDatasetFlags(cmd *cobra.Command) {
	cmd.Flags().String("snapshot", "", "Snapshot path (default from config)")
	cmd.Flags().String("source", "", "Parse this rules source instead of reading a snapshot")
	cmd.Flags().String("db", "", "SQLite database path (default from config)")
	cmd.Flags().Bool("from-db", false, "Read the dataset from the SQLite export")
}

// datasetFetcher picks the dataset origin from the command flags: a rules
// source, the SQLite export, or a snapshot file.
func datasetFetcher(cmd *cobra.Command) ruleset.FetchFunc {
	source, _ := cmd.Flags().GetString("source")
	fromDB, _ := cmd.Flags().GetBool("from-db")

	switch {
	case source != "":
		return func(ctx context.Context) (*ruleset.Dataset, error) {
			parser, err := newParser(cfg.Parser.Profile, cfg.Parser.Version)
			if err != nil {
				return nil, err
			}
			return parser.Fetcher(source)(ctx)
		}
	case fromDB:
		dbPath := stringFlagOr(cmd, "db", cfg.Store.Path)
		return func(ctx context.Context) (*ruleset.Dataset, error) {
			db, err := store.Open(dbPath)
			if err != nil {
				return nil, err
			}
			defer db.Close()
			return db.Fetcher()(ctx)
		}
	default:
		return ruleset.FileFetcher(stringFlagOr(cmd, "snapshot", cfg.Snapshot.Path))
	}
}

func loadSelector(cmd *cobra.Command) (*ruleset.Selector, error) {
	loader := ruleset.NewLoader(datasetFetcher(cmd))
	if _, err := loader.Load(cmd.Context()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (run 'rulebook parse' first)", err)
		}
		return nil, err
	}
	return loader.Selector(), nil
}

func printEntityTable(entities []*ruleset.Entity) {
	fmt.Printf("%-16s %-5s %-44s %5s %5s\n", "ID", "LEVEL", "TITLE", "KIDS", "REFS")
	fmt.Println(strings.Repeat("-", 79))
	for _, entity := range entities {
		fmt.Printf("%-16s %-5d %-44s %5d %5d\n",
			entity.ID,
			entity.Level,
			truncateString(entity.Title, 44),
			len(entity.Children),
			len(entity.CrossRefs),
		)
	}
	fmt.Printf("\n%d rule(s)\n", len(entities))
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func entityIDs(entities []*ruleset.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ID)
	}
	return ids
}

// snapshotPathFor returns where a source's snapshot goes. With several
// sources output is a directory.
func snapshotPathFor(source, output string, multiple bool) string {
	if !multiple {
		return output
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(output, base+".json")
}

func stringFlagOr(cmd *cobra.Command, name, fallback string) string {
	if cmd.Flags().Changed(name) {
		value, _ := cmd.Flags().GetString(name)
		return value
	}
	return fallback
}

func boolFlagOr(cmd *cobra.Command, name string, fallback bool) bool {
	if cmd.Flags().Changed(name) {
		value, _ := cmd.Flags().GetBool(name)
		return value
	}
	return fallback
}

func intFlagOr(cmd *cobra.Command, name string, fallback int) int {
	if cmd.Flags().Changed(name) {
		value, _ := cmd.Flags().GetInt(name)
		return value
	}
	return fallback
}

func truncateString(inputStr string, maxLength int) string {
	if len(inputStr) <= maxLength {
		return inputStr
	}
	return inputStr[:maxLength-3] + "..."
}
