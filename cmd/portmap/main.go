package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rjpower/portmap/internal/analysis"
	"github.com/rjpower/portmap/internal/config"
	"github.com/rjpower/portmap/internal/crawler"
	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/git"
	"github.com/rjpower/portmap/internal/pipeline"
	"github.com/rjpower/portmap/internal/planner"
	"github.com/rjpower/portmap/internal/report"
	"github.com/rjpower/portmap/internal/storage"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "portmap",
		Short: "Dependency-ordered porting plans for C codebases",
	}
	cfgPath string
	dbPath  string
	verbose bool

	jsonOut      string
	csvOut       string
	batchDiagram bool
	baseRef      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "portmap.yaml", "Path to the YAML config")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the analysis database (overrides the config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	analyzeCmd.Flags().StringVar(&jsonOut, "json", "", "Also write the plan document to this path")
	analyzeCmd.Flags().StringVar(&csvOut, "csv", "", "Also write the processing order as CSV to this path")
	orderCmd.Flags().StringVar(&csvOut, "csv", "", "Write the order as CSV to this path instead of printing it")
	diagramCmd.Flags().BoolVar(&batchDiagram, "batches", false, "Draw batch ordering instead of the entity graph")
	impactCmd.Flags().StringVar(&baseRef, "base", "HEAD", "Git ref to diff the working tree against")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(impactCmd)
}

// loadOrDefault reads the YAML config, falling back to defaults when the
// file does not exist. A present-but-broken config is fatal.
func loadOrDefault() *config.Config {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config.Default()
		}
		log.Fatalf("Failed to load config %s: %v", cfgPath, err)
	}
	return cfg
}

// resolveDB prefers the --db flag over the configured database path.
func resolveDB(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.Output.Database
}

// newLogger builds the logger behind --verbose; nil disables pipeline
// logging entirely.
func newLogger() *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// runAnalysis crawls root for C sources and runs the full pipeline over
// what it finds.
func runAnalysis(ctx context.Context, cfg *config.Config, root string) (*pipeline.Result, error) {
	cr := crawler.NewCrawler(cfg.Project.IgnoreDirs)
	files, err := cr.FindSources(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .c or .h files under %s", root)
	}

	an := pipeline.New(pipeline.Options{
		Primitives:   cfg.Analysis.Primitives,
		IgnoreMacros: cfg.Analysis.IgnoreMacros,
		Workers:      cfg.Analysis.Workers,
		Logger:       newLogger(),
	})
	return an.Analyze(ctx, files)
}

// loadResult returns the stored analysis, or a fresh run when root is
// non-empty. Stored entities carry no reference lists; everything the
// read-side commands need travels in the plan, edges and externals.
func loadResult(ctx context.Context, cfg *config.Config, root string) (*pipeline.Result, error) {
	if root != "" {
		return runAnalysis(ctx, cfg, root)
	}

	store, err := storage.NewSQLiteStore(resolveDB(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	plan, err := store.LoadPlan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan (run 'portmap analyze' first): %w", err)
	}
	edges, err := store.LoadEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	ext, err := store.LoadExternals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load externals: %w", err)
	}
	return &pipeline.Result{Plan: plan, Entities: plan.Entities(), Edges: edges, External: ext}, nil
}

func optionalRoot(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze C sources and store the processing plan",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadOrDefault()

		root := cfg.Project.Root
		if len(args) > 0 {
			root = args[0]
		}

		fmt.Printf("📂 Analyzing C sources under %s...\n", root)
		res, err := runAnalysis(ctx, cfg, root)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}

		for _, perr := range res.ParseErrors {
			fmt.Printf("⚠️  Skipped %s: %s\n", perr.File, perr.Reason)
		}
		st := res.Stats
		fmt.Printf("✅ Analyzed %d/%d files in %v: %d entities, %d edges, %d components (%d cycles).\n",
			st.Parsed, st.Files, st.Elapsed.Round(time.Millisecond),
			st.Entities, st.Edges, st.Components, st.Cycles)

		db := resolveDB(cfg)
		store, err := storage.NewSQLiteStore(db)
		if err != nil {
			log.Fatalf("Failed to open database %s: %v", db, err)
		}
		defer store.Close()

		fmt.Println("💾 Saving analysis...")
		if err := store.SaveAnalysis(ctx, res); err != nil {
			log.Fatalf("Failed to save analysis: %v", err)
		}

		if jsonOut != "" {
			doc := report.BuildPlanDocument(res)
			if err := report.SavePlan(jsonOut, doc); err != nil {
				log.Fatalf("Failed to write plan document: %v", err)
			}
			fmt.Printf("📄 Plan document written to %s\n", jsonOut)
		}
		if csvOut != "" {
			if err := writeCSVFile(csvOut, res); err != nil {
				log.Fatalf("Failed to write CSV: %v", err)
			}
			fmt.Printf("📊 CSV order written to %s\n", csvOut)
		}

		fmt.Printf("🎉 Analysis complete! Database: %s\n", db)
	},
}

func writeCSVFile(path string, res *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var orderCmd = &cobra.Command{
	Use:   "order [path]",
	Short: "Print the batch processing order",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadOrDefault()

		res, err := loadResult(ctx, cfg, optionalRoot(args))
		if err != nil {
			log.Fatalf("%v", err)
		}

		if csvOut != "" {
			if err := writeCSVFile(csvOut, res); err != nil {
				log.Fatalf("Failed to write CSV: %v", err)
			}
			return
		}
		printPlan(res.Plan)
	},
}

func printPlan(p *planner.Plan) {
	for i, b := range p.Batches {
		head := fmt.Sprintf("batch %d", i)
		if b.IsCycle {
			head += " (cycle)"
		}
		fmt.Println(head)
		for _, e := range b.Entities {
			fmt.Printf("  %-8s %-24s %s\n", e.Kind, e.Name, e.Location())
		}
		if len(b.Internal) > 0 {
			fmt.Printf("  depends on: %s\n", strings.Join(b.Internal, ", "))
		}
		if len(b.External) > 0 {
			fmt.Printf("  external:   %s\n", strings.Join(b.External, ", "))
		}
	}
	fmt.Printf("%d entities in %d batches\n", p.EntityCount(), len(p.Batches))
}

var mapCmd = &cobra.Command{
	Use:   "map [path]",
	Short: "Print a Markdown map of every entity per file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadOrDefault()

		root := cfg.Project.Root
		if len(args) > 0 {
			root = args[0]
		}

		// Reference lists are not persisted, so the map always comes
		// from a fresh pass over the sources.
		res, err := runAnalysis(ctx, cfg, root)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		fmt.Print(report.RepoMap(res.Entities))
	},
}

var diagramCmd = &cobra.Command{
	Use:   "diagram [path]",
	Short: "Render the analysis as a Mermaid diagram",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadOrDefault()

		res, err := loadResult(ctx, cfg, optionalRoot(args))
		if err != nil {
			log.Fatalf("%v", err)
		}

		gen := &report.DiagramGenerator{}
		if batchDiagram {
			fmt.Print(gen.GenerateBatchDiagram(res))
		} else {
			fmt.Print(gen.GenerateDependencyDiagram(res))
		}
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <name> [path]",
	Short: "Print an entity's dependency closure in processing order",
	Long: `Print every entity the named one depends on, transitively, ordered
so that dependencies come before their dependents. The name may be
qualified with a namespace, e.g. "tag:node" for struct node or
"ordinary:node" for a typedef or function of that name.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadOrDefault()

		res, err := loadResult(ctx, cfg, optionalRoot(args[1:]))
		if err != nil {
			log.Fatalf("%v", err)
		}

		key, err := resolveKey(args[0], res.Entities)
		if err != nil {
			log.Fatalf("%v", err)
		}

		chain, err := analysis.DependencyClosure(key, res.Entities, res.Edges, res.Plan)
		if err != nil {
			log.Fatalf("Failed to compute closure: %v", err)
		}
		for _, e := range chain {
			marker := "  "
			if e.Key() == key {
				marker = "* "
			}
			fmt.Printf("%s%-8s %-24s %s\n", marker, e.Kind, e.Name, e.Location())
		}
	},
}

// resolveKey turns a CLI entity name into a symbol-table key. A bare
// name is accepted as long as it is unique across both namespaces.
func resolveKey(arg string, entities []*extractor.Entity) (extractor.Key, error) {
	if ns, name, ok := strings.Cut(arg, ":"); ok {
		space := extractor.Namespace(ns)
		if space != extractor.NamespaceTag && space != extractor.NamespaceOrdinary {
			return extractor.Key{}, fmt.Errorf("unknown namespace %q (want tag or ordinary)", ns)
		}
		return extractor.Key{Space: space, Name: name}, nil
	}

	var found []extractor.Key
	for _, e := range entities {
		if e.Name == arg {
			found = append(found, e.Key())
		}
	}
	switch len(found) {
	case 0:
		return extractor.Key{}, fmt.Errorf("no entity named %q", arg)
	case 1:
		return found[0], nil
	default:
		return extractor.Key{}, fmt.Errorf("%q is ambiguous: use %s or %s", arg, found[0], found[1])
	}
}

var impactCmd = &cobra.Command{
	Use:   "impact [path]",
	Short: "Show entities affected by local git changes",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadOrDefault()

		root := cfg.Project.Root
		if len(args) > 0 {
			root = args[0]
		}

		changes, err := git.ChangedFiles(root, baseRef)
		if err != nil {
			log.Fatalf("Failed to get git changes: %v", err)
		}
		if len(changes) == 0 {
			fmt.Println("✅ No changes detected.")
			return
		}
		fmt.Printf("📝 Detected %d changed files against %s.\n", len(changes), baseRef)

		res, err := loadResult(ctx, cfg, optionalRoot(args))
		if err != nil {
			log.Fatalf("%v", err)
		}

		fmt.Println("🔍 Analyzing impact...")
		analyzer := analysis.NewAnalyzer(res.Entities, res.Edges)
		rep := analyzer.AnalyzeImpact(changes)

		fmt.Printf("  -> %d entities directly affected\n", len(rep.DirectlyAffected))
		for _, e := range rep.DirectlyAffected {
			fmt.Printf("     %s (%s) %s\n", e.Name, e.Kind, e.Location())
		}
		fmt.Printf("  -> %d entities indirectly affected (dependents)\n", len(rep.IndirectlyAffected))
		for _, e := range rep.IndirectlyAffected {
			fmt.Printf("     %s (%s) %s\n", e.Name, e.Kind, e.Location())
		}
	},
}
