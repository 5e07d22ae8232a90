package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xxxsen/common/logger"
	"go.uber.org/zap"

	"github.com/bnema/contentblock-compiler/internal/compiler"
	"github.com/bnema/contentblock-compiler/internal/converter"
	"github.com/bnema/contentblock-compiler/internal/fetcher"
	"github.com/bnema/contentblock-compiler/internal/metrics"
	"github.com/bnema/contentblock-compiler/internal/models"
)

const defaultConfigPath = "./configs/compiler.toml"

var (
	cfgFile string
	cfg     models.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "contentblock-compiler",
	Short: "Compile adblock filter lists into WebKit content blocker rules",
	Long: `A tool that compiles EasyList-style and hosts filter lists into
Safari/WebKitGTK content blocker JSON, deduplicating and merging filters
so the result stays under the content blocker rule ceiling.`,
	SilenceUsage: true,
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Fetch the enabled lists and compile them into one rule set",
	RunE:  runCompile,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured filter lists",
	RunE:  runList,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	RunE:  runInit,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: "+defaultConfigPath+")")

	compileCmd.Flags().StringP("output", "o", "./output", "output directory")
	compileCmd.Flags().StringP("format", "f", "", "target format: webkit, webkit-network, webkit-cosmetic (overrides config)")
	compileCmd.Flags().Int("rule-limit", 0, "maximum number of rules (overrides config, 0 = format ceiling)")
	compileCmd.Flags().Bool("dry-run", false, "compile without writing files")
	compileCmd.Flags().Bool("verbose", false, "verbose output")
	compileCmd.Flags().String("diagnostics", "", "write every diagnostic to this JSON file")
	compileCmd.Flags().String("metrics-file", "", "write compile metrics to this prometheus textfile")

	rootCmd.AddCommand(compileCmd, listCmd, initCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("compiler")
		viper.SetConfigType("toml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	// Set defaults
	viper.SetDefault("http.timeout", "30s")
	viper.SetDefault("http.retries", 3)
	viper.SetDefault("output.target_format", string(models.TargetWebKit))
	viper.SetDefault("output.max_rules_per_file", models.MaxWebKitRules)
	viper.SetDefault("output.generate_manifest", true)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file_count", 5)
	viper.SetDefault("log.file_size", 100)
	viper.SetDefault("log.keep_days", 7)
	viper.SetDefault("log.console", true)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing config: %v\n", err)
	}
}

func runCompile(cmd *cobra.Command, args []string) error {
	outputDir, _ := cmd.Flags().GetString("output")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetBool("verbose")
	diagPath, _ := cmd.Flags().GetString("diagnostics")
	metricsPath, _ := cmd.Flags().GetString("metrics-file")

	formatName := cfg.Output.TargetFormat
	if cmd.Flags().Changed("format") {
		formatName, _ = cmd.Flags().GetString("format")
	}
	format, err := models.ParseTargetFormat(formatName)
	if err != nil {
		return err
	}
	ruleLimit := cfg.Output.RuleLimit
	if cmd.Flags().Changed("rule-limit") {
		ruleLimit, _ = cmd.Flags().GetInt("rule-limit")
	}
	if ruleLimit < 0 {
		return fmt.Errorf("rule limit must not be negative, got %d", ruleLimit)
	}

	logkit := logger.Init(cfg.Log.File, cfg.Log.Level, cfg.Log.FileCount,
		cfg.Log.FileSize, cfg.Log.KeepDays, cfg.Log.Console)
	defer logkit.Sync() //nolint:errcheck

	enabledLists := cfg.EnabledLists()
	if len(enabledLists) == 0 {
		return fmt.Errorf("no enabled filter lists found in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Compiling %d filter lists to %s...\n", len(enabledLists), format)
	if dryRun {
		fmt.Println("[DRY RUN] No files will be written")
	}

	f := fetcher.New(cfg.HTTP)
	var (
		docs  []*models.FilterDocument
		lists []models.FilterList
	)
	for _, list := range enabledLists {
		fmt.Printf("\n  Loading %s...\n", list.Name)
		doc, err := f.Load(ctx, list)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Printf("    ERROR: %v\n", err)
			logkit.Error("load list failed", zap.String("list", list.Name), zap.Error(err))
			continue
		}
		fmt.Printf("    Loaded: %d lines (%s)\n", len(doc.Lines), doc.Format)
		docs = append(docs, doc)
		lists = append(lists, list)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no filter list could be loaded")
	}

	rec := metrics.New()
	opts := []compiler.Option{
		compiler.WithRuleLimit(ruleLimit),
		compiler.WithWorkers(cfg.Compile.Workers),
		compiler.WithMetrics(rec),
	}

	fmt.Printf("\nCompiling...\n")
	res, err := compiler.Compile(ctx, docs, format, opts...)
	if err != nil {
		return fmt.Errorf("compile failed: %w", err)
	}

	printSummary(res, verbose)
	results := listResults(lists, docs, res.Diagnostics)
	if verbose {
		for _, r := range results {
			fmt.Printf("  %s: %d lines, %d diagnostics\n", r.Name, r.Lines, r.Diagnostics)
		}
	}

	if metricsPath != "" {
		if err := rec.WriteTextfile(metricsPath); err != nil {
			fmt.Printf("  ERROR writing metrics: %v\n", err)
		}
	}

	if dryRun {
		fmt.Println("\nDone!")
		return nil
	}

	if diagPath != "" {
		if err := writeJSON(filepath.Dir(diagPath), filepath.Base(diagPath), res.Diagnostics); err != nil {
			fmt.Printf("  ERROR writing diagnostics: %v\n", err)
		}
	}

	splitter := converter.NewSplitter(cfg.Output.MaxRulesPerFile)
	parts := splitter.Split(res.Rules, string(format))
	var partNames []string
	for _, part := range parts {
		if err := writeJSON(outputDir, part.Name+".json", part.Rules); err != nil {
			return fmt.Errorf("write %s: %w", part.Name, err)
		}
		partNames = append(partNames, part.Name+".json")
	}
	if len(parts) > 1 {
		fmt.Printf("  Split into %d files of at most %d rules\n", len(parts), cfg.Output.MaxRulesPerFile)
	}

	if cfg.Output.GenerateManifest {
		manifest := Manifest{
			Version:     time.Now().Format("2006.01.02"),
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Format:      string(format),
			Lists:       results,
			Output: OutputInfo{
				TotalRules:  len(res.Rules),
				Dropped:     res.Dropped,
				Diagnostics: countByKind(res.Diagnostics),
				Files:       partNames,
			},
		}
		if err := writeJSON(outputDir, "manifest.json", manifest); err != nil {
			fmt.Printf("  ERROR writing manifest: %v\n", err)
		}
	}

	fmt.Println("\nDone!")
	return nil
}

func printSummary(res *compiler.Result, verbose bool) {
	ps := res.ParseStats
	fmt.Printf("  Parsed: %d lines, %d network, %d cosmetic, %d exceptions\n",
		ps.Total, ps.Network, ps.Cosmetic, ps.Exception)
	fmt.Printf("  Unique filters: %d (badfilter cancelled: %d)\n", res.Unique, res.Cancelled)
	fmt.Printf("  Optimized: %d merged, %d subsumed, %d exceptions folded\n",
		res.OptimizeStats.Merged, res.OptimizeStats.Subsumed, res.OptimizeStats.Folded)
	fmt.Printf("  Rules: %d (dropped by limit: %d)\n", len(res.Rules), res.Dropped)

	if !verbose {
		return
	}
	printCounts("Parse skips", ps.SkipReasons)
	printCounts("Convert skips", res.ConvertStats.SkipReasons)
	printCounts("Diagnostics", countByKind(res.Diagnostics))
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("  %s:\n", title)
	for _, k := range keys {
		fmt.Printf("    - %s: %d\n", k, counts[k])
	}
}

func countByKind(diags []models.Diagnostic) map[string]int {
	counts := make(map[string]int)
	for _, d := range diags {
		counts[d.Kind.String()]++
	}
	return counts
}

func listResults(lists []models.FilterList, docs []*models.FilterDocument, diags []models.Diagnostic) []ListResult {
	perDoc := make([]int, len(docs))
	for _, d := range diags {
		if d.Line > 0 && d.Document < len(perDoc) {
			perDoc[d.Document]++
		}
	}

	results := make([]ListResult, 0, len(lists))
	for i, list := range lists {
		results = append(results, ListResult{
			Name:        list.Name,
			Source:      list.Location(),
			Format:      string(docs[i].Format),
			Lines:       len(docs[i].Lines),
			Diagnostics: perDoc[i],
		})
	}
	return results
}

func runList(cmd *cobra.Command, args []string) error {
	fmt.Println("Configured filter lists:")
	fmt.Println()
	for _, list := range cfg.Lists {
		status := "enabled"
		if !list.Enabled {
			status = "disabled"
		}
		format := list.Format
		if format == "" {
			format = string(models.FormatStandard)
		}
		fmt.Printf("  [%s] %s (%s)\n", status, list.Name, format)
		fmt.Printf("         %s\n\n", list.Location())
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := defaultConfigPath
	if cfgFile != "" {
		configPath = cfgFile
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
		return err
	}

	fmt.Printf("Created config file: %s\n", configPath)
	return nil
}

const defaultConfig = `# Content blocker compiler configuration

# HTTP client settings
[http]
timeout = "30s"
retries = 3

# Output settings
# target_format: webkit, webkit-network or webkit-cosmetic
# rule_limit: 0 keeps the format ceiling (50000)
[output]
target_format = "webkit"
rule_limit = 0
max_rules_per_file = 50000
generate_manifest = true

[compile]
workers = 0 # 0 = one per CPU

[log]
level = "info"
console = true

# Filter lists to compile together
# Set enabled = false to skip a list; format = "hosts" for hostfiles

[[lists]]
name = "easylist"
url = "https://easylist.to/easylist/easylist.txt"
enabled = true

[[lists]]
name = "easyprivacy"
url = "https://easylist.to/easylist/easyprivacy.txt"
enabled = true

[[lists]]
name = "peter-lowe"
url = "https://pgl.yoyo.org/adservers/serverlist.php?hostformat=hosts&showintro=1&mimetype=plaintext"
format = "hosts"
enabled = true
`

func writeJSON(dir, filename string, data any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ListResult contains per-list input figures
type ListResult struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Format      string `json:"format"`
	Lines       int    `json:"lines"`
	Diagnostics int    `json:"diagnostics"`
}

// Manifest contains metadata about the compile run
type Manifest struct {
	Version     string       `json:"version"`
	GeneratedAt string       `json:"generated_at"`
	Format      string       `json:"format"`
	Lists       []ListResult `json:"lists"`
	Output      OutputInfo   `json:"output"`
}

// OutputInfo describes the written rule files
type OutputInfo struct {
	TotalRules  int            `json:"total_rules"`
	Dropped     int            `json:"dropped"`
	Diagnostics map[string]int `json:"diagnostics"`
	Files       []string       `json:"files"`
}
