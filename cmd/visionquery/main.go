// Package main is the VisionQuery CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/visionquery/internal/cli"
	"github.com/hyperjump/visionquery/internal/config"
	"github.com/hyperjump/visionquery/internal/embedding"
	"github.com/hyperjump/visionquery/internal/indexer"
	"github.com/hyperjump/visionquery/internal/metrics"
	"github.com/hyperjump/visionquery/internal/models"
	"github.com/hyperjump/visionquery/internal/search"
	"github.com/hyperjump/visionquery/internal/server"
	"github.com/hyperjump/visionquery/internal/vector"
	"github.com/hyperjump/visionquery/internal/watcher"
	"github.com/hyperjump/visionquery/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/visionquery/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "similar":
		runSimilar()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("visionquery version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (directory changes, image indexing, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	components, err := initializeComponents(cfg, logger, "watch")
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.RecursiveOrDefault(),
		components.Indexer,
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles(watchCtx)

	srv := server.NewServer(components.Engine, cfg,
		server.WithLogger(logger),
		server.WithMetrics(components.Metrics),
		server.WithWatch(watchSvc, resolvedConfigPath),
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...", zap.Int("records", components.Engine.Count()))
	watchCancel()
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: visionquery search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are images ranked by cosine similarity to the query text (1.0 is identical).
  • --top-k controls how many images are returned (the server caps it at search.max_top_k).
  • --server "" runs without a server: the images under --dir (or watch.directories)
    are embedded in-process first, then searched.

Examples:
  visionquery search a dog on the beach
  visionquery search "a dog on the beach"           # same as above
  visionquery search --top-k 20 red sports car
  visionquery search --server "" --dir ./photos sunset
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting (e.g. "red car" vs red car).
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchTopKDefaultFromConfig loads config at path and returns its default top-k.
// On load failure, returns models.DefaultTopK.
func searchTopKDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultTopK <= 0 {
		return models.DefaultTopK
	}
	return cfg.Search.DefaultTopK
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "visionquery search \"query\" -top-k 3"
// would otherwise leave -top-k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	configPath := searchConfigPathFromArgs(searchArgs, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL (empty = embed and search in-process)")
	topK := fs.Int("top-k", searchTopKDefaultFromConfig(configPath), "number of results")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	var dirs stringList
	fs.Var(&dirs, "dir", "image directory to index before an in-process search (repeatable; default: watch.directories)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	searchQuery := &models.SearchQuery{Query: queryStr, TopK: topK}

	ctx := context.Background()
	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = cli.NewClient(*serverURL, 0).Search(ctx, searchQuery)
	} else {
		response, err = searchInProcess(ctx, *configPathFlag, dirs, searchQuery)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// searchInProcess builds a throwaway index over dirs and runs the query against it.
func searchInProcess(ctx context.Context, configPath string, dirs []string, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, "cli")
	if err != nil {
		return nil, err
	}
	defer components.Close()

	if len(dirs) == 0 {
		dirs = cfg.Watch.Directories
	}
	if len(dirs) == 0 {
		return nil, errors.New("no image directories: pass --dir or set watch.directories")
	}
	for _, dir := range dirs {
		n, err := components.Indexer.IndexDirectory(ctx, dir, cfg.Watch.RecursiveOrDefault())
		if err != nil && n == 0 {
			return nil, fmt.Errorf("index %s: %w", dir, err)
		}
		if err != nil {
			logger.Warn("some images could not be indexed", zap.String("dir", dir), zap.Error(err))
		}
	}
	return components.Engine.Search(ctx, query)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: visionquery ingest [flags] <image-or-directory>")
		os.Exit(1)
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Printf("Invalid path: %v\n", err)
		os.Exit(1)
	}
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}

	client := cli.NewClient(*serverURL, 0)
	ctx := context.Background()
	if !info.IsDir() {
		// Single file: no extension filter
		resp, err := client.Ingest(ctx, &models.IngestRequest{
			Path:       path,
			Attributes: map[string]string{indexer.AttrSource: "cli"},
		})
		if err != nil {
			fmt.Printf("Ingest failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Image indexed: id=%d path=%s\n", resp.ID, resp.Path)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	idx := indexer.NewIndexer(client, cfg.Ingest.Extensions,
		indexer.WithConcurrency(cfg.Ingest.Concurrency),
		indexer.WithLogger(logger),
		indexer.WithSource("cli"),
	)
	n, err := idx.IndexDirectory(ctx, path, *recursive)
	fmt.Printf("Indexed %d image(s) from %s\n", n, path)
	if err != nil {
		fmt.Printf("Some images failed: %v\n", err)
		os.Exit(1)
	}
}

func runSimilar() {
	args := searchArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: visionquery similar [flags] <image-id>")
		os.Exit(1)
	}
	id, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil {
		fmt.Printf("Invalid image id %q\n", fs.Arg(0))
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	response, err := cli.NewClient(*serverURL, 0).Similar(context.Background(), id, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Similar failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	status, err := cli.NewClient(*serverURL, 0).Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: visionquery watch <add|remove|list> [path]")
		fmt.Println("  visionquery watch add <path>     Add directory to watch")
		fmt.Println("  visionquery watch remove <path>  Remove directory from watch")
		fmt.Println("  visionquery watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "do not index images already in the directory")
	_ = fs.Parse(os.Args[3:])

	client := cli.NewClient(*serverURL, 0)
	ctx := context.Background()
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: visionquery watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := client.WatchAdd(ctx, path, !*noSync); err != nil {
			fmt.Printf("Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: visionquery watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := client.WatchRemove(ctx, path); err != nil {
			fmt.Printf("Remove failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := client.WatchList(ctx)
		if err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Index    vector.VectorIndex
	Engine   *search.Engine
	Indexer  *indexer.Indexer
	Metrics  *metrics.Metrics
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

// initializeComponents wires embedder, index, engine and indexer. source tags
// records added through the returned indexer.
func initializeComponents(cfg *config.Config, logger *zap.Logger, source string) (*Components, error) {
	m := metrics.New()

	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if cached, ok := embedder.(*embedding.CachedEmbedder); ok {
		m.RegisterTextCache(cached.Stats)
	}
	embedder = m.InstrumentEmbedder(embedder)

	index, err := vector.NewVectorIndex(string(vector.IndexTypeMemory), cfg.Embedding.Dimensions,
		vector.WithSearchWorkers(cfg.Index.SearchWorkers),
		vector.WithParallelThreshold(cfg.Index.ParallelThreshold),
	)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	engine, err := search.NewEngine(index, embedder, &cfg.Search, search.WithLogger(logger))
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize search engine: %w", err)
	}
	m.RegisterIndexSize(engine.Count)
	logger.Info("vector index initialized",
		zap.String("type", index.Type()),
		zap.Int("dimensions", index.Dimensions()),
		zap.Int("search_workers", cfg.Index.SearchWorkers))

	idx := indexer.NewIndexer(engine, cfg.Ingest.Extensions,
		indexer.WithConcurrency(cfg.Ingest.Concurrency),
		indexer.WithLogger(logger),
		indexer.WithSource(source),
	)

	return &Components{
		Embedder: embedder,
		Index:    index,
		Engine:   engine,
		Indexer:  idx,
		Metrics:  m,
	}, nil
}

func printUsage() {
	fmt.Println(`visionquery - Natural-language image search

Usage:
  visionquery server [flags]              Start the HTTP server
  visionquery search [flags] <query>      Find images matching a text query
  visionquery ingest [flags] <path>       Index an image or a directory of images
  visionquery similar [flags] <id>        Find images similar to an indexed image
  visionquery status [flags]              Show index and model status
  visionquery watch <add|remove|list>     Manage watched directories
  visionquery version                     Show version
  visionquery help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/visionquery/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for in-process mode; also used for the default top-k)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search in-process.
  --dir string       Image directory for in-process mode (repeatable)
  --top-k int        Number of results (default from config, or 5)
  --output string    Output format: text, compact, or json (default: text)

Ingest Flags:
  --config string    Config file path (extensions and concurrency for directories)
  --server string    Server URL (default: http://localhost:8080)
  --recursive        Descend into subdirectories (default: true)

Similar Flags:
  --server string    Server URL (default: http://localhost:8080)
  --top-k int        Number of results (default: server default)
  --output string    Output format: text, compact, or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)
  --no-sync          Do not index images already in an added directory

Examples:
  visionquery server
  visionquery ingest ~/Pictures/holiday
  visionquery search "a dog playing in the snow"
  visionquery search --output json --top-k 10 sunset over water
  visionquery similar 42
  visionquery status --output json
  visionquery watch add ~/Pictures
  visionquery watch list`)
}
