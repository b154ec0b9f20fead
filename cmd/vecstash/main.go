package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/vecstash/internal/config"
	"github.com/abdul-hamid-achik/vecstash/internal/db"
	"github.com/abdul-hamid-achik/vecstash/internal/embed"
	"github.com/abdul-hamid-achik/vecstash/internal/items"
	"github.com/abdul-hamid-achik/vecstash/internal/observe"
	"github.com/abdul-hamid-achik/vecstash/internal/search"
	"github.com/abdul-hamid-achik/vecstash/internal/version"
)

// Overridden in tests.
var (
	openStore   = db.Open
	newProvider = createProvider
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		log.NewWithOptions(os.Stderr, log.Options{}).Error(err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "vecstash",
		Short:   "Store text snippets and find them again by meaning",
		Version: version.Full(),
		Long: `vecstash stores short text snippets together with links and an
embedding vector, and finds the stored snippets closest in meaning to a query.

Items live in PostgreSQL with the pgvector extension, or in a local
veclite file. Embeddings come from OpenAI or a local Ollama server.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetVersionTemplate("vecstash version {{.Version}}\n")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the items table, dropping any existing one",
		Long: `Create the pgvector extension and the items table.

WARNING: an existing items table is dropped first and every stored item is
lost. When database.confirm_init is set, init asks for confirmation unless
--force is given.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runInit,
	}
	initCmd.Flags().Bool("force", false, "skip confirmation prompt")

	addCmd := &cobra.Command{
		Use:   "add <text> <links...>",
		Short: "Store a text snippet with one or more links",
		Example: `  vecstash add "pgvector adds vector similarity to Postgres" https://github.com/pgvector/pgvector
  vecstash add "cobra CLI docs" https://cobra.dev https://github.com/spf13/cobra`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: runAdd,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored item by id",
		Long:  `Delete the item with the given id. Deleting an id that does not exist does nothing.`,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runDelete,
	}

	searchCmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find the stored items closest in meaning to text",
		Long: `Embed the query text and print the nearest stored items, closest first.
Quote multi-word queries.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: runSearch,
	}
	searchCmd.Flags().IntP("limit", "n", 0, "maximum number of results (default search.limit)")
	searchCmd.Flags().StringP("format", "f", "default", "output format (default, json, compact)")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store every item listed in a YAML file",
		Long: `Import items from a YAML list:

  - text: pgvector adds vector similarity to Postgres
    links: [https://github.com/pgvector/pgvector]

Every entry is validated before anything is embedded. All texts are embedded
in one batch and stored together.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: runImport,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show storage backend and item count",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runStatus,
	}
	statusCmd.Flags().StringP("format", "f", "default", "output format (default, json)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect vecstash configuration",
	}
	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Long: `Display the resolved configuration with secrets redacted.

Configuration is loaded in the following order (highest to lowest priority):
1. Environment variables (VECSTASH_*, POSTGRES_*, OPENAI_API_KEY, ...)
2. .env in the working directory
3. --config file, ./vecstash.yaml or ~/.config/vecstash/vecstash.yaml
4. Built-in defaults`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runConfigShow,
	}
	configCmd.AddCommand(configShowCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vecstash %s\n", version.Version)
			fmt.Fprintf(out, "  commit:  %s\n", version.Commit)
			fmt.Fprintf(out, "  built:   %s\n", version.Date)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server and/or the MCP server",
		Long: `Start the HTTP server with the search page and JSON API (--web), the
Model Context Protocol server on stdio (--mcp), or both. Without flags the
web server is started.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runServe,
	}
	serveCmd.Flags().Bool("web", false, "start web server")
	serveCmd.Flags().Bool("mcp", false, "start MCP server (stdio)")
	serveCmd.Flags().String("host", "", "server host (default server.host)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default server.port)")

	rootCmd.AddCommand(initCmd, addCmd, deleteCmd, searchCmd, importCmd,
		statusCmd, configCmd, versionCmd, serveCmd)

	return rootCmd
}

// env is what every command needs after configuration is resolved.
type env struct {
	cfg    *config.Config
	loader *config.Loader
	logger *log.Logger
}

func setup(cmd *cobra.Command) (*env, error) {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	opts := config.DefaultLoadOptions()
	opts.ConfigFile = configFile
	loader := config.NewLoader(opts)

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observe.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format, verbose)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug("Loaded config", "file", used)
	}

	return &env{cfg: cfg, loader: loader, logger: logger}, nil
}

// commandContext bounds a single CLI command by the configured timeouts.
func (e *env) commandContext(parent context.Context, embeds bool) (context.Context, context.CancelFunc) {
	timeout := e.cfg.Database.Timeout
	if embeds && timeout > 0 {
		timeout += e.cfg.Embedding.Timeout
	}
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func (e *env) open(ctx context.Context, maxConns int32) (db.Store, error) {
	store, err := openStore(ctx, e.cfg.Database, e.cfg.Embedding.Dimensions, maxConns)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Opened store", "backend", e.cfg.Database.Backend)
	return store, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	if e.cfg.Database.ConfirmInit && !force {
		out := cmd.ErrOrStderr()
		fmt.Fprintln(out, "WARNING: init drops the items table and deletes ALL stored items.")
		fmt.Fprintln(out, "This action cannot be undone.")
		fmt.Fprint(out, "\nType 'yes' to confirm: ")

		line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if strings.TrimSpace(line) != "yes" {
			fmt.Fprintln(out, "Init cancelled.")
			return nil
		}
	}

	ctx, cancel := e.commandContext(cmd.Context(), false)
	defer cancel()

	store, err := e.open(ctx, 1)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := items.NewService(store, nil, e.logger).Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized items storage (%s, %d dimensions)\n",
		e.cfg.Database.Backend, e.cfg.Embedding.Dimensions)
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	text, links := args[0], args[1:]
	if len(links) == 0 {
		return fmt.Errorf("%w: at least one link is required", items.ErrInvalidInput)
	}

	provider, err := newProvider(e.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := e.commandContext(cmd.Context(), true)
	defer cancel()

	store, err := e.open(ctx, 1)
	if err != nil {
		return err
	}
	defer store.Close()

	item, err := items.NewService(store, provider, e.logger).Add(ctx, text, links)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d\n", item.ID)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := items.ParseID(args[0])
	if err != nil {
		return err
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := e.commandContext(cmd.Context(), false)
	defer cancel()

	store, err := e.open(ctx, 1)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = items.NewService(store, nil, e.logger).Delete(ctx, id)
	return err
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	formatFlag, _ := cmd.Flags().GetString("format")

	format, err := search.ParseFormat(formatFlag)
	if err != nil {
		return usageError(err)
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	provider, err := newProvider(e.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := e.commandContext(cmd.Context(), true)
	defer cancel()

	store, err := e.open(ctx, 1)
	if err != nil {
		return err
	}
	defer store.Close()

	searcher := search.NewSearcher(store, provider, e.logger, e.cfg.Search.Limit)
	results, err := searcher.Search(ctx, args[0], search.SearchOptions{Limit: limit})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), search.FormatResults(results, format))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	entries, err := items.LoadEntries(args[0])
	if err != nil {
		return err
	}

	provider, err := newProvider(e.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := e.commandContext(cmd.Context(), true)
	defer cancel()

	store, err := e.open(ctx, 1)
	if err != nil {
		return err
	}
	defer store.Close()

	stored, err := items.NewService(store, provider, e.logger).Import(ctx, entries)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, it := range stored {
		fmt.Fprintf(out, "%d\n", it.ID)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "default" && format != "json" {
		return usageError(fmt.Errorf("unknown format %q (use default or json)", format))
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := e.commandContext(cmd.Context(), false)
	defer cancel()

	store, err := e.open(ctx, 1)
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := items.NewService(store, nil, e.logger).Status(ctx)
	if err != nil {
		return err
	}
	if status.Model == "" {
		status.Model = e.cfg.Embedding.Model
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Backend:     %s\n", status.Backend)
	fmt.Fprintf(out, "Version:     %s\n", status.Version)
	fmt.Fprintf(out, "Items:       %d\n", status.Items)
	fmt.Fprintf(out, "Dimensions:  %d\n", status.Dimensions)
	fmt.Fprintf(out, "Model:       %s (%s)\n", status.Model, e.cfg.Embedding.Provider)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}

	out, err := config.ShowResolvedConfig(e.cfg, e.loader.ConfigFileUsed())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// createProvider creates an embedding provider based on config.
func createProvider(cfg *config.Config) (embed.Provider, error) {
	if err := embed.CheckModelDimensions(cfg.Embedding.Model, cfg.Embedding.Dimensions); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	switch cfg.Embedding.Provider {
	case "openai":
		if cfg.Embedding.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", config.ErrInvalidConfig)
		}
		return embed.NewOpenAIProvider(embed.OpenAIConfig{
			APIKey:     cfg.Embedding.OpenAIAPIKey,
			BaseURL:    cfg.Embedding.OpenAIBaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
			MaxRetries: cfg.Embedding.MaxRetries,
		}), nil
	case "ollama":
		provider, err := embed.NewOllamaProvider(embed.OllamaConfig{
			URL:        cfg.Embedding.OllamaURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.Embedding.Provider)
	}
}

var errUsage = errors.New("usage")

func usageError(err error) error {
	return fmt.Errorf("%w: %v", errUsage, err)
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
