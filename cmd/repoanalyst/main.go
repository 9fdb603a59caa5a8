// Package main implements the repoanalyst CLI for indexing git repositories
// and asking questions about their code.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/catalog"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/chunker"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/completion"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/embeddings"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/fetcher"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/indexer"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/logging"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/rag"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/uploader"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/vectorstore"
)

var (
	configPath string
	ownerID    string
	topK       int
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repoanalyst",
	Short: "Index git repositories and answer questions about their code",
	Long: `repoanalyst clones a git repository, splits its source files into
overlapping chunks, embeds them, and stores the vectors per owner and
collection. Indexed repositories can then be queried in natural language.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "default", "owner ID scoping all operations")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reposCmd)

	askCmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of chunks to retrieve as context")

	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposDeleteCmd)
}

// indexCmd clones, chunks, embeds, and stores a repository
var indexCmd = &cobra.Command{
	Use:   "index <repository-url>",
	Short: "Index a git repository for question answering",
	Long: `Index clones the repository over HTTPS, splits its source files into
chunks, embeds them, and stores the vectors. Re-indexing the same
repository replaces its previous chunks.

Examples:
  # Index a repository
  repoanalyst index https://github.com/spf13/cobra

  # Index under a specific owner
  repoanalyst index --owner alice https://github.com/spf13/cobra`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

// askCmd answers a question about an indexed repository
var askCmd = &cobra.Command{
	Use:   "ask <collection> <question>",
	Short: "Ask a question about an indexed repository",
	Long: `Ask retrieves the most relevant chunks from the collection and streams
a grounded answer.

Examples:
  # Ask about an indexed repository
  repoanalyst ask cobra "how are subcommands registered?"

  # Retrieve more context
  repoanalyst ask -k 10 cobra "what does Execute do?"`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

// reposCmd groups repository catalog operations
var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage indexed repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's indexed repositories",
	Args:  cobra.NoArgs,
	RunE:  runReposList,
}

var reposDeleteCmd = &cobra.Command{
	Use:   "delete <collection>",
	Short: "Delete an indexed repository's vectors and catalog record",
	Args:  cobra.ExactArgs(1),
	RunE:  runReposDelete,
}

// app bundles the wired services shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	embed   embeddings.Provider
	store   vectorstore.Store
	catalog *catalog.Store
	indexer *indexer.Service
}

// newApp wires config, logging, embedding provider, vector store, catalog,
// and the indexing pipeline.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	embed, err := embeddings.NewProvider(cfg.Embeddings, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	store, err := vectorstore.New(cfg.VectorStore, embed.Dimension(), embed, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	cat, err := catalog.NewStore(cfg.Catalog.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	fetch := fetcher.NewService(cfg.Fetcher, logger)
	chunk := chunker.NewService(cfg.Chunker, logger)
	upload := uploader.NewService(cfg.Uploader, embed, store, logger)
	idx := indexer.NewService(*cfg, fetch, chunk, upload, store, embed, cat, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		embed:   embed,
		store:   store,
		catalog: cat,
		indexer: idx,
	}, nil
}

func (a *app) Close() {
	if err := a.catalog.Close(); err != nil {
		a.logger.Warn("failed to close catalog", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close vector store", zap.Error(err))
	}
	if err := a.embed.Close(); err != nil {
		a.logger.Warn("failed to close embedding provider", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, runErr := a.indexer.Index(cmd.Context(), args[0], ownerID)
	if result != nil {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(out))
	}
	if runErr != nil {
		return fmt.Errorf("index failed: %s", result.Message)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	completer, err := completion.New(cmd.Context(), a.cfg.Completion, a.logger)
	if err != nil {
		return fmt.Errorf("creating completer: %w", err)
	}

	svc := rag.NewService(a.indexer, completer, a.logger)
	err = svc.Answer(cmd.Context(), args[0], ownerID, args[1], topK, func(chunk string) error {
		fmt.Print(chunk)
		return nil
	})
	if errors.Is(err, rag.ErrNoContext) {
		return fmt.Errorf("no indexed content for collection %q, run 'repoanalyst index' first", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Println()
	return nil
}

func runReposList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.indexer.List(cmd.Context(), ownerID)
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No indexed repositories.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tURL\tINDEXED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.CollectionName, r.RepoURL, r.IndexedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runReposDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.indexer.Delete(cmd.Context(), args[0], ownerID); err != nil {
		return fmt.Errorf("deleting repository: %w", err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
