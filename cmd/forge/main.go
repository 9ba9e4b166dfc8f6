// Command forge is the CLI entrypoint for the git-native coding agent.
// Grounded on cmd/nerd/main.go's cobra root command + PersistentPreRunE
// zap-logger bootstrap; subcommands replace the teacher's shard/Mangle
// kernel commands with the session registry's turn/spawn/list
// operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"forge/internal/config"
	"forge/internal/gitstore"
	"forge/internal/llm"
	"forge/internal/logging"
	"forge/internal/session"
	"forge/internal/tools"
	"forge/internal/tools/approval"
	"forge/internal/tools/builtin"
	"forge/internal/tools/userload"
)

var (
	verbose    bool
	repoPath   string
	branchFlag string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge - a git-native coding agent",
	Long: `forge runs an LLM-driven coding agent whose state lives entirely
in git: every session is a branch, every turn is a commit. There is no
separate database of conversation history to get out of sync with the
code it produced.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("forge: initializing logger: %w", err)
		}

		if err := logging.Initialize(repoPath); err != nil {
			logger.Warn("initializing category logger", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("initializing audit log", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var turnCmd = &cobra.Command{
	Use:   "turn [message]",
	Short: "Run one agent turn on a session branch",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTurn,
}

var spawnCmd = &cobra.Command{
	Use:   "spawn [child-branch] [task]",
	Short: "Spawn a child session branch from the current one",
	Args:  cobra.ExactArgs(2),
	RunE:  runSpawn,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List known session branches and their state",
	RunE:  runSessionsList,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", ".", "path to the git repository")
	rootCmd.PersistentFlags().StringVarP(&branchFlag, "branch", "b", "main", "session branch")

	rootCmd.AddCommand(turnCmd, spawnCmd, sessionsCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEnvironment wires the store, registry, tool registry, and
// executor that every subcommand needs, per SPEC_FULL.md §2's component
// table.
func buildEnvironment(ctx context.Context) (*gitstore.Store, *session.Registry, *session.Executor, error) {
	store, err := gitstore.Open(repoPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("forge: opening repository: %w", err)
	}

	cfg, err := config.Load(config.DefaultConfigPath(repoPath))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("forge: loading config: %w", err)
	}

	toolRegistry := tools.NewRegistry()
	if err := builtin.RegisterAll(toolRegistry); err != nil {
		return nil, nil, nil, fmt.Errorf("forge: registering built-in tools: %w", err)
	}

	approvalRecord, err := approval.Open(repoPath)
	if err == nil {
		toolRegistry.SetApprovalChecker(approvalRecord)
		loader := userload.New(cfg.Tools.UserDir, approvalRecord)
		if err := loader.LoadAll(toolRegistry); err != nil {
			logger.Warn("loading user tools", zap.Error(err))
		}
		if watcher, err := userload.NewWatcher(loader, toolRegistry); err == nil {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("starting user tool watcher", zap.Error(err))
			}
		} else {
			logger.Warn("creating user tool watcher", zap.Error(err))
		}
	} else {
		logger.Warn("opening approval record, user tools disabled", zap.Error(err))
	}

	registry := session.NewRegistry(store)
	branches, err := store.ListBranches()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("forge: listing branches: %w", err)
	}
	if err := registry.Startup(ctx, branches); err != nil {
		return nil, nil, nil, fmt.Errorf("forge: reconciling sessions at startup: %w", err)
	}

	spawner := session.NewSpawner(store, registry)

	streamer, err := llm.NewGenAIStreamer(cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("forge: creating model streamer: %w", err)
	}
	commitMsgStreamer, err := llm.NewGenAIStreamer(cfg.LLM.APIKey, cfg.LLM.CommitMsgModel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("forge: creating commit-message streamer: %w", err)
	}

	identity := gitstore.Identity{Name: "forge", Email: "forge@localhost"}
	executor := session.NewExecutor(store, registry, toolRegistry, spawner, streamer, commitMsgStreamer, identity, systemPrompt())

	return store, registry, executor, nil
}

func systemPrompt() string {
	return `You are forge, a coding agent whose entire working state lives in git.
Make changes to the workspace using the available tools; when you are
satisfied with a turn, stop issuing tool calls and a commit will be made
automatically from the files you touched.`
}

func runTurn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, registry, executor, err := buildEnvironment(ctx)
	if err != nil {
		return err
	}

	live, err := registry.Load(ctx, branchFlag)
	if err != nil {
		return fmt.Errorf("forge: loading session %s: %w", branchFlag, err)
	}
	live.EnqueueInput(args[0])

	if err := executor.RunTurn(ctx, live); err != nil {
		return fmt.Errorf("forge: running turn: %w", err)
	}

	for _, msg := range live.Record.Messages {
		if msg.Role == "assistant" {
			fmt.Println(msg.Content)
		}
	}
	return nil
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, registry, _, err := buildEnvironment(ctx)
	if err != nil {
		return err
	}

	spawner := session.NewSpawner(store, registry)
	child, err := spawner.Spawn(ctx, session.SpawnRequest{
		ParentBranch:   branchFlag,
		ChildBranch:    args[0],
		InitialMessage: args[1],
	})
	if err != nil {
		return fmt.Errorf("forge: spawning %s: %w", args[0], err)
	}

	fmt.Printf("spawned %s from %s\n", child.Branch, branchFlag)
	return nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, registry, _, err := buildEnvironment(ctx)
	if err != nil {
		return err
	}

	branches, err := store.ListBranches()
	if err != nil {
		return fmt.Errorf("forge: listing branches: %w", err)
	}

	for _, branch := range branches {
		live, loadErr := registry.Load(ctx, branch)
		if loadErr != nil {
			fmt.Printf("%-30s <error: %v>\n", branch, loadErr)
			continue
		}
		fmt.Printf("%-30s %s\n", branch, live.State())
	}
	return nil
}
