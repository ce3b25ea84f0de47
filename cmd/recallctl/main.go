// Command recallctl is an administrative CLI over the engine facade
// (SPEC_FULL.md §6): one subcommand per public operation, wired with
// spf13/cobra the way the pack's other multi-verb CLIs (steveyegge-beads'
// cmd/bd, kart-io-sentinel-x's cmd/*) structure theirs, generalized from the
// teacher's own single WASM entrypoint (which exposes no CLI at all).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/engine"
	"github.com/kittclouds/recall/internal/logging"
	"github.com/kittclouds/recall/internal/model"
)

var (
	configPath  string
	userID      string
	characterID string
)

func main() {
	root := &cobra.Command{
		Use:   "recallctl",
		Short: "Administrative CLI over the recall memory engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to core_settings.json (defaults to config.Default())")
	root.PersistentFlags().StringVar(&userID, "user", "", "user id")
	root.PersistentFlags().StringVar(&characterID, "character", "", "character id")

	root.AddCommand(
		newAddCmd(),
		newSearchCmd(),
		newContextCmd(),
		newDetectCmd(),
		newResolveCmd(),
		newListPendingCmd(),
		newStatsCmd(),
		newClearCmd(),
		newReloadConfigCmd(),
		newDetectCommunitiesCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newEngine() (*engine.Engine, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	logging.SetDefault(logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr))
	return engine.New(cfg), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAddCmd() *cobra.Command {
	var metadataJSON string
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add one conversational turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			var metadata map[string]any
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("parsing --metadata: %w", err)
				}
			}
			result, err := e.Add(context.Background(), args[0], userID, characterID, metadata)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "JSON-encoded metadata object")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run the eleven-layer retriever over a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			hits, err := e.Search(context.Background(), args[0], userID, characterID, topK, nil)
			if err != nil {
				return err
			}
			return printJSON(hits)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 20, "maximum results")
	return cmd
}

func newContextCmd() *cobra.Command {
	var maxTokens int
	var includeRecent bool
	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Assemble a prompt-ready context string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			ctxStr, err := e.BuildContext(context.Background(), args[0], userID, characterID, maxTokens, includeRecent)
			if err != nil {
				return err
			}
			fmt.Println(ctxStr)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 2000, "token budget")
	cmd.Flags().BoolVar(&includeRecent, "include-recent", true, "include recent turns")
	return cmd
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <fact-id>",
		Short: "Re-run contradiction detection against an existing fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			found, err := e.Detect(context.Background(), userID, characterID, args[0])
			if err != nil {
				return err
			}
			return printJSON(found)
		},
	}
}

func newResolveCmd() *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "resolve <contradiction-id>",
		Short: "Resolve a pending contradiction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			result, err := e.Resolve(userID, characterID, args[0], resolutionStrategyOf(strategy))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "supersede", "supersede|coexist|reject|manual")
	return cmd
}

func newListPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-pending",
		Short: "List every unresolved contradiction",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			pending, err := e.ListPending(userID, characterID)
			if err != nil {
				return err
			}
			return printJSON(pending)
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show node/fact/episode/contradiction counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			stats, err := e.Stats(userID, characterID)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func newClearCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every character's data for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.Clear(userID, confirm)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "required safety interlock")
	return cmd
}

func newReloadConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload-config <path>",
		Short: "Reload the on-disk config snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			return e.ReloadConfig(args[0])
		},
	}
}

func newDetectCommunitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-communities",
		Short: "Recompute connected-component community nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			nodes, err := e.DetectCommunities(userID, characterID)
			if err != nil {
				return err
			}
			return printJSON(nodes)
		},
	}
}

func resolutionStrategyOf(s string) model.ResolutionStrategy {
	switch model.ResolutionStrategy(s) {
	case model.ResolveCoexist, model.ResolveReject, model.ResolveManual:
		return model.ResolutionStrategy(s)
	default:
		return model.ResolveSupersede
	}
}
