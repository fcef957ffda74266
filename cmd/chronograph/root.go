package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	chronograph "github.com/chronograph-io/chronograph"
	"github.com/chronograph-io/chronograph/pkg/config"
	"github.com/chronograph-io/chronograph/pkg/server"
	"github.com/chronograph-io/chronograph/pkg/types"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "chronograph",
		Short:        "Temporally-aware knowledge graph store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newIngestCmd(&configPath),
		newSearchCmd(&configPath),
		newCommunitiesCmd(&configPath),
	)
	return root
}

func openClient(configPath string) (*chronograph.Client, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	client, err := chronograph.New(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := openClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.CreateIndices(cmd.Context()); err != nil {
				return fmt.Errorf("create indices: %w", err)
			}
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			return server.New(client, nil, cfg.Server.Mode).Run(addr)
		},
	}
}

func newIngestCmd(configPath *string) *cobra.Command {
	var groupID, name, kind string
	var reference string

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest one episode from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(args)
			if err != nil {
				return err
			}

			episode := &types.Episode{
				Name:    name,
				Content: string(content),
				GroupID: groupID,
				Kind:    types.EpisodeKind(kind),
			}
			if reference != "" {
				ts, err := time.Parse(time.RFC3339, reference)
				if err != nil {
					return fmt.Errorf("parse --reference: %w", err)
				}
				episode.Reference = ts
			}

			client, _, err := openClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			results, err := client.AddEpisode(cmd.Context(), episode)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().StringVarP(&groupID, "group", "g", "default", "namespace to ingest into")
	cmd.Flags().StringVar(&name, "name", "", "episode name")
	cmd.Flags().StringVar(&kind, "kind", string(types.TextEpisode), "episode kind: message, text, or json")
	cmd.Flags().StringVar(&reference, "reference", "", "real-world reference time (RFC3339)")
	return cmd
}

func newSearchCmd(configPath *string) *cobra.Command {
	var groups []string
	var limit int
	var center string
	var rerank, mmr bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			results, err := client.Search(cmd.Context(), args[0], &types.SearchConfig{
				GroupIDs:       groups,
				Limit:          limit,
				CenterNodeUUID: center,
				Rerank:         rerank,
				UseMMR:         mmr,
			})
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().StringSliceVarP(&groups, "group", "g", []string{"default"}, "namespaces to search")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().StringVar(&center, "center", "", "entity uuid to anchor graph traversal")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "apply cross-encoder reranking")
	cmd.Flags().BoolVar(&mmr, "mmr", false, "diversify results with maximal marginal relevance")
	return cmd
}

func newCommunitiesCmd(configPath *string) *cobra.Command {
	var groupID string

	cmd := &cobra.Command{
		Use:   "communities",
		Short: "Rebuild community clusters for a namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openClient(*configPath)
			if err != nil {
				return err
			}
			defer client.Close()

			communities, err := client.BuildCommunities(cmd.Context(), groupID)
			if err != nil {
				return err
			}
			return printJSON(communities)
		},
	}
	cmd.Flags().StringVarP(&groupID, "group", "g", "default", "namespace to cluster")
	return cmd
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return readAllStdin()
}

func readAllStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no input file given and stdin is a terminal")
	}
	return io.ReadAll(os.Stdin)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
