package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/agent/core"
	"github.com/leafwise/leafwise/internal/agent/telemetry"
	"github.com/leafwise/leafwise/internal/capability"
	"github.com/leafwise/leafwise/internal/memory/semantic"
	"github.com/leafwise/leafwise/internal/server"
	"github.com/leafwise/leafwise/provider"
	"github.com/leafwise/leafwise/session"
	redis_session "github.com/leafwise/leafwise/session/redis"
	"github.com/leafwise/leafwise/tools/plantid"
	"github.com/leafwise/leafwise/tools/weather"
	"github.com/leafwise/leafwise/tools/websearch"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	root := &cobra.Command{Use: "leafwise", Short: "Plant care assistant"}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	root.AddCommand(serveCMD(&cfgPath), askCMD(&cfgPath), seedCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			orch, sessions, _, err := buildOrchestrator(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			return server.New(orch, sessions).Start(cfg.Server.Address)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func askCMD(cfgPath *string) *cobra.Command {
	var location string
	var imagePath string
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Run a single turn and print the advice",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			orch, _, _, err := buildOrchestrator(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}

			input := core.TurnInput{
				SessionID: "cli",
				Query:     strings.Join(args, " "),
				Location:  location,
			}
			if imagePath != "" {
				encoded, err := encodeImage(imagePath)
				if err != nil {
					return err
				}
				input.ImageBase64 = encoded
			}

			result, err := orch.ProcessTurn(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Println(result.Response)
			if len(result.Provenance.Summary) > 0 {
				fmt.Printf("\nSources: %s\n", strings.Join(result.Provenance.Summary, ", "))
			}
			fmt.Printf("Turn: %s (completeness %.2f)\n", result.TurnID, result.Completeness)
			return nil
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "city name for weather-aware advice")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to a plant photo")
	return cmd
}

func seedCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the knowledge store with starter care guides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "[SEED] ", log.LstdFlags)
			llm, err := provider.NewLLM(cfg.LLM)
			if err != nil {
				return err
			}
			store, err := semantic.NewStore(cfg.Knowledge, llm, logger)
			if err != nil {
				return err
			}
			if err := store.Seed(cmd.Context()); err != nil {
				return err
			}
			logger.Printf("knowledge store holds %d documents", store.Count())
			return nil
		},
	}
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// buildOrchestrator wires the full dependency graph from config. When seed is
// true the knowledge store is populated with the starter care guides so a
// fresh install can answer common questions immediately.
func buildOrchestrator(ctx context.Context, cfg *config.Config, seed bool) (*core.Orchestrator, session.History, *semantic.Store, error) {
	logger := log.New(os.Stderr, "[LEAFWISE] ", log.LstdFlags)

	llm, err := provider.NewLLM(cfg.LLM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create llm provider: %w", err)
	}

	store, err := semantic.NewStore(cfg.Knowledge, llm, log.New(os.Stderr, "[KNOWLEDGE] ", log.LstdFlags))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}
	if seed {
		if err := store.Seed(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to seed knowledge store: %w", err)
		}
	}

	web, err := websearch.New(cfg.WebSearch)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create web search client: %w", err)
	}

	identifier := plantid.New(cfg.Identify, log.New(os.Stderr, "[PLANTID] ", log.LstdFlags))
	registry := &capability.Registry{
		Identifier:      identifier,
		DiseaseDetector: identifier,
		Knowledge:       store,
		Web:             web,
		Weather:         weather.New(cfg.Weather, log.New(os.Stderr, "[WEATHER] ", log.LstdFlags)),
		Advisor:         core.NewAdvisor(llm),
	}

	var sessions session.History
	switch cfg.Session.Backend {
	case "redis":
		sessions = redis_session.New(cfg.Session.Redis)
	default:
		sessions = session.NewInMemory()
	}

	tel := telemetry.New(cfg.Telemetry)

	orch, err := core.New(cfg, logger, tel, registry, store, sessions, llm)
	if err != nil {
		return nil, nil, nil, err
	}
	return orch, sessions, store, nil
}
