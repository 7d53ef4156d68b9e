package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/config"
	"github.com/ruvnet/tokenfield/internal/engine"
	"github.com/ruvnet/tokenfield/internal/persist"
	"github.com/ruvnet/tokenfield/internal/routing"
	"github.com/ruvnet/tokenfield/internal/worker"
	"github.com/ruvnet/tokenfield/pkg/metrics"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "tokenfield",
		Short: "Distributed simulation engine for discrete multi-agent games",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(runCmd(), simulateCmd(), inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load(), nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.Level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func localPeerID(cfg *config.Config) (routing.PeerID, error) {
	switch {
	case cfg.Node.PeerID != "":
		return routing.ParsePeerID(cfg.Node.PeerID)
	case cfg.Node.PeerIDSeed != "":
		return routing.PeerIDFromSeed(cfg.Node.PeerIDSeed), nil
	default:
		return routing.NewPeerID(), nil
	}
}

func runCmd() *cobra.Command {
	var peers []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a gossip peer node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			self, err := localPeerID(cfg)
			if err != nil {
				return err
			}

			m := metrics.NewMetrics()
			transport := routing.NewWebSocketTransport(self, cfg.Node.ListenAddr, logger)
			if err := transport.Start(); err != nil {
				return err
			}

			node, err := routing.NewNode(routing.NodeOptions{
				Self:      self,
				Config:    cfg.Routing,
				Transport: transport,
				Logger:    logger,
				Metrics:   m,
			})
			if err != nil {
				return err
			}

			eng := engine.New(engine.Options{
				ActorID:          self.String()[:16],
				RootSeed:         cfg.Engine.RNGSeed,
				SnapshotInterval: cfg.Engine.SnapshotInterval,
				Logger:           logger,
				Metrics:          m,
			})

			// Remote actions and chronicle deltas arrive as broadcast
			// payloads; local dispatches are gossiped out by the host
			// embedding this node.
			node.OnDeliver(func(b *routing.Broadcast) {
				a, err := engine.DecodeAction(b.Payload)
				if err != nil {
					// Not an action frame; treat as a chronicle delta.
					if err := eng.Doc().ApplyDelta(b.Payload); err != nil {
						logger.Warn("undecodable broadcast payload", zap.Error(err))
					}
					return
				}
				if _, err := eng.Dispatch(a); err != nil {
					logger.Warn("remote action rejected",
						zap.String("type", a.Type),
						zap.Error(err))
				}
			})

			for i, addr := range peers {
				id := routing.PeerIDFromSeed(addr)
				transport.Register(id, addr)
				node.AddPeer(routing.NewPeer(id, addr))
				logger.Info("bootstrap peer added",
					zap.Int("index", i),
					zap.String("addr", addr))
			}
			if cfg.Routing.Topology == routing.TopologySupernode {
				node.RecomputeSupernodes()
			}

			logger.Info("node started",
				zap.String("peer_id", self.String()),
				zap.String("topology", node.Topology()),
				zap.String("listen", cfg.Node.ListenAddr))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			logger.Info("shutting down")
			return node.Close()
		},
	}

	cmd.Flags().StringSliceVar(&peers, "peer", nil, "bootstrap peer address (repeatable)")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		turns   int
		seed    int64
		agents  int
		session string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a local simulation and print metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			pool := worker.NewPool(cfg.Worker, logger, metrics.NewMetrics())
			defer pool.Shutdown(context.Background())

			names := make([]string, agents)
			for i := range names {
				names[i] = fmt.Sprintf("agent-%d", i)
			}

			resp, err := pool.Do(context.Background(), worker.TaskSimulateGame, &worker.SimulateGameConfig{
				ActorID: "sim",
				Seed:    seed,
				Turns:   turns,
				Agents:  names,
			})
			if err != nil {
				return err
			}
			result := resp.Data.(*worker.SimulateGameResult)

			fmt.Printf("actions: %d total, %d ok, %d failed\n", result.Total, result.Succeeded, result.Failed)
			fmt.Printf("duration: %s, blob: %d bytes\n", result.Duration, len(result.Blob))

			if session != "" {
				store, err := persist.Open(cfg.Persist)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.SaveSnapshot(context.Background(), session, &persist.Snapshot{Blob: result.Blob}); err != nil {
					return err
				}
				fmt.Printf("saved session %q\n", session)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&turns, "turns", 20, "turns to simulate")
	cmd.Flags().Int64Var(&seed, "seed", 42, "deterministic root seed")
	cmd.Flags().IntVar(&agents, "agents", 2, "number of agents")
	cmd.Flags().StringVar(&session, "save", "", "session name to snapshot the result under")
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <session>",
		Short: "Print a snapshot summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := persist.Open(cfg.Persist)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.LoadSnapshot(context.Background(), args[0])
			if err != nil {
				return err
			}

			doc, err := chronicle.Load("inspect", snap.Blob)
			if err != nil {
				return err
			}

			fmt.Printf("session %q: %d bytes\n", args[0], len(snap.Blob))
			if v, ok := doc.Get("game.turn"); ok {
				fmt.Printf("turn: %v\n", v)
			}
			if v, ok := doc.Get("game.winner"); ok {
				fmt.Printf("winner: %v\n", v)
			}
			return nil
		},
	}
	return cmd
}
