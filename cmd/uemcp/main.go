package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chengdagong/ue-mcp-sub001/internal/config"
	"github.com/chengdagong/ue-mcp-sub001/internal/editor"
	"github.com/chengdagong/ue-mcp-sub001/internal/mcp"
	"github.com/chengdagong/ue-mcp-sub001/internal/watcher"
	"github.com/chengdagong/ue-mcp-sub001/pkg/events"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	flagProject   string
	flagConfig    string
	flagGroup     string
	flagMcastPort int
	flagLogDir    string
	flagDebugPort int
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "uemcp",
		Short:   "MCP server that drives an Unreal editor over remote Python execution",
		Long: `uemcp launches and manages an Unreal editor for one project and exposes
editor control and Python execution as MCP tools over stdio.

The MCP protocol owns stdout; all logging goes to stderr.`,
		Version: Version,
		RunE:    run,
	}

	rootCmd.Flags().StringVarP(&flagProject, "project", "d", ".", "Project directory or .uproject file")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "Config file path (default ~/.uemcp/config.toml)")
	rootCmd.Flags().StringVar(&flagGroup, "group", "", "Multicast group override")
	rootCmd.Flags().IntVar(&flagMcastPort, "mcast-port", 0, "Multicast discovery port override")
	rootCmd.Flags().StringVar(&flagLogDir, "log-dir", "", "Editor log directory override")
	rootCmd.Flags().IntVar(&flagDebugPort, "debug-port", 0, "Enable the HTTP debug server on this port")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// stdout belongs to the MCP stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("[uemcp] ")

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagGroup != "" {
		cfg.Multicast.Group = flagGroup
	}
	if flagMcastPort != 0 {
		cfg.Multicast.Port = flagMcastPort
	}
	if flagLogDir != "" {
		cfg.Editor.LogDir = flagLogDir
	}
	if flagDebugPort != 0 {
		cfg.Debug.HTTPPort = flagDebugPort
	}
	if err := os.MkdirAll(cfg.Editor.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	bus := events.NewEventBus()
	defer bus.Shutdown()

	instancesDir, err := config.InstancesDir()
	if err != nil {
		return fmt.Errorf("instances dir: %w", err)
	}

	manager := editor.NewManager(editor.Options{
		ProjectDir:     flagProject,
		Binary:         cfg.Editor.Binary,
		LogDir:         cfg.Editor.LogDir,
		ExtraArgs:      cfg.Editor.ExtraArgs,
		MulticastGroup: cfg.Multicast.Group,
		PortRangeStart: cfg.Multicast.PortRangeStart,
		PortRangeEnd:   cfg.Multicast.PortRangeEnd,
		Bus:            bus,
		Registry:       editor.NewRegistry(instancesDir),
		SkipBuildCheck: cfg.Editor.SkipBuildCheck,
	})

	w := watcher.New()
	if cfg.Watcher.PollIntervalMS > 0 {
		w.PollInterval = time.Duration(cfg.Watcher.PollIntervalMS) * time.Millisecond
	}

	srv := mcp.NewServer(Version, manager, w, cfg, bus)

	if cfg.Debug.HTTPPort > 0 {
		ds := mcp.NewDebugServer(srv, cfg.Debug.HTTPPort)
		ds.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := ds.Shutdown(ctx); err != nil {
				log.Printf("debug server shutdown: %v", err)
			}
		}()
	}

	log.Printf("uemcp %s serving MCP over stdio (project %s)", Version, flagProject)
	return srv.ServeStdio()
}
