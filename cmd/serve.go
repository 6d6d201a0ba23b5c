package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/blockfactory/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve [project.yml]",
	Aliases: []string{"s"},
	Short:   "Serve a live preview of the project",
	Long: `Start the preview server for a project. The page shows the toolbox, the
pre-loaded workspace and the injection options as they are exported, and
updates over a websocket after every change. The project file and the
documents it references are watched and reloaded on change.

The session can also be edited through the JSON API under /api.

Examples:
  blockfactory serve                      # Serve blockfactory.yml
  blockfactory serve demo.yml -p 3000     # Serve another project on port 3000
  blockfactory serve --open --no-watch    # Open a browser, don't hot reload`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var serveFlags *StandardFlags

func init() {
	rootCmd.AddCommand(serveCmd)

	serveFlags = AddStandardFlags(serveCmd, "server")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", serveCmd.Flags().Lookup("open"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if serveFlags.NoWatch {
		cfg.Project.Watch = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := projectArg(cfg, args)
	ctrl, err := openSession(ctx, cfg, logger, path, true)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	srv, err := server.New(cfg, ctrl, server.WithLogger(logger), server.WithProject(path))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", path, cfg.Addr())
	return srv.Start(ctx)
}
