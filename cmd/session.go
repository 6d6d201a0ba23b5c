package cmd

import (
	"context"
	"os"

	"github.com/conneroisu/blockfactory/internal/canvas"
	"github.com/conneroisu/blockfactory/internal/config"
	"github.com/conneroisu/blockfactory/internal/controller"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/logging"
	"github.com/conneroisu/blockfactory/internal/project"
)

// projectArg picks the project file: the first argument, else the
// configured one.
func projectArg(cfg *config.Config, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return cfg.Project.File
}

// openSession starts an editing session with the configured default
// injection options and loads the project at path into it. A missing
// project is an error unless allowMissing is set, in which case the
// session starts empty.
func openSession(
	ctx context.Context,
	cfg *config.Config,
	logger logging.Logger,
	path string,
	allowMissing bool,
	opts ...controller.Option,
) (*controller.Controller, error) {
	all := append([]controller.Option{controller.WithLogger(logger)}, opts...)
	ctrl, err := controller.New(ctx, canvas.New(canvas.WithName("editor")), all...)
	if err != nil {
		return nil, err
	}
	if err := ctrl.SetOptions(ctx, cfg.Preview.DefaultOptions); err != nil {
		ctrl.Close()
		return nil, err
	}

	if path == "" {
		return ctrl, nil
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) && allowMissing {
		logger.Info(ctx, "Starting a new project", "path", path)
		return ctrl, nil
	}

	f, err := project.Load(path)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	if err := f.Apply(ctx, ctrl); err != nil {
		ctrl.Close()
		return nil, err
	}
	logger.Debug(ctx, "Project loaded", "path", path, "elements", len(ctrl.Elements()))
	return ctrl, nil
}

// loadConfig reads the configuration and builds the logger for a command.
func loadConfig() (*config.Config, logging.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	return cfg, logger, closeLog, nil
}
