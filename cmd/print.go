package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/blockfactory/internal/controller"
	"github.com/conneroisu/blockfactory/internal/document"
)

var printCmd = &cobra.Command{
	Use:     "print [project.yml]",
	Aliases: []string{"p"},
	Short:   "Print the toolbox and the pre-loaded workspace",
	Long: `Commit the project's session and print both documents to stdout, toolbox
first, in the configured export format.

Examples:
  blockfactory print demo.yml
  blockfactory print -f json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrint,
}

var printFormat string

func init() {
	rootCmd.AddCommand(printCmd)

	printCmd.Flags().StringVarP(&printFormat, "format", "f", "", "Document format (xml, json, yaml)")
}

func runPrint(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	format, err := exportFormat(cfg, printFormat)
	if err != nil {
		return err
	}

	ctx := context.Background()
	ctrl, err := openSession(ctx, cfg, logger, projectArg(cfg, args), false)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	return printDocuments(ctx, cmd.OutOrStdout(), ctrl, format)
}

func printDocuments(ctx context.Context, w io.Writer, ctrl *controller.Controller, format document.Format) error {
	ctrl.SaveStateFromWorkspace()

	toolbox, err := ctrl.ExportToolboxDocument(ctx)
	if err != nil {
		return err
	}
	workspace, err := ctrl.ExportWorkspaceDocument(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Toolbox:")
	if err := document.Encode(w, toolbox, format); err != nil {
		return err
	}
	fmt.Fprintln(w, "Workspace:")
	return document.Encode(w, workspace, format)
}
