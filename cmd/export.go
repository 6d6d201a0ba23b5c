package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/blockfactory/internal/config"
	"github.com/conneroisu/blockfactory/internal/controller"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/model"
)

var exportCmd = &cobra.Command{
	Use:     "export [project.yml]",
	Aliases: []string{"e"},
	Short:   "Export the toolbox, the pre-loaded workspace and the options",
	Long: `Load a project and write its canonical documents:

  toolbox.<ext>     the toolbox, with template blocks as shadows
  workspace.<ext>   the pre-loaded workspace
  options.<ext>     the injection options (json or yaml; xml exports them as json)

Examples:
  blockfactory export                         # Export everything as XML into out_dir
  blockfactory export demo.yml --what toolbox --out-dir -
  blockfactory export -f yaml --out-dir build/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var (
	exportFlags *StandardFlags
	exportWhat  string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportFlags = AddStandardFlags(exportCmd, "document")
	exportCmd.Flags().StringVarP(&exportWhat, "what", "w", "all", "What to export (toolbox, workspace, options, all)")
	AddFlagValidation(exportCmd, "what", func(s string) error {
		return ValidateFormatWithSuggestion(s, exportTargets)
	})
}

var exportTargets = []string{"toolbox", "workspace", "options", "all"}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := exportFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	format, err := exportFormat(cfg, exportFlags.Format)
	if err != nil {
		return err
	}
	outDir := exportFlags.OutDir
	if outDir == "" {
		outDir = cfg.Export.OutDir
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	path := projectArg(cfg, args)
	ctrl, err := openSession(ctx, cfg, logger, path, false)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	files, err := exportDocuments(ctx, ctrl, exportWhat, format)
	if err != nil {
		return err
	}
	return writeExports(cmd.OutOrStdout(), outDir, files)
}

func exportFormat(cfg *config.Config, flag string) (document.Format, error) {
	if flag == "" {
		flag = cfg.Export.Format
	}
	return document.ParseFormat(flag)
}

// exportFile is one exported document.
type exportFile struct {
	Name string
	Data []byte
}

// exportDocuments renders the requested documents in format. Exporting
// commits the session, so the exported toolbox counts as saved.
func exportDocuments(ctx context.Context, ctrl *controller.Controller, what string, format document.Format) ([]exportFile, error) {
	var files []exportFile

	if what == "toolbox" || what == "all" {
		doc, err := ctrl.ExportToolboxDocument(ctx)
		if err != nil {
			return nil, err
		}
		data, err := encodeDocument(doc, format)
		if err != nil {
			return nil, err
		}
		files = append(files, exportFile{Name: "toolbox." + string(format), Data: data})
	}
	if what == "workspace" || what == "all" {
		doc, err := ctrl.ExportWorkspaceDocument(ctx)
		if err != nil {
			return nil, err
		}
		data, err := encodeDocument(doc, format)
		if err != nil {
			return nil, err
		}
		files = append(files, exportFile{Name: "workspace." + string(format), Data: data})
	}
	if what == "options" || what == "all" {
		optFormat := format
		if optFormat == document.FormatXML {
			optFormat = document.FormatJSON
		}
		data, err := encodeOptions(ctrl.ExportInjectionOptions(), optFormat)
		if err != nil {
			return nil, err
		}
		files = append(files, exportFile{Name: "options." + string(optFormat), Data: data})
	}
	if files == nil {
		return nil, fmt.Errorf("unknown export %q (valid: toolbox, workspace, options, all)", what)
	}
	return files, nil
}

func encodeDocument(doc *document.Node, format document.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := document.Encode(&buf, doc, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeOptions(opts model.InjectionOptions, format document.Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case document.FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(opts); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(opts); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// writeExports writes files into dir, or to out when dir is "-".
func writeExports(out io.Writer, dir string, files []exportFile) error {
	if dir == "-" {
		for _, f := range files {
			if len(files) > 1 {
				fmt.Fprintf(out, "# %s\n", f.Name)
			}
			if _, err := out.Write(f.Data); err != nil {
				return err
			}
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
	return nil
}
