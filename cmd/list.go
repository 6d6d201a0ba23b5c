package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/blockfactory/internal/model"
)

var listCmd = &cobra.Command{
	Use:     "list [project.yml]",
	Aliases: []string{"l"},
	Short:   "List the toolbox elements of a project",
	Long: `List the categories and separators of a project's toolbox with their
colour, custom tag and number of blocks.

Examples:
  blockfactory list                   # Table of blockfactory.yml
  blockfactory list demo.yml -o json  # As JSON
  blockfactory list --types           # Also list every block type used`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var (
	listFlags     *StandardFlags
	listWithTypes bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddStandardFlags(listCmd, "output")
	listCmd.Flags().BoolVarP(&listWithTypes, "types", "t", false, "Include the block types used by the project")
}

// listing is the structured form of the list output.
type listing struct {
	Elements   []model.ElementInfo `json:"elements" yaml:"elements"`
	BlockTypes []string            `json:"blockTypes,omitempty" yaml:"blockTypes,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := listFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	ctrl, err := openSession(context.Background(), cfg, logger, projectArg(cfg, args), false)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	l := listing{Elements: ctrl.Elements()}
	if listWithTypes {
		l.BlockTypes = ctrl.Model().UsedBlockTypes()
	}
	if listFlags.Quiet {
		return nil
	}
	return writeListing(cmd.OutOrStdout(), l, listFlags.Output)
}

func writeListing(w io.Writer, l listing, format string) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(l)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(l)
	case "table", "":
		return writeListingTable(w, l)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeListingTable(out io.Writer, l listing) error {
	if len(l.Elements) == 0 {
		fmt.Fprintln(out, "No categories: the toolbox is a flat flyout.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tKIND\tNAME\tCOLOUR\tCUSTOM\tBLOCKS")
		fmt.Fprintln(w, "-\t----\t----\t------\t------\t------")
		for i, e := range l.Elements {
			name := e.Name
			if e.Kind == model.KindSeparator {
				name = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n", i, e.Kind, name, e.Colour, e.Custom, e.Blocks)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTotal: %d elements\n", len(l.Elements))
	}
	if len(l.BlockTypes) > 0 {
		fmt.Fprintf(out, "Block types: %s\n", strings.Join(l.BlockTypes, ", "))
	}
	return nil
}
