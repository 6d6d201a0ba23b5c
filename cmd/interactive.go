package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/conneroisu/blockfactory/internal/controller"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
	"github.com/conneroisu/blockfactory/internal/project"
)

// interactiveCmd runs a terminal editing session.
var interactiveCmd = &cobra.Command{
	Use:     "interactive [project.yml]",
	Aliases: []string{"menu", "m"},
	Short:   "Edit a project in the terminal",
	Long: `Open a project, or start a new one, and edit its toolbox and pre-loaded
workspace from a menu. Categories are named through prompts the same way
the editor asks for them; deleting and clearing ask for confirmation.

Choose "Save project" to write the session back to the project file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	term := &terminal{in: os.Stdin, out: os.Stdout}
	ctx := context.Background()
	path := projectArg(cfg, args)

	ctrl, err := openSession(ctx, cfg, logger, path, true, controller.WithPrompter(term))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	return runSession(ctx, ctrl, term, cmd.OutOrStdout(), path)
}

// sessionUI picks menu entries and reads free-form answers.
type sessionUI interface {
	controller.Prompter
	Choose(label string, items []string) (int, error)
	Ask(label, def string) (string, error)
}

// terminal is the promptui-backed sessionUI.
type terminal struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (t *terminal) PromptName(_ context.Context, message, def string) (string, bool) {
	p := promptui.Prompt{Label: message, Default: def, AllowEdit: true, Stdin: t.in, Stdout: t.out}
	name, err := p.Run()
	if err != nil {
		return "", false
	}
	return name, true
}

func (t *terminal) Confirm(_ context.Context, message string) bool {
	p := promptui.Prompt{Label: message, IsConfirm: true, Stdin: t.in, Stdout: t.out}
	_, err := p.Run()
	return err == nil
}

func (t *terminal) Alert(_ context.Context, message string) {
	fmt.Fprintf(t.out, "%s %s\n", promptui.IconWarn, message)
}

func (t *terminal) Choose(label string, items []string) (int, error) {
	s := promptui.Select{Label: label, Items: items, Size: 12, Stdin: t.in, Stdout: t.out}
	i, _, err := s.Run()
	return i, err
}

func (t *terminal) Ask(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def, AllowEdit: true, Stdin: t.in, Stdout: t.out}
	return p.Run()
}

// Menu entries.
const (
	actionAddCategory  = "Add category"
	actionAddStandard  = "Add standard category"
	actionAddSeparator = "Add separator"
	actionSelect       = "Select element"
	actionRename       = "Rename selected"
	actionColour       = "Set colour of selected"
	actionCustom       = "Set custom tag of selected"
	actionMoveUp       = "Move selected up"
	actionMoveDown     = "Move selected down"
	actionDelete       = "Delete selected"
	actionAddBlocks    = "Add blocks to canvas"
	actionTemplate     = "Toggle template block"
	actionMode         = "Switch toolbox / pre-loaded workspace"
	actionClear        = "Clear all"
	actionPrint        = "Print documents"
	actionSave         = "Save project"
	actionQuit         = "Quit"
)

var sessionActions = []string{
	actionAddCategory, actionAddStandard, actionAddSeparator, actionSelect,
	actionRename, actionColour, actionCustom, actionMoveUp, actionMoveDown,
	actionDelete, actionAddBlocks, actionTemplate, actionMode, actionClear,
	actionPrint, actionSave, actionQuit,
}

// errQuit ends the session loop.
var errQuit = stderrors.New("quit")

// runSession runs the menu loop until the user quits. Errors from
// individual actions are reported and the loop continues.
func runSession(ctx context.Context, ctrl *controller.Controller, ui sessionUI, out io.Writer, path string) error {
	for {
		printStatus(out, ctrl)

		i, err := ui.Choose("Action", sessionActions)
		if err != nil {
			if stderrors.Is(err, promptui.ErrInterrupt) || stderrors.Is(err, promptui.ErrEOF) || stderrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		err = runAction(ctx, ctrl, ui, out, path, sessionActions[i])
		switch {
		case stderrors.Is(err, errQuit):
			return nil
		case stderrors.Is(err, promptui.ErrInterrupt), stderrors.Is(err, promptui.ErrAbort):
		case errors.IsInvariant(err):
			return err
		case err != nil:
			ui.Alert(ctx, err.Error())
		}
	}
}

func runAction(ctx context.Context, ctrl *controller.Controller, ui sessionUI, out io.Writer, path, action string) error {
	switch action {
	case actionAddCategory:
		return ctrl.AddCategory(ctx)
	case actionAddStandard:
		names := append(model.StandardCategoryNames(), "All of them")
		i, err := ui.Choose("Standard category", names)
		if err != nil {
			return err
		}
		if i == len(names)-1 {
			return ctrl.LoadStandardToolbox(ctx)
		}
		_, err = ctrl.LoadStandardCategory(ctx, names[i])
		return err
	case actionAddSeparator:
		_, err := ctrl.AddSeparator(ctx)
		return err
	case actionSelect:
		elems := ctrl.Elements()
		if len(elems) == 0 {
			return fmt.Errorf("the toolbox has no categories")
		}
		labels := make([]string, len(elems))
		for i, e := range elems {
			labels[i] = elementLabel(e)
		}
		i, err := ui.Choose("Element", labels)
		if err != nil {
			return err
		}
		return ctrl.SwitchTo(ctx, elems[i].ID)
	case actionRename:
		return ctrl.RenameSelected(ctx)
	case actionColour:
		colour, err := ui.Ask("Colour (hue 0-360, #rrggbb or %{BKY_...})", "")
		if err != nil {
			return err
		}
		if err := controller.ValidateColour(colour); err != nil {
			return err
		}
		return ctrl.SetSelectedColor(ctx, colour)
	case actionCustom:
		tags := []model.CustomTag{model.CustomNone, model.CustomVariable, model.CustomProcedure}
		i, err := ui.Choose("Custom tag", []string{"none", string(model.CustomVariable), string(model.CustomProcedure)})
		if err != nil {
			return err
		}
		return ctrl.SetSelectedCustomTag(ctx, tags[i])
	case actionMoveUp:
		return ctrl.MoveSelected(ctx, -1)
	case actionMoveDown:
		return ctrl.MoveSelected(ctx, 1)
	case actionDelete:
		return ctrl.RemoveSelected(ctx)
	case actionAddBlocks:
		src, err := ui.Ask("Blocks (XML)", "")
		if err != nil {
			return err
		}
		doc, err := document.ParseFragment([]byte(src))
		if err != nil {
			return errors.ErrMalformedDocument(err)
		}
		return ctrl.AppendBlocks(ctx, doc)
	case actionTemplate:
		id, err := ui.Ask("Block id", "")
		if err != nil {
			return err
		}
		if ctrl.Model().IsShadow(id) {
			return ctrl.UnmarkShadow(ctx, id)
		}
		return ctrl.MarkShadow(ctx, id)
	case actionMode:
		if ctrl.Mode() == controller.ModeToolbox {
			return ctrl.SetMode(ctx, controller.ModePreload)
		}
		return ctrl.SetMode(ctx, controller.ModeToolbox)
	case actionClear:
		return ctrl.ClearAll(ctx)
	case actionPrint:
		return printDocuments(ctx, out, ctrl, document.FormatXML)
	case actionSave:
		return saveProject(ctx, ctrl, out, path)
	case actionQuit:
		if ctrl.HasUnsavedChanges() && !ui.Confirm(ctx, "Discard unsaved changes") {
			return nil
		}
		return errQuit
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func saveProject(ctx context.Context, ctrl *controller.Controller, out io.Writer, path string) error {
	if path == "" {
		return fmt.Errorf("no project file to save to")
	}
	f, err := project.Capture(ctx, ctrl, "")
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return err
	}
	// The saved project is the export: both documents count as saved now.
	if _, err := ctrl.ExportToolboxDocument(ctx); err != nil {
		return err
	}
	if _, err := ctrl.ExportWorkspaceDocument(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s\n", path)
	return nil
}

func elementLabel(e model.ElementInfo) string {
	switch e.Kind {
	case model.KindSeparator:
		return "---"
	default:
		if e.Custom != model.CustomNone {
			return fmt.Sprintf("%s [%s]", e.Name, e.Custom)
		}
		return e.Name
	}
}

func printStatus(out io.Writer, ctrl *controller.Controller) {
	a := ctrl.Affordances()
	selected := "flyout"
	for _, e := range ctrl.Elements() {
		if e.ID == a.SelectedID {
			selected = elementLabel(e)
		}
	}
	if a.Mode == controller.ModePreload {
		selected = "pre-loaded workspace"
	}
	unsaved := ""
	if ctrl.HasUnsavedChanges() {
		unsaved = " (unsaved)"
	}
	fmt.Fprintf(out, "\n%d elements, editing %s%s\n", len(ctrl.Elements()), selected, unsaved)
}
