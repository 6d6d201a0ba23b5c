package controller

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/blockfactory/internal/canvas"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
	"github.com/conneroisu/blockfactory/internal/preview"
)

type scriptedPrompter struct {
	names   []string
	confirm bool
	alerts  []string
	asked   int
}

func (p *scriptedPrompter) PromptName(_ context.Context, _, _ string) (string, bool) {
	p.asked++
	if len(p.names) == 0 {
		return "", false
	}
	name := p.names[0]
	p.names = p.names[1:]
	return name, true
}

func (p *scriptedPrompter) Confirm(context.Context, string) bool { return p.confirm }

func (p *scriptedPrompter) Alert(_ context.Context, msg string) { p.alerts = append(p.alerts, msg) }

type recordingView struct {
	affordances []Affordances
	lists       int
}

func (v *recordingView) UpdateAffordances(a Affordances) { v.affordances = append(v.affordances, a) }

func (v *recordingView) ListChanged([]model.ElementInfo, string) { v.lists++ }

func (v *recordingView) last() Affordances { return v.affordances[len(v.affordances)-1] }

func seq(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

type fixture struct {
	ctrl     *Controller
	canvas   *canvas.Workspace
	prompter *scriptedPrompter
	view     *recordingView
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		canvas:   canvas.New(canvas.WithIDGenerator(seq("b")), canvas.WithName("editor")),
		prompter: &scriptedPrompter{},
		view:     &recordingView{},
	}
	all := append([]Option{
		WithModel(model.New(model.WithIDGenerator(seq("el")))),
		WithPrompter(f.prompter),
		WithView(f.view),
	}, opts...)
	ctrl, err := New(context.Background(), f.canvas, all...)
	require.NoError(t, err)
	f.ctrl = ctrl
	t.Cleanup(ctrl.Close)
	return f
}

func parse(t *testing.T, s string) *document.Node {
	t.Helper()
	n, err := document.ParseFragment([]byte(s))
	require.NoError(t, err)
	return n
}

func (f *fixture) snapshot(t *testing.T, id string) string {
	t.Helper()
	e, ok := f.ctrl.Model().ElementByID(id)
	require.True(t, ok)
	return e.Snapshot().String()
}

// checkSelection asserts that exactly one element is selected and that it
// is the flyout exactly when the toolbox list is empty.
func checkSelection(t *testing.T, c *Controller) {
	t.Helper()
	m := c.Model()
	sel := m.Selected()
	require.NotNil(t, sel)
	if m.IsEmpty() {
		assert.True(t, sel.IsFlyout())
		return
	}
	assert.GreaterOrEqual(t, m.IndexByID(sel.ID()), 0)
}

func TestStartsOnEmptyFlyout(t *testing.T) {
	f := newFixture(t)

	checkSelection(t, f.ctrl)
	assert.Equal(t, ModeToolbox, f.ctrl.Mode())
	assert.Equal(t, preview.Stats{Instantiations: 1}, f.ctrl.Preview().Stats())
	assert.False(t, f.ctrl.HasUnsavedChanges())
	assert.Equal(t, model.KindFlyout, f.view.last().Kind)
}

func TestLoopsScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.prompter.names = []string{"Loops"}

	require.NoError(t, f.ctrl.AddCategory(ctx))
	id, ok := f.ctrl.Model().CategoryIDByName("Loops")
	require.True(t, ok)
	require.NoError(t, f.ctrl.SwitchTo(ctx, id))

	_, err := f.canvas.AddBlock(document.New(document.NodeBlock, document.AttrType, "controls_repeat_ext"))
	require.NoError(t, err)

	_, err = f.ctrl.AddSeparator(ctx)
	require.NoError(t, err)

	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	cats := doc.ChildrenNamed(document.NodeCategory)
	require.Len(t, cats, 1)
	assert.Equal(t, "Loops", cats[0].AttrOr(document.AttrName, ""))
	require.Len(t, cats[0].TopBlocks(), 1)
	assert.Equal(t, `<block type="controls_repeat_ext"></block>`, cats[0].TopBlocks()[0].String())
}

func TestCancelledAddCreatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ctrl.AddCategory(ctx))

	assert.Equal(t, 1, f.prompter.asked)
	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.ChildrenNamed(document.NodeCategory))
	checkSelection(t, f.ctrl)
}

func TestPromptRetriesDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "Loops")
	require.NoError(t, err)

	f.prompter.names = []string{"loops", "Math"}
	require.NoError(t, f.ctrl.AddCategory(ctx))

	assert.Len(t, f.prompter.alerts, 1)
	assert.True(t, f.ctrl.Model().HasCategoryByName("Math"))
	assert.Equal(t, 2, f.ctrl.Model().Len())
}

func TestPromptGivesUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "Loops")
	require.NoError(t, err)

	for i := 0; i < maxPromptAttempts+5; i++ {
		f.prompter.names = append(f.prompter.names, "Loops")
	}
	require.NoError(t, f.ctrl.AddCategory(ctx))
	assert.Equal(t, maxPromptAttempts, f.prompter.asked)
	assert.Equal(t, 1, f.ctrl.Model().Len())
}

func TestFirstCategoryReinstantiatesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ctrl.CreateCategory(ctx, "Loops")
	require.NoError(t, err)
	assert.Equal(t, preview.Stats{Instantiations: 1, Reinstantiations: 1}, f.ctrl.Preview().Stats())
	assert.True(t, f.ctrl.Preview().Instance().Categorized())

	opts := f.ctrl.ExportInjectionOptions()
	assert.True(t, opts.Collapse)
	assert.True(t, opts.Trashcan)

	_, err = f.ctrl.CreateCategory(ctx, "Math")
	require.NoError(t, err)
	assert.Equal(t, preview.Stats{Instantiations: 1, Reinstantiations: 1, Swaps: 1}, f.ctrl.Preview().Stats())
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t,
		`<block type="p"><value name="V"><block type="c"></block></value></block><block type="q"></block>`)))
	b, err := f.ctrl.LoadStandardCategory(ctx, "Math")
	require.NoError(t, err)

	before := f.snapshot(t, a)
	standard := f.snapshot(t, b)

	require.NoError(t, f.ctrl.SwitchTo(ctx, a))
	require.NoError(t, f.ctrl.SwitchTo(ctx, b))
	assert.Equal(t, before, f.snapshot(t, a))

	require.NoError(t, f.ctrl.SwitchTo(ctx, a))
	assert.Equal(t, standard, f.snapshot(t, b))
	assert.False(t, f.ctrl.IsUnsaved(b))
}

func TestSwitchToUnknownFailsFast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="x"></block>`)))
	canvasBefore := f.canvas.Serialize().String()

	err = f.ctrl.SwitchTo(ctx, "nope")
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err))
	assert.False(t, errors.IsRecoverable(err))
	assert.Equal(t, a, f.ctrl.SelectedID())
	assert.Equal(t, canvasBefore, f.canvas.Serialize().String())
}

func TestSwitchSuppressesNotifications(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="x"></block>`)))
	b, err := f.ctrl.CreateCategory(ctx, "B")
	require.NoError(t, err)

	var events int
	f.canvas.AddChangeListener(func(canvas.Event) { events++ })
	gen := f.ctrl.Preview().Generation()

	require.NoError(t, f.ctrl.SwitchTo(ctx, a))
	require.NoError(t, f.ctrl.SwitchTo(ctx, b))

	assert.Zero(t, events)
	assert.Equal(t, gen, f.ctrl.Preview().Generation(), "switching must not refresh the preview")
	assert.Zero(t, f.canvas.HistoryDepth())
	assert.True(t, f.canvas.EventsEnabled())
}

func TestSwitchToEmptyDisablesAffordances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.SwitchTo(ctx, ""))
	assert.Nil(t, f.ctrl.Model().Selected())
	assert.True(t, f.view.last().Disabled)
	assert.True(t, f.canvas.IsEmpty())
}

func TestFlyoutBlocksMoveIntoFirstCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t,
		`<block type="p"><value name="V"><shadow type="n"></shadow></value></block>`)))

	_, err := f.ctrl.CreateCategory(ctx, "Category 1")
	require.NoError(t, err)

	elems := f.ctrl.Elements()
	require.Len(t, elems, 2)
	assert.Equal(t, "Category 2", elems[0].Name)
	assert.Equal(t, 1, elems[0].Blocks)
	assert.Equal(t, "Category 1", elems[1].Name)
	assert.Equal(t, elems[1].ID, f.ctrl.SelectedID())
	assert.Len(t, f.ctrl.Model().Shadows(), 1, "native shadows become template blocks")

	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc.String(), `<shadow type="n"></shadow>`)
}

func TestRemoveSelectsNeighbour(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		id, err := f.ctrl.CreateCategory(ctx, name)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, f.ctrl.SwitchTo(ctx, ids[1]))
	f.prompter.confirm = true
	require.NoError(t, f.ctrl.RemoveSelected(ctx))
	assert.Equal(t, ids[2], f.ctrl.SelectedID())

	require.NoError(t, f.ctrl.RemoveSelected(ctx))
	assert.Equal(t, ids[0], f.ctrl.SelectedID())

	require.NoError(t, f.ctrl.RemoveSelected(ctx))
	checkSelection(t, f.ctrl)
	assert.True(t, f.ctrl.Model().Selected().IsFlyout())
	assert.True(t, f.canvas.IsEmpty())

	require.NoError(t, f.ctrl.RemoveSelected(ctx), "the flyout cannot be removed")
	checkSelection(t, f.ctrl)
}

func TestRemovingLastCategoryRestoresFlyoutDefaults(t *testing.T) {
	ctx := context.Background()

	t.Run("separator remains", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.ctrl.CreateCategory(ctx, "A")
		require.NoError(t, err)
		_, err = f.ctrl.AddSeparator(ctx)
		require.NoError(t, err)
		opts := f.ctrl.ExportInjectionOptions()
		require.True(t, opts.Collapse)
		require.True(t, opts.Trashcan)

		require.NoError(t, f.ctrl.RemoveElement(ctx, a))
		require.Len(t, f.ctrl.Elements(), 1)
		opts = f.ctrl.ExportInjectionOptions()
		assert.False(t, opts.Collapse)
		assert.False(t, opts.Trashcan)
	})

	t.Run("list emptied", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.ctrl.CreateCategory(ctx, "A")
		require.NoError(t, err)
		require.NoError(t, f.ctrl.RemoveElement(ctx, a))
		checkSelection(t, f.ctrl)
		assert.False(t, f.ctrl.ExportInjectionOptions().Collapse)
	})

	t.Run("other category remains", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.ctrl.CreateCategory(ctx, "A")
		require.NoError(t, err)
		_, err = f.ctrl.CreateCategory(ctx, "B")
		require.NoError(t, err)
		require.NoError(t, f.ctrl.RemoveElement(ctx, a))
		assert.True(t, f.ctrl.ExportInjectionOptions().Collapse)
	})
}

func TestRemoveDeclined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.RemoveSelected(ctx))
	assert.Equal(t, 1, f.ctrl.Model().Len())

	err = f.ctrl.RemoveElement(ctx, "missing")
	assert.True(t, errors.IsInvariant(err))
}

func TestRemoveOtherKeepsSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	b, err := f.ctrl.CreateCategory(ctx, "B")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="x"></block>`)))

	require.NoError(t, f.ctrl.RemoveElement(ctx, a))
	assert.Equal(t, b, f.ctrl.SelectedID())
	assert.False(t, f.canvas.IsEmpty())
}

func TestMoveKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="x"></block>`)))
	_, err = f.ctrl.CreateCategory(ctx, "B")
	require.NoError(t, err)
	snap := f.snapshot(t, a)

	require.NoError(t, f.ctrl.SwitchTo(ctx, a))
	require.NoError(t, f.ctrl.MoveSelected(ctx, 1))
	assert.Equal(t, 1, f.ctrl.Model().IndexByID(a))
	assert.Equal(t, snap, f.snapshot(t, a))
	assert.Equal(t, a, f.ctrl.SelectedID())
	assert.True(t, f.view.last().CanMoveUp)
	assert.False(t, f.view.last().CanMoveDown)

	require.NoError(t, f.ctrl.MoveSelected(ctx, 1), "moving past the end does nothing")
	assert.Equal(t, 1, f.ctrl.Model().IndexByID(a))

	err = f.ctrl.MoveElement(ctx, a, 5)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOutOfRange))
	assert.True(t, errors.IsInvariant(err))
}

func TestRenameAndRecolour(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	b, err := f.ctrl.CreateCategory(ctx, "B")
	require.NoError(t, err)

	f.prompter.names = []string{"A", "C"}
	require.NoError(t, f.ctrl.RenameSelected(ctx))
	e, _ := f.ctrl.Model().ElementByID(b)
	assert.Equal(t, "C", e.Name())
	assert.Len(t, f.prompter.alerts, 1)

	require.NoError(t, f.ctrl.RenameSelected(ctx), "declining keeps the name")
	assert.Equal(t, "C", e.Name())

	require.NoError(t, f.ctrl.SetSelectedColor(ctx, "#a5745b"))
	assert.Equal(t, "#a5745b", e.Color())
	assert.True(t, errors.IsValidation(f.ctrl.SetSelectedColor(ctx, "purple")))

	require.NoError(t, f.ctrl.SetSelectedCustomTag(ctx, model.CustomProcedure))
	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.Equal(t,
		`<category name="C" colour="#a5745b" custom="PROCEDURE"></category>`,
		doc.Children[1].String())
}

func TestSeparatorCommitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	sep, err := f.ctrl.AddSeparator(ctx)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="x"></block>`)))
	e, _ := f.ctrl.Model().ElementByID(sep)
	assert.False(t, e.HasBlocks())
	assert.False(t, f.view.last().CanEdit)
}

func TestTemplateMarkUnmarkRestoresOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t,
		`<block type="p" id="p"><value name="V"><block type="c" id="c"></block></value></block>`)))

	before, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.MarkShadow(ctx, "c"))
	assert.Equal(t, []string{"c"}, f.canvas.TemplateIDs())
	marked, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.Contains(t, marked.String(), `<shadow type="c"></shadow>`)

	require.NoError(t, f.ctrl.UnmarkShadow(ctx, "c"))
	after, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
	assert.Empty(t, f.canvas.TemplateIDs())

	assert.True(t, errors.HasCode(f.ctrl.MarkShadow(ctx, "p"), errors.ErrCodeInvalidTemplate))
	assert.True(t, errors.HasCode(f.ctrl.MarkShadow(ctx, "zzz"), errors.ErrCodeUnknownBlock))
}

func TestDeletingBlockPrunesRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t,
		`<block type="p" id="p"><value name="V"><block type="c" id="c"></block></value></block>`)))
	require.NoError(t, f.ctrl.MarkShadow(ctx, "c"))

	require.NoError(t, f.ctrl.DeleteBlock(ctx, "p"))
	assert.False(t, f.ctrl.Model().IsShadow("c"))

	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Children[0].Children)
}

func TestPastedBlocksGetFreshIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const xml = `<block type="p" id="p"><value name="V"><block type="c" id="c"></block></value></block>`
	_, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, xml)))
	require.NoError(t, f.ctrl.MarkShadow(ctx, "c"))

	b, err := f.ctrl.CreateCategory(ctx, "B")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, xml)))
	ids := f.canvas.AllBlockIDs()
	require.Len(t, ids, 2)
	assert.NotContains(t, ids, "p")
	assert.NotContains(t, ids, "c")
	assert.Empty(t, f.canvas.TemplateIDs())

	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Children, 2)
	assert.Contains(t, doc.Children[0].String(), `<shadow type="c"></shadow>`)
	assert.NotContains(t, doc.Children[1].String(), "<shadow")

	require.NoError(t, f.ctrl.DeleteBlock(ctx, f.canvas.TopBlocks()[0].ID))
	assert.True(t, f.ctrl.Model().IsShadow("c"))
	assert.NotContains(t, f.snapshot(t, b), `type="p"`)

	require.NoError(t, f.ctrl.ReplaceCanvas(ctx, parse(t, xml)))
	assert.True(t, f.ctrl.Model().IsShadow("c"))
	assert.NotContains(t, f.canvas.AllBlockIDs(), "c")

	doc, err = f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc.Children[0].String(), `<shadow type="c"></shadow>`)
	assert.NotContains(t, doc.Children[1].String(), "<shadow")
}

func TestTemplatesSurviveSwitching(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.LoadStandardCategory(ctx, "Loops")
	require.NoError(t, err)
	assert.Len(t, f.canvas.TemplateIDs(), 4)

	_, err = f.ctrl.CreateCategory(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, f.canvas.TemplateIDs())

	require.NoError(t, f.ctrl.SwitchTo(ctx, a))
	assert.Len(t, f.canvas.TemplateIDs(), 4)
}

func TestStandardCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ctrl.LoadStandardCategory(ctx, "variables")
	require.NoError(t, err)
	_, err = f.ctrl.LoadStandardCategory(ctx, "Variables")
	assert.True(t, errors.HasCode(err, errors.ErrCodeCustomTagTaken))
	_, err = f.ctrl.LoadStandardCategory(ctx, "Physics")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnknownStandard))

	require.NoError(t, f.ctrl.LoadStandardToolbox(ctx))
	assert.Equal(t,
		[]string{"Variables", "Logic", "Loops", "Math", "Text", "Lists", "Colour", "Functions"},
		elementNames(f.ctrl))
	assert.Equal(t, 1, f.ctrl.Preview().Stats().Reinstantiations)
}

func TestStandardToolboxOnEmptySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ctrl.LoadStandardToolbox(ctx))
	assert.Equal(t,
		[]string{"Logic", "Loops", "Math", "Text", "Lists", "Colour", "", "Variables", "Functions"},
		elementNames(f.ctrl))
	assert.Equal(t, f.ctrl.Elements()[0].ID, f.ctrl.SelectedID())
	assert.True(t, f.ctrl.Model().HasVariableCategory())
	assert.True(t, f.ctrl.Model().HasProcedureCategory())

	require.NoError(t, f.ctrl.LoadStandardToolbox(ctx), "nothing left to add")
	assert.Len(t, f.ctrl.Elements(), 9)
}

func TestStandardToolboxNextToOwnVariables(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.ctrl.CreateCategory(ctx, "Vars")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SetCustomTag(ctx, id, model.CustomVariable))

	require.NoError(t, f.ctrl.LoadStandardToolbox(ctx))
	assert.Equal(t,
		[]string{"Vars", "Logic", "Loops", "Math", "Text", "Lists", "Colour", "Functions"},
		elementNames(f.ctrl), "no separator without a standard variables category")
}

func elementNames(c *Controller) []string {
	var names []string
	for _, e := range c.Elements() {
		names = append(names, e.Name)
	}
	return names
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.LoadStandardCategory(ctx, "Math")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.ImportWorkspace(ctx, parse(t, `<block type="x"></block>`)))

	require.NoError(t, f.ctrl.ClearAll(ctx))
	assert.Equal(t, 1, f.ctrl.Model().Len(), "declining keeps everything")

	f.prompter.confirm = true
	require.NoError(t, f.ctrl.ClearAll(ctx))
	checkSelection(t, f.ctrl)
	assert.True(t, f.ctrl.Model().IsEmpty())
	assert.Empty(t, f.ctrl.Model().Shadows())
	assert.Empty(t, f.ctrl.Model().Preload().Children)
	assert.Equal(t, ModeToolbox, f.ctrl.Mode())
	assert.False(t, f.ctrl.ExportInjectionOptions().Collapse)
	assert.False(t, f.ctrl.Preview().Instance().Categorized())
}

func TestPreloadMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="in_toolbox"></block>`)))

	require.NoError(t, f.ctrl.SetMode(ctx, ModePreload))
	assert.True(t, f.canvas.IsEmpty())
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="preloaded"></block>`)))
	assert.True(t, f.ctrl.HasUnsavedPreloadChanges())

	ws, err := f.ctrl.ExportWorkspaceDocument(ctx)
	require.NoError(t, err)
	require.Len(t, ws.TopBlocks(), 1)
	assert.Equal(t, "preloaded", ws.TopBlocks()[0].AttrOr(document.AttrType, ""))
	assert.False(t, f.ctrl.HasUnsavedPreloadChanges())

	require.NoError(t, f.ctrl.SetMode(ctx, ModeToolbox))
	assert.Equal(t, a, f.ctrl.SelectedID())
	require.Len(t, f.canvas.TopBlocks(), 1)
	assert.Equal(t, "in_toolbox", f.canvas.TopBlocks()[0].Type)

	last, ok := f.ctrl.Preview().Last()
	require.True(t, ok)
	assert.Contains(t, last.Workspace, "preloaded")
}

func TestUnsavedFlags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	assert.True(t, f.ctrl.HasUnsavedToolboxChanges())

	_, err = f.ctrl.ExportToolboxDocument(ctx)
	require.NoError(t, err)
	assert.False(t, f.ctrl.HasUnsavedToolboxChanges())

	f.ctrl.SaveStateFromWorkspace()
	assert.False(t, f.ctrl.HasUnsavedToolboxChanges(), "committing an unchanged canvas is not an edit")

	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t, `<block type="x"></block>`)))
	assert.True(t, f.ctrl.IsUnsaved(a))
	assert.True(t, f.ctrl.HasUnsavedChanges())
}

func TestImportToolboxRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := `<category name="Math" colour="230"><block type="math_arithmetic"><value name="A"><shadow type="math_number"><field name="NUM">1</field></shadow></value></block></category>` +
		`<sep></sep>` +
		`<category name="Vars" custom="VARIABLE"></category>`

	require.NoError(t, f.ctrl.ImportToolbox(ctx, parse(t, input)))
	assert.Len(t, f.ctrl.Model().Shadows(), 1)
	assert.Equal(t, f.ctrl.Elements()[0].ID, f.ctrl.SelectedID())
	assert.False(t, f.ctrl.HasUnsavedToolboxChanges())

	doc, err := f.ctrl.ExportToolboxDocument(ctx)
	require.NoError(t, err)
	var got string
	for _, c := range doc.Children {
		got += c.String()
	}
	assert.Equal(t, input, got)
	assert.Equal(t, 1, f.ctrl.Preview().Stats().Reinstantiations)
}

func TestImportFlatToolbox(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "Old")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.ImportToolbox(ctx, parse(t, `<block type="a"></block><block type="b"></block>`)))

	assert.True(t, f.ctrl.Model().IsEmpty())
	checkSelection(t, f.ctrl)
	assert.Len(t, f.canvas.TopBlocks(), 2)
	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.TopBlocks(), 2)
	assert.False(t, f.ctrl.ExportInjectionOptions().Collapse)
}

func TestImportToolboxRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "Keep")
	require.NoError(t, err)

	err = f.ctrl.ImportToolbox(ctx, parse(t, `<category name="A"></category><category name="a"></category>`))
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateName))

	err = f.ctrl.ImportToolbox(ctx, parse(t, `<category name="A"></category><block type="x"></block>`))
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedDocument))

	err = f.ctrl.ImportToolbox(ctx, parse(t, `<category name="A" custom="LOOP"></category>`))
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedDocument))

	require.Len(t, f.ctrl.Elements(), 1)
	assert.Equal(t, "Keep", f.ctrl.Elements()[0].Name)
}

func TestImportToolboxSeparatesSharedIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ctrl.CreateCategory(ctx, "Old")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t,
		`<block type="p" id="op"><value name="V"><block type="c" id="oc"></block></value></block>`)))
	require.NoError(t, f.ctrl.MarkShadow(ctx, "oc"))

	input := `<category name="A"><block type="p" id="p"><value name="V"><shadow type="c" id="c"></shadow></value></block></category>` +
		`<category name="B"><block type="p" id="p"><value name="V"><block type="c" id="c"></block></value></block></category>`
	require.NoError(t, f.ctrl.ImportToolbox(ctx, parse(t, input)))

	assert.Equal(t, []string{"c"}, f.ctrl.Model().Shadows(), "flags of the replaced toolbox are dropped")
	a, b := f.ctrl.Elements()[0].ID, f.ctrl.Elements()[1].ID
	assert.Contains(t, f.snapshot(t, a), `id="c"`)
	assert.NotContains(t, f.snapshot(t, b), `id="c"`)

	doc, err := f.ctrl.CanonicalToolbox(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Children, 2)
	assert.Contains(t, doc.Children[0].String(), `<shadow type="c"></shadow>`)
	assert.NotContains(t, doc.Children[1].String(), "<shadow")
}

func TestImportWorkspaceKeepsToolboxTemplates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t,
		`<block type="p" id="p"><value name="V"><block type="c" id="c"></block></value></block>`)))
	require.NoError(t, f.ctrl.MarkShadow(ctx, "c"))

	require.NoError(t, f.ctrl.ImportWorkspace(ctx, parse(t,
		`<block type="p" id="p"><value name="V"><block type="c" id="c"></block></value></block>`)))
	assert.NotContains(t, f.canvas.AllBlockIDs(), "c")
	assert.Empty(t, f.canvas.TemplateIDs())

	ws, err := f.ctrl.CanonicalWorkspace(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ws.String(), "<shadow")

	require.NoError(t, f.ctrl.SetMode(ctx, ModeToolbox))
	assert.Equal(t, a, f.ctrl.SelectedID())
	assert.Equal(t, []string{"c"}, f.canvas.TemplateIDs())
}

func TestImportWorkspace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ctrl.ImportWorkspace(ctx, parse(t,
		`<block type="p" id="p" x="5" y="5"><value name="V"><shadow type="n" id="n"></shadow></value></block>`)))

	assert.Equal(t, ModePreload, f.ctrl.Mode())
	assert.True(t, f.ctrl.Model().IsShadow("n"))
	assert.Equal(t, []string{"n"}, f.canvas.TemplateIDs())

	doc, err := f.ctrl.ExportWorkspaceDocument(ctx)
	require.NoError(t, err)
	assert.Equal(t,
		`<xml xmlns="https://developers.google.com/blockly/xml" id="workspaceBlocks" style="display: none"><block type="p" id="p" x="5" y="5"><value name="V"><shadow type="n" id="n"></shadow></value></block></xml>`,
		doc.String())
}

func TestSetOptionsReinstantiates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	opts := f.ctrl.ExportInjectionOptions()
	opts.Zoom = model.DefaultZoom()
	require.NoError(t, f.ctrl.SetOptions(ctx, opts))
	assert.Equal(t, 1, f.ctrl.Preview().Stats().Reinstantiations)

	opts.MaxBlocks = -3
	assert.True(t, errors.IsValidation(f.ctrl.SetOptions(ctx, opts)))
	assert.Equal(t, 0, f.ctrl.ExportInjectionOptions().MaxBlocks)
}

func TestReplaceCanvas(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.ctrl.CreateCategory(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.AppendBlocks(ctx, parse(t,
		`<block type="p" id="p"><value name="V"><block type="c" id="c"></block></value></block>`)))
	require.NoError(t, f.ctrl.MarkShadow(ctx, "c"))

	require.NoError(t, f.ctrl.ReplaceCanvas(ctx, parse(t, `<block type="z" id="z"></block>`)))
	assert.False(t, f.ctrl.Model().IsShadow("c"))
	assert.Contains(t, f.snapshot(t, a), `type="z"`)

	err = f.ctrl.ReplaceCanvas(ctx, parse(t, `<block id="broken"></block>`))
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedDocument))
	require.Len(t, f.canvas.TopBlocks(), 1)
	assert.Equal(t, "z", f.canvas.TopBlocks()[0].ID)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("preload")
	require.NoError(t, err)
	assert.Equal(t, ModePreload, m)
	_, err = ParseMode("other")
	assert.True(t, errors.IsValidation(err))
}

func TestValidateColour(t *testing.T) {
	for _, ok := range []string{"", "0", "360", "#abc", "#A0B1C2", "%{BKY_LOGIC_HUE}"} {
		assert.NoError(t, ValidateColour(ok), ok)
	}
	for _, bad := range []string{"361", "-1", "#abcd", "red", "%{BKY_"} {
		assert.Error(t, ValidateColour(bad), bad)
	}
}
