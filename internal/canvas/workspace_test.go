package canvas

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/blockfactory/internal/document"
)

const stackXML = `<xml>
  <block type="controls_repeat_ext" id="repeat" x="10" y="20">
    <value name="TIMES">
      <shadow type="math_number" id="times"><field name="NUM">10</field></shadow>
    </value>
    <statement name="DO">
      <block type="text_print" id="print">
        <value name="TEXT"><block type="text" id="hello"><field name="TEXT">hi</field></block></value>
        <next><block type="text_print" id="print2"></block></next>
      </block>
    </statement>
  </block>
  <block type="logic_boolean" id="bool"><field name="BOOL">TRUE</field></block>
</xml>`

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func mustParse(t *testing.T, s string) *document.Node {
	t.Helper()
	n, err := document.ParseXML([]byte(s))
	require.NoError(t, err)
	return n
}

func newLoaded(t *testing.T) *Workspace {
	t.Helper()
	w := New(WithIDGenerator(sequentialIDs("gen")))
	require.NoError(t, w.LoadDocument(mustParse(t, stackXML)))
	return w
}

func TestLoadAndWalkGraph(t *testing.T) {
	w := newLoaded(t)

	assert.Len(t, w.TopBlocks(), 2)
	assert.Equal(t, 6, w.Len())
	assert.Equal(t, []string{"repeat", "times", "print", "hello", "print2", "bool"}, w.AllBlockIDs())
	assert.Equal(t, []string{"times"}, w.NativeShadowIDs())

	stmt := w.Block("print")
	require.NotNil(t, stmt)
	assert.Equal(t, "repeat", stmt.Parent().ID)
	assert.Equal(t, "hi", w.Block("hello").Field("TEXT").Value)
}

func TestSerializeRoundTrip(t *testing.T) {
	w := newLoaded(t)
	first := w.Serialize()

	other := New()
	require.NoError(t, other.LoadDocument(first))
	assert.Equal(t, first.String(), other.Serialize().String())
}

func TestSerializeWithoutIDs(t *testing.T) {
	w := newLoaded(t)
	out := w.SerializeWith(SerializeOptions{})

	out.Walk(func(n *document.Node) bool {
		_, hasID := n.Attr(document.AttrID)
		_, hasX := n.Attr(document.AttrX)
		assert.False(t, hasID, "node %s kept its id", n.Name)
		assert.False(t, hasX, "node %s kept its position", n.Name)
		return true
	})
	assert.Len(t, out.TopBlocks(), 2)
}

func TestLoadAssignsMissingAndDuplicateIDs(t *testing.T) {
	w := New(WithIDGenerator(sequentialIDs("gen")))
	require.NoError(t, w.LoadDocument(mustParse(t, `<xml><block type="a"></block><block type="b" id="x"></block></xml>`)))
	require.NoError(t, w.LoadDocument(mustParse(t, `<xml><block type="c" id="x"></block></xml>`)))

	assert.Equal(t, []string{"gen1", "x", "gen2"}, w.AllBlockIDs())
}

func TestLoadIsAtomic(t *testing.T) {
	w := newLoaded(t)
	before := w.Serialize().String()

	err := w.LoadDocument(mustParse(t, `<xml><block type="ok" id="fine"></block><block id="broken"></block></xml>`))
	require.Error(t, err)
	assert.Equal(t, before, w.Serialize().String())
	assert.Nil(t, w.Block("fine"))
}

func TestEventsAndSuppression(t *testing.T) {
	w := New(WithIDGenerator(sequentialIDs("gen")))
	var events []Event
	remove := w.AddChangeListener(func(ev Event) { events = append(events, ev) })

	require.NoError(t, w.LoadDocument(mustParse(t, stackXML)))
	require.Len(t, events, 1)
	assert.Equal(t, EventLoad, events[0].Type)
	assert.Equal(t, 1, w.HistoryDepth())

	resume := Suppress(w)
	w.Clear()
	require.NoError(t, w.LoadDocument(mustParse(t, stackXML)))
	resume()

	assert.Len(t, events, 1, "suppressed notifications must be dropped")
	assert.Equal(t, 1, w.HistoryDepth(), "suppressed edits must not record history")
	assert.True(t, w.EventsEnabled())

	remove()
	w.Clear()
	assert.Len(t, events, 1)
}

func TestSuppressNests(t *testing.T) {
	w := New()
	outer := Suppress(w)
	inner := Suppress(w)
	inner()
	assert.False(t, w.EventsEnabled())
	outer()
	assert.True(t, w.EventsEnabled())
}

func TestDeleteHealsStack(t *testing.T) {
	w := newLoaded(t)
	var deleted Event
	w.AddChangeListener(func(ev Event) {
		if ev.Type == EventDelete {
			deleted = ev
		}
	})

	require.NoError(t, w.DeleteBlock("print"))

	assert.ElementsMatch(t, []string{"print", "hello"}, deleted.BlockIDs)
	assert.Nil(t, w.Block("hello"))
	do := w.Block("repeat").Input("DO")
	require.NotNil(t, do.Block)
	assert.Equal(t, "print2", do.Block.ID)
	assert.Equal(t, "repeat", w.Block("print2").Parent().ID)
}

func TestDeleteTopBlockPromotesNext(t *testing.T) {
	w := New()
	require.NoError(t, w.LoadDocument(mustParse(t,
		`<xml><block type="a" id="a" x="5" y="6"><next><block type="b" id="b"></block></next></block></xml>`)))

	require.NoError(t, w.DeleteBlock("a"))

	tops := w.TopBlocks()
	require.Len(t, tops, 1)
	assert.Equal(t, "b", tops[0].ID)
	assert.Equal(t, 5, tops[0].X)
	assert.True(t, tops[0].Placed)
	assert.Nil(t, tops[0].Parent())
}

func TestConnectAndDisconnect(t *testing.T) {
	w := newLoaded(t)

	require.NoError(t, w.Connect("bool", "print2", ""))
	assert.Len(t, w.TopBlocks(), 1)
	assert.Equal(t, "print2", w.Block("bool").Parent().ID)

	require.Error(t, w.Connect("repeat", "print", "TEXT"), "cycle must be rejected")
	require.Error(t, w.Connect("bool", "repeat", "MISSING"))

	require.NoError(t, w.Disconnect("bool"))
	assert.Len(t, w.TopBlocks(), 2)
	assert.Nil(t, w.Block("bool").Parent())
}

func TestConnectBumpsOccupant(t *testing.T) {
	w := newLoaded(t)
	b, err := w.AddBlock(document.New(document.NodeBlock, document.AttrType, "text", document.AttrID, "other"))
	require.NoError(t, err)

	require.NoError(t, w.Connect(b.ID, "print", "TEXT"))

	assert.Equal(t, "other", w.Block("print").Input("TEXT").Block.ID)
	assert.Nil(t, w.Block("hello").Parent())
}

func TestUndo(t *testing.T) {
	w := newLoaded(t)
	before := w.Serialize().String()

	require.NoError(t, w.SetField("hello", "TEXT", "bye"))
	assert.Equal(t, "bye", w.Block("hello").Field("TEXT").Value)

	assert.True(t, w.Undo())
	assert.Equal(t, before, w.Serialize().String())

	w.ClearHistory()
	assert.False(t, w.Undo())
}

func TestCleanUpLayoutIsIdempotent(t *testing.T) {
	w := New(WithIDGenerator(sequentialIDs("gen")))
	require.NoError(t, w.LoadDocument(mustParse(t,
		`<xml><block type="a" x="0" y="0"></block><block type="b"></block><block type="c"><next><block type="d"></block></next></block></xml>`)))

	w.CleanUpLayout()
	first := w.Serialize().String()

	tops := w.TopBlocks()
	for _, b := range tops {
		assert.True(t, b.Placed)
	}
	assert.Equal(t, 0, tops[0].Y)
	assert.Equal(t, layoutRowHeight+layoutGap, tops[1].Y)
	assert.Equal(t, 2*(layoutRowHeight+layoutGap), tops[2].Y)

	w.CleanUpLayout()
	assert.Equal(t, first, w.Serialize().String())
}

func TestShadowAndTemplateFlags(t *testing.T) {
	w := newLoaded(t)

	require.NoError(t, w.SetShadow("hello", true))
	assert.ElementsMatch(t, []string{"times", "hello"}, w.NativeShadowIDs())
	assert.Error(t, w.SetShadow("nope", true))

	w.SetTemplateHighlight([]string{"print", "unknown"})
	assert.Equal(t, []string{"print"}, w.TemplateIDs())
	assert.NotContains(t, w.Serialize().String(), "template")

	w.SetTemplateHighlight(nil)
	assert.Empty(t, w.TemplateIDs())
}

func TestExtrasSurvive(t *testing.T) {
	w := New()
	doc := mustParse(t, `<xml><variables><variable id="v1">count</variable></variables><block type="a" id="a"><mutation items="3"></mutation></block></xml>`)
	require.NoError(t, w.LoadDocument(doc))

	out := w.Serialize()
	assert.NotNil(t, out.FirstChild("variables"))
	assert.Contains(t, out.String(), `<mutation items="3"></mutation>`)
}

func TestSetShadowMovesBetweenSlots(t *testing.T) {
	w := newLoaded(t)

	require.NoError(t, w.SetShadow("times", false))
	times := w.Block("repeat").Input("TIMES")
	assert.Nil(t, times.Shadow)
	require.NotNil(t, times.Block)
	assert.Equal(t, "times", times.Block.ID)

	require.NoError(t, w.SetShadow("times", true))
	assert.Nil(t, times.Block)
	assert.Equal(t, "times", times.Shadow.ID)

	out := w.Serialize()
	assert.Contains(t, out.String(), `<shadow type="math_number" id="times">`)
}

func TestSetShadowDropsCoveredShadow(t *testing.T) {
	w := New()
	require.NoError(t, w.LoadDocument(mustParse(t, `<xml><block type="p" id="p">
	  <value name="V"><shadow type="s" id="s"></shadow><block type="b" id="b"></block></value>
	</block></xml>`)))

	require.NoError(t, w.SetShadow("s", false))

	assert.Nil(t, w.Block("s"))
	in := w.Block("p").Input("V")
	assert.Nil(t, in.Shadow)
	assert.Equal(t, "b", in.Block.ID)
}
