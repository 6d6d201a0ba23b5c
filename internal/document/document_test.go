package document

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loopsXML = `<xml id="toolbox">
  <category name="Loops" colour="120">
    <block type="controls_repeat_ext">
      <value name="TIMES">
        <shadow type="math_number"><field name="NUM">10</field></shadow>
      </value>
    </block>
  </category>
  <sep></sep>
  <category name="Text" colour="160" custom="VARIABLE"></category>
</xml>`

func TestParseXML(t *testing.T) {
	root, err := ParseXML([]byte(loopsXML))
	require.NoError(t, err)

	assert.Equal(t, NodeRoot, root.Name)
	assert.Equal(t, ToolboxRootID, root.AttrOr(AttrID, ""))
	assert.Len(t, root.Children, 3)
	assert.Equal(t, 2, root.Count(NodeCategory))
	assert.True(t, root.HasCategories())

	loops := root.Children[0]
	assert.Equal(t, "Loops", loops.AttrOr(AttrName, ""))
	field := loops.Children[0].FirstChild(NodeValue).FirstChild(NodeShadow).FirstChild(NodeField)
	require.NotNil(t, field)
	assert.Equal(t, "10", field.Text)

	assert.Equal(t, []string{"controls_repeat_ext", "math_number"}, root.BlockTypes())
}

func TestParseXMLErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"unclosed", "<xml><block>"},
		{"two roots", "<xml></xml><xml></xml>"},
		{"garbage", "<<<"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseXML([]byte(tc.input))
			assert.Error(t, err)
		})
	}
}

func TestParseFragment(t *testing.T) {
	root, err := ParseFragment([]byte(`<block type="a"></block><block type="b"></block>`))
	require.NoError(t, err)
	assert.Len(t, root.TopBlocks(), 2)

	empty, err := ParseFragment([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty.Children)

	whole, err := ParseFragment([]byte(`<xml><block type="c"></block></xml>`))
	require.NoError(t, err)
	assert.Len(t, whole.TopBlocks(), 1)
}

func TestMarshalRoundTrip(t *testing.T) {
	root, err := ParseXML([]byte(loopsXML))
	require.NoError(t, err)

	data, err := MarshalXML(root)
	require.NoError(t, err)

	again, err := ParseXML(data)
	require.NoError(t, err)
	assert.True(t, root.Equal(again))
	assert.Equal(t, root.String(), again.String())
}

func TestMarshalEscapes(t *testing.T) {
	n := New(NodeField, AttrName, `a"b`)
	n.Text = "1 < 2 & 3"

	out := n.String()
	assert.Contains(t, out, "&lt;")
	assert.Contains(t, out, "&amp;")

	back, err := ParseXML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "1 < 2 & 3", back.Text)
	assert.Equal(t, `a"b`, back.AttrOr(AttrName, ""))
}

func TestCloneIsDeep(t *testing.T) {
	root, err := ParseXML([]byte(loopsXML))
	require.NoError(t, err)

	clone := root.Clone()
	require.True(t, root.Equal(clone))

	clone.Children[0].SetAttr(AttrName, "Changed")
	clone.Children[0].Children[0].Append(New(NodeNext))

	assert.Equal(t, "Loops", root.Children[0].AttrOr(AttrName, ""))
	assert.False(t, root.Equal(clone))
}

func TestAttrs(t *testing.T) {
	n := New(NodeCategory, AttrName, "Math", AttrColour, "230")
	n.SetAttr(AttrName, "Maths")
	assert.Equal(t, []Attr{{AttrName, "Maths"}, {AttrColour, "230"}}, n.Attrs)

	n.RemoveAttr(AttrColour)
	_, ok := n.Attr(AttrColour)
	assert.False(t, ok)
	assert.Equal(t, "fallback", n.AttrOr(AttrCustom, "fallback"))
}

func TestNewRoot(t *testing.T) {
	anon := NewRoot("")
	assert.Empty(t, anon.Attrs)

	tb := NewRoot(ToolboxRootID)
	assert.Equal(t, Namespace, tb.AttrOr(AttrXMLNS, ""))
	assert.Equal(t, ToolboxRootID, tb.AttrOr(AttrID, ""))
}

func TestEncodeDecodeFormats(t *testing.T) {
	root, err := ParseXML([]byte(loopsXML))
	require.NoError(t, err)

	for _, format := range Formats {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, root, format))

			back, err := Decode(buf.Bytes(), format)
			require.NoError(t, err)
			assert.True(t, root.Equal(back), "round trip through %s", format)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatXML, f)

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}
