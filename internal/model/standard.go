package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
)

// StandardCategory is one of the categories shipped with the editor.
type StandardCategory struct {
	Name   string
	Colour string
	Custom CustomTag
	blocks string
}

// Blocks parses the category's block list. Native shadows are kept as
// written; the controller converts them into template blocks on load.
func (s StandardCategory) Blocks() (*document.Node, error) {
	n, err := document.ParseFragment([]byte(s.blocks))
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "standard category "+s.Name+" does not parse", err)
	}
	return n, nil
}

var standardCategories = []StandardCategory{
	{Name: "Logic", Colour: "210", blocks: `
<block type="controls_if"></block>
<block type="logic_compare"></block>
<block type="logic_operation"></block>
<block type="logic_negate"></block>
<block type="logic_boolean"></block>
<block type="logic_null"></block>
<block type="logic_ternary"></block>`},
	{Name: "Loops", Colour: "120", blocks: `
<block type="controls_repeat_ext">
  <value name="TIMES"><shadow type="math_number"><field name="NUM">10</field></shadow></value>
</block>
<block type="controls_whileUntil"></block>
<block type="controls_for">
  <value name="FROM"><shadow type="math_number"><field name="NUM">1</field></shadow></value>
  <value name="TO"><shadow type="math_number"><field name="NUM">10</field></shadow></value>
  <value name="BY"><shadow type="math_number"><field name="NUM">1</field></shadow></value>
</block>
<block type="controls_forEach"></block>
<block type="controls_flow_statements"></block>`},
	{Name: "Math", Colour: "230", blocks: `
<block type="math_number"></block>
<block type="math_arithmetic">
  <value name="A"><shadow type="math_number"><field name="NUM">1</field></shadow></value>
  <value name="B"><shadow type="math_number"><field name="NUM">1</field></shadow></value>
</block>
<block type="math_single">
  <value name="NUM"><shadow type="math_number"><field name="NUM">9</field></shadow></value>
</block>
<block type="math_trig">
  <value name="NUM"><shadow type="math_number"><field name="NUM">45</field></shadow></value>
</block>
<block type="math_constant"></block>
<block type="math_number_property">
  <value name="NUMBER_TO_CHECK"><shadow type="math_number"><field name="NUM">0</field></shadow></value>
</block>
<block type="math_round">
  <value name="NUM"><shadow type="math_number"><field name="NUM">3.1</field></shadow></value>
</block>
<block type="math_on_list"></block>
<block type="math_modulo">
  <value name="DIVIDEND"><shadow type="math_number"><field name="NUM">64</field></shadow></value>
  <value name="DIVISOR"><shadow type="math_number"><field name="NUM">10</field></shadow></value>
</block>
<block type="math_random_int">
  <value name="FROM"><shadow type="math_number"><field name="NUM">1</field></shadow></value>
  <value name="TO"><shadow type="math_number"><field name="NUM">100</field></shadow></value>
</block>
<block type="math_random_float"></block>`},
	{Name: "Text", Colour: "160", blocks: `
<block type="text"></block>
<block type="text_join"></block>
<block type="text_append">
  <value name="TEXT"><shadow type="text"></shadow></value>
</block>
<block type="text_length">
  <value name="VALUE"><shadow type="text"><field name="TEXT">abc</field></shadow></value>
</block>
<block type="text_isEmpty">
  <value name="VALUE"><shadow type="text"><field name="TEXT"></field></shadow></value>
</block>
<block type="text_indexOf">
  <value name="FIND"><shadow type="text"><field name="TEXT">abc</field></shadow></value>
</block>
<block type="text_charAt"></block>
<block type="text_getSubstring"></block>
<block type="text_changeCase">
  <value name="TEXT"><shadow type="text"><field name="TEXT">abc</field></shadow></value>
</block>
<block type="text_trim">
  <value name="TEXT"><shadow type="text"><field name="TEXT">abc</field></shadow></value>
</block>
<block type="text_print">
  <value name="TEXT"><shadow type="text"><field name="TEXT">abc</field></shadow></value>
</block>
<block type="text_prompt_ext">
  <value name="TEXT"><shadow type="text"><field name="TEXT">abc</field></shadow></value>
</block>`},
	{Name: "Lists", Colour: "260", blocks: `
<block type="lists_create_with">
  <mutation items="0"></mutation>
</block>
<block type="lists_create_with"></block>
<block type="lists_repeat">
  <value name="NUM"><shadow type="math_number"><field name="NUM">5</field></shadow></value>
</block>
<block type="lists_length"></block>
<block type="lists_isEmpty"></block>
<block type="lists_indexOf"></block>
<block type="lists_getIndex"></block>
<block type="lists_setIndex"></block>
<block type="lists_getSublist"></block>
<block type="lists_split">
  <value name="DELIM"><shadow type="text"><field name="TEXT">,</field></shadow></value>
</block>
<block type="lists_sort"></block>`},
	{Name: "Colour", Colour: "20", blocks: `
<block type="colour_picker"></block>
<block type="colour_random"></block>
<block type="colour_rgb">
  <value name="RED"><shadow type="math_number"><field name="NUM">100</field></shadow></value>
  <value name="GREEN"><shadow type="math_number"><field name="NUM">50</field></shadow></value>
  <value name="BLUE"><shadow type="math_number"><field name="NUM">0</field></shadow></value>
</block>
<block type="colour_blend">
  <value name="COLOUR1"><shadow type="colour_picker"><field name="COLOUR">#ff0000</field></shadow></value>
  <value name="COLOUR2"><shadow type="colour_picker"><field name="COLOUR">#3333ff</field></shadow></value>
  <value name="RATIO"><shadow type="math_number"><field name="NUM">0.5</field></shadow></value>
</block>`},
	{Name: "Variables", Colour: "330", Custom: CustomVariable},
	{Name: "Functions", Colour: "290", Custom: CustomProcedure},
}

// StandardCategories returns every standard category in toolbox order.
func StandardCategories() []StandardCategory {
	out := make([]StandardCategory, len(standardCategories))
	copy(out, standardCategories)
	return out
}

// StandardCategoryNames returns the standard category names in order.
func StandardCategoryNames() []string {
	names := make([]string, len(standardCategories))
	for i, s := range standardCategories {
		names[i] = s.Name
	}
	return names
}

// LookupStandardCategory finds a standard category by name, ignoring case.
func LookupStandardCategory(name string) (StandardCategory, error) {
	want := cases.Title(language.English).String(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range standardCategories {
		if s.Name == want {
			return s, nil
		}
	}
	return StandardCategory{}, errors.NewValidationError(
		errors.ErrCodeUnknownStandard,
		"unknown standard category: "+name,
	).WithContext("available", StandardCategoryNames())
}

// NewCategoryFrom builds a detached category element from a standard
// category and the snapshot to store for it.
func (m *Model) NewCategoryFrom(s StandardCategory, snapshot *document.Node) *Element {
	e := m.NewCategory(s.Name)
	e.color = s.Colour
	e.custom = s.Custom
	if snapshot != nil {
		e.snapshot = snapshot.Clone()
	}
	return e
}

// NewCategoryWith builds a detached category with every attribute set, as
// the import boundary needs.
func (m *Model) NewCategoryWith(name, colour string, custom CustomTag, snapshot *document.Node) *Element {
	return m.NewCategoryFrom(StandardCategory{Name: name, Colour: colour, Custom: custom}, snapshot)
}
