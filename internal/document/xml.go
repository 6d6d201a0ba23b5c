package document

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ParseXML parses a complete document. The first element becomes the root.
func ParseXML(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var stack []*Node
	var texts []*strings.Builder
	var root *Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: attrName(a.Name), Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root != nil {
				return nil, fmt.Errorf("parse document: multiple root elements")
			} else {
				root = n
			}
			stack = append(stack, n)
			texts = append(texts, &strings.Builder{})
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse document: unexpected end element %s", t.Name.Local)
			}
			n := stack[len(stack)-1]
			text := texts[len(texts)-1].String()
			if strings.TrimSpace(text) != "" && len(n.Children) == 0 {
				n.Text = text
			}
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("parse document: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("parse document: unclosed element %s", stack[len(stack)-1].Name)
	}
	return root, nil
}

// ParseFragment parses a sequence of sibling elements, such as a list of
// blocks, into an anonymous root. An empty fragment yields an empty root.
func ParseFragment(data []byte) (*Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return NewRoot(""), nil
	}
	if bytes.HasPrefix(trimmed, []byte("<"+NodeRoot)) {
		return ParseXML(trimmed)
	}

	var buf bytes.Buffer
	buf.WriteString("<" + NodeRoot + ">")
	buf.Write(trimmed)
	buf.WriteString("</" + NodeRoot + ">")
	return ParseXML(buf.Bytes())
}

// MarshalXML renders n as compact XML.
func MarshalXML(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeXML(&buf, n, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndentXML renders n as indented XML.
func MarshalIndentXML(n *Node, indent string) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeXML(&buf, n, indent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXML(w io.Writer, n *Node, indent string) error {
	if n == nil {
		return fmt.Errorf("marshal document: nil node")
	}
	enc := xml.NewEncoder(w)
	if indent != "" {
		enc.Indent("", indent)
	}
	if err := encodeNode(enc, n); err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return enc.Flush()
}

func encodeNode(enc *xml.Encoder, n *Node) error {
	start := xml.StartElement{Name: xml.Name{Local: n.Name}}
	for _, a := range n.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := encodeNode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func attrName(name xml.Name) string {
	if name.Space == "xmlns" {
		return "xmlns:" + name.Local
	}
	return name.Local
}
