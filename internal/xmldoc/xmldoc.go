// Package xmldoc parses vendor XML documents into a generic node tree
// queried by local element name. The device serves the same elements under
// different namespace prefixes depending on the endpoint, so all lookups
// ignore namespaces entirely.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// Node is one element of a parsed XML document.
type Node struct {
	Name     xml.Name
	Text     string
	Children []*Node
}

// Parse decodes an XML document into a node tree rooted at the
// document element.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, io.ErrUnexpectedEOF
	}
	trim(root)
	return root, nil
}

func trim(n *Node) {
	n.Text = strings.TrimSpace(n.Text)
	for _, c := range n.Children {
		trim(c)
	}
}

// First returns the first element whose local name matches, searching the
// node itself and all descendants in document order. Returns nil when absent.
func (n *Node) First(local string) *Node {
	if n == nil {
		return nil
	}
	if n.Name.Local == local {
		return n
	}
	for _, c := range n.Children {
		if found := c.First(local); found != nil {
			return found
		}
	}
	return nil
}

// All returns every element whose local name matches, in document order.
func (n *Node) All(local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	if n.Name.Local == local {
		out = append(out, n)
	}
	for _, c := range n.Children {
		out = append(out, c.All(local)...)
	}
	return out
}

// TextOf returns the text content of the first matching element, or "".
func (n *Node) TextOf(local string) string {
	if found := n.First(local); found != nil {
		return found.Text
	}
	return ""
}

// IntOf returns the integer content of the first matching element.
// Missing or non-numeric values yield 0.
func (n *Node) IntOf(local string) int {
	v, err := strconv.Atoi(n.TextOf(local))
	if err != nil {
		return 0
	}
	return v
}

// ChildText returns the text of the first childLocal element scoped to the
// first parentLocal element, or "" when either is absent.
func (n *Node) ChildText(parentLocal, childLocal string) string {
	parent := n.First(parentLocal)
	if parent == nil {
		return ""
	}
	return parent.TextOf(childLocal)
}
