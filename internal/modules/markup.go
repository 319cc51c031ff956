package modules

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fragment is the text content of a module's markup fragment
type Fragment struct {
	Headings []string // h1-h4 text in document order
	Buttons  []string // button labels
}

// Title returns the first heading, or "" if the fragment has none
func (f Fragment) Title() string {
	if len(f.Headings) == 0 {
		return ""
	}
	return f.Headings[0]
}

// ParseFragment extracts headings and button labels from a markup fragment
func ParseFragment(markup []byte) (Fragment, error) {
	nodes, err := html.ParseFragment(bytes.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return Fragment{}, err
	}

	var f Fragment
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H1, atom.H2, atom.H3, atom.H4:
				if t := nodeText(n); t != "" {
					f.Headings = append(f.Headings, t)
				}
				return
			case atom.Button:
				if t := nodeText(n); t != "" {
					f.Buttons = append(f.Buttons, t)
				}
				return
			case atom.Script, atom.Style:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return f, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
