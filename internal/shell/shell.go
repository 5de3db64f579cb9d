// Package shell renders the html shell a page is delivered in and serves it
// from the Cache Store when the origin cannot.
package shell

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"realm/internal/page"
)

const (
	TitlePlaceholder = "__realm_title__"
	DataPlaceholder  = "__realm_data__"

	// DataElementID is the id of the script element carrying page data.
	DataElementID = "data"
)

// ErrNoData is returned by ExtractData when the document has no data
// script.
var ErrNoData = errors.New("shell: no embedded page data")

var (
	strict  = bluemonday.StrictPolicy()
	escaper = strings.NewReplacer(">", "%u003E", "<", "%u003C", "&", "%u0026")
)

// Escape encodes the characters that would end a script element.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Render fills template with resp: the title placeholder gets the sanitized,
// escaped title and the data placeholder the escaped JSON of resp.
func Render(template string, resp *page.Response) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("shell: nil response")
	}
	data, err := resp.Marshal()
	if err != nil {
		return "", err
	}
	title := strict.Sanitize(resp.Title)
	out := strings.Replace(template, TitlePlaceholder, Escape(title), 1)
	out = strings.Replace(out, DataPlaceholder, Escape(data), 1)
	return out, nil
}

// ExtractData returns the text of the <script id="data"> element of an html
// document.
func ExtractData(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("shell: parse html: %w", err)
	}
	node := findScript(doc)
	if node == nil {
		return "", ErrNoData
	}
	var b strings.Builder
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String(), nil
}

func findScript(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Script {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == DataElementID {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findScript(c); found != nil {
			return found
		}
	}
	return nil
}
