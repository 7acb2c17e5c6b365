// Package htmlform extracts form input values from HTML documents.
// It is used during authentication to harvest the hidden fields the
// login and checkpoint pages expect to be echoed back.
package htmlform

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Inputs parses the document and returns the name/value pairs of every
// <input> element that carries both attributes. Later inputs with a
// duplicate name overwrite earlier ones, matching browser form
// serialization for hidden fields.
func Inputs(doc string) (map[string]string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	values := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			var name, value string
			var hasName, hasValue bool
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name":
					name, hasName = attr.Val, true
				case "value":
					value, hasValue = attr.Val, true
				}
			}
			if hasName && hasValue {
				values[name] = value
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return values, nil
}

// Input returns the value of the named <input> element.
// Returns an error if the element is absent or carries no value.
func Input(doc, name string) (string, error) {
	values, err := Inputs(doc)
	if err != nil {
		return "", err
	}
	value, ok := values[name]
	if !ok {
		return "", fmt.Errorf("input %q not found in document", name)
	}
	return value, nil
}
