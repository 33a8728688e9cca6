package scrape

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Page is the outcome of scraping one HTML document.
type Page struct {
	Quotes map[string]Quote
	Rates  map[string]decimal.Decimal
}

// Found reports how many foreign currencies were recovered.
func (p Page) Found() int {
	return len(p.Quotes)
}

// ExtractHTML decodes body according to contentType, flattens markup to text and
// extracts the quotations.
func (x *Extractor) ExtractHTML(body io.Reader, contentType string) (Page, error) {
	reader, err := charset.NewReader(body, contentType)
	if err != nil {
		return Page{}, fmt.Errorf("decode page charset: %w", err)
	}

	text, err := Text(reader)
	if err != nil {
		return Page{}, err
	}

	quotes := x.Extract(text)
	return Page{Quotes: quotes, Rates: x.Rates(quotes)}, nil
}

// Text flattens an HTML document to its visible text. Every tag boundary becomes a
// line break so labels and numbers of adjacent cells stay separated.
func Text(r io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(r)
	var (
		b    strings.Builder
		skip int
	)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return "", fmt.Errorf("tokenize page: %w", err)
			}
			return b.String(), nil
		case html.StartTagToken:
			if hidden(tokenizer) {
				skip++
			}
			b.WriteByte('\n')
		case html.EndTagToken:
			if hidden(tokenizer) && skip > 0 {
				skip--
			}
			b.WriteByte('\n')
		case html.SelfClosingTagToken:
			b.WriteByte('\n')
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func hidden(tokenizer *html.Tokenizer) bool {
	name, _ := tokenizer.TagName()
	switch string(name) {
	case "script", "style", "noscript":
		return true
	}
	return false
}
