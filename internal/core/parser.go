package core

// parser.go extracts the panel fields from an NF-e document.
//
// The document is walked once as a token stream. Each field is the first
// element in document order whose namespace is NFeNamespace and whose local
// name matches the lookup table below, wherever it sits below the document
// element. The document element itself is never a field. Lookups
// are independent: a missing field gets its placeholder and never affects the
// others. Only a present-but-non-numeric value fails the whole parse.

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Field tags inside the NF-e namespace.
const (
	tagSupplier      = "xNome"    // emitente name comes before destinatario
	tagInvoiceNumber = "nNF"      // ide/nNF
	tagValue         = "vNF"      // total/ICMSTot/vNF
	tagIssueDate     = "dhSaiEnt" // ide/dhSaiEnt
)

// xmlNamespace is bound to the xml prefix without a declaration.
const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// fieldLookup is the outcome of one optional field lookup.
type fieldLookup struct {
	text  string
	found bool
}

// orDefault returns the field text, or def when the field was absent.
func (f fieldLookup) orDefault(def string) string {
	if !f.found {
		return def
	}
	return f.text
}

func isFieldTag(local string) bool {
	switch local {
	case tagSupplier, tagInvoiceNumber, tagValue, tagIssueDate:
		return true
	}
	return false
}

// Parse turns raw document bytes into a Record.
// ReceivedAt is left empty; the ledger stamps it on insertion.
//
// Errors are *ParseError values matching ErrMalformedDocument,
// ErrInvalidDocumentStructure or ErrValueFormat.
func Parse(raw []byte) (Record, error) {
	fields, err := scanFields(raw)
	if err != nil {
		return Record{}, err
	}

	value := DefaultValue
	if v := fields[tagValue]; v.found {
		value, err = formatValue(v.text)
		if err != nil {
			return Record{}, err
		}
	}

	return Record{
		Supplier:      fields[tagSupplier].orDefault(DefaultSupplier),
		InvoiceNumber: fields[tagInvoiceNumber].orDefault(DefaultInvoiceNumber),
		Value:         value,
		IssueDate:     fields[tagIssueDate].orDefault(DefaultIssueDate),
	}, nil
}

// formatValue interprets text as a decimal and renders two fraction digits.
// Rounding is half away from zero on the exact decimal.
func formatValue(text string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return "", &ParseError{Kind: ErrValueFormat, Field: tagValue, Err: err}
	}
	return d.StringFixed(2), nil
}

// scanFields walks the token stream and records the first occurrence of each
// field tag. An element's text is the character data before its first child.
func scanFields(raw []byte) (map[string]fieldLookup, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, malformed(io.ErrUnexpectedEOF)
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader

	fields := make(map[string]fieldLookup, 4)

	var (
		depth        int
		sawRoot      bool
		capturing    string
		captureDepth int
		text         strings.Builder

		// namespace URIs declared by each open element, innermost last
		scopes   [][]string
		declared = map[string]int{xmlNamespace: 1}
	)

	finish := func() {
		fields[capturing] = fieldLookup{text: text.String(), found: true}
		capturing = ""
		text.Reset()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && sawRoot {
				return nil, malformed(fmt.Errorf("element <%s> after document element", t.Name.Local))
			}
			sawRoot = true
			depth++

			decls := namespaceDecls(t)
			for _, uri := range decls {
				declared[uri]++
			}
			scopes = append(scopes, decls)
			if prefix := unboundPrefix(t, declared); prefix != "" {
				return nil, malformed(fmt.Errorf("unbound prefix %q on <%s>", prefix, t.Name.Local))
			}

			if capturing != "" {
				finish()
			}
			if depth > 1 && t.Name.Space == NFeNamespace && isFieldTag(t.Name.Local) {
				if _, seen := fields[t.Name.Local]; !seen {
					capturing = t.Name.Local
					captureDepth = depth
					fields[capturing] = fieldLookup{found: true}
				}
			}

		case xml.EndElement:
			if capturing != "" && depth == captureDepth {
				finish()
			}
			if n := len(scopes); n > 0 {
				for _, uri := range scopes[n-1] {
					declared[uri]--
				}
				scopes = scopes[:n-1]
			}
			depth--

		case xml.CharData:
			if capturing != "" && depth == captureDepth {
				text.Write(t)
			} else if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, malformed(errors.New("text outside document element"))
			}
		}
	}

	if !sawRoot {
		return nil, &ParseError{
			Kind: ErrInvalidDocumentStructure,
			Err:  errors.New("no document root element"),
		}
	}

	return fields, nil
}

// namespaceDecls returns the URIs bound by el's xmlns attributes.
func namespaceDecls(el xml.StartElement) []string {
	var uris []string
	for _, a := range el.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			uris = append(uris, a.Value)
		}
	}
	return uris
}

// unboundPrefix returns the first prefix on el or its attributes that no
// declaration in scope binds. The decoder leaves such a prefix untranslated
// in Name.Space instead of failing.
func unboundPrefix(el xml.StartElement, declared map[string]int) string {
	if el.Name.Space != "" && declared[el.Name.Space] == 0 {
		return el.Name.Space
	}
	for _, a := range el.Attr {
		if a.Name.Space == "" || a.Name.Space == "xmlns" {
			continue
		}
		if declared[a.Name.Space] == 0 {
			return a.Name.Space
		}
	}
	return ""
}

func malformed(err error) *ParseError {
	return &ParseError{Kind: ErrMalformedDocument, Err: err}
}

// charsetReader lets the decoder read documents declared in a non UTF-8
// encoding such as ISO-8859-1.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
