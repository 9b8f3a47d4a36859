package eprints

import (
	"bytes"
	"encoding/xml"
	"strings"

	"eprints2bags/internal/services"
)

const (
	// Namespace is the XML namespace of EPrints ep2 data documents.
	Namespace = "http://eprints.org/ep2/data/2.0"
	// VolatileRelation marks a document as a generated derivative of another
	// document, such as a thumbnail or an index file.
	VolatileRelation = "http://eprints.org/relation/isVolatileVersionOf"
	// MetadataExt is the file extension of record metadata documents.
	MetadataExt = ".xml"
)

// DocumentRef is one downloadable file named by a record.
type DocumentRef struct {
	URL     string
	Derived bool
}

// Record is the parsed metadata document for one identifier.
type Record struct {
	// Identifier is the identifier the record was requested under.
	Identifier string
	// ID is the eprint element's id attribute, usually the record's
	// canonical URI on the server.
	ID string
	// OfficialURL is the record's official_url element, if any.
	OfficialURL string
	// Documents lists every document element in source order, derived
	// ones included.
	Documents []DocumentRef
	// Raw is the metadata document exactly as the server sent it.
	Raw []byte
}

// element is a namespace-aware generic XML tree; EPrints records nest the
// elements of interest at varying depths.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []element  `xml:",any"`
}

func (e *element) is(local string) bool {
	return e.XMLName.Local == local && (e.XMLName.Space == Namespace || e.XMLName.Space == "")
}

func (e *element) attr(local string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// findAll returns every descendant named local, in document order.
func (e *element) findAll(local string) []*element {
	var out []*element
	for i := range e.Children {
		child := &e.Children[i]
		if child.is(local) {
			out = append(out, child)
		}
		out = append(out, child.findAll(local)...)
	}
	return out
}

// find returns the first descendant named local, or nil.
func (e *element) find(local string) *element {
	for i := range e.Children {
		child := &e.Children[i]
		if child.is(local) {
			return child
		}
		if found := child.find(local); found != nil {
			return found
		}
	}
	return nil
}

// ParseRecord parses an EPrints XML document. Bodies that are not
// well-formed XML are reported as internal errors.
func ParseRecord(id string, body []byte) (*Record, error) {
	var root element
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, services.Wrap(services.ErrInternal, "eprints", "parse record",
			"malformed metadata for record "+id, err)
	}

	rec := &Record{Identifier: id, Raw: body}
	if eprint := findSelfOrDescendant(&root, "eprint"); eprint != nil {
		rec.ID = eprint.attr("id")
	}
	if official := root.find("official_url"); official != nil {
		rec.OfficialURL = strings.TrimSpace(official.Text)
	}
	for _, doc := range root.findAll("document") {
		url := doc.find("url")
		if url == nil || strings.TrimSpace(url.Text) == "" {
			continue
		}
		rec.Documents = append(rec.Documents, DocumentRef{
			URL:     strings.TrimSpace(url.Text),
			Derived: isDerived(doc),
		})
	}
	return rec, nil
}

func findSelfOrDescendant(e *element, local string) *element {
	if e.is(local) {
		return e
	}
	return e.find(local)
}

func isDerived(doc *element) bool {
	for _, rel := range doc.findAll("relation") {
		for _, typ := range rel.findAll("type") {
			if strings.TrimSpace(typ.Text) == VolatileRelation {
				return true
			}
		}
	}
	return false
}

// ExtractDocuments returns the documents of rec that should be downloaded:
// every document not marked as a volatile derivative, in source order.
func ExtractDocuments(rec *Record) []DocumentRef {
	if rec == nil {
		return nil
	}
	out := make([]DocumentRef, 0, len(rec.Documents))
	for _, doc := range rec.Documents {
		if doc.Derived {
			continue
		}
		out = append(out, doc)
	}
	return out
}

const xmlHeader = "<?xml version='1.0' encoding='utf-8'?>\n"

// MetadataBytes renders the record for storage: a fixed XML declaration
// followed by the server's document with its own declaration removed.
func (r *Record) MetadataBytes() []byte {
	body := bytes.TrimSpace(bytes.TrimPrefix(r.Raw, []byte("\xef\xbb\xbf")))
	if bytes.HasPrefix(body, []byte("<?xml")) {
		if end := bytes.Index(body, []byte("?>")); end >= 0 {
			body = bytes.TrimSpace(body[end+2:])
		}
	}
	out := make([]byte, 0, len(xmlHeader)+len(body)+1)
	out = append(out, xmlHeader...)
	out = append(out, body...)
	return append(out, '\n')
}
