package testsupport

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Document describes a file attached to a fake record.
type Document struct {
	Name    string
	Content []byte
	// Derived marks the document as a volatile derivative (thumbnail,
	// index) of another document.
	Derived bool
}

// EPrintsServer is an httptest server speaking enough of the EPrints REST
// interface for end-to-end tests: the /rest/eprint listing, per-record XML,
// and document downloads under /files/.
type EPrintsServer struct {
	*httptest.Server

	mu       sync.Mutex
	order    []string
	records  map[string]string
	files    map[string][]byte
	statuses map[string]int
	user     string
	password string
	requests []string
}

// NewEPrintsServer starts a fake server that is closed when the test ends.
func NewEPrintsServer(t testing.TB) *EPrintsServer {
	t.Helper()

	s := &EPrintsServer{
		records:  make(map[string]string),
		files:    make(map[string][]byte),
		statuses: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// APIURL is the REST root to configure clients with.
func (s *EPrintsServer) APIURL() string {
	return s.URL + "/rest"
}

// DocumentURL is the download URL of a document attached to record id.
func (s *EPrintsServer) DocumentURL(id, name string) string {
	return s.URL + "/files/" + id + "/" + name
}

// RequireAuth makes every endpoint demand the given basic credentials.
func (s *EPrintsServer) RequireAuth(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.password = user, password
}

// AddRecord registers a record and its documents.
func (s *EPrintsServer) AddRecord(id string, docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := make([]string, 0, len(docs))
	derived := make([]bool, 0, len(docs))
	for _, doc := range docs {
		s.files["/files/"+id+"/"+doc.Name] = doc.Content
		urls = append(urls, s.DocumentURL(id, doc.Name))
		derived = append(derived, doc.Derived)
	}
	if _, exists := s.records[id]; !exists {
		s.order = append(s.order, id)
	}
	s.records[id] = RecordXML(id, "https://doi.example.org/"+id, urls, derived)
}

// SetStatus forces path (e.g. "/rest/eprint/7.xml") to answer with code.
func (s *EPrintsServer) SetStatus(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[path] = code
}

// Requests returns the paths requested so far, in order.
func (s *EPrintsServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *EPrintsServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.URL.Path)

	if s.user != "" {
		user, password, ok := r.BasicAuth()
		if !ok || user != s.user || password != s.password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	if code, ok := s.statuses[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}

	switch {
	case r.URL.Path == "/rest/eprint" || r.URL.Path == "/rest/eprint/":
		w.Header().Set("Content-Type", "application/xhtml+xml")
		_, _ = w.Write([]byte(ListingXHTML(s.order)))
	case strings.HasPrefix(r.URL.Path, "/rest/eprint/") && strings.HasSuffix(r.URL.Path, ".xml"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/rest/eprint/"), ".xml")
		body, ok := s.records[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	default:
		content, ok := s.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}
}

// RecordXML renders an EPrints ep2 record with one document per URL.
// derived[i] marks document i as a volatile derivative of the first one.
func RecordXML(id, officialURL string, urls []string, derived []bool) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\" ?>\n")
	b.WriteString("<eprints xmlns=\"http://eprints.org/ep2/data/2.0\">\n")
	fmt.Fprintf(&b, "  <eprint id=\"https://repository.example.edu/id/eprint/%s\">\n", html.EscapeString(id))
	fmt.Fprintf(&b, "    <eprintid>%s</eprintid>\n", html.EscapeString(id))
	if officialURL != "" {
		fmt.Fprintf(&b, "    <official_url>%s</official_url>\n", html.EscapeString(officialURL))
	}
	b.WriteString("    <documents>\n")
	for i, url := range urls {
		fmt.Fprintf(&b, "      <document id=\"doc-%d\">\n", i+1)
		b.WriteString("        <files>\n          <file>\n")
		fmt.Fprintf(&b, "            <url>%s</url>\n", html.EscapeString(url))
		b.WriteString("          </file>\n        </files>\n")
		if i < len(derived) && derived[i] {
			b.WriteString("        <relation>\n          <item>\n")
			b.WriteString("            <type>http://eprints.org/relation/isVolatileVersionOf</type>\n")
			b.WriteString("            <uri>/id/document/1</uri>\n")
			b.WriteString("          </item>\n        </relation>\n")
		}
		b.WriteString("      </document>\n")
	}
	b.WriteString("    </documents>\n  </eprint>\n</eprints>\n")
	return b.String()
}

// ListingXHTML renders the directory-style listing EPrints serves for
// /rest/eprint, with both the directory and the .xml entry per record.
func ListingXHTML(ids []string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>EPrints REST: Eprints DataSet</title></head><body>` + "\n")
	b.WriteString("<h1>EPrints REST: Eprints DataSet</h1>\n<ul>\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "<li><a href='%s/'>%s/</a></li>\n", id, id)
		fmt.Fprintf(&b, "<li><a href='%s.xml'>%s.xml</a></li>\n", id, id)
	}
	b.WriteString("</ul>\n</body></html>\n")
	return b.String()
}
