package eprints

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"eprints2bags/internal/services"
)

// Server identifies an EPrints REST endpoint and the credentials used for it.
type Server struct {
	// BaseURL is the REST root, e.g. https://repository.example.edu/rest.
	BaseURL  string
	User     string
	Password string
}

// APIURL joins op onto base and embeds the credentials in the authority
// component. With only a user, only the user is embedded; without
// credentials the URL is returned unmodified apart from op.
func APIURL(base, op, user, password string) (string, error) {
	start := strings.Index(base, "//")
	if start < 0 {
		return "", services.Wrap(services.ErrBadURL, "eprints", "api url",
			fmt.Sprintf("unable to parse %q as a normal URL", base), nil)
	}
	scheme, rest := base[:start+2], base[start+2:]
	switch {
	case user != "" && password != "":
		return scheme + url.UserPassword(user, password).String() + "@" + rest + op, nil
	case user != "":
		return scheme + url.User(user).String() + "@" + rest + op, nil
	default:
		return base + op, nil
	}
}

// URL builds op against the server with its credentials embedded.
func (s Server) URL(op string) (string, error) {
	return APIURL(strings.TrimRight(s.BaseURL, "/"), op, s.User, s.Password)
}

// WithCredentials embeds the server credentials into an absolute document
// URL taken from record metadata. URLs that already carry userinfo are left
// alone.
func (s Server) WithCredentials(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", services.Wrap(services.ErrBadURL, "eprints", "document url",
			fmt.Sprintf("unable to parse %q as a normal URL", rawURL), err)
	}
	if parsed.User != nil || s.User == "" {
		return rawURL, nil
	}
	if s.Password != "" {
		parsed.User = url.UserPassword(s.User, s.Password)
	} else {
		parsed.User = url.User(s.User)
	}
	return parsed.String(), nil
}

// RecordPath is the REST operation for one record's metadata.
func RecordPath(id string) string {
	return "/eprint/" + id + ".xml"
}

// ListingPath is the REST operation for the record listing.
const ListingPath = "/eprint"

// DocumentFileName returns the final path segment of a document URL, which
// becomes the local file name inside the record directory.
func DocumentFileName(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", services.Wrap(services.ErrBadURL, "eprints", "document name", rawURL, err)
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", services.Wrap(services.ErrBadURL, "eprints", "document name",
			fmt.Sprintf("no file name in %q", rawURL), nil)
	}
	return name, nil
}
