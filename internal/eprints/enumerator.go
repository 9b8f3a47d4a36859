package eprints

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"eprints2bags/internal/logging"
	"eprints2bags/internal/network"
	"eprints2bags/internal/services"
)

// Enumerator lists the identifiers available on a server.
type Enumerator struct {
	getter Getter
	server Server
	logger *slog.Logger
}

// NewEnumerator builds an Enumerator.
func NewEnumerator(getter Getter, server Server, logger *slog.Logger) *Enumerator {
	return &Enumerator{
		getter: getter,
		server: server,
		logger: logging.NewComponentLogger(logger, "enumerator"),
	}
}

// ListAll issues one listing request and returns the identifier of every
// entry whose link ends in the metadata extension, in first-seen order.
// Directory entries ("4/") are ignored. A server without a listing (404 or
// 410) yields an empty list.
func (e *Enumerator) ListAll(ctx context.Context) ([]string, error) {
	logger := logging.WithContext(ctx, e.logger)
	rawURL, err := e.server.URL(ListingPath)
	if err != nil {
		return nil, err
	}

	body, status, err := e.getter.Fetch(ctx, rawURL, network.ModePoll)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusGone {
		logger.Warn("server has no record listing", logging.String(logging.FieldURL, network.Redact(rawURL)))
		return nil, nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, services.Wrap(services.ErrServiceFailure, "enumerate", "",
			"failed to get a list back from server", nil)
	}

	ids, err := ParseListing(body)
	if err != nil {
		return nil, err
	}
	logger.Info("enumerated records", logging.Int("count", len(ids)))
	return ids, nil
}

// ParseListing extracts identifiers from the XHTML directory listing that
// EPrints serves for /eprint.
func ParseListing(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrServiceFailure, "enumerate", "parse listing", "", err)
	}
	seen := make(map[string]struct{})
	var ids []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		name := path.Base(strings.TrimSpace(href))
		if !strings.HasSuffix(name, MetadataExt) {
			return
		}
		id := strings.TrimSuffix(name, MetadataExt)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids, nil
}
