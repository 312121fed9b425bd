// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/pkg/types"
)

// ndssParser handles the NDSS symposium site. The accepted-papers page
// links to per-paper detail pages; the PDF link lives on the detail page,
// so resolution needs a second fetch.
type ndssParser struct{}

func (p *ndssParser) Variant() string { return "ndss" }

func (p *ndssParser) ListPapers(ctx context.Context, f *fetch.Fetcher, cfg types.ConferenceConfig, conference, year string) ([]types.PaperRecord, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	listURL := fmt.Sprintf("%s/ndss20%s/accepted-papers/", base, year)
	body, _, err := f.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument("parse ndss listing", body)
	if err != nil {
		return nil, err
	}

	items := doc.Find("div.paper-item a, article.paper a.paper-link")
	if items.Length() == 0 {
		return nil, fetch.ParseFailure("parse ndss listing",
			fmt.Errorf("no paper links at %s; page layout may have changed", listURL))
	}

	seen := make(map[string]bool)
	var records []types.PaperRecord
	items.Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Text())
		href, ok := s.Attr("href")
		if title == "" || !ok {
			return
		}
		detail := resolveRef(listURL, href)
		slug := pathSlug(detail)
		if slug == "" || seen[slug] {
			return
		}
		seen[slug] = true
		records = append(records, types.PaperRecord{
			Conference:  conference,
			Year:        year,
			Title:       title,
			CanonicalID: "ndss20" + year + "/" + slug,
			DetailURL:   detail,
		})
	})
	if len(records) == 0 {
		return nil, fetch.ParseFailure("parse ndss listing",
			fmt.Errorf("paper links at %s had no usable titles", listURL))
	}
	return records, nil
}

func (p *ndssParser) ResolvePDFURL(ctx context.Context, f *fetch.Fetcher, rec types.PaperRecord) (string, error) {
	body, _, err := f.Get(ctx, rec.DetailURL)
	if err != nil {
		return "", err
	}

	doc, err := parseDocument("parse ndss detail", body)
	if err != nil {
		return "", err
	}

	href, ok := doc.Find(`a[href$=".pdf"]`).First().Attr("href")
	if !ok {
		return "", ErrPDFNotFound
	}
	return resolveRef(rec.DetailURL, href), nil
}

// resolveRef resolves href against base, tolerating relative links.
func resolveRef(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// pathSlug returns the last non-empty path segment of a URL.
func pathSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
