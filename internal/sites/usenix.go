// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sites

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/pkg/types"
)

// usenixParser handles USENIX Security on www.usenix.org. The technical
// sessions page links to presentation pages; the PDF link is on the
// presentation page.
type usenixParser struct{}

func (p *usenixParser) Variant() string { return "usenix" }

func (p *usenixParser) ListPapers(ctx context.Context, f *fetch.Fetcher, cfg types.ConferenceConfig, conference, year string) ([]types.PaperRecord, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	listURL := fmt.Sprintf("%s/usenixsecurity%s/technical-sessions", base, year)
	body, _, err := f.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument("parse usenix listing", body)
	if err != nil {
		return nil, err
	}

	items := doc.Find("article.node-paper h2 a, div.paper-title a")
	if items.Length() == 0 {
		return nil, fetch.ParseFailure("parse usenix listing",
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
			CanonicalID: "usenixsecurity" + year + "/" + slug,
			DetailURL:   detail,
		})
	})
	if len(records) == 0 {
		return nil, fetch.ParseFailure("parse usenix listing",
			fmt.Errorf("paper links at %s had no usable titles", listURL))
	}
	return records, nil
}

func (p *usenixParser) ResolvePDFURL(ctx context.Context, f *fetch.Fetcher, rec types.PaperRecord) (string, error) {
	body, _, err := f.Get(ctx, rec.DetailURL)
	if err != nil {
		return "", err
	}

	doc, err := parseDocument("parse usenix presentation", body)
	if err != nil {
		return "", err
	}

	href, ok := doc.Find(`a[href$=".pdf"]`).First().Attr("href")
	if !ok {
		return "", ErrPDFNotFound
	}
	return resolveRef(rec.DetailURL, href), nil
}
