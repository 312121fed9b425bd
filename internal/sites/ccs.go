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

// ccsParser handles ACM CCS proceedings on dl.acm.org. Listing items carry
// a DOI link; the PDF URL follows the stable /doi/pdf/<doi> pattern, so no
// detail-page fetch is needed.
type ccsParser struct{}

func (p *ccsParser) Variant() string { return "ccs" }

func (p *ccsParser) ListPapers(ctx context.Context, f *fetch.Fetcher, cfg types.ConferenceConfig, conference, year string) ([]types.PaperRecord, error) {
	listURL := fmt.Sprintf("%s/ccs20%s", strings.TrimSuffix(cfg.BaseURL, "/"), year)
	body, _, err := f.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument("parse ccs listing", body)
	if err != nil {
		return nil, err
	}

	items := doc.Find("div.issue-item")
	if items.Length() == 0 {
		return nil, fetch.ParseFailure("parse ccs listing",
			fmt.Errorf("no issue items at %s; page layout may have changed", listURL))
	}

	var records []types.PaperRecord
	var parseErr error
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find("h5.issue-item__title a").Text())
		href, ok := s.Find("h5.issue-item__title a").Attr("href")
		if title == "" || !ok {
			parseErr = fetch.ParseFailure("parse ccs listing",
				fmt.Errorf("issue item without title link at %s", listURL))
			return false
		}

		// href is "/doi/10.1145/<suffix>"; the DOI is the canonical id.
		doi := strings.TrimPrefix(href, "/doi/")
		records = append(records, types.PaperRecord{
			Conference:  conference,
			Year:        year,
			Title:       title,
			CanonicalID: doi,
			DetailURL:   "https://dl.acm.org" + href,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}

func (p *ccsParser) ResolvePDFURL(ctx context.Context, f *fetch.Fetcher, rec types.PaperRecord) (string, error) {
	if rec.CanonicalID == "" {
		return "", ErrPDFNotFound
	}
	return "https://dl.acm.org/doi/pdf/" + rec.CanonicalID, nil
}
