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

// spParser handles IEEE S&P proceedings on ieeexplore.ieee.org. Listing
// items link to /document/<number>/; the document number keys the stamp
// endpoint that serves the PDF.
type spParser struct{}

func (p *spParser) Variant() string { return "sp" }

func (p *spParser) ListPapers(ctx context.Context, f *fetch.Fetcher, cfg types.ConferenceConfig, conference, year string) ([]types.PaperRecord, error) {
	listURL := fmt.Sprintf("%s/sp/20%s/proceeding", strings.TrimSuffix(cfg.BaseURL, "/"), year)
	body, _, err := f.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument("parse sp listing", body)
	if err != nil {
		return nil, err
	}

	items := doc.Find("div.result-item")
	if items.Length() == 0 {
		return nil, fetch.ParseFailure("parse sp listing",
			fmt.Errorf("no result items at %s; page layout may have changed", listURL))
	}

	var records []types.PaperRecord
	var parseErr error
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("h3 a")
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if title == "" || !ok {
			parseErr = fetch.ParseFailure("parse sp listing",
				fmt.Errorf("result item without document link at %s", listURL))
			return false
		}

		// href is "/document/<number>/".
		number := strings.Trim(strings.TrimPrefix(href, "/document/"), "/")
		records = append(records, types.PaperRecord{
			Conference:  conference,
			Year:        year,
			Title:       title,
			CanonicalID: "ieee/" + number,
			DetailURL:   "https://ieeexplore.ieee.org" + href,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}

func (p *spParser) ResolvePDFURL(ctx context.Context, f *fetch.Fetcher, rec types.PaperRecord) (string, error) {
	number, ok := strings.CutPrefix(rec.CanonicalID, "ieee/")
	if !ok || number == "" {
		return "", ErrPDFNotFound
	}
	return "https://ieeexplore.ieee.org/stampPDF/getPDF.jsp?arnumber=" + number, nil
}
