// Package extract parses storefront HTML into domain values. All functions
// take raw page bytes so callers stay decoupled from the HTTP layer.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var goodsNoRe = regexp.MustCompile(`goodsNo=([A-Z0-9]+)`)

// ListingIDs returns the product numbers of a category listing page, in page
// order. Order matters: rank is derived from position.
func ListingIDs(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var ids []string
	doc.Find("ul.cate_prd_list > li").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Find("a.prd_thumb").Attr("href")
		if !ok {
			return
		}
		if m := goodsNoRe.FindStringSubmatch(href); m != nil {
			ids = append(ids, m[1])
		}
	})
	return ids, nil
}

// PageCount returns the highest page number visible in the pagination block.
// A page without a pagination block has exactly one page.
func PageCount(body []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse listing page: %w", err)
	}

	max := 1
	doc.Find("div.pageing a, div.pageing strong").Each(func(_ int, sel *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(sel.Text()))
		if err != nil {
			return
		}
		if n > max {
			max = n
		}
	})
	return max, nil
}

// CategoryProductCount returns the advertised product count of a category
// listing. Zero is meaningful: the category currently lists nothing.
func CategoryProductCount(body []byte) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse listing page: %w", err)
	}

	text := strings.TrimSpace(doc.Find("p.cate_info_tx span").First().Text())
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(stripDigitNoise(text))
	if err != nil {
		return 0, fmt.Errorf("parse product count %q: %w", text, err)
	}
	return n, nil
}

// stripDigitNoise removes thousands separators and any non-digit decoration.
func stripDigitNoise(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
