package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Markers the storefront uses on its product-not-found page.
const (
	missingPageClass  = "error-page noProduct"
	missingPageNotice = "상품을 찾을 수 없습니다"
)

// IsProductMissing reports whether the page is the storefront's removed-
// product notice rather than a product detail page.
func IsProductMissing(body []byte) bool {
	if bytes.Contains(body, []byte(missingPageClass)) {
		return true
	}
	return bytes.Contains(body, []byte(missingPageNotice))
}

// Detail parses a product detail page. Returns types.ErrProductDeleted when
// the page is the removed-product notice. Brand and name fall back to
// placeholders when absent; a missing price invalidates the record and is
// reported via ValidationError by the caller's validation step.
func Detail(body []byte, productNo string) (*types.ProductRecord, error) {
	if IsProductMissing(body) {
		return nil, fmt.Errorf("product %s: %w", productNo, types.ErrProductDeleted)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	rec := &types.ProductRecord{
		ProductNo:   productNo,
		CollectedAt: time.Now().UTC(),
		Brand:       metaContent(doc, "eg:brandName"),
		Name:        metaContent(doc, "eg:itemName"),
		ImageURL:    metaContent(doc, "eg:itemImage"),
		ItemNo:      metaContent(doc, "eg:itemNo"),
	}

	rec.Price.Original = parsePrice(metaContent(doc, "eg:originalPrice"))
	rec.Price.Current = parsePrice(metaContent(doc, "eg:salePrice"))

	if score := parseScore(doc.Find("#repReview b").First().Text()); score != nil {
		pct := *score / 5 * 100
		rec.Rating.Text = score
		rec.Rating.Percent = &pct
	}
	if count := parseCount(doc.Find("#repReview em").First().Text()); count != nil {
		rec.ReviewCount = count
	}

	return rec, nil
}

// metaContent returns the content of a <meta property=...> tag, trimmed.
func metaContent(doc *goquery.Document, property string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First()
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

// parsePrice parses a price string that may carry thousands separators and a
// currency suffix. Nil means no usable value.
func parsePrice(s string) *int {
	digits := stripDigitNoise(s)
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// parseScore parses a 0-5 review score like "4.5점".
func parseScore(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "점"))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parseCount parses a review count like "(1,234건)".
func parseCount(s string) *int {
	digits := stripDigitNoise(s)
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}
