package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ingredientHeading is the label the storefront puts on the full-ingredient
// row of the product information table.
const ingredientHeading = "화장품법에 따라 기재해야 하는 모든 성분"

// Ingredients returns the raw ingredient list text from a product detail
// page, or "" when the page has no ingredient row.
func Ingredients(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", err)
	}

	// The ingredient list sits in the <dd> following the labeled <dt>.
	expr := fmt.Sprintf(`//dt[contains(., %q)]/following-sibling::dd[1]`, ingredientHeading)
	node, err := htmlquery.Query(doc, expr)
	if err != nil {
		return "", fmt.Errorf("ingredient query: %w", err)
	}
	if node == nil {
		return "", nil
	}
	return strings.TrimSpace(htmlquery.InnerText(node)), nil
}
