package crawler

import (
	"context"
	"fmt"
	"sort"

	"github.com/shelfwatch/shelfwatch/internal/extract"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// rankedProduct is one entry of a merged ranking.
type rankedProduct struct {
	ProductNo string
	Ranks     types.RankPair
}

// collectRankings walks every listing page of a category under one sort and
// returns product_no -> rank plus the advertised product count. Rank is the
// absolute listing position. Returns types.ErrCategoryEmpty (wrapped) when
// the category advertises zero products and lists none.
func (c *Crawler) collectRankings(ctx context.Context, categoryID string, sortKey types.SortKey) (map[string]int, int, error) {
	body, err := c.fetch.Get(ctx, c.listingURL(categoryID, 1, sortKey))
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s listing page 1: %w", sortKey, err)
	}

	total, err := extract.CategoryProductCount(body)
	if err != nil {
		return nil, 0, err
	}
	firstPage, err := extract.ListingIDs(body)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 && len(firstPage) == 0 {
		return nil, 0, fmt.Errorf("category %s: %w", categoryID, types.ErrCategoryEmpty)
	}

	pages, err := extract.PageCount(body)
	if err != nil {
		return nil, 0, err
	}

	perPage := c.cfg.Crawler.RowsPerPage
	ranks := make(map[string]int, total)
	record := func(page int, ids []string) {
		for idx, id := range ids {
			if _, seen := ranks[id]; seen {
				continue
			}
			ranks[id] = (page-1)*perPage + idx + 1
		}
	}
	record(1, firstPage)

	for page := 2; page <= pages; page++ {
		body, err := c.fetch.Get(ctx, c.listingURL(categoryID, page, sortKey))
		if err != nil {
			return nil, 0, fmt.Errorf("fetch %s listing page %d: %w", sortKey, page, err)
		}
		ids, err := extract.ListingIDs(body)
		if err != nil {
			return nil, 0, err
		}
		// An empty page past the first means pagination overran the real
		// end of the listing.
		if len(ids) == 0 {
			break
		}
		record(page, ids)
	}

	return ranks, total, nil
}

// RankingsFor resolves the dual-sort rank pair for each target product,
// walking the category's listing pages under both sorts and stopping each
// walk once every target has been located. Returns types.ErrCategoryEmpty
// (wrapped) when the category currently lists nothing; targets absent from
// a sort get a nil rank for it.
func (c *Crawler) RankingsFor(ctx context.Context, categoryID string, targetIDs []string) (map[string]types.RankPair, error) {
	targets := make(map[string]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = struct{}{}
	}

	popularity, err := c.collectRankingsTargeted(ctx, categoryID, types.SortPopularity, targets)
	if err != nil {
		return nil, err
	}
	sales, err := c.collectRankingsTargeted(ctx, categoryID, types.SortSales, targets)
	if err != nil {
		return nil, err
	}

	ranks := make(map[string]types.RankPair, len(targetIDs))
	for _, id := range targetIDs {
		var pair types.RankPair
		if r, ok := popularity[id]; ok {
			v := r
			pair.Popularity = &v
		}
		if r, ok := sales[id]; ok {
			v := r
			pair.Sales = &v
		}
		ranks[id] = pair
	}
	return ranks, nil
}

// collectRankingsTargeted is collectRankings restricted to a target set,
// with early stop once every target has been located.
func (c *Crawler) collectRankingsTargeted(ctx context.Context, categoryID string, sortKey types.SortKey, targets map[string]struct{}) (map[string]int, error) {
	body, err := c.fetch.Get(ctx, c.listingURL(categoryID, 1, sortKey))
	if err != nil {
		return nil, fmt.Errorf("fetch %s listing page 1: %w", sortKey, err)
	}

	total, err := extract.CategoryProductCount(body)
	if err != nil {
		return nil, err
	}
	firstPage, err := extract.ListingIDs(body)
	if err != nil {
		return nil, err
	}
	if total == 0 && len(firstPage) == 0 {
		return nil, fmt.Errorf("category %s: %w", categoryID, types.ErrCategoryEmpty)
	}

	pages, err := extract.PageCount(body)
	if err != nil {
		return nil, err
	}

	perPage := c.cfg.Crawler.RowsPerPage
	found := make(map[string]int, len(targets))
	record := func(page int, ids []string) {
		for idx, id := range ids {
			if _, want := targets[id]; !want {
				continue
			}
			if _, seen := found[id]; seen {
				continue
			}
			found[id] = (page-1)*perPage + idx + 1
		}
	}
	record(1, firstPage)

	for page := 2; page <= pages && len(found) < len(targets); page++ {
		body, err := c.fetch.Get(ctx, c.listingURL(categoryID, page, sortKey))
		if err != nil {
			return nil, fmt.Errorf("fetch %s listing page %d: %w", sortKey, page, err)
		}
		ids, err := extract.ListingIDs(body)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		record(page, ids)
	}

	return found, nil
}

// mergeRankings joins the two rank maps into one list ordered by popularity
// rank, with sales-only products appended in sales order.
func mergeRankings(popularity, sales map[string]int) []rankedProduct {
	merged := make([]rankedProduct, 0, len(popularity))
	for id, rank := range popularity {
		r := rank
		entry := rankedProduct{ProductNo: id, Ranks: types.RankPair{Popularity: &r}}
		if sr, ok := sales[id]; ok {
			s := sr
			entry.Ranks.Sales = &s
		}
		merged = append(merged, entry)
	}
	sort.Slice(merged, func(i, j int) bool {
		return *merged[i].Ranks.Popularity < *merged[j].Ranks.Popularity
	})

	var extra []rankedProduct
	for id, rank := range sales {
		if _, ok := popularity[id]; ok {
			continue
		}
		s := rank
		extra = append(extra, rankedProduct{ProductNo: id, Ranks: types.RankPair{Sales: &s}})
	}
	sort.Slice(extra, func(i, j int) bool {
		return *extra[i].Ranks.Sales < *extra[j].Ranks.Sales
	})

	return append(merged, extra...)
}
