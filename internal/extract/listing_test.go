package extract

import "testing"

const listingPage = `<!DOCTYPE html>
<html><body>
<p class="cate_info_tx">전체 <span>1,234</span>개의 상품이 있습니다.</p>
<ul class="cate_prd_list">
  <li><a class="prd_thumb" href="/store/goods/getGoodsDetail.do?goodsNo=A000000210001"><img></a></li>
  <li><a class="prd_thumb" href="/store/goods/getGoodsDetail.do?goodsNo=A000000210002&amp;dispCatNo=100"><img></a></li>
  <li><div class="ad_banner">no link here</div></li>
  <li><a class="prd_thumb" href="/store/goods/getGoodsDetail.do?goodsNo=B000000210003"><img></a></li>
</ul>
<div class="pageing">
  <strong>1</strong>
  <a href="#">2</a>
  <a href="#">3</a>
  <a href="#" class="next">다음</a>
</div>
</body></html>`

func TestListingIDs(t *testing.T) {
	ids, err := ListingIDs([]byte(listingPage))
	if err != nil {
		t.Fatalf("listing ids: %v", err)
	}
	want := []string{"A000000210001", "A000000210002", "B000000210003"}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d: %v", len(ids), len(want), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestPageCount(t *testing.T) {
	pages, err := PageCount([]byte(listingPage))
	if err != nil {
		t.Fatalf("page count: %v", err)
	}
	if pages != 3 {
		t.Fatalf("pages = %d, want 3", pages)
	}
}

func TestPageCountWithoutPagination(t *testing.T) {
	pages, err := PageCount([]byte(`<html><body><ul class="cate_prd_list"></ul></body></html>`))
	if err != nil {
		t.Fatalf("page count: %v", err)
	}
	if pages != 1 {
		t.Fatalf("pages = %d, want 1", pages)
	}
}

func TestCategoryProductCount(t *testing.T) {
	count, err := CategoryProductCount([]byte(listingPage))
	if err != nil {
		t.Fatalf("product count: %v", err)
	}
	if count != 1234 {
		t.Fatalf("count = %d, want 1234", count)
	}
}

func TestCategoryProductCountEmpty(t *testing.T) {
	page := `<html><body><p class="cate_info_tx">전체 <span>0</span>개</p></body></html>`
	count, err := CategoryProductCount([]byte(page))
	if err != nil {
		t.Fatalf("product count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}

	count, err = CategoryProductCount([]byte(`<html><body></body></html>`))
	if err != nil {
		t.Fatalf("product count on bare page: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}
