package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

func testAPIConfig() *config.APIConfig {
	return &config.APIConfig{
		IngredientURL: "http://ingredient.test",
		ProductURL:    "http://catalog.test",
		Timeout:       5 * time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newIngredientTestClient(t *testing.T) (*IngredientClient, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := NewIngredientClient(testAPIConfig(), discardLogger())
	c.SetTransport(mt)
	return c, mt
}

func TestIngredientEnabled(t *testing.T) {
	c := NewIngredientClient(&config.APIConfig{}, discardLogger())
	if c.Enabled() {
		t.Fatalf("client without URL reports enabled")
	}
	c = NewIngredientClient(testAPIConfig(), discardLogger())
	if !c.Enabled() {
		t.Fatalf("configured client reports disabled")
	}
}

func TestIngredientHealth(t *testing.T) {
	c, mt := newIngredientTestClient(t)
	mt.RegisterResponder(http.MethodGet, "http://ingredient.test/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestIngredientHealthFailure(t *testing.T) {
	c, mt := newIngredientTestClient(t)
	mt.RegisterResponder(http.MethodGet, "http://ingredient.test/health",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

	err := c.Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want HTTP 503", err)
	}
}

func TestIngredientAnalyze(t *testing.T) {
	c, mt := newIngredientTestClient(t)
	mt.RegisterResponder(http.MethodPost, "http://ingredient.test/analyze",
		func(req *http.Request) (*http.Response, error) {
			var payload map[string]string
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if payload["ingredients"] != "정제수, 글리세린" {
				t.Fatalf("ingredients = %q", payload["ingredients"])
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"score":82,"flags":[]}`), nil
		})

	analysis, err := c.Analyze(context.Background(), "정제수, 글리세린")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if string(analysis) != `{"score":82,"flags":[]}` {
		t.Fatalf("analysis = %s", analysis)
	}
}

func TestIngredientAnalyzeRejectsInvalidJSON(t *testing.T) {
	c, mt := newIngredientTestClient(t)
	mt.RegisterResponder(http.MethodPost, "http://ingredient.test/analyze",
		httpmock.NewStringResponder(http.StatusOK, `<html>not json</html>`))

	if _, err := c.Analyze(context.Background(), "water"); err == nil {
		t.Fatalf("invalid JSON body accepted")
	}
}

func TestIngredientAnalyzeServerError(t *testing.T) {
	c, mt := newIngredientTestClient(t)
	mt.RegisterResponder(http.MethodPost, "http://ingredient.test/analyze",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	_, err := c.Analyze(context.Background(), "water")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("err = %v, want HTTP 500", err)
	}
}

func TestProductSaveBatch(t *testing.T) {
	mt := httpmock.NewMockTransport()
	c := NewProductClient(testAPIConfig(), discardLogger())
	c.SetTransport(mt)

	mt.RegisterResponder(http.MethodPost, "http://catalog.test/products/batch",
		func(req *http.Request) (*http.Response, error) {
			var payload struct {
				Products []types.ProductRecord `json:"products"`
			}
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if len(payload.Products) != 2 {
				t.Fatalf("got %d products, want 2", len(payload.Products))
			}
			return httpmock.NewStringResponse(http.StatusCreated, `{"saved":2}`), nil
		})

	price := 1000
	records := []*types.ProductRecord{
		{ProductNo: "A", Brand: "b", Name: "n", Price: types.Price{Current: &price}},
		{ProductNo: "B", Brand: "b", Name: "m", Price: types.Price{Current: &price}},
	}
	if err := c.SaveBatch(context.Background(), records); err != nil {
		t.Fatalf("save batch: %v", err)
	}
}

func TestProductSaveBatchSkipsEmpty(t *testing.T) {
	mt := httpmock.NewMockTransport()
	c := NewProductClient(testAPIConfig(), discardLogger())
	c.SetTransport(mt)

	if err := c.SaveBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if mt.GetTotalCallCount() != 0 {
		t.Fatalf("empty batch made %d requests", mt.GetTotalCallCount())
	}
}

func TestProductSaveBatchRejected(t *testing.T) {
	mt := httpmock.NewMockTransport()
	c := NewProductClient(testAPIConfig(), discardLogger())
	c.SetTransport(mt)

	mt.RegisterResponder(http.MethodPost, "http://catalog.test/products/batch",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"bad payload"}`))

	price := 1000
	records := []*types.ProductRecord{
		{ProductNo: "A", Brand: "b", Name: "n", Price: types.Price{Current: &price}},
	}
	err := c.SaveBatch(context.Background(), records)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want HTTP 400", err)
	}
}
