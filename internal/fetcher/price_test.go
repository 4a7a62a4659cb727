package fetcher

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceClientFetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/7203"):
			_, _ = w.Write([]byte(`{"code":"7203","price":"2500","annual_dividend":75}`))
		case strings.HasSuffix(r.URL.Path, "/1301"):
			_, _ = w.Write([]byte(`{"code":"1301","price":4000,"dividend_yield":"2.5"}`))
		default:
			_, _ = w.Write([]byte(`{"error":"unknown code"}`))
		}
	})
	c := NewPriceClient(PriceOptions{URLTemplate: srv.URL + "/quote/{code}"}, noopLogger())
	s := openHTTPSession(t)

	hint, err := c.FetchPrice(context.Background(), s, "7203")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !hint.Price.Equal(decimal.NewFromInt(2500)) || hint.DividendYieldPct.String() != "3" {
		t.Fatalf("应根据年度分红推算收益率: %+v", hint)
	}

	hint, err = c.FetchPrice(context.Background(), s, "1301")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if hint.AnnualDividend.String() != "100" {
		t.Fatalf("应根据收益率推算年度分红, 实际 %s", hint.AnnualDividend)
	}

	ext, err := PriceExtractor{Source: c}.Extract(context.Background(), s, "0000")
	if err != nil || ext.Status != StatusNotFound {
		t.Fatalf("未知代码应为 not_found: %v %+v", err, ext)
	}

	ext, err = PriceExtractor{Source: c}.Extract(context.Background(), s, "1301")
	if err != nil || ext.Status != StatusOK || ext.Price == nil || len(ext.Rows) != 0 {
		t.Fatalf("价格提取结果不正确: %v %+v", err, ext)
	}
}
