package audible

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

type rawProduct struct {
	ASIN    string           `json:"asin"`
	Title   string           `json:"title"`
	Authors []rawContributor `json:"authors"`
	Price   *rawPrice        `json:"price"`
}

type rawContributor struct {
	ASIN string `json:"asin"`
	Name string `json:"name"`
}

type rawPrice struct {
	ListPrice   *rawAmount `json:"list_price"`
	LowestPrice *rawAmount `json:"lowest_price"`
}

type rawAmount struct {
	Base         decimal.Decimal `json:"base"`
	CurrencyCode string          `json:"currency_code"`
}

// Lookup searches the catalog by title and author and returns the price of
// the best matching product, or nil when nothing matches.
func (c *Client) Lookup(ctx context.Context, q seller.Query, at time.Time) (*deal.Record, error) {
	if q.Format != seller.Audiobook {
		return nil, nil
	}

	query := url.Values{}
	query.Set("title", q.Term())
	query.Set("author", q.Authors)
	query.Set("num_results", strconv.Itoa(numResults))
	query.Set("response_groups", "contributors,price,product_attrs")
	query.Set("products_sort_by", "Relevance")

	body, err := c.doRequest(ctx, "/1.0/catalog/products", query)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("lookup", c.locale, q.Term(), err)
	}

	var resp struct {
		Products []rawProduct `json:"products"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, wrapError("lookup", c.locale, q.Term(), fmt.Errorf("parse response: %w", err))
	}

	// Products without a price are not for sale in this marketplace.
	priced := make([]rawProduct, 0, len(resp.Products))
	candidates := make([]book.Candidate, 0, len(resp.Products))
	for _, p := range resp.Products {
		if p.Price == nil || p.Price.LowestPrice == nil {
			continue
		}
		priced = append(priced, p)
		candidates = append(candidates, book.Candidate{Title: p.Title, Authors: joinNames(p.Authors)})
	}

	idx := book.BestMatch(book.Normalize(q.Term(), q.Authors), candidates, book.DefaultTitleThreshold)
	if idx < 0 {
		c.logger.Debug("audible no match", "title", q.Term(), "products", len(resp.Products))
		return nil, nil
	}
	p := priced[idx]

	currency := p.Price.LowestPrice.CurrencyCode
	if currency == "" {
		currency = c.locale.Currency()
	}
	listPrice := decimal.Zero
	if p.Price.ListPrice != nil {
		listPrice = p.Price.ListPrice.Base
	}

	return &deal.Record{
		Title:     q.Title,
		Authors:   q.Authors,
		Seller:    seller.Audible,
		Format:    seller.Audiobook,
		Price:     deal.Money{Amount: p.Price.LowestPrice.Base, Currency: currency},
		ListPrice: listPrice,
		Timepoint: at,
	}, nil
}

func joinNames(cs []rawContributor) string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
