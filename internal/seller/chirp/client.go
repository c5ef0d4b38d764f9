// Package chirp looks up audiobook prices through Chirp's GraphQL search.
package chirp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/ratelimit"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

// Other locales redirect to the .com storefront.
const defaultURL = "https://www.chirpbooks.com/api/graphql"

const (
	defaultRPS     = 2.0
	defaultBurst   = 5
	defaultTimeout = 30 * time.Second
)

const searchQuery = `fragment productFields on Product{discountPrice id isFreeListing listingPrice purchaseUrl savingsPercent showListingPrice timeLeft} ` +
	`query AudiobookSearch($query:String!,$promotionFilter:String,$filter:String,$page:Int,$pageSize:Int){` +
	`audiobooks(query:$query,promotionFilter:$promotionFilter,filter:$filter,page:$page,pageSize:$pageSize){` +
	`totalCount objects(page:$page,pageSize:$pageSize){... on Audiobook{id displayTitle displayAuthors currentProduct{...productFields}}}}}`

var (
	ErrRateLimited = errors.New("chirp: rate limited by server")
	ErrServer      = errors.New("chirp: server error")
	ErrGraphQL     = errors.New("chirp: graphql error")
)

var nonPrice = regexp.MustCompile(`[^\d.]`)

// Client is a rate-limited Chirp search client.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	url     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithURL points the client at a different GraphQL endpoint.
func WithURL(u string) Option {
	return func(c *Client) { c.url = u }
}

// WithLimiter replaces the default rate limiter.
func WithLimiter(l *ratelimit.KeyedRateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a Chirp client.
func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		logger:  logger,
		url:     defaultURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seller identifies the client's seller.
func (c *Client) Seller() seller.Seller {
	return seller.Chirp
}

type searchResponse struct {
	Data struct {
		Audiobooks struct {
			Objects []struct {
				DisplayTitle   string `json:"displayTitle"`
				DisplayAuthors string `json:"displayAuthors"`
				CurrentProduct *struct {
					DiscountPrice string `json:"discountPrice"`
					ListingPrice  string `json:"listingPrice"`
				} `json:"currentProduct"`
			} `json:"objects"`
		} `json:"audiobooks"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Lookup searches Chirp by title and returns the price of the best matching
// audiobook, or nil when nothing matches. Chirp only sells in USD.
func (c *Client) Lookup(ctx context.Context, q seller.Query, at time.Time) (*deal.Record, error) {
	if q.Format != seller.Audiobook {
		return nil, nil
	}

	payload, err := json.Marshal(map[string]any{
		"query": searchQuery,
		"variables": map[string]any{
			"query":           q.Term(),
			"filter":          "all",
			"page":            1,
			"promotionFilter": "default",
		},
		"operationName": "AudiobookSearch",
	})
	if err != nil {
		return nil, fmt.Errorf("encode chirp request: %w", err)
	}

	body, err := c.do(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("chirp lookup %q: %w", q.Term(), err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("chirp lookup %q: parse response: %w", q.Term(), err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("chirp lookup %q: %w: %s", q.Term(), ErrGraphQL, resp.Errors[0].Message)
	}

	objects := resp.Data.Audiobooks.Objects
	var (
		candidates []book.Candidate
		indexes    []int
	)
	for i, o := range objects {
		if o.CurrentProduct == nil {
			continue
		}
		candidates = append(candidates, book.Candidate{Title: o.DisplayTitle, Authors: o.DisplayAuthors})
		indexes = append(indexes, i)
	}

	idx := book.BestMatch(book.Normalize(q.Term(), q.Authors), candidates, book.DefaultTitleThreshold)
	if idx < 0 {
		c.logger.Debug("chirp no match", "title", q.Term(), "results", len(objects))
		return nil, nil
	}
	product := objects[indexes[idx]].CurrentProduct

	price, err := ParsePrice(product.DiscountPrice)
	if err != nil {
		return nil, fmt.Errorf("chirp lookup %q: %w", q.Term(), err)
	}
	listPrice, err := ParsePrice(product.ListingPrice)
	if err != nil {
		return nil, fmt.Errorf("chirp lookup %q: %w", q.Term(), err)
	}

	return &deal.Record{
		Title:     q.Title,
		Authors:   q.Authors,
		Seller:    seller.Chirp,
		Format:    seller.Audiobook,
		Price:     deal.Money{Amount: price, Currency: "USD"},
		ListPrice: listPrice,
		Timepoint: at,
	}, nil
}

func (c *Client) do(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx, string(seller.Chirp)); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, ErrServer
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// ParsePrice reads a display price such as "$14.99" or "1,299.00". An empty
// string is a zero price.
func ParsePrice(s string) (decimal.Decimal, error) {
	cleaned := nonPrice.ReplaceAllString(s, "")
	if cleaned == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	return d, nil
}
