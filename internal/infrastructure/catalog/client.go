package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/negotiation-hub/negotiation-hub/internal/domain/negotiation"
)

const defaultCacheSize = 1024

type cachedSeller struct {
	sellerID  string
	fetchedAt time.Time
}

// Client looks up listing owners in the catalog service.
// Sellers never change for a listing, so entries only age out after cacheTTL.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *lru.Cache
	cacheTTL time.Duration
}

func NewClient(baseURL string, timeout time.Duration, cacheSize int, cacheTTL time.Duration) *Client {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New(cacheSize)
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

type productResponse struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`
}

// SellerOf returns the seller of productID. Unknown products are a validation error.
func (c *Client) SellerOf(ctx context.Context, productID string) (string, error) {
	if v, ok := c.cache.Get(productID); ok {
		entry := v.(cachedSeller)
		if c.cacheTTL <= 0 || time.Since(entry.fetchedAt) < c.cacheTTL {
			return entry.sellerID, nil
		}
		c.cache.Remove(productID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+url.PathEscape(productID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("catalog lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", negotiation.ValidationError("unknown product %q", productID)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("catalog lookup: unexpected status %d", resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("catalog lookup: decode: %w", err)
	}
	if strings.TrimSpace(body.SellerID) == "" {
		return "", fmt.Errorf("catalog lookup: product %q has no seller", productID)
	}
	c.cache.Add(productID, cachedSeller{sellerID: body.SellerID, fetchedAt: time.Now()})
	return body.SellerID, nil
}
