package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Source supplies the SOL/EUR rate, cached for a short TTL to bound calls
// to the external feed. Feed failures degrade to the last cached value, or
// to the fallback constant when nothing was ever fetched; callers never see
// an error, so a dead feed cannot block the deposit flow.
type Source struct {
	url      string
	ttl      time.Duration
	fallback float64
	client   *http.Client

	mu        sync.Mutex
	rate      float64
	updatedAt time.Time
}

// NewSource creates a rate source against the given feed URL. The feed is
// expected to answer in the CoinGecko simple-price shape:
// {"solana":{"eur":150.0}}.
func NewSource(url string, ttl time.Duration, fallback float64) *Source {
	return &Source{
		url:      url,
		ttl:      ttl,
		fallback: fallback,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Rate returns the current price of 1 SOL in EUR.
func (s *Source) Rate(ctx context.Context) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rate > 0 && time.Since(s.updatedAt) < s.ttl {
		return s.rate
	}

	rate, err := s.fetch(ctx)
	if err != nil {
		log.Printf("price: feed error: %v", err)
		if s.rate > 0 {
			return s.rate
		}
		return s.fallback
	}

	s.rate = rate
	s.updatedAt = time.Now()
	return rate
}

func (s *Source) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var data map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, err
	}

	rate, ok := data["solana"]["eur"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("feed response missing solana/eur price")
	}
	return rate, nil
}

// EURToSOL converts EUR to SOL at the current rate.
func (s *Source) EURToSOL(ctx context.Context, eur float64) float64 {
	return eur / s.Rate(ctx)
}

// SOLToEUR converts SOL to EUR at the current rate.
func (s *Source) SOLToEUR(ctx context.Context, sol float64) float64 {
	return sol * s.Rate(ctx)
}
