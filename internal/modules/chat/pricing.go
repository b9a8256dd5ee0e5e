package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPricingTTL = 24 * time.Hour

// Pricing is USD per million tokens.
type Pricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// PricingSource looks up a model's pricing. ok is false when the model is unknown.
type PricingSource interface {
	Lookup(ctx context.Context, model string) (p Pricing, ok bool, err error)
}

// StaticPricing is a fixed table, typically loaded from YAML:
//
//	models:
//	  gpt-4o-mini: {input: 0.15, output: 0.6}
type StaticPricing map[string]Pricing

func (s StaticPricing) Lookup(_ context.Context, model string) (Pricing, bool, error) {
	p, ok := s[strings.TrimSpace(model)]
	return p, ok, nil
}

func ParsePricing(raw []byte) (StaticPricing, error) {
	var doc struct {
		Models map[string]Pricing `yaml:"models"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse pricing: %w", err)
	}
	out := make(StaticPricing, len(doc.Models))
	for id, p := range doc.Models {
		if p.Input < 0 || p.Output < 0 {
			return nil, fmt.Errorf("pricing for %q: negative price", id)
		}
		out[strings.TrimSpace(id)] = p
	}
	return out, nil
}

// LoadPricing reads a pricing file. An empty path yields an empty table.
func LoadPricing(path string) (StaticPricing, error) {
	if strings.TrimSpace(path) == "" {
		return StaticPricing{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing: %w", err)
	}
	return ParsePricing(raw)
}

type pricingEntry struct {
	pricing Pricing
	expires time.Time
}

// PricingCache memoizes hits from src per model id until the TTL elapses.
// Misses and errors are not cached.
type PricingCache struct {
	src PricingSource
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]pricingEntry
}

func NewPricingCache(src PricingSource, ttl time.Duration, now func() time.Time) *PricingCache {
	if ttl <= 0 {
		ttl = DefaultPricingTTL
	}
	if now == nil {
		now = time.Now
	}
	return &PricingCache{src: src, ttl: ttl, now: now, entries: make(map[string]pricingEntry)}
}

func (c *PricingCache) Lookup(ctx context.Context, model string) (Pricing, bool, error) {
	t := c.now()
	c.mu.Lock()
	e, ok := c.entries[model]
	c.mu.Unlock()
	if ok && t.Before(e.expires) {
		return e.pricing, true, nil
	}
	p, found, err := c.src.Lookup(ctx, model)
	if err != nil || !found {
		return Pricing{}, false, err
	}
	c.mu.Lock()
	c.entries[model] = pricingEntry{pricing: p, expires: t.Add(c.ttl)}
	c.mu.Unlock()
	return p, true, nil
}
