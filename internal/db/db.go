// Package db holds the bidder's storage: the Postgres catalogue, Redis
// frequency counters and the loader that feeds the in-memory catalogue.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/patrickwarner/openbidder/internal/models"
)

// CatalogSource supplies the line items and creatives the bidder bids with.
type CatalogSource interface {
	LoadLineItems(ctx context.Context) ([]models.LineItem, error)
	LoadCreatives(ctx context.Context) ([]models.Creative, error)
}

// LoadCatalog reads src and swaps the result into catalog. Creatives that
// reference unknown line items are rejected so misconfigured data is caught
// at load time rather than silently never bidding.
func LoadCatalog(ctx context.Context, src CatalogSource, catalog models.Catalog) error {
	items, err := src.LoadLineItems(ctx)
	if err != nil {
		return fmt.Errorf("load line items: %w", err)
	}
	creatives, err := src.LoadCreatives(ctx)
	if err != nil {
		return fmt.Errorf("load creatives: %w", err)
	}

	known := make(map[int]struct{}, len(items))
	for _, li := range items {
		known[li.ID] = struct{}{}
	}
	for _, cr := range creatives {
		if _, ok := known[cr.LineItemID]; !ok {
			return fmt.Errorf("creative %d references undefined line item %d", cr.ID, cr.LineItemID)
		}
	}
	return catalog.ReloadAll(items, creatives)
}

// StaticSource serves a fixed catalogue, e.g. one read from a JSON file for
// local runs without Postgres.
type StaticSource struct {
	LineItems []models.LineItem `json:"line_items"`
	Creatives []models.Creative `json:"creatives"`
}

// LoadStaticSource reads a JSON file of {"line_items":[...],"creatives":[...]}.
func LoadStaticSource(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var s StaticSource
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return &s, nil
}

func (s *StaticSource) LoadLineItems(context.Context) ([]models.LineItem, error) {
	return s.LineItems, nil
}

func (s *StaticSource) LoadCreatives(context.Context) ([]models.Creative, error) {
	return s.Creatives, nil
}
