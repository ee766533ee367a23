package fipe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Service resolves lookups into upstream paths
type Service struct {
	fetcher Fetcher
}

// NewService creates a Service over fetcher
func NewService(fetcher Fetcher) *Service {
	return &Service{fetcher: fetcher}
}

// BrandsPath is the upstream path listing the brands of a vehicle type
func BrandsPath(vehicleType string) string {
	return fmt.Sprintf("/%s/brands", ResolveCategory(vehicleType))
}

// ModelsPath is the upstream path listing the models of a brand
func ModelsPath(vehicleType, brand string) string {
	return BrandsPath(vehicleType) + "/" + url.PathEscape(brand) + "/models"
}

// YearsPath is the upstream path listing the years of a model
func YearsPath(vehicleType, brand, model string) string {
	return ModelsPath(vehicleType, brand) + "/" + url.PathEscape(model) + "/years"
}

// PricePath is the upstream path of one model-year price
func PricePath(vehicleType, brand, model, year string) string {
	return YearsPath(vehicleType, brand, model) + "/" + url.PathEscape(year)
}

func (s *Service) Brands(ctx context.Context, vehicleType string) (json.RawMessage, error) {
	return s.fetcher.Fetch(ctx, BrandsPath(vehicleType))
}

func (s *Service) Models(ctx context.Context, vehicleType, brand string) (json.RawMessage, error) {
	return s.fetcher.Fetch(ctx, ModelsPath(vehicleType, brand))
}

// Years returns the upstream year entries, relayed unmodified
func (s *Service) Years(ctx context.Context, vehicleType, brand, model string) (json.RawMessage, error) {
	return s.fetcher.Fetch(ctx, YearsPath(vehicleType, brand, model))
}

func (s *Service) Price(ctx context.Context, vehicleType, brand, model, year string) (json.RawMessage, error) {
	return s.fetcher.Fetch(ctx, PricePath(vehicleType, brand, model, year))
}
