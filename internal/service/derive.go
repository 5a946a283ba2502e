package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"hypertoken/internal/client/hyperliquid"
	"hypertoken/internal/models"
)

// ErrParse marks a derivation input that is not a decimal number. The derived
// field is left null; the token itself is still written.
var ErrParse = errors.New("parse error")

// auctionPrice is seededUsdc / circulatingSupply. It is null when seededUsdc
// is missing or zero.
func auctionPrice(seededUsdc, circulatingSupply string) (*string, error) {
	if seededUsdc == "" {
		return nil, nil
	}
	seeded, err := parseDecimal("seededUsdc", seededUsdc)
	if err != nil {
		return nil, err
	}
	if seeded.IsZero() {
		return nil, nil
	}
	supply, err := parseDecimal("circulatingSupply", circulatingSupply)
	if err != nil {
		return nil, err
	}
	if supply.IsZero() {
		return nil, fmt.Errorf("%w: circulatingSupply is zero", ErrParse)
	}
	return strPtr(seeded.Div(supply).String()), nil
}

// launchMarketCap is startPx * circulatingSupply with exactly two decimals.
func launchMarketCap(startPx, circulatingSupply string) (*string, error) {
	if startPx == "" || circulatingSupply == "" {
		return nil, nil
	}
	px, err := parseDecimal("startPx", startPx)
	if err != nil {
		return nil, err
	}
	supply, err := parseDecimal("circulatingSupply", circulatingSupply)
	if err != nil {
		return nil, err
	}
	return strPtr(px.Mul(supply).StringFixed(2)), nil
}

// launchDate keeps the date part of an ISO timestamp.
func launchDate(deployTime string) *string {
	date, _, _ := strings.Cut(deployTime, "T")
	return optionalString(date)
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s is empty", ErrParse, field)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q: %v", ErrParse, field, raw, err)
	}
	return d, nil
}

// mergeToken builds the record written for one listed token. Machine-derived
// fields come from token and details; curated fields come from prior when it
// exists, otherwise from DefaultCurated. Upstream airdrop values only fill
// airdrops that were never set. The returned error joins any derivation
// failures; the record is usable either way.
func mergeToken(token hyperliquid.SpotToken, details *hyperliquid.TokenDetails, prior *models.TokenRecord, startPx string, now time.Time) (models.TokenRecord, error) {
	var errs []error

	auction, err := auctionPrice(details.SeededUsdc, details.CirculatingSupply)
	if err != nil {
		errs = append(errs, fmt.Errorf("auctionPrice: %w", err))
	}
	marketCap, err := launchMarketCap(startPx, details.CirculatingSupply)
	if err != nil {
		errs = append(errs, fmt.Errorf("launchMarketCap: %w", err))
	}

	var curated models.Curated
	if prior != nil {
		curated = prior.Curated
	}
	upstream := models.Curated{
		Airdrop1: details.Airdrop1.Value,
		Airdrop2: details.Airdrop2.Value,
	}
	curated = curated.WithDefaults(upstream).WithDefaults(models.DefaultCurated())

	rec := models.TokenRecord{
		TokenIndex:       token.Index,
		Index:            token.Index,
		Name:             token.Name,
		TokenID:          token.TokenID,
		StartPx:          optionalString(startPx),
		MarkPx:           optionalString(details.MarkPx),
		LaunchDate:       launchDate(details.DeployTime),
		AuctionPrice:     auction,
		LaunchCircSupply: optionalString(details.CirculatingSupply),
		LaunchMarketCap:  marketCap,
		Curated:          curated,
		LastUpdated:      now,
	}
	if len(details.Raw) > 0 {
		rec.RawDetails = datatypes.JSON(details.Raw)
	}
	return rec, errors.Join(errs...)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strPtr(s string) *string {
	return &s
}
