package domain

import "github.com/shopspring/decimal"

// CatalogEntry is one row of the seed catalog.
type CatalogEntry struct {
	Symbol       Symbol
	Name         string
	Institution  string
	InitialPrice decimal.Decimal
	TotalSupply  decimal.Decimal
}

// Seed parameters applied to every catalog entry.
var (
	SeedCirculatingRatio = decimal.RequireFromString("0.1")
	SeedVolatility       = decimal.NewFromInt(5)
)

// SeedDecimals is the display precision recorded on seeded tokens.
const SeedDecimals = 18

func entry(sym, name string, price, supply int64) CatalogEntry {
	return CatalogEntry{
		Symbol:       Symbol(sym),
		Name:         sym + " Token",
		Institution:  name,
		InitialPrice: decimal.NewFromInt(price),
		TotalSupply:  decimal.NewFromInt(supply),
	}
}

// UniversityCatalog returns the tokens the market launches with.
func UniversityCatalog() []CatalogEntry {
	return []CatalogEntry{
		entry("UNILAG", "University of Lagos", 100, 1_000_000),
		entry("UNILORIN", "University of Ilorin", 95, 950_000),
		entry("OAU", "Obafemi Awolowo University", 110, 800_000),
		entry("UI", "University of Ibadan", 105, 900_000),
		entry("UNIBEN", "University of Benin", 85, 750_000),
		entry("UNN", "University of Nigeria Nsukka", 90, 850_000),
		entry("ABU", "Ahmadu Bello University", 88, 1_100_000),
		entry("UNIPORT", "University of Port Harcourt", 92, 700_000),
		entry("UNICAL", "University of Calabar", 80, 600_000),
		entry("FUTO", "Federal University of Technology Owerri", 75, 500_000),
	}
}
