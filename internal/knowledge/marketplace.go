package knowledge

import "strings"

// Marketplace is the storefront a product is listed on.
type Marketplace string

const (
	MarketUS Marketplace = "US"
	MarketDE Marketplace = "DE"
	MarketJP Marketplace = "JP"
	MarketUK Marketplace = "UK"
	MarketFR Marketplace = "FR"
	MarketES Marketplace = "ES"
	MarketIT Marketplace = "IT"
)

// ParseMarketplace normalises a marketplace code. Unknown codes are returned
// upper-cased; they resolve to the US defaults.
func ParseMarketplace(s string) Marketplace {
	return Marketplace(strings.ToUpper(strings.TrimSpace(s)))
}

// TargetLanguage is the customer-facing language and register for replies.
func (m Marketplace) TargetLanguage() string {
	switch m {
	case MarketJP:
		return "Japanese (Strict Business Keigo/Sonkeigo)"
	case MarketDE:
		return "German (Formal Sie)"
	case MarketFR:
		return "French (Formal Vous)"
	case MarketES:
		return "Spanish"
	case MarketIT:
		return "Italian"
	case MarketUK:
		return "British English"
	default:
		return "American English"
	}
}

// Domain is the storefront host name.
func (m Marketplace) Domain() string {
	switch m {
	case MarketDE:
		return "amazon.de"
	case MarketJP:
		return "amazon.co.jp"
	case MarketUK:
		return "amazon.co.uk"
	case MarketFR:
		return "amazon.fr"
	default:
		return "amazon.com"
	}
}

// ListingURL is the product page for asin on this marketplace.
func (m Marketplace) ListingURL(asin string) string {
	return "https://www." + m.Domain() + "/dp/" + asin
}

// DefaultPolicy is the return policy used when an import carries none.
func (m Marketplace) DefaultPolicy() string {
	if m == MarketDE {
		return "30 Tage Rückgaberecht"
	}
	return "30-Day Return Policy"
}
