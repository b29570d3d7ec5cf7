package assets

import "github.com/shopspring/decimal"

// Kind distinguishes the asset classes an account can hold.
type Kind uint8

const (
	KindCrypto Kind = iota + 1
	KindEquity
)

func (k Kind) String() string {
	switch k {
	case KindCrypto:
		return "crypto"
	case KindEquity:
		return "equity"
	default:
		return "unknown"
	}
}

// Holding is one position within an account: either a crypto quantity keyed
// by a CoinGecko id, or a number of shares keyed by an equity ticker. The
// kind is decided at load time; unknown kinds are rejected by the loader.
type Holding struct {
	Kind     Kind
	Key      string // coingecko id ("bitcoin") or ticker ("AAPL")
	Quantity decimal.Decimal
}

// Account is one logical ProjectionLab account with its declared holdings.
// ID is the opaque join key to the external system.
type Account struct {
	ID       string
	Name     string
	Holdings []Holding
}

// CryptoSymbols returns the deduplicated crypto ids held across all accounts,
// in first-seen order.
func CryptoSymbols(accounts []Account) []string {
	return collect(accounts, KindCrypto)
}

// EquityTickers returns the deduplicated equity tickers held across all
// accounts, in first-seen order.
func EquityTickers(accounts []Account) []string {
	return collect(accounts, KindEquity)
}

func collect(accounts []Account, kind Kind) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, acct := range accounts {
		for _, h := range acct.Holdings {
			if h.Kind != kind {
				continue
			}
			if _, ok := seen[h.Key]; ok {
				continue
			}
			seen[h.Key] = struct{}{}
			out = append(out, h.Key)
		}
	}
	return out
}
