package assets

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Sentinel errors returned by Load.
var (
	ErrNoAccountsKey = errors.New("accounts file has no top-level 'accounts' key")
	ErrEmptyID       = errors.New("account id must not be empty")
	ErrNegativeQty   = errors.New("quantity must not be negative")
)

// wire types mirror the accounts.yaml structure. KnownFields decoding rejects
// unrecognised asset kinds at load time instead of silently ignoring them.
type wireFile struct {
	Accounts *[]wireAccount `yaml:"accounts"`
}

type wireAccount struct {
	ID     string     `yaml:"id"`
	Name   string     `yaml:"name"`
	Assets wireAssets `yaml:"assets"`
}

type wireAssets struct {
	// Crypto is kept as a raw node so holdings preserve declaration order;
	// a map field would randomise it.
	Crypto yaml.Node   `yaml:"crypto"`
	Stock  []wireStock `yaml:"stock"`
}

type wireStock struct {
	Symbol string    `yaml:"symbol"`
	Shares yaml.Node `yaml:"shares"`
}

// Load reads and validates the accounts file. Malformed structure is a hard
// error; zero accounts and duplicate ids are warnings only, so one bad entry
// in an otherwise valid file never blocks its siblings.
func Load(path string, logger *zap.Logger) ([]Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer f.Close()

	var file wireFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}

	if file.Accounts == nil {
		return nil, ErrNoAccountsKey
	}

	accounts := make([]Account, 0, len(*file.Accounts))
	seen := make(map[string]struct{})

	for i, wa := range *file.Accounts {
		if wa.ID == "" {
			return nil, fmt.Errorf("account %d (%q): %w", i, wa.Name, ErrEmptyID)
		}
		if _, dup := seen[wa.ID]; dup {
			logger.Warn("duplicate account id in configuration",
				zap.String("account_id", wa.ID),
				zap.String("name", wa.Name))
		}
		seen[wa.ID] = struct{}{}

		acct := Account{ID: wa.ID, Name: wa.Name}

		crypto := wa.Assets.Crypto
		if crypto.Kind != 0 {
			if crypto.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("account %q: crypto assets must be a mapping, got %s", wa.ID, nodeKind(&crypto))
			}
			for j := 0; j+1 < len(crypto.Content); j += 2 {
				symbol := crypto.Content[j].Value
				qty, err := scalarDecimal(crypto.Content[j+1])
				if err != nil {
					return nil, fmt.Errorf("account %q crypto %q: %w", wa.ID, symbol, err)
				}
				acct.Holdings = append(acct.Holdings, Holding{
					Kind:     KindCrypto,
					Key:      symbol,
					Quantity: qty,
				})
			}
		}

		for _, s := range wa.Assets.Stock {
			if s.Symbol == "" {
				return nil, fmt.Errorf("account %q: stock entry missing symbol", wa.ID)
			}
			shares, err := scalarDecimal(&s.Shares)
			if err != nil {
				return nil, fmt.Errorf("account %q stock %q: %w", wa.ID, s.Symbol, err)
			}
			acct.Holdings = append(acct.Holdings, Holding{
				Kind:     KindEquity,
				Key:      s.Symbol,
				Quantity: shares,
			})
		}

		accounts = append(accounts, acct)
	}

	if len(accounts) == 0 {
		logger.Warn("accounts file contains no accounts", zap.String("path", path))
	}

	return accounts, nil
}

// scalarDecimal parses a YAML scalar as an exact decimal, preserving the
// literal digits rather than round-tripping through float64.
func scalarDecimal(node *yaml.Node) (decimal.Decimal, error) {
	if node.Kind != yaml.ScalarNode {
		return decimal.Decimal{}, fmt.Errorf("expected a number, got %s", nodeKind(node))
	}
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid quantity %q: %w", node.Value, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNegativeQty, node.Value)
	}
	return d, nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
