// Package domain provides the core types shared by every Foresight component:
// instruments, price bars and the error taxonomy.
package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Market identifies the exchange an instrument is listed on
type Market string

const (
	// MarketNAS is the US (NASDAQ) market
	MarketNAS Market = "NAS"
	// MarketNPS is the Nepal (NEPSE) market
	MarketNPS Market = "NPS"
)

// Markets lists the known markets in processing order
var Markets = []Market{MarketNAS, MarketNPS}

// Valid reports whether m is a known market
func (m Market) Valid() bool {
	return m == MarketNAS || m == MarketNPS
}

// ParseMarket canonicalizes a market code, case-insensitively
func ParseMarket(s string) (Market, error) {
	m := Market(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", NewError(KindInvalidInput, "parse market", s, fmt.Errorf("unknown market %q", s))
	}
	return m, nil
}

const (
	predictionKeyPrefix = "prediction_value:"
	tablePrefix         = "dataPrice"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,14}$`)

// ValidSymbol reports whether s is an already canonical symbol
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// Instrument is a tradable symbol on a market
type Instrument struct {
	Market Market `json:"market"`
	Symbol string `json:"symbol"`
}

// NewInstrument is the single canonicalization point for instruments.
// Both parts are trimmed and upper-cased before validation.
func NewInstrument(market, symbol string) (Instrument, error) {
	m, err := ParseMarket(market)
	if err != nil {
		return Instrument{}, err
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if !ValidSymbol(sym) {
		return Instrument{}, NewError(KindInvalidInput, "parse symbol", symbol, fmt.Errorf("invalid symbol %q", symbol))
	}
	return Instrument{Market: m, Symbol: sym}, nil
}

// ModelKey is the logical name of the instrument's model artifact, e.g. NAS_NVDA
func (i Instrument) ModelKey() string {
	return string(i.Market) + "_" + i.Symbol
}

// PredictionKey is the cache key holding the instrument's latest prediction
func (i Instrument) PredictionKey() string {
	return PredictionKey(i.Symbol)
}

// TableName is the durable table holding the instrument's bars
func (i Instrument) TableName() string {
	return TableName(i.Symbol)
}

func (i Instrument) String() string {
	return string(i.Market) + "/" + i.Symbol
}

// PredictionKey returns the cache key for a symbol
func PredictionKey(symbol string) string {
	return predictionKeyPrefix + symbol
}

// TableName returns the durable table name for a symbol
func TableName(symbol string) string {
	return tablePrefix + symbol
}

// SymbolFromTable extracts the symbol from a dataPrice{SYMBOL} name.
func SymbolFromTable(name string) (string, bool) {
	if !strings.HasPrefix(name, tablePrefix) {
		return "", false
	}
	sym := strings.TrimPrefix(name, tablePrefix)
	if !ValidSymbol(sym) {
		return "", false
	}
	return sym, true
}

// Universe is the configured, ordered set of instruments
type Universe struct {
	instruments []Instrument
	bySymbol    map[string]Instrument
}

// NewUniverse builds a universe from per-market symbol lists. Instruments are
// ordered by market (Markets order) and then by the configured symbol order.
// A symbol may only be listed under one market.
func NewUniverse(symbols map[Market][]string) (*Universe, error) {
	u := &Universe{bySymbol: make(map[string]Instrument)}
	for market := range symbols {
		if !market.Valid() {
			return nil, NewError(KindInvalidInput, "build universe", string(market), fmt.Errorf("unknown market %q", market))
		}
	}
	for _, market := range Markets {
		for _, raw := range symbols[market] {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			inst, err := NewInstrument(string(market), raw)
			if err != nil {
				return nil, err
			}
			if prev, ok := u.bySymbol[inst.Symbol]; ok {
				if prev.Market == market {
					continue
				}
				return nil, NewError(KindInvalidInput, "build universe", inst.Symbol,
					fmt.Errorf("symbol %s listed under both %s and %s", inst.Symbol, prev.Market, market))
			}
			u.bySymbol[inst.Symbol] = inst
			u.instruments = append(u.instruments, inst)
		}
	}
	return u, nil
}

// Instruments returns the instruments in deterministic processing order
func (u *Universe) Instruments() []Instrument {
	out := make([]Instrument, len(u.instruments))
	copy(out, u.instruments)
	return out
}

// Lookup finds the instrument configured for a symbol
func (u *Universe) Lookup(symbol string) (Instrument, bool) {
	inst, ok := u.bySymbol[strings.ToUpper(symbol)]
	return inst, ok
}

// Len returns the number of configured instruments
func (u *Universe) Len() int {
	return len(u.instruments)
}
