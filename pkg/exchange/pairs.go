package exchange

import (
	"strings"
	"sync"
)

// AssetQuote is the base and quote currency of a trading pair
type AssetQuote struct {
	Quote string `json:"quote"`
	Asset string `json:"asset"`
}

// PairService resolves pair symbols into their components. The live binance
// client registers the authoritative split from exchange info at startup;
// offline consumers (csv feed, paper broker) fall back to quote suffix
// matching over the common binance quote currencies.
type PairService struct {
	pairMap map[string]AssetQuote
	mu      sync.RWMutex
}

// quoteSuffixes ordered longest first so FDUSD wins over USD
var quoteSuffixes = []string{
	"FDUSD", "USDT", "USDC", "BUSD", "TUSD",
	"BTC", "ETH", "BNB", "EUR", "TRY", "BRL", "GBP", "USD",
}

var defaultPairService = NewPairService()

// NewPairService creates an empty pair registry
func NewPairService() *PairService {
	return &PairService{pairMap: make(map[string]AssetQuote)}
}

// Register stores the authoritative split for a pair
func (s *PairService) Register(pair string, split AssetQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pairMap[strings.ToUpper(pair)] = split
}

// Get returns the registered split for a pair
func (s *PairService) Get(pair string) (AssetQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.pairMap[strings.ToUpper(pair)]
	return data, exists
}

// Split resolves a pair into base and quote, falling back to suffix
// matching when the pair was never registered
func (s *PairService) Split(pair string) (asset, quote string) {
	pair = strings.ToUpper(pair)

	if data, ok := s.Get(pair); ok {
		return data.Asset, data.Quote
	}

	for _, suffix := range quoteSuffixes {
		if strings.HasSuffix(pair, suffix) && len(pair) > len(suffix) {
			return strings.TrimSuffix(pair, suffix), suffix
		}
	}

	return pair, ""
}

// RegisterPairs stores pair splits in the default registry, called by the
// binance client after loading exchange info
func RegisterPairs(pairs map[string]AssetQuote) {
	for pair, split := range pairs {
		defaultPairService.Register(pair, split)
	}
}

// SplitAssetQuote resolves a pair symbol via the default registry
func SplitAssetQuote(pair string) (asset, quote string) {
	return defaultPairService.Split(pair)
}

// GetPair returns the registered split for a pair from the default registry
func GetPair(pair string) (AssetQuote, bool) {
	return defaultPairService.Get(pair)
}
