package position

import (
	"sync"

	"github.com/raykavin/tideshift/pkg/core"
)

// FeedConsumer is a function type that processes trade fill events
type FeedConsumer func(trade core.TradeRecord)

// DataFeed represents channels for fill data and errors
type DataFeed struct {
	Data chan core.TradeRecord
	Err  chan error
}

// Subscription represents a consumer subscription to fill updates
type Subscription struct {
	onlyExits bool
	consumer  FeedConsumer
}

// Feed manages fill data feeds and subscriptions
type Feed struct {
	mu                    sync.RWMutex
	TradeFeeds            map[string]*DataFeed
	SubscriptionsBySymbol map[string][]Subscription
}

// NewTradeFeed creates a new fill feed manager
func NewTradeFeed() *Feed {
	return &Feed{
		TradeFeeds:            make(map[string]*DataFeed),
		SubscriptionsBySymbol: make(map[string][]Subscription),
	}
}

// Subscribe registers a consumer to receive fill updates for a symbol.
// With onlyExits set the consumer sees only fills that reduced or closed
// the position.
func (f *Feed) Subscribe(symbol string, consumer FeedConsumer, onlyExits bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Create a new data feed if one doesn't exist for this symbol
	if _, ok := f.TradeFeeds[symbol]; !ok {
		f.TradeFeeds[symbol] = &DataFeed{
			Data: make(chan core.TradeRecord, 100), // Buffered channel to prevent blocking
			Err:  make(chan error, 100),
		}
	}

	// Add the subscription
	f.SubscriptionsBySymbol[symbol] = append(f.SubscriptionsBySymbol[symbol], Subscription{
		onlyExits: onlyExits,
		consumer:  consumer,
	})
}

// Publish sends a fill to all subscribers for its symbol
func (f *Feed) Publish(trade core.TradeRecord) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if feed, ok := f.TradeFeeds[trade.Symbol]; ok {
		// Non-blocking send - drop updates if no one is listening
		select {
		case feed.Data <- trade:
			// Successfully sent
		default:
			// Channel full, could log this situation
		}
	}
}

// Start begins processing fill updates for all registered feeds
func (f *Feed) Start() {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for symbol, feed := range f.TradeFeeds {
		go f.processTradesForSymbol(symbol, feed)
	}
}

// processTradesForSymbol handles fill updates for a specific symbol
func (f *Feed) processTradesForSymbol(symbol string, feed *DataFeed) {
	for trade := range feed.Data {
		f.mu.RLock()
		subscriptions := f.SubscriptionsBySymbol[symbol]
		f.mu.RUnlock()

		// Distribute the fill to all subscribers
		for _, subscription := range subscriptions {
			if subscription.onlyExits && !trade.Side.IsExit() {
				continue
			}
			subscription.consumer(trade)
		}
	}
}

// Stop gracefully shuts down all feed channels
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Close all channels
	for symbol, feed := range f.TradeFeeds {
		close(feed.Data)
		close(feed.Err)
		delete(f.TradeFeeds, symbol)
	}

	// Clear subscriptions
	f.SubscriptionsBySymbol = make(map[string][]Subscription)
}
