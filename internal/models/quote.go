package models

// OptionQuote is one option's market snapshot. Rebuilt on every poll.
type OptionQuote struct {
	Contract        OptionContract `json:"contract"`
	IV              float64        `json:"iv"` // implied volatility as decimal (0.75 = 75%)
	Delta           float64        `json:"delta"`
	UnderlyingPrice float64        `json:"underlying_price"`
	Bid             float64        `json:"bid"`
	Ask             float64        `json:"ask"`
}

// Symbol returns the exchange symbol of the quoted contract
func (q OptionQuote) Symbol() string {
	return q.Contract.Symbol
}

// QuoteSnapshot holds one poll of the option chain in exchange order.
// Iteration order is stable, which keeps leg selection deterministic.
type QuoteSnapshot struct {
	quotes []OptionQuote
	index  map[string]int
}

// NewQuoteSnapshot builds a snapshot. A repeated symbol replaces the earlier
// quote in place.
func NewQuoteSnapshot(quotes ...OptionQuote) *QuoteSnapshot {
	s := &QuoteSnapshot{
		quotes: make([]OptionQuote, 0, len(quotes)),
		index:  make(map[string]int, len(quotes)),
	}
	for _, q := range quotes {
		s.Add(q)
	}
	return s
}

// Add appends a quote to the snapshot
func (s *QuoteSnapshot) Add(q OptionQuote) {
	if i, ok := s.index[q.Symbol()]; ok {
		s.quotes[i] = q
		return
	}
	s.index[q.Symbol()] = len(s.quotes)
	s.quotes = append(s.quotes, q)
}

// Get returns the quote for a symbol
func (s *QuoteSnapshot) Get(symbol string) (OptionQuote, bool) {
	if s == nil {
		return OptionQuote{}, false
	}
	i, ok := s.index[symbol]
	if !ok {
		return OptionQuote{}, false
	}
	return s.quotes[i], true
}

// Len returns the number of quotes
func (s *QuoteSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.quotes)
}

// Quotes returns the quotes in exchange order. The slice must not be modified.
func (s *QuoteSnapshot) Quotes() []OptionQuote {
	if s == nil {
		return nil
	}
	return s.quotes
}

// Each calls fn for every quote in exchange order until fn returns false
func (s *QuoteSnapshot) Each(fn func(OptionQuote) bool) {
	for _, q := range s.Quotes() {
		if !fn(q) {
			return
		}
	}
}
