// Package mock provides a synthetic option chain for running the bot offline.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/delta_neutral/internal/broker"
	"github.com/eddiefleurent/delta_neutral/internal/models"
)

const (
	expiryLayout   = "02Jan06"
	strikeInterval = 1000.0
	strikesEachWay = 20
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// ChainProvider serves a random-walk option chain and fills every order.
type ChainProvider struct {
	random       func() float64
	now          func() time.Time
	currentPrice float64
	atmIV        float64
	mu           sync.Mutex
}

// Ensure ChainProvider implements broker.Exchange
var _ broker.Exchange = (*ChainProvider)(nil)

// NewChainProvider creates a provider with BTC around 90k and IV around 55%
func NewChainProvider() *ChainProvider {
	return NewChainProviderWithRand(88000+secureFloat64()*4000, 0.45+secureFloat64()*0.2, secureFloat64)
}

// NewChainProviderWithRand creates a provider with a fixed start and random source
func NewChainProviderWithRand(price, iv float64, random func() float64) *ChainProvider {
	return &ChainProvider{
		random:       random,
		now:          time.Now,
		currentPrice: price,
		atmIV:        iv,
	}
}

// FetchQuotes moves the market one step and returns the chain for expiry
// (DDMMMYY, e.g. 21APR25). An empty expiry means one week out.
func (m *ChainProvider) FetchQuotes(ctx context.Context, baseAsset, expiry string) (*models.QuoteSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if baseAsset == "" {
		baseAsset = "BTC"
	}

	var expDate time.Time
	if expiry == "" {
		expDate = m.now().AddDate(0, 0, 7)
	} else {
		d, err := time.Parse(expiryLayout, expiry)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry %q: %w", expiry, err)
		}
		expDate = d
	}
	code := strings.ToUpper(expDate.Format(expiryLayout))

	m.mu.Lock()
	defer m.mu.Unlock()

	// Simulate small price and volatility movements
	m.currentPrice *= 1 + (m.random()-0.5)*0.01
	m.atmIV = math.Max(0.2, math.Min(1.5, m.atmIV*(1+(m.random()-0.45)*0.1)))

	years := math.Max(expDate.Sub(m.now()).Hours()/24/365, 1.0/365)
	center := math.Round(m.currentPrice/strikeInterval) * strikeInterval

	snap := models.NewQuoteSnapshot()
	for i := -strikesEachWay; i <= strikesEachWay; i++ {
		strike := center + float64(i)*strikeInterval
		if strike <= 0 {
			continue
		}
		// Approximate delta from distance to spot, decaying exponentially
		distance := math.Abs(strike-m.currentPrice) / m.currentPrice
		decay := math.Exp(-distance * 25)

		callDelta := 0.5 * decay
		if strike < m.currentPrice {
			callDelta = 1 - 0.5*decay
		}
		putDelta := callDelta - 1

		for _, leg := range []struct {
			typ   string
			delta float64
		}{{"C", callDelta}, {"P", putDelta}} {
			symbol := fmt.Sprintf("%s-%s-%.0f-%s-USDT", baseAsset, code, strike, leg.typ)
			contract, err := models.ParseContract(symbol)
			if err != nil {
				return nil, err
			}
			// Smile: IV rises away from the money
			iv := m.atmIV * (1 + distance*2)
			price := math.Max(5, iv*math.Sqrt(years)*m.currentPrice*0.4*math.Abs(leg.delta))
			spread := math.Max(5, price*0.02)
			snap.Add(models.OptionQuote{
				Contract:        contract,
				IV:              iv,
				Delta:           math.Round(leg.delta*10000) / 10000,
				UnderlyingPrice: m.currentPrice,
				Bid:             math.Round(price - spread/2),
				Ask:             math.Round(price + spread/2),
			})
		}
	}
	return snap, nil
}

// SubmitOrder fills every order immediately
func (m *ChainProvider) SubmitOrder(ctx context.Context, side broker.OrderSide, symbol string, quantity float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !side.Valid() {
		return "", fmt.Errorf("invalid order side %q", side)
	}
	if quantity <= 0 {
		return "", fmt.Errorf("order quantity must be > 0, got %v", quantity)
	}
	return "mock-" + uuid.New().String(), nil
}
