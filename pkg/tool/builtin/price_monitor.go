package builtin

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/harun/vigil/pkg/tool"
)

// PriceSource returns the latest price for a symbol
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// PriceSourceFunc adapts a function to PriceSource
type PriceSourceFunc func(ctx context.Context, symbol string) (float64, error)

// Price implements PriceSource
func (f PriceSourceFunc) Price(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

// RandomWalkFeed is an offline price feed. Each symbol starts at the base
// price and moves by at most volatility (a fraction) per read.
type RandomWalkFeed struct {
	mu         sync.Mutex
	base       float64
	volatility float64
	prices     map[string]float64
	rng        *rand.Rand
}

// NewRandomWalkFeed creates a feed around base
func NewRandomWalkFeed(base, volatility float64) *RandomWalkFeed {
	if base <= 0 {
		base = 45000
	}
	if volatility <= 0 {
		volatility = 0.02
	}
	return &RandomWalkFeed{
		base:       base,
		volatility: volatility,
		prices:     make(map[string]float64),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Price implements PriceSource
func (f *RandomWalkFeed) Price(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.ToUpper(symbol)
	current, ok := f.prices[key]
	if !ok {
		current = f.base
	}

	delta := (f.rng.Float64()*2 - 1) * f.volatility
	next := current * (1 + delta)
	f.prices[key] = next

	return next, nil
}

const defaultPriceInterval = 60 * time.Second

// PriceMonitor triggers when a symbol's price crosses a threshold
type PriceMonitor struct {
	name   string
	prices PriceSource
}

// NewPriceMonitor creates a price monitor reading from prices
func NewPriceMonitor(name string, prices PriceSource) *PriceMonitor {
	return &PriceMonitor{name: name, prices: prices}
}

// Metadata implements tool.Tool
func (m *PriceMonitor) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        m.name,
		Kind:        tool.KindActive,
		Description: "Monitors a crypto price and triggers when it crosses a threshold",
		ConfigSchema: tool.Schema{
			"symbol":          {Type: tool.FieldString, Required: true, Default: "BTC", Description: "Ticker symbol"},
			"threshold":       {Type: tool.FieldFloat, Description: "Price threshold; without it the monitor never triggers"},
			"above_threshold": {Type: tool.FieldBool, Default: true, Description: "Trigger when price is at or above the threshold"},
			"interval":        {Type: tool.FieldInt, Default: 60, Description: "Seconds between checks"},
			"action_tool":     {Type: tool.FieldString, Default: "", Description: "Reactive tool proposed on trigger"},
			"action_amount":   {Type: tool.FieldFloat, Default: 0, Description: "Amount passed to the proposed trade; must be positive when action_tool is set"},
		},
	}
}

// ValidateConfig implements tool.ConfigValidator. A proposal without a
// positive amount could never execute.
func (m *PriceMonitor) ValidateConfig(cfg tool.Config) error {
	if cfg.String("action_tool") == "" {
		return nil
	}
	if amount, _ := cfg.Float("action_amount"); amount <= 0 {
		return &tool.ConfigurationError{Tool: m.name, Field: "action_amount", Reason: "must be positive when action_tool is set"}
	}
	return nil
}

// DefaultInterval implements tool.Active
func (m *PriceMonitor) DefaultInterval() time.Duration {
	return defaultPriceInterval
}

// Check implements tool.Active
func (m *PriceMonitor) Check(ctx context.Context, cfg tool.Config) (tool.CheckResult, error) {
	symbol := cfg.String("symbol")

	price, err := m.prices.Price(ctx, symbol)
	if err != nil {
		return tool.CheckResult{}, fmt.Errorf("fetch %s price: %w", symbol, err)
	}

	result := tool.CheckResult{
		Status: tool.StatusOK,
		Data: map[string]any{
			"symbol": symbol,
			"price":  price,
		},
	}

	threshold, ok := cfg.Float("threshold")
	if !ok {
		return result, nil
	}

	above := cfg.Bool("above_threshold")
	if above {
		result.Trigger = price >= threshold
	} else {
		result.Trigger = price <= threshold
	}

	if !result.Trigger {
		return result, nil
	}

	direction, side := "below", "buy"
	if above {
		direction, side = "above", "sell"
	}
	result.Data["threshold"] = threshold
	result.Description = fmt.Sprintf("%s price %.2f is %s threshold %.2f", symbol, price, direction, threshold)

	if actionTool := cfg.String("action_tool"); actionTool != "" {
		amount, _ := cfg.Float("action_amount")
		result.ToolToCall = actionTool
		result.Arguments = []any{side, symbol, amount}
	}

	return result, nil
}
