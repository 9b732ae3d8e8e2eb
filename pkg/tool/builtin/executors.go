package builtin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harun/vigil/pkg/tool"
)

// TradeExecutor places buy/sell orders on demand
type TradeExecutor struct {
	name string
	now  func() time.Time
}

// NewTradeExecutor creates a trade executor
func NewTradeExecutor(name string, now func() time.Time) *TradeExecutor {
	if now == nil {
		now = time.Now
	}
	return &TradeExecutor{name: name, now: now}
}

// Metadata implements tool.Tool
func (e *TradeExecutor) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        e.name,
		Kind:        tool.KindReactive,
		Description: "Executes buy or sell orders. Arguments: action, symbol, amount",
		ConfigSchema: tool.Schema{
			"exchange": {Type: tool.FieldString, Default: "near"},
			"api_key":  {Type: tool.FieldString, Required: true, Secret: true},
		},
	}
}

// Execute implements tool.Reactive
func (e *TradeExecutor) Execute(ctx context.Context, cfg tool.Config, args ...any) tool.ExecuteResult {
	if err := ctx.Err(); err != nil {
		return tool.ExecuteError("cancelled: %v", err)
	}
	if len(args) != 3 {
		return tool.ExecuteError("expected 3 arguments (action, symbol, amount), got %d", len(args))
	}

	action, ok := args[0].(string)
	if !ok {
		return tool.ExecuteError("action must be a string")
	}
	symbol, ok := args[1].(string)
	if !ok || symbol == "" {
		return tool.ExecuteError("symbol must be a non-empty string")
	}
	amount, ok := number(args[2])
	if !ok || amount <= 0 {
		return tool.ExecuteError("amount must be a positive number")
	}

	switch action {
	case "buy", "sell":
	default:
		return tool.ExecuteError("invalid action %q", action)
	}

	exchange := cfg.String("exchange")
	return tool.ExecuteResult{
		Status: tool.StatusSuccess,
		Result: map[string]any{
			"action":    action,
			"symbol":    symbol,
			"amount":    amount,
			"exchange":  exchange,
			"order_id":  fmt.Sprintf("%s_%s_%s", action, strings.ToLower(symbol), strconv.FormatFloat(amount, 'f', -1, 64)),
			"timestamp": e.now().UTC().Format(time.RFC3339),
		},
	}
}

// WillExecutor transfers assets to a beneficiary
type WillExecutor struct {
	name string
	now  func() time.Time
}

// NewWillExecutor creates a will executor
func NewWillExecutor(name string, now func() time.Time) *WillExecutor {
	if now == nil {
		now = time.Now
	}
	return &WillExecutor{name: name, now: now}
}

// Metadata implements tool.Tool
func (e *WillExecutor) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        e.name,
		Kind:        tool.KindReactive,
		Description: "Executes a will by transferring assets. Arguments: beneficiary, amount[, chain]",
		ConfigSchema: tool.Schema{
			"chain": {Type: tool.FieldString, Default: "near"},
		},
	}
}

// Execute implements tool.Reactive
func (e *WillExecutor) Execute(ctx context.Context, cfg tool.Config, args ...any) tool.ExecuteResult {
	if err := ctx.Err(); err != nil {
		return tool.ExecuteError("cancelled: %v", err)
	}
	if len(args) < 2 || len(args) > 3 {
		return tool.ExecuteError("expected beneficiary, amount and optional chain, got %d arguments", len(args))
	}

	beneficiary, ok := args[0].(string)
	if !ok || beneficiary == "" {
		return tool.ExecuteError("beneficiary must be a non-empty string")
	}

	var amount string
	switch v := args[1].(type) {
	case string:
		amount = v
	default:
		n, ok := number(v)
		if !ok {
			return tool.ExecuteError("amount must be a string or number")
		}
		amount = strconv.FormatFloat(n, 'f', -1, 64)
	}
	if amount == "" {
		return tool.ExecuteError("amount cannot be empty")
	}

	chain := cfg.String("chain")
	if len(args) == 3 {
		c, ok := args[2].(string)
		if !ok {
			return tool.ExecuteError("chain must be a string")
		}
		if c != "" {
			chain = c
		}
	}

	sum := sha256.Sum256([]byte(beneficiary + "|" + amount + "|" + chain))
	return tool.ExecuteResult{
		Status: tool.StatusSuccess,
		Result: map[string]any{
			"beneficiary": beneficiary,
			"amount":      amount,
			"chain":       chain,
			"tx_hash":     "0x" + hex.EncodeToString(sum[:16]),
			"timestamp":   e.now().UTC().Format(time.RFC3339),
		},
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
