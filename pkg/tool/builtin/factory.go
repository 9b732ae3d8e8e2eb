// Package builtin provides the stock monitoring and action tools.
package builtin

import (
	"fmt"
	"sort"
	"time"

	"github.com/harun/vigil/pkg/tool"
)

// Tool type names accepted in configuration
const (
	TypePriceMonitor  = "price_monitor"
	TypeSocialChecker = "social_checker"
	TypeTradeExecutor = "trade_executor"
	TypeWillExecutor  = "will_executor"
)

// Deps are the external collaborators handed to tools at construction
type Deps struct {
	Prices PriceSource
	Logins LoginSource
	Now    func() time.Time
}

// New instantiates a built-in tool of the given type under name
func New(typeName, name string, deps Deps) (tool.Tool, error) {
	if name == "" {
		name = typeName
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	switch typeName {
	case TypePriceMonitor:
		prices := deps.Prices
		if prices == nil {
			prices = NewRandomWalkFeed(0, 0)
		}
		return NewPriceMonitor(name, prices), nil
	case TypeSocialChecker:
		logins := deps.Logins
		if logins == nil {
			logins = StaticLoginSource{Age: 30 * 24 * time.Hour, Now: now}
		}
		return NewSocialChecker(name, logins, now), nil
	case TypeTradeExecutor:
		return NewTradeExecutor(name, now), nil
	case TypeWillExecutor:
		return NewWillExecutor(name, now), nil
	default:
		return nil, fmt.Errorf("%w: unknown tool type %q", tool.ErrConfiguration, typeName)
	}
}

// Types lists the built-in tool types
func Types() []string {
	types := []string{TypePriceMonitor, TypeSocialChecker, TypeTradeExecutor, TypeWillExecutor}
	sort.Strings(types)
	return types
}
