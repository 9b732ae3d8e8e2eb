// Package tool defines the capability contract for monitoring and action tools.
//
// Invariants:
//   - A tool is either Active (polled through Check) or Reactive (invoked
//     through Execute), decided when its Descriptor is built and never
//     afterwards.
//   - Required options must be present, after defaults, before a Descriptor exists.
//   - Tool names are unique within a Registry.
//
// Usage:
//
//	t, err := builtin.New("price_monitor", "btc_monitor", deps)
//	if err != nil {
//		return err
//	}
//	d, err := tool.New(t, map[string]any{"symbol": "BTC", "threshold": 45000})
//	if err != nil {
//		return err
//	}
//	_ = registry.Register(d)
package tool
