package builtin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harun/vigil/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPrice(p float64) PriceSource {
	return PriceSourceFunc(func(ctx context.Context, symbol string) (float64, error) {
		return p, nil
	})
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestPriceMonitor(t *testing.T) {
	btcConfig := map[string]any{
		"symbol":          "BTC",
		"threshold":       45000,
		"above_threshold": true,
		"interval":        60,
	}

	t.Run("triggers above threshold", func(t *testing.T) {
		d, err := tool.New(NewPriceMonitor("btc", fixedPrice(46000)), btcConfig)
		require.NoError(t, err)

		active, ok := d.Active()
		require.True(t, ok)

		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.True(t, result.Trigger)
		assert.Equal(t, tool.StatusOK, result.Status)
		assert.Contains(t, result.Description, "BTC")
		assert.Empty(t, result.ToolToCall)
		assert.Equal(t, 46000.0, result.Data["price"])
	})

	t.Run("no trigger below threshold", func(t *testing.T) {
		d, err := tool.New(NewPriceMonitor("btc", fixedPrice(44000)), btcConfig)
		require.NoError(t, err)

		active, _ := d.Active()
		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.False(t, result.Trigger)
	})

	t.Run("below mode", func(t *testing.T) {
		d, err := tool.New(NewPriceMonitor("btc", fixedPrice(44000)), map[string]any{
			"threshold":       45000,
			"above_threshold": false,
		})
		require.NoError(t, err)

		active, _ := d.Active()
		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.True(t, result.Trigger)
		assert.Contains(t, result.Description, "below")
	})

	t.Run("no threshold never triggers", func(t *testing.T) {
		d, err := tool.New(NewPriceMonitor("btc", fixedPrice(1e9)), nil)
		require.NoError(t, err)

		active, _ := d.Active()
		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.False(t, result.Trigger)
	})

	t.Run("proposes trade when action tool set", func(t *testing.T) {
		d, err := tool.New(NewPriceMonitor("btc", fixedPrice(46000)), map[string]any{
			"threshold":     45000,
			"action_tool":   "trader",
			"action_amount": 0.5,
		})
		require.NoError(t, err)

		active, _ := d.Active()
		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.Equal(t, "trader", result.ToolToCall)
		assert.Equal(t, []any{"sell", "BTC", 0.5}, result.Arguments)
	})

	t.Run("action tool requires a positive amount", func(t *testing.T) {
		_, err := tool.New(NewPriceMonitor("btc", fixedPrice(46000)), map[string]any{
			"threshold":   45000,
			"action_tool": "trader",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, tool.ErrConfiguration)
		assert.Contains(t, err.Error(), "action_amount")

		d, err := tool.New(NewPriceMonitor("btc", fixedPrice(46000)), btcConfig)
		require.NoError(t, err)
		err = d.UpdateConfig(map[string]any{"threshold": 45000, "action_tool": "trader", "action_amount": -1})
		assert.ErrorIs(t, err, tool.ErrConfiguration)
		assert.Empty(t, d.Config().String("action_tool"), "previous config stays in effect")
	})

	t.Run("feed error surfaces", func(t *testing.T) {
		failing := PriceSourceFunc(func(ctx context.Context, symbol string) (float64, error) {
			return 0, errors.New("oracle down")
		})
		d, err := tool.New(NewPriceMonitor("btc", failing), btcConfig)
		require.NoError(t, err)

		active, _ := d.Active()
		_, err = active.Check(context.Background(), d.Config())
		assert.ErrorContains(t, err, "oracle down")
	})
}

func TestRandomWalkFeed(t *testing.T) {
	feed := NewRandomWalkFeed(100, 0.1)
	for i := 0; i < 20; i++ {
		p, err := feed.Price(context.Background(), "eth")
		require.NoError(t, err)
		assert.Greater(t, p, 0.0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := feed.Price(ctx, "eth")
	assert.Error(t, err)
}

func TestSocialChecker(t *testing.T) {
	cfg := map[string]any{
		"username":               "alice",
		"password":               "hunter2",
		"monitoring_period_days": 6,
	}

	t.Run("requires credentials", func(t *testing.T) {
		_, err := tool.New(NewSocialChecker("social", StaticLoginSource{}, fixedNow), map[string]any{"username": "alice"})
		var cfgErr *tool.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "password", cfgErr.Field)
	})

	t.Run("triggers after inactivity", func(t *testing.T) {
		source := StaticLoginSource{Age: 7 * 24 * time.Hour, Now: fixedNow}
		d, err := tool.New(NewSocialChecker("social", source, fixedNow), cfg)
		require.NoError(t, err)

		active, _ := d.Active()
		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.True(t, result.Trigger)
		assert.Contains(t, result.Description, "alice")
	})

	t.Run("recent login does not trigger", func(t *testing.T) {
		source := StaticLoginSource{Age: 2 * 24 * time.Hour, Now: fixedNow}
		d, err := tool.New(NewSocialChecker("social", source, fixedNow), cfg)
		require.NoError(t, err)

		active, _ := d.Active()
		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.False(t, result.Trigger)
	})

	t.Run("proposes will execution", func(t *testing.T) {
		source := StaticLoginSource{Age: 200 * 24 * time.Hour, Now: fixedNow}
		d, err := tool.New(NewSocialChecker("social", source, fixedNow), map[string]any{
			"username":    "alice",
			"password":    "hunter2",
			"action_tool": "will",
			"beneficiary": "son.near",
			"amount":      "100",
		})
		require.NoError(t, err)

		active, _ := d.Active()
		result, err := active.Check(context.Background(), d.Config())
		require.NoError(t, err)
		assert.Equal(t, "will", result.ToolToCall)
		assert.Equal(t, []any{"son.near", "100", "near"}, result.Arguments)
	})
}

func TestTradeExecutor(t *testing.T) {
	d, err := tool.New(NewTradeExecutor("trader", fixedNow), map[string]any{"api_key": "k"})
	require.NoError(t, err)
	reactive, ok := d.Reactive()
	require.True(t, ok)

	t.Run("buy", func(t *testing.T) {
		res := reactive.Execute(context.Background(), d.Config(), "buy", "BTC", 0.25)
		assert.Equal(t, tool.StatusSuccess, res.Status)
		assert.Equal(t, "near", res.Result["exchange"])
		assert.Equal(t, "buy_btc_0.25", res.Result["order_id"])
	})

	t.Run("invalid action is an error result", func(t *testing.T) {
		res := reactive.Execute(context.Background(), d.Config(), "hodl", "BTC", 1.0)
		assert.Equal(t, tool.StatusError, res.Status)
		assert.Contains(t, res.Message, "invalid action")
	})

	t.Run("malformed arguments are an error result", func(t *testing.T) {
		assert.Equal(t, tool.StatusError, reactive.Execute(context.Background(), d.Config()).Status)
		assert.Equal(t, tool.StatusError, reactive.Execute(context.Background(), d.Config(), "buy", 42, 1.0).Status)
		assert.Equal(t, tool.StatusError, reactive.Execute(context.Background(), d.Config(), "buy", "BTC", "lots").Status)
	})
}

func TestWillExecutor(t *testing.T) {
	d, err := tool.New(NewWillExecutor("will", fixedNow), nil)
	require.NoError(t, err)
	reactive, _ := d.Reactive()

	t.Run("transfers with default chain", func(t *testing.T) {
		res := reactive.Execute(context.Background(), d.Config(), "son.near", "100")
		assert.Equal(t, tool.StatusSuccess, res.Status)
		assert.Equal(t, "near", res.Result["chain"])
		assert.NotEmpty(t, res.Result["tx_hash"])
	})

	t.Run("chain override and numeric amount", func(t *testing.T) {
		res := reactive.Execute(context.Background(), d.Config(), "son.eth", 2.5, "ethereum")
		assert.Equal(t, tool.StatusSuccess, res.Status)
		assert.Equal(t, "ethereum", res.Result["chain"])
		assert.Equal(t, "2.5", res.Result["amount"])
	})

	t.Run("missing beneficiary", func(t *testing.T) {
		res := reactive.Execute(context.Background(), d.Config(), "", "100")
		assert.Equal(t, tool.StatusError, res.Status)
	})
}

func TestFactory(t *testing.T) {
	for _, typeName := range Types() {
		tl, err := New(typeName, "x-"+typeName, Deps{})
		require.NoError(t, err, typeName)
		assert.Equal(t, "x-"+typeName, tl.Metadata().Name)
	}

	_, err := New("teleporter", "t", Deps{})
	assert.ErrorIs(t, err, tool.ErrConfiguration)
}
