package event_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/glowdan/framework/pkg/framework/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("named with params", func(t *testing.T) {
		params := event.Params{"id": 42}
		evt, err := event.New(" order.created ", params)
		require.NoError(t, err)

		assert.Equal(t, "order.created", evt.Name())
		assert.Equal(t, 42, evt.GetParam("id", nil))
		assert.Nil(t, evt.Target())
		assert.False(t, evt.IsPropagationStopped())

		// params are stored, not copied
		params["extra"] = true
		assert.True(t, evt.HasParam("extra"))
	})

	t.Run("unnamed", func(t *testing.T) {
		evt, err := event.New("", nil)
		require.NoError(t, err)
		assert.Empty(t, evt.Name())
		assert.NotNil(t, evt.Params())
	})

	t.Run("invalid name", func(t *testing.T) {
		evt, err := event.New("bad name!", nil)
		assert.ErrorIs(t, err, event.ErrInvalidName)
		assert.Nil(t, evt)
	})

	t.Run("MustNew panics", func(t *testing.T) {
		assert.Panics(t, func() { event.MustNew("x", nil) })
		assert.NotPanics(t, func() { event.MustNew("ok.name", nil) })
	})
}

func TestSetName(t *testing.T) {
	evt := event.MustNew("first.name", nil)

	require.NoError(t, evt.SetName("second.name"))
	assert.Equal(t, "second.name", evt.Name())

	err := evt.SetName("")
	assert.ErrorIs(t, err, event.ErrInvalidName)
	assert.Equal(t, "second.name", evt.Name(), "failed rename keeps the old name")
}

func TestZeroEvent(t *testing.T) {
	var evt event.Event

	assert.Empty(t, evt.Name())
	assert.Nil(t, evt.GetParam("k", nil))
	assert.False(t, evt.HasParam("k"))
	evt.RemoveParam("k")

	_, err := evt.SetParam(event.Key("k"), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, evt.Get("k"))
}

func TestParamBag(t *testing.T) {
	t.Run("SetParams replaces", func(t *testing.T) {
		evt := event.MustNew("bag.test", event.Params{"a": 1, "b": 2})
		evt.SetParams(event.Params{"c": 3})
		assert.Equal(t, event.Params{"c": 3}, evt.Params())

		evt.SetParams(nil)
		assert.Empty(t, evt.Params())
	})

	t.Run("AddParams merges with incoming winning", func(t *testing.T) {
		evt := event.MustNew("bag.test", event.Params{"a": 1, "b": 2})
		same := evt.AddParams(event.Params{"b": 20, "c": 30})
		assert.Same(t, evt, same)
		assert.Equal(t, event.Params{"a": 1, "b": 20, "c": 30}, evt.Params())
	})

	t.Run("Params is live", func(t *testing.T) {
		evt := event.MustNew("bag.test", nil)
		evt.Params()["k"] = "v"
		assert.Equal(t, "v", evt.GetParam("k", nil))

		clone := evt.Params().Clone()
		clone["k"] = "changed"
		assert.Equal(t, "v", evt.GetParam("k", nil))
	})

	t.Run("ClearParams returns previous bag", func(t *testing.T) {
		before := event.Params{"a": 1, "b": "two"}
		evt := event.MustNew("bag.test", before)

		old := evt.ClearParams()
		assert.Equal(t, event.Params{"a": 1, "b": "two"}, old)
		assert.Empty(t, evt.Params())
		assert.NotNil(t, evt.Params())
	})
}

func TestAddParam_SetIfAbsent(t *testing.T) {
	evt := event.MustNew("param.test", nil)

	same, err := evt.AddParam(event.Key("k"), "first")
	require.NoError(t, err)
	assert.Same(t, evt, same)

	same, err = evt.AddParam(event.Key("k"), "second")
	require.NoError(t, err)
	assert.Same(t, evt, same, "no-op still returns the event")
	assert.Equal(t, "first", evt.GetParam("k", nil))

	// a nil value counts as absent
	evt.Set("n", nil)
	_, err = evt.AddParam(event.Key("n"), "filled")
	require.NoError(t, err)
	assert.Equal(t, "filled", evt.GetParam("n", nil))

	_, err = evt.AddParam(event.NilKey, "x")
	assert.ErrorIs(t, err, event.ErrNullArgument)
}

func TestSetParam(t *testing.T) {
	evt := event.MustNew("param.test", nil)

	_, err := evt.SetParam(event.Key("k"), "first")
	require.NoError(t, err)
	_, err = evt.SetParam(event.Key("k"), "second")
	require.NoError(t, err)
	assert.Equal(t, "second", evt.GetParam("k", nil))

	t.Run("empty string is a legal key", func(t *testing.T) {
		_, err := evt.SetParam(event.Key(""), "blank")
		require.NoError(t, err)
		assert.True(t, evt.HasParam(""))
		assert.Equal(t, "blank", evt.GetParam("", nil))
	})

	t.Run("NilKey is rejected without side effects", func(t *testing.T) {
		before := evt.Params().Clone()
		same, err := evt.SetParam(event.NilKey, "value")
		assert.ErrorIs(t, err, event.ErrNullArgument)
		assert.Same(t, evt, same)
		assert.Equal(t, before, evt.Params())
	})
}

func TestGetHasRemove(t *testing.T) {
	evt := event.MustNew("param.test", event.Params{"k": "v", "zero": 0, "nil": nil})

	assert.Equal(t, "v", evt.GetParam("k", "def"))
	assert.Equal(t, "def", evt.GetParam("missing", "def"))
	assert.Equal(t, "def", evt.GetParam("nil", "def"))
	assert.Equal(t, 0, evt.GetParam("zero", "def"), "zero values are values")

	assert.True(t, evt.HasParam("k"))
	assert.True(t, evt.HasParam("zero"))
	assert.False(t, evt.HasParam("nil"))
	assert.False(t, evt.HasParam("missing"))

	evt.RemoveParam("k")
	evt.RemoveParam("missing")
	evt.RemoveParam("nil")
	assert.False(t, evt.HasParam("k"))
	assert.Equal(t, event.Params{"zero": 0}, evt.Params())
}

func TestAccessor(t *testing.T) {
	var acc event.Accessor = event.MustNew("index.test", event.Params{"k": "first"})

	acc.Set("k", "second")
	assert.Equal(t, "second", acc.Get("k"), "Set overwrites like SetParam")
	assert.True(t, acc.Has("k"))
	assert.Nil(t, acc.Get("missing"))

	acc.Delete("k")
	assert.False(t, acc.Has("k"))
}

func TestTypedParams(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	evt := event.MustNew("typed.test", event.Params{
		"id":      42,
		"amount":  19.99,
		"paid":    true,
		"user":    "ann",
		"ttl":     "5s",
		"created": ts,
	})
	p := evt.Params()

	assert.Equal(t, 42, p.Int("id", 0))
	assert.InDelta(t, 19.99, p.Float("amount", 0), 1e-9)
	assert.True(t, p.Bool("paid", false))
	assert.Equal(t, "ann", p.String("user", ""))
	assert.Equal(t, 5*time.Second, p.Duration("ttl", 0))
	assert.True(t, p.Time("created", time.Time{}).Equal(ts))
	assert.Equal(t, -1, p.Int("user", -1))
}

func TestParamKey(t *testing.T) {
	name, ok := event.Key("").Name()
	assert.True(t, ok)
	assert.Empty(t, name)
	assert.False(t, event.Key("").IsNil())

	_, ok = event.NilKey.Name()
	assert.False(t, ok)
	assert.True(t, event.NilKey.IsNil())
	assert.Equal(t, "<nil>", event.NilKey.String())
	assert.Equal(t, "id", event.Key("id").String())
}

func TestTarget(t *testing.T) {
	type order struct{ ID int }
	evt := event.MustNew("target.test", nil)

	o := &order{ID: 1}
	evt.SetTarget(o)
	assert.Same(t, o, evt.Target())

	evt.SetTarget("string target")
	assert.Equal(t, "string target", evt.Target())

	evt.SetTarget(nil)
	assert.Nil(t, evt.Target())
}

func TestPropagation(t *testing.T) {
	evt := event.MustNew("stop.test", nil)
	assert.False(t, evt.IsPropagationStopped())

	evt.StopPropagation(true)
	assert.True(t, evt.IsPropagationStopped())

	evt.StopPropagation(false)
	assert.False(t, evt.IsPropagationStopped())
}

func TestStringAndLogValue(t *testing.T) {
	evt := event.MustNew("order.created", event.Params{"id": 1})
	evt.StopPropagation(true)
	assert.Equal(t, "event order.created (1 params, stopped=true)", evt.String())

	var unnamed event.Event
	assert.Contains(t, unnamed.String(), "<unnamed>")

	v := evt.LogValue()
	require.Equal(t, slog.KindGroup, v.Kind())
	attrs := v.Group()
	require.Len(t, attrs, 3)
	assert.Equal(t, "order.created", attrs[0].Value.String())
}
