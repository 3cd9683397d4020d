package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	select {
	case <-tk.C:
		t.Fatal("tick before advance")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-tk.C:
		assert.Equal(t, start.Add(time.Second), got)
	default:
		t.Fatal("expected tick")
	}
	assert.Equal(t, start.Add(time.Second), c.Now())
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)
	require.Equal(t, 1, c.ActiveTickers())
	tk.Stop()
	c.WaitForTickers(0)
	c.Advance(5 * time.Second)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
