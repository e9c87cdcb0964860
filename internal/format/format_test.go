package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrencyGroupsWholeUnits(t *testing.T) {
	f := New("en-US", "$")
	assert.Equal(t, "$142,000", f.Currency(142000))
	assert.Equal(t, "$142,000", f.Currency(142000.4))
	assert.Equal(t, "$3", f.Currency(2.5))
	assert.Equal(t, "-$1,200", f.Currency(-1200))
	assert.Equal(t, "-", f.Currency(math.Inf(1)))
}

func TestPercentAndYears(t *testing.T) {
	f := New("en-US", "$")
	assert.Equal(t, "33.8%", f.Percent(48000.0/142000.0*100))
	assert.Equal(t, "3.0 years", f.Years(142000.0/48000.0))
	assert.Equal(t, Never, f.Years(math.Inf(1)))
	assert.Equal(t, "4 kW", f.KW(4))
}

func TestUnknownLocaleFallsBack(t *testing.T) {
	f := New("not a locale!!", "₹")
	assert.NotEmpty(t, f.Currency(1000))
	assert.Equal(t, "₹0", f.Currency(0))
}
