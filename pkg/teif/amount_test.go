package teif

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound3Truncates(t *testing.T) {
	cases := map[string]string{
		"0.0038":   "0.003",
		"0.0031":   "0.003",
		"1.9999":   "1.999",
		"10":       "10.000",
		"-0.0038":  "-0.003",
		"1190.000": "1190.000",
	}
	for in, want := range cases {
		d, err := decimal.NewFromString(in)
		require.NoError(t, err)
		assert.Equal(t, want, Round3(d).StringFixed(3), "Round3(%s)", in)
	}
}

func TestFormatAmount(t *testing.T) {
	d, _ := decimal.NewFromString("1191")
	assert.Equal(t, "1191.000", FormatAmount(d))

	d, _ = decimal.NewFromString("0.0038")
	assert.Equal(t, "0.003", FormatAmount(d))
}

func TestFormatRate(t *testing.T) {
	d, _ := decimal.NewFromString("19")
	assert.Equal(t, "19.00", FormatRate(d))
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 2, 10, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "100226", FormatDate(d))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("100226")
	require.NoError(t, err)
	assert.Equal(t, 2026, d.Year())
	assert.Equal(t, time.February, d.Month())
	assert.Equal(t, 10, d.Day())

	_, err = ParseDate("2026-02-10")
	require.Error(t, err)
}
