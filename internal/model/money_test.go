package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyFromStringRoundsToFourDigits(t *testing.T) {
	m, err := NewMoneyFromString("2.50001")
	require.NoError(t, err)
	assert.Equal(t, "2.5000", m.String())

	m, err = NewMoneyFromString("0.00005")
	require.NoError(t, err)
	assert.Equal(t, "0.0001", m.String())
}

func TestMoneyAddSub(t *testing.T) {
	a, _ := NewMoneyFromString("2.6000")
	b, _ := NewMoneyFromString("2.5000")
	assert.Equal(t, "5.1000", a.Add(b).String())
	assert.Equal(t, "0.1000", a.Sub(b).String())
}

func TestMoneyMulTokensNeverUsesFloat(t *testing.T) {
	// $0.0050 per 1K tokens, 2500 tokens => 0.0050 * 2.5 = 0.0125
	rate, _ := NewMoneyFromString("0.0050")
	cost := rate.MulTokens(2500)
	assert.Equal(t, "0.0125", cost.String())
}

func TestMoneyCmp(t *testing.T) {
	a, _ := NewMoneyFromString("1.0000")
	b, _ := NewMoneyFromString("2.0000")
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	a, _ := NewMoneyFromString("12.3400")
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `"12.3400"`, string(data))

	var out Money
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, a, out)
}

func TestMoneyNegative(t *testing.T) {
	a, _ := NewMoneyFromString("-1.5000")
	assert.True(t, a.IsNeg())
	assert.Equal(t, "-1.5000", a.String())
}
