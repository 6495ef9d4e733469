package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lendchat/lendchat/pkg/errors"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{name: "whole number", amount: "25", decimals: 6, want: "25000000"},
		{name: "fraction", amount: "1.5", decimals: 6, want: "1500000"},
		{name: "full precision", amount: "0.000001", decimals: 6, want: "1"},
		{name: "eighteen decimals", amount: "0.1", decimals: 18, want: "100000000000000000"},
		{name: "leading dot", amount: ".5", decimals: 2, want: "50"},
		{name: "surrounding spaces", amount: "  3  ", decimals: 0, want: "3"},
		{name: "too many decimals", amount: "0.0000001", decimals: 6, wantErr: true},
		{name: "zero", amount: "0", decimals: 6, wantErr: true},
		{name: "negative", amount: "-5", decimals: 6, wantErr: true},
		{name: "empty", amount: "", decimals: 6, wantErr: true},
		{name: "not a number", amount: "lots", decimals: 6, wantErr: true},
		{name: "two dots", amount: "1.2.3", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.amount, tt.decimals)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals uint8
		want     string
	}{
		{name: "whole", value: "25000000", decimals: 6, want: "25"},
		{name: "fraction", value: "1500000", decimals: 6, want: "1.5"},
		{name: "sub unit", value: "1", decimals: 6, want: "0.000001"},
		{name: "zero", value: "0", decimals: 6, want: "0"},
		{name: "negative", value: "-1500000", decimals: 6, want: "-1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, ok := new(big.Int).SetString(tt.value, 10)
			require.True(t, ok)
			assert.Equal(t, tt.want, FormatAmount(value, tt.decimals))
		})
	}

	t.Run("nil value", func(t *testing.T) {
		assert.Equal(t, "0", FormatAmount(nil, 6))
	})
}

func TestParseFormatRoundTrip(t *testing.T) {
	value, err := ParseAmount("123.456", 6)
	require.NoError(t, err)
	assert.Equal(t, "123.456", FormatAmount(value, 6))
}
