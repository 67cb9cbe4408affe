package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in       string
		expected int64
		wantErr  bool
	}{
		{"10000B", 10000, false},
		{"1KB", 1000, false},
		{"16GB", 16e9, false},
		{"1.5MB", 1500000, false},
		{"2TB", 2e12, false},
		{"42", 42, false},
		{"", 0, true},
		{"banana", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseFlopRate(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
		wantErr  bool
	}{
		{"1Gf", 1e9, false},
		{"500Mf", 5e8, false},
		{"2kf", 2000, false},
		{"1000", 1000, false},
		{"fast", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFlopRate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseBandwidth(t *testing.T) {
	got, err := ParseBandwidth("125MBps")
	require.NoError(t, err)
	assert.Equal(t, 1.25e8, got)

	got, err = ParseBandwidth("1000000")
	require.NoError(t, err)
	assert.Equal(t, 1e6, got)

	_, err = ParseBandwidth("slow")
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	got, err := ParseDuration("100us")
	require.NoError(t, err)
	assert.InDelta(t, 1e-4, got, 1e-12)

	got, err = ParseDuration("10ms")
	require.NoError(t, err)
	assert.InDelta(t, 0.01, got, 1e-12)

	got, err = ParseDuration("2s")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}
