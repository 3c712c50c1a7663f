package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$1,431.43", "1431.43"},
		{"452.67", "452.67"},
		{" USD 2,000 ", "2000"},
		{"1.431.43", "1431.43"},
		{"abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "normalization must be idempotent")
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("$1,431.43", "1431.43"))
	assert.True(t, Equal("500", "$500.00"))
	assert.False(t, Equal("452.67", "452.68"))
	assert.False(t, Equal("", "0"))
}

func TestParse(t *testing.T) {
	d, err := Parse("$1,431.43")
	require.NoError(t, err)
	assert.Equal(t, "1431.43", d.String())

	_, err = Parse("n/a")
	assert.Error(t, err)
}

func TestLooks(t *testing.T) {
	assert.True(t, Looks("$1,431.43"))
	assert.True(t, Looks("452.67"))
	assert.True(t, Looks("USD 90"))
	assert.False(t, Looks("111111111111"))
	assert.False(t, Looks("INV001"))
	assert.False(t, Looks("Total"))
}
