package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDollar(t *testing.T) {
	v := parseDollar("$1234")
	require.NotNil(t, v)
	assert.Equal(t, int64(1234), *v)

	v = parseDollar("$5 USD")
	require.NotNil(t, v)
	assert.Equal(t, int64(5), *v)

	assert.Nil(t, parseDollar(""))
	assert.Nil(t, parseDollar("1234"))
	assert.Nil(t, parseDollar("USD 1234"))
}

func TestParseEndTime(t *testing.T) {
	got := parseEndTime("2026-09-01T12:30:00Z")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC), *got)

	got = parseEndTime("2026-09-01T12:30:00")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC), *got)

	got = parseEndTime("2026-09-01 12:30:00")
	require.NotNil(t, got)

	assert.Nil(t, parseEndTime(""))
	assert.Nil(t, parseEndTime("next tuesday"))
}

func TestParseDecimal(t *testing.T) {
	v := parseDecimal("123")
	require.NotNil(t, v)
	assert.Equal(t, int64(123), *v)

	v = parseDecimal("123.99")
	require.NotNil(t, v)
	assert.Equal(t, int64(123), *v)

	assert.Nil(t, parseDecimal(""))
	assert.Nil(t, parseDecimal("n/a"))
}

func TestDefaults(t *testing.T) {
	adapters := Defaults(time.Minute)
	require.Len(t, adapters, 2)
	assert.Equal(t, "godaddy", adapters[0].Name())
	assert.Equal(t, "namecheap", adapters[1].Name())
}
