package amaterasu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidSnowflake(t *testing.T) {
	t.Parallel()

	require.True(t, validSnowflake("0"))
	require.True(t, validSnowflake("123456789012345678"))

	require.False(t, validSnowflake(""))
	require.False(t, validSnowflake("12a4"))
	require.False(t, validSnowflake("-123"))
	require.False(t, validSnowflake("１２３")) // digits, but not ASCII
	require.False(t, validSnowflake("123 "))
}

func TestCheckLength(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkLength("content", "", maxContentLength))
	require.NoError(t, checkLength("content", "hello", maxContentLength))
	require.ErrorIs(t,
		checkLength("x", string(make([]byte, maxReasonLength+1)), maxReasonLength),
		ErrContentTooLong)
}

func TestNewSessionStripsScheme(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", NewSession("Bot abc").token)
	require.Equal(t, "abc", NewSession("abc").token)
}
