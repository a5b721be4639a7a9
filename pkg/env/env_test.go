package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("SM_ENV_TEST", "  ")
	require.Equal(t, "json", Get("SM_ENV_TEST", "json"))

	t.Setenv("SM_ENV_TEST", " console ")
	require.Equal(t, "console", Get("SM_ENV_TEST", "json"))
}

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("SM_ENV_A", "")
	t.Setenv("SM_ENV_B", "web.1")
	t.Setenv("SM_ENV_C", "other")
	require.Equal(t, "web.1", First("SM_ENV_A", "SM_ENV_B", "SM_ENV_C"))
	require.Empty(t, First("SM_ENV_A"))
}
