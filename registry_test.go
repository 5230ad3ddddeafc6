package netresolve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackendChainParsing(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	require.NoError(t, ctx.SetBackendString("unix|+hosts:/tmp/hosts|numerichost"))
	require.Len(t, ctx.chain, 3)

	require.Equal(t, "unix", ctx.chain[0].name)
	require.False(t, ctx.chain[0].mandatory)
	require.Empty(t, ctx.chain[0].settings)

	require.Equal(t, "hosts", ctx.chain[1].name)
	require.True(t, ctx.chain[1].mandatory)
	require.Equal(t, []string{"/tmp/hosts"}, ctx.chain[1].settings)

	require.Equal(t, "numerichost", ctx.chain[2].name)
}

func TestBackendChainUnknown(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	// Unknown optional backends are skipped with a warning.
	require.NoError(t, ctx.SetBackendString("nosuchbackend|numerichost"))
	require.Len(t, ctx.chain, 1)
	require.Equal(t, "numerichost", ctx.chain[0].name)

	// Unknown mandatory backends abort the chain.
	err := ctx.SetBackendString("+nosuchbackend|numerichost")
	var config ConfigError
	require.ErrorAs(t, err, &config)
}

func TestBackendChainDefault(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	require.NoError(t, ctx.SetBackendString(""))
	var names []string
	for _, entry := range ctx.chain {
		names = append(names, entry.name)
	}
	require.Equal(t, []string{"unix", "any", "loopback", "numerichost", "hosts", "hostname", "mdns", "dns"}, names)
}

func TestBackendChainExecSettings(t *testing.T) {
	ctx := NewContext()
	defer ctx.Close()

	require.NoError(t, ctx.SetBackendString("exec:/bin/echo:hello:world"))
	require.Len(t, ctx.chain, 1)
	require.Equal(t, []string{"/bin/echo", "hello", "world"}, ctx.chain[0].settings)
}
