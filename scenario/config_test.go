package scenario

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)

	t.Setenv("ZEIPC_BACKEND", "sim:devices=3")
	t.Setenv("ZEIPC_BUFFER_SIZE", "128")
	t.Setenv("ZEIPC_ALLOC_MODE", "reserved")
	t.Setenv("ZEIPC_PATTERN_SEED", "9")
	t.Setenv("ZEIPC_VERBOSITY", "2")
	t.Setenv("ZEIPC_ROLE", "receiver")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	require.Equal(t, Config{
		Backend:     "sim:devices=3",
		BufferSize:  128,
		AllocMode:   AllocReserved,
		PatternSeed: 9,
		Verbosity:   2,
		Role:        RoleReceiver,
		ChannelFD:   DefaultChannelFD,
	}, cfg)

	t.Setenv("ZEIPC_ALLOC_MODE", "shared")
	_, err = LoadConfig()
	require.ErrorContains(t, err, `invalid allocation mode "shared"`)

	t.Setenv("ZEIPC_ALLOC_MODE", "device")
	t.Setenv("ZEIPC_PATTERN_SEED", "0")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "invalid pattern seed 0")

	t.Setenv("ZEIPC_PATTERN_SEED", "1")
	t.Setenv("ZEIPC_BUFFER_SIZE", "lots")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestEnviron(t *testing.T) {
	t.Setenv("ZEIPC_STALE", "1")
	cfg := DefaultConfig()
	cfg.Backend = "sim"
	env := cfg.environ(RoleReceiver)
	var zeipc []string
	for _, kv := range env {
		if strings.HasPrefix(kv, "ZEIPC_") {
			zeipc = append(zeipc, kv)
		}
	}
	require.ElementsMatch(t, []string{
		"ZEIPC_BACKEND=sim",
		"ZEIPC_BUFFER_SIZE=4096",
		"ZEIPC_ALLOC_MODE=device",
		"ZEIPC_PATTERN_SEED=1",
		"ZEIPC_VERBOSITY=0",
		"ZEIPC_ROLE=receiver",
		"ZEIPC_CHANNEL_FD=3",
	}, zeipc)

	require.NotContains(t, cfg.environ(RoleSender), "ZEIPC_CHANNEL_FD=3")
}
