// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, RemovalContributor, cfg.RemovalPolicy)
	require.Equal(t, 5*time.Second, cfg.AcquireTimeout)
	require.Equal(t, 30*time.Minute, cfg.IdleSessionTTL)
	require.True(t, cfg.AutoAdvance)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("JAMD_LISTEN", ":9090")
	t.Setenv("JAMD_ACQUIRE_TIMEOUT", "250ms")
	t.Setenv("JAMD_REMOVAL_POLICY", "owner")
	t.Setenv("JAMD_AUTO_ADVANCE", "false")

	cfg := FromEnv()
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, 250*time.Millisecond, cfg.AcquireTimeout)
	require.Equal(t, RemovalOwner, cfg.RemovalPolicy)
	require.False(t, cfg.AutoAdvance)
}

func TestInvalidEnvValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("JAMD_ACQUIRE_TIMEOUT", "soon")
	t.Setenv("JAMD_SUBSCRIBER_BUFFER", "many")

	cfg := FromEnv()
	require.Equal(t, 5*time.Second, cfg.AcquireTimeout)
	require.Equal(t, 16, cfg.SubscriberBuffer)
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg := FromEnv()
	cfg.RemovalPolicy = "committee"
	require.Error(t, cfg.Validate())
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jamd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":7070"
acquire_timeout: 2s
removal_policy: any
subscriber_buffer: 64
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.ListenAddr)
	require.Equal(t, 2*time.Second, cfg.AcquireTimeout)
	require.Equal(t, RemovalAny, cfg.RemovalPolicy)
	require.Equal(t, 64, cfg.SubscriberBuffer)
	// Untouched fields keep their defaults.
	require.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	t.Setenv("JAMD_LISTEN", ":9999")

	path := filepath.Join(t.TempDir(), "jamd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":7070"`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoadBadDurationFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jamd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`acquire_timeout: eventually`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
