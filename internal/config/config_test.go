package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "0.0.0.0:3000", c.Addr())
	assert.Equal(t, engine.DefaultRules(), c.Rules())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	c := Default()
	c.Port = 0
	c.Mode = "sudden-death"
	c.Transport = "carrier-pigeon"
	c.JoinTimeout = 0

	err := c.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestValidate_DirectNeedsPeerAddr(t *testing.T) {
	c := Default()
	c.Transport = TransportDirect
	c.PeerAddr = "nope"
	assert.Error(t, c.Validate())
}

func TestValidate_DocNeedsDatabase(t *testing.T) {
	c := Default()
	c.Transport = TransportDoc
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--database")

	c.Database = "postgres://quiz@localhost/quiz"
	assert.NoError(t, c.Validate())
}

func TestLoadEnv_FillsUnsetFlags(t *testing.T) {
	t.Setenv("TUGQUIZ_PORT", "4000")
	t.Setenv("TUGQUIZ_ROOM_IDLE_TIMEOUT", "90s")
	t.Setenv("TUGQUIZ_BIND", "127.0.0.1")

	c := Default()
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	AddServerFlags(fs, &c)
	require.NoError(t, fs.Parse([]string{"--bind", "10.0.0.1"}))

	require.NoError(t, LoadEnv(fs, ""))
	assert.Equal(t, 4000, c.Port)
	assert.Equal(t, 90*time.Second, c.RoomIdleTimeout)
	// Command line wins over the environment.
	assert.Equal(t, "10.0.0.1", c.Bind)
}

func TestLoadEnv_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TUGQUIZ_JOIN_TIMEOUT=3s\nTUGQUIZ_TRANSPORT=doc\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("TUGQUIZ_JOIN_TIMEOUT")
		os.Unsetenv("TUGQUIZ_TRANSPORT")
	})

	c := Default()
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	AddClientFlags(fs, &c)
	require.NoError(t, fs.Parse(nil))

	require.NoError(t, LoadEnv(fs, path))
	assert.Equal(t, 3*time.Second, c.JoinTimeout)
	assert.Equal(t, TransportDoc, c.Transport)
}

func TestLoadEnv_MissingDotEnvIsFine(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	AddClientFlags(fs, &c)
	assert.NoError(t, LoadEnv(fs, filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadEnv_BadValue(t *testing.T) {
	t.Setenv("TUGQUIZ_PORT", "many")

	c := Default()
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	AddServerFlags(fs, &c)
	assert.Error(t, LoadEnv(fs, ""))
}
