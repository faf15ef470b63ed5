package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTOML(t *testing.T) {
	c := Default()
	c.Config = writeFile(t, "uvc.toml", `
device = "/dev/bus/usb/001/004"

[log]
level = "debug"
format = "json"

[log.modules]
transfers = "trace"

[stream]
buffers = 4
format = "YUYV"
width = 320
height = 240

[control]
timeout = "250ms"
`)
	require.NoError(t, Load(&c, nil))

	assert.Equal(t, "/dev/bus/usb/001/004", c.Device)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, map[string]string{"transfers": "trace"}, c.LogModules)
	assert.Equal(t, 4, c.Buffers)
	assert.Equal(t, "YUYV", c.Format)
	assert.Equal(t, 320, c.Width)
	assert.Equal(t, 240, c.Height)
	assert.Equal(t, 250*time.Millisecond, c.Timeout)
	assert.Equal(t, "1/30", c.Interval)
}

func TestLoadYAML(t *testing.T) {
	c := Default()
	c.Config = writeFile(t, "uvc.yaml", `
device: /dev/bus/usb/002/003
log:
  level: warn
  modules:
    controls: debug
stream:
  buffers: 16
control:
  timeout: 2000
metrics:
  listen: ":9100"
`)
	require.NoError(t, Load(&c, nil))

	assert.Equal(t, "/dev/bus/usb/002/003", c.Device)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, map[string]string{"controls": "debug"}, c.LogModules)
	assert.Equal(t, 16, c.Buffers)
	assert.Equal(t, 2*time.Second, c.Timeout)
	assert.Equal(t, ":9100", c.Metrics)
}

func TestLoadUnknownExtension(t *testing.T) {
	c := Default()
	c.Config = writeFile(t, "uvc.ini", "device=x")
	assert.Error(t, Load(&c, nil))
}

func TestPrecedence(t *testing.T) {
	t.Setenv("UVC_DEVICE", "/dev/from-env")
	t.Setenv("UVC_BUFFERS", "12")
	t.Setenv("UVC_LOG_LEVEL", "error")

	c := Default()
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	BindFlags(cmd.Flags(), &c)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--config", writeFile(t, "uvc.toml", "device = \"/dev/from-file\"\n[stream]\nbuffers = 2\nwidth = 1280\n"),
		"--buffers", "3",
	}))
	require.NoError(t, Load(&c, cmd))

	assert.Equal(t, "/dev/from-env", c.Device, "env beats file")
	assert.Equal(t, 3, c.Buffers, "flag beats env and file")
	assert.Equal(t, 1280, c.Width, "file beats default")
	assert.Equal(t, "error", c.LogLevel)
	assert.Equal(t, 480, c.Height)
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("UVC_TIMEOUT", "soon")
	c := Default()
	assert.Error(t, Load(&c, nil))
}

func TestFieldNameToFlag(t *testing.T) {
	assert.Equal(t, "log-level", fieldNameToFlag("LogLevel"))
	assert.Equal(t, "device", fieldNameToFlag("Device"))
}
