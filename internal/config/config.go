// Package config loads the settings of the uvcctl tool. Values come from,
// in increasing precedence, a TOML or YAML file, UVC_* environment variables
// and command line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kevmo314/go-uvchost/internal/logging"
)

// EnvPrefix prefixes the env tag of every field.
const EnvPrefix = "UVC_"

// Config is the tool configuration. The key tag is the dotted path of the
// value in the configuration file, env the variable name without EnvPrefix
// and help the flag usage. Flag names derive from the field name.
type Config struct {
	// Config is the configuration file path. It is only set by flag.
	Config string `help:"configuration file (.toml, .yaml or .yml)"`

	Device string `key:"device" env:"DEVICE" help:"usbfs device node, e.g. /dev/bus/usb/001/004"`

	LogLevel   string            `key:"log.level" env:"LOG_LEVEL" help:"log level: trace, debug, info, warn, error"`
	LogFormat  string            `key:"log.format" env:"LOG_FORMAT" help:"log format: text, color or json"`
	LogModules map[string]string `key:"log.modules"`

	Buffers int           `key:"stream.buffers" env:"BUFFERS" help:"reads kept in flight per stream"`
	Timeout time.Duration `key:"control.timeout" env:"TIMEOUT" help:"timeout of a class request"`

	Format   string `key:"stream.format" env:"FORMAT" help:"FourCC of the requested format"`
	Width    int    `key:"stream.width" env:"WIDTH" help:"requested frame width"`
	Height   int    `key:"stream.height" env:"HEIGHT" help:"requested frame height"`
	Interval string `key:"stream.interval" env:"INTERVAL" help:"requested time per frame, e.g. 1/30"`

	Metrics string `key:"metrics.listen" env:"METRICS" help:"address serving /metrics while capturing"`
}

// Default returns the values used when nothing else is set.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Buffers:   8,
		Timeout:   time.Second,
		Format:    "MJPG",
		Width:     640,
		Height:    480,
		Interval:  "1/30",
	}
}

// Logging returns the logging section.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:   c.LogLevel,
		Format:  c.LogFormat,
		Time:    "15:04:05.000",
		Modules: c.LogModules,
	}
}

// BindFlags registers one persistent flag per field of c, defaulting to the
// current value.
func BindFlags(fs *pflag.FlagSet, c *Config) {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := t.Field(i)
		name, usage := fieldNameToFlag(f.Name), f.Tag.Get("help")
		switch p := v.Field(i).Addr().Interface().(type) {
		case *string:
			fs.StringVar(p, name, *p, usage)
		case *int:
			fs.IntVar(p, name, *p, usage)
		case *time.Duration:
			fs.DurationVar(p, name, *p, usage)
		}
	}
}

// Load applies the configuration file named by c.Config, then environment
// variables. Fields whose flag was set on cmd are left alone.
func Load(c *Config, cmd *cobra.Command) error {
	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) {
			changed[f.Name] = true
		})
	}

	var file map[string]any
	if c.Config != "" {
		data, err := os.ReadFile(c.Config)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(c.Config)); ext {
		case ".toml":
			err = toml.Unmarshal(data, &file)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &file)
		default:
			err = fmt.Errorf("unknown config file type %q", ext)
		}
		if err != nil {
			return fmt.Errorf("parse config %s: %w", c.Config, err)
		}
	}

	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := t.Field(i)
		if changed[fieldNameToFlag(f.Name)] {
			continue
		}
		if key := f.Tag.Get("key"); key != "" && file != nil {
			if value := nestedValue(file, key); value != nil {
				if err := setField(v.Field(i), value); err != nil {
					return fmt.Errorf("config %s: %w", key, err)
				}
			}
		}
		if env := f.Tag.Get("env"); env != "" {
			if value, ok := os.LookupEnv(EnvPrefix + env); ok && value != "" {
				if err := setField(v.Field(i), value); err != nil {
					return fmt.Errorf("%s%s: %w", EnvPrefix, env, err)
				}
			}
		}
	}
	return nil
}

// fieldNameToFlag turns LogLevel into log-level.
func fieldNameToFlag(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func nestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setField stores value, as decoded from TOML, YAML or the environment, in
// field.
func setField(field reflect.Value, value any) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		switch x := value.(type) {
		case string:
			d, err := time.ParseDuration(x)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		case int64:
			field.SetInt(x * int64(time.Millisecond))
		case int:
			field.SetInt(int64(x) * int64(time.Millisecond))
		default:
			return fmt.Errorf("duration of type %T", value)
		}
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(fmt.Sprint(value))
	case reflect.Int:
		switch x := value.(type) {
		case int64:
			field.SetInt(x)
		case int:
			field.SetInt(int64(x))
		case string:
			n, err := strconv.Atoi(x)
			if err != nil {
				return err
			}
			field.SetInt(int64(n))
		default:
			return fmt.Errorf("integer of type %T", value)
		}
	case reflect.Map:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("table of type %T", value)
		}
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
		field.Set(reflect.ValueOf(out))
	}
	return nil
}
