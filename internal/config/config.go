// Package config loads capmon's configuration from defaults, an optional
// config file, CAPMON_* environment variables and command line flags.
package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/capmon/capmon"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override the config,
// e.g. CAPMON_LOG_MAX_SIZE for log.max_size.
const EnvPrefix = "CAPMON"

// Config represents the complete capmon configuration.
type Config struct {
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
}

// CaptureConfig controls the capture tool and its files.
type CaptureConfig struct {
	// Command is the capture tool, either a path or a name looked up in $PATH.
	Command string `mapstructure:"command" yaml:"command"`
	// Args are passed to the capture tool before the output flag.
	Args []string `mapstructure:"args" yaml:"args"`
	// OutputFlag precedes the output file path (default: "-output").
	OutputFlag string `mapstructure:"output_flag" yaml:"output_flag"`
	// Dir is where capture files are written.
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Suffix string `mapstructure:"suffix" yaml:"suffix"`
	// DateLayout is a Go time layout (default: "20060102").
	DateLayout string `mapstructure:"date_layout" yaml:"date_layout"`
	// RetentionDays is the age in days after which capture files are deleted.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
	// Watch restarts the capture as soon as its file is deleted.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// LogConfig controls capmon's own log file.
type LogConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// File is joined with Dir if it is a bare file name.
	File string `mapstructure:"file" yaml:"file"`
	// MaxSize is the size in bytes above which the log is trimmed.
	MaxSize int64 `mapstructure:"max_size" yaml:"max_size"`
	// Allowance is kept free below MaxSize after a trim.
	Allowance int64 `mapstructure:"allowance" yaml:"allowance"`
	// BlockSize is the trim granularity in bytes.
	BlockSize int64  `mapstructure:"block_size" yaml:"block_size"`
	TmpDir    string `mapstructure:"tmp_dir" yaml:"tmp_dir"`
	// Verbose echoes every journaled event to stdout.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
}

// SupervisorConfig controls the supervisor loop.
type SupervisorConfig struct {
	Tick time.Duration `mapstructure:"tick" yaml:"tick"`
	// CheckEvery is the number of ticks between day/liveness checks.
	CheckEvery int `mapstructure:"check_every" yaml:"check_every"`
	// TrimEvery is the number of ticks between log size checks.
	TrimEvery    int           `mapstructure:"trim_every" yaml:"trim_every"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	StartGrace   time.Duration `mapstructure:"start_grace" yaml:"start_grace"`
	// LockWait is how long to wait for another instance to release the log
	// file before giving up. Zero gives up at once.
	LockWait time.Duration `mapstructure:"lock_wait" yaml:"lock_wait"`
}

// Default returns the default configuration. The capture command has no
// default.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			OutputFlag:    capmon.DefaultOutputFlag,
			Dir:           "/var/lib/capmon/captures",
			Prefix:        "capture-",
			DateLayout:    capmon.DefaultDateLayout,
			RetentionDays: capmon.DefaultRetentionDays,
			Watch:         true,
		},
		Log: LogConfig{
			Dir:       "/var/log/capmon",
			File:      "main.log",
			MaxSize:   10 << 20,
			Allowance: 1 << 20,
			BlockSize: 512,
			TmpDir:    os.TempDir(),
		},
		Supervisor: SupervisorConfig{
			Tick:         capmon.DefaultTick,
			CheckEvery:   capmon.DefaultCheckEvery,
			TrimEvery:    capmon.DefaultTrimEvery,
			RetryBackoff: capmon.DefaultRetryBackoff,
			StopTimeout:  capmon.DefaultStopTimeout,
			StartGrace:   capmon.DefaultStartGrace,
		},
	}
}

// SetDefaults registers the defaults of every key with v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Capture
	v.SetDefault("capture.command", defaults.Capture.Command)
	v.SetDefault("capture.args", defaults.Capture.Args)
	v.SetDefault("capture.output_flag", defaults.Capture.OutputFlag)
	v.SetDefault("capture.dir", defaults.Capture.Dir)
	v.SetDefault("capture.prefix", defaults.Capture.Prefix)
	v.SetDefault("capture.suffix", defaults.Capture.Suffix)
	v.SetDefault("capture.date_layout", defaults.Capture.DateLayout)
	v.SetDefault("capture.retention_days", defaults.Capture.RetentionDays)
	v.SetDefault("capture.watch", defaults.Capture.Watch)

	// Log
	v.SetDefault("log.dir", defaults.Log.Dir)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.max_size", defaults.Log.MaxSize)
	v.SetDefault("log.allowance", defaults.Log.Allowance)
	v.SetDefault("log.block_size", defaults.Log.BlockSize)
	v.SetDefault("log.tmp_dir", defaults.Log.TmpDir)
	v.SetDefault("log.verbose", defaults.Log.Verbose)

	// Supervisor
	v.SetDefault("supervisor.tick", defaults.Supervisor.Tick)
	v.SetDefault("supervisor.check_every", defaults.Supervisor.CheckEvery)
	v.SetDefault("supervisor.trim_every", defaults.Supervisor.TrimEvery)
	v.SetDefault("supervisor.retry_backoff", defaults.Supervisor.RetryBackoff)
	v.SetDefault("supervisor.stop_timeout", defaults.Supervisor.StopTimeout)
	v.SetDefault("supervisor.start_grace", defaults.Supervisor.StartGrace)
	v.SetDefault("supervisor.lock_wait", defaults.Supervisor.LockWait)
}

// ConfigDir returns the directory searched for capmon.yaml.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "capmon")
	}
	return "/etc/capmon"
}

// Load reads the configuration into a Config. If file is empty, capmon.yaml
// is looked up in ConfigDir and /etc/capmon, and a missing file is not an
// error.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("capmon")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath("/etc/capmon")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	return &cfg, nil
}

// LogPath returns the path of the log file.
func (c *Config) LogPath() string {
	if filepath.Base(c.Log.File) == c.Log.File {
		return filepath.Join(c.Log.Dir, c.Log.File)
	}
	return c.Log.File
}

// Options converts the config into supervisor options. The log file is left
// for the caller.
func (c *Config) Options() capmon.Options {
	var command []string
	if c.Capture.Command != "" {
		command = append([]string{c.commandPath()}, c.Capture.Args...)
	}

	return capmon.Options{
		Naming: capmon.Naming{
			Dir:        c.Capture.Dir,
			Prefix:     c.Capture.Prefix,
			Suffix:     c.Capture.Suffix,
			DateLayout: c.Capture.DateLayout,
		},
		Command:       command,
		OutputFlag:    c.Capture.OutputFlag,
		RetentionDays: c.Capture.RetentionDays,
		Limits: capmon.LogLimits{
			MaxSize:   c.Log.MaxSize,
			Allowance: c.Log.Allowance,
			BlockSize: c.Log.BlockSize,
		},
		TmpDir:       c.Log.TmpDir,
		Tick:         c.Supervisor.Tick,
		CheckEvery:   c.Supervisor.CheckEvery,
		TrimEvery:    c.Supervisor.TrimEvery,
		RetryBackoff: c.Supervisor.RetryBackoff,
		StopTimeout:  c.Supervisor.StopTimeout,
		StartGrace:   c.Supervisor.StartGrace,
		Watch:        c.Capture.Watch,
	}
}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	if c.Log.File == "" {
		return errors.New("missing log file")
	}

	if c.Capture.Command != "" {
		if _, err := exec.LookPath(c.Capture.Command); err != nil {
			return errors.Wrap(err, "invalid capture command")
		}
	}

	if c.Supervisor.LockWait < 0 {
		return errors.New("negative lock wait")
	}

	if c.Capture.DateLayout != "" {
		if _, err := time.Parse(c.Capture.DateLayout, time.Now().Format(c.Capture.DateLayout)); err != nil {
			return errors.Wrapf(err, "invalid date layout %q", c.Capture.DateLayout)
		}
	}

	return errors.Wrap(c.Options().Validate(), "invalid config")
}

// commandPath resolves the capture command through $PATH. The command is
// returned as is if it can't be found; Validate reports that case.
func (c *Config) commandPath() string {
	path, err := exec.LookPath(c.Capture.Command)
	if err != nil {
		return c.Capture.Command
	}
	return path
}
