// Package config loads worker configuration from the process environment,
// optionally seeded from a .env file and overlaid with a YAML file. All
// options have defaults so a bare environment yields a runnable local setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TracingMode controls when Playwright execution traces are captured.
type TracingMode string

const (
	// TracingOff never captures traces.
	TracingOff TracingMode = "off"

	// TracingContinuous captures from context creation onward; on error the
	// trace is saved and capture restarts immediately so coverage has no gap.
	TracingContinuous TracingMode = "continuous"

	// TracingOnFailure stays idle and records only a brief window around a
	// failure, trading coverage for storage.
	TracingOnFailure TracingMode = "on_failure"
)

// Retry and sizing constants. These values were tuned against the live UI;
// treat them as deliberate, not incidental.
const (
	// DefaultModelSwitchRetries bounds the drift-correction loop. Three
	// passes rides out menu animation races without stalling a
	// lease-holding worker.
	DefaultModelSwitchRetries = 3

	// DefaultModelSwitchCooldown spaces retry attempts so the model menu's
	// open/close animation settles between interactions.
	DefaultModelSwitchCooldown = 1200 * time.Millisecond

	// MinViewportWidth and MinViewportHeight are the smallest surface the
	// target application renders its composer on without collapsing into a
	// mobile layout.
	MinViewportWidth  = 800
	MinViewportHeight = 600

	defaultViewportWidth  = 1400
	defaultViewportHeight = 900
)

// Proxy describes outbound network routing for browser contexts.
type Proxy struct {
	Server   string `yaml:"server"`
	Bypass   string `yaml:"bypass"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Remote holds the remote-execution bridge settings.
type Remote struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	User          string `yaml:"user"`
	SSHOpts       string `yaml:"ssh_opts"`
	PortBase      int    `yaml:"port_base"`
	LocalPortBase int    `yaml:"local_port_base"`
	PortSpan      int    `yaml:"port_span"`
	ProfileRoot   string `yaml:"profile_root"`
	TunnelEnabled bool   `yaml:"tunnel_enabled"`
	BrowserBin    string `yaml:"browser_bin"`

	// WakeHost is a secondary SSH hop used to wake a sleeping remote host
	// when the primary connection is refused. Empty disables the wake cycle.
	// WakeDistro names the WSL distribution on the wake host whose SSH
	// service gets started.
	WakeHost   string `yaml:"wake_host"`
	WakeUser   string `yaml:"wake_user"`
	WakeDistro string `yaml:"wake_distro"`
}

// Config is the full worker configuration.
type Config struct {
	ProfileName string `yaml:"profile_name"`
	ProfileDir  string `yaml:"profile_dir"`
	BatchID     string `yaml:"batch_id"`

	// TargetURL is the home route of the chat application under automation.
	TargetURL string `yaml:"target_url"`

	SourcePath string `yaml:"source_path"`
	FileGlob   string `yaml:"file_glob"`

	// Prompt is the instruction sent with every uploaded scan.
	Prompt string `yaml:"prompt"`

	Headed         bool   `yaml:"headed"`
	Locale         string `yaml:"locale"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	ReducedMotion  bool   `yaml:"reduced_motion"`
	UserAgent      string `yaml:"user_agent"`
	Proxy          *Proxy `yaml:"proxy"`

	IsolatedContexts bool `yaml:"isolated_contexts"`
	ContextPoolSize  int  `yaml:"context_pool_size"`

	TracingMode    TracingMode `yaml:"tracing_mode"`
	CaptureVideo   bool        `yaml:"capture_video"`
	VideoDir       string      `yaml:"video_dir"`
	DebugArtifacts bool        `yaml:"debug_artifacts"`

	// SaveTokenUsage and SaveErrorTraces toggle their tables independently
	// of the main database switch; both default on.
	SaveTokenUsage  bool `yaml:"save_token_usage"`
	SaveErrorTraces bool `yaml:"save_error_traces"`

	ModelSwitchRetries  int           `yaml:"model_switch_retries"`
	ModelSwitchCooldown time.Duration `yaml:"model_switch_cooldown"`

	AutoLogin bool `yaml:"auto_login"`

	Remote Remote `yaml:"remote"`

	DBEnabled bool   `yaml:"db_enabled"`
	DBDSN     string `yaml:"db_dsn"`

	LogLevel string `yaml:"log_level"`
}

// Load builds a Config from the environment. A .env file in the working
// directory is merged in first (without overriding real environment
// variables), then OCR_CONFIG_FILE, if set, is read as a YAML overlay that
// provides values for anything the environment leaves unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("OCR_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.clamp()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ProfileName:         "default",
		TargetURL:           "https://gemini.google.com/app",
		FileGlob:            "*.{png,jpg,jpeg,webp}",
		Prompt:              "Przepisz cały tekst z tego obrazu. Zwróć wyłącznie przepisany tekst, bez komentarzy.",
		Locale:              "pl-PL",
		ViewportWidth:       defaultViewportWidth,
		ViewportHeight:      defaultViewportHeight,
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		TracingMode:         TracingOff,
		SaveTokenUsage:      true,
		SaveErrorTraces:     true,
		ModelSwitchRetries:  DefaultModelSwitchRetries,
		ModelSwitchCooldown: DefaultModelSwitchCooldown,
		AutoLogin:           true,
		LogLevel:            "info",
		Remote: Remote{
			SSHOpts:       "-o StrictHostKeyChecking=no",
			PortBase:      9222,
			LocalPortBase: 9222,
			PortSpan:      100,
			TunnelEnabled: true,
		},
	}
}

func (c *Config) applyEnv() {
	envStr(&c.ProfileName, "OCR_PROFILE_SUFFIX")
	envStr(&c.ProfileDir, "OCR_PROFILE_DIR")
	envStr(&c.BatchID, "OCR_BATCH_ID")
	envStr(&c.TargetURL, "OCR_TARGET_URL")
	envStr(&c.SourcePath, "OCR_SOURCE_PATH")
	envStr(&c.FileGlob, "OCR_FILE_GLOB")
	envStr(&c.Prompt, "OCR_PROMPT")
	envBool(&c.Headed, "OCR_HEADED")
	envStr(&c.Locale, "OCR_LOCALE")
	envInt(&c.ViewportWidth, "OCR_VIEWPORT_WIDTH")
	envInt(&c.ViewportHeight, "OCR_VIEWPORT_HEIGHT")
	envBool(&c.ReducedMotion, "OCR_REDUCED_MOTION")
	envBool(&c.IsolatedContexts, "OCR_USE_ISOLATED_CONTEXTS")
	envInt(&c.ContextPoolSize, "OCR_CONTEXT_POOL_SIZE")
	envBool(&c.CaptureVideo, "OCR_CAPTURE_VIDEO")
	envStr(&c.VideoDir, "OCR_VIDEO_DIR")
	envBool(&c.DebugArtifacts, "OCR_DEBUG_ARTIFACTS")
	envBool(&c.SaveTokenUsage, "OCR_SAVE_TOKEN_USAGE")
	envBool(&c.SaveErrorTraces, "OCR_SAVE_ERROR_TRACES")
	envInt(&c.ModelSwitchRetries, "OCR_MODEL_SWITCH_RETRIES")
	envDurationMS(&c.ModelSwitchCooldown, "OCR_MODEL_SWITCH_COOLDOWN_MS")
	envBool(&c.AutoLogin, "OCR_AUTO_LOGIN")
	envBool(&c.DBEnabled, "OCR_DB_ENABLED")
	envStr(&c.DBDSN, "OCR_DB_DSN")
	envStr(&c.LogLevel, "OCR_LOG_LEVEL")

	if v := os.Getenv("OCR_TRACING_MODE"); v != "" {
		c.TracingMode = TracingMode(strings.ToLower(strings.TrimSpace(v)))
	}

	if v := os.Getenv("OCR_PROXY_SERVER"); v != "" {
		if c.Proxy == nil {
			c.Proxy = &Proxy{}
		}
		c.Proxy.Server = v
		envStr(&c.Proxy.Bypass, "OCR_PROXY_BYPASS")
		envStr(&c.Proxy.Username, "OCR_PROXY_USERNAME")
		envStr(&c.Proxy.Password, "OCR_PROXY_PASSWORD")
	}

	envBool(&c.Remote.Enabled, "OCR_REMOTE_BROWSER")
	envStr(&c.Remote.Host, "OCR_REMOTE_HOST")
	envStr(&c.Remote.User, "OCR_REMOTE_USER")
	envStr(&c.Remote.SSHOpts, "OCR_REMOTE_SSH_OPTS")
	envInt(&c.Remote.PortBase, "OCR_REMOTE_PORT_BASE")
	envInt(&c.Remote.LocalPortBase, "OCR_REMOTE_LOCAL_PORT_BASE")
	envInt(&c.Remote.PortSpan, "OCR_REMOTE_PORT_SPAN")
	envStr(&c.Remote.ProfileRoot, "OCR_REMOTE_PROFILE_ROOT")
	envBool(&c.Remote.TunnelEnabled, "OCR_REMOTE_TUNNEL")
	envStr(&c.Remote.BrowserBin, "OCR_REMOTE_BROWSER_BIN")
	envStr(&c.Remote.WakeHost, "OCR_REMOTE_WAKE_HOST")
	envStr(&c.Remote.WakeUser, "OCR_REMOTE_WAKE_USER")
	envStr(&c.Remote.WakeDistro, "OCR_REMOTE_WAKE_DISTRO")
}

// clamp normalizes values that would otherwise break the UI automation:
// tiny viewports collapse the composer, zero retries would skip drift
// correction entirely, and sub-200ms cooldowns race menu animations.
func (c *Config) clamp() {
	if c.ViewportWidth < MinViewportWidth {
		c.ViewportWidth = MinViewportWidth
	}
	if c.ViewportHeight < MinViewportHeight {
		c.ViewportHeight = MinViewportHeight
	}
	if c.ModelSwitchRetries < 1 {
		c.ModelSwitchRetries = 1
	}
	if c.ModelSwitchCooldown < 200*time.Millisecond {
		c.ModelSwitchCooldown = 200 * time.Millisecond
	}
	if c.ContextPoolSize < 0 {
		c.ContextPoolSize = 0
	}
	if c.Remote.PortSpan < 1 {
		c.Remote.PortSpan = 1
	}
	switch c.TracingMode {
	case TracingOff, TracingContinuous, TracingOnFailure:
	default:
		c.TracingMode = TracingOff
	}
}

func envStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	}
}

func envInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDurationMS(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
