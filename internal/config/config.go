package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joshp123/smartlicensing/internal/artifact"
	"github.com/joshp123/smartlicensing/internal/notify"
	"github.com/joshp123/smartlicensing/internal/smartaccount"
)

const (
	DefaultEnvFile       = ".env"
	DefaultUsageFile     = "usage.txt"
	DefaultLicenseFile   = "lic.txt"
	DefaultAckFile       = "ACK.txt"
	DefaultRatePerMinute = 60
)

// Workflow names, also used as CLI subcommands.
const (
	WorkflowReserve     = "reserve"
	WorkflowReportUsage = "report-usage"
	WorkflowRemove      = "remove"
)

// Config is everything a run needs, sourced from the environment.
type Config struct {
	ClientID       string
	ClientSecret   string
	SmartAccount   string
	VirtualAccount string
	Device         smartaccount.Device
	LicenseTag     string

	AuthURL       string
	BaseURL       string
	Poll          smartaccount.PollOptions
	RatePerMinute int

	UsageFile   string
	LicenseFile string
	AckFile     string

	Blob        artifact.BlobConfig
	MQTT        notify.MQTTConfig
	MetricsFile string
	LogFile     string
	Debug       bool
}

// Load reads envFile (if present) into the process environment and builds a
// Config from environment variables. Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	applyDefaults(v)

	cfg := Config{
		ClientID:       v.GetString("CLIENT_ID"),
		ClientSecret:   v.GetString("CLIENT_SECRET"),
		SmartAccount:   v.GetString("SMART_ACCOUNT"),
		VirtualAccount: v.GetString("VIRTUAL_ACCOUNT"),
		Device: smartaccount.Device{
			PID:      v.GetString("DEVICE_PID"),
			Serial:   v.GetString("DEVICE_SERIAL"),
			Hostname: v.GetString("DEVICE_HOSTNAME"),
		},
		LicenseTag: v.GetString("LICENSE_TAG"),

		AuthURL: v.GetString("SMARTLIC_AUTH_URL"),
		BaseURL: v.GetString("SMARTLIC_BASE_URL"),
		Poll: smartaccount.PollOptions{
			Interval:    v.GetDuration("SMARTLIC_POLL_INTERVAL"),
			Warmup:      v.GetDuration("SMARTLIC_POLL_WARMUP"),
			MaxAttempts: v.GetInt("SMARTLIC_POLL_MAX_ATTEMPTS"),
			Unbounded:   v.GetBool("SMARTLIC_POLL_UNBOUNDED"),
		},
		RatePerMinute: v.GetInt("SMARTLIC_RATE_PER_MINUTE"),

		UsageFile:   v.GetString("SMARTLIC_USAGE_FILE"),
		LicenseFile: v.GetString("SMARTLIC_LICENSE_FILE"),
		AckFile:     v.GetString("SMARTLIC_ACK_FILE"),

		Blob: artifact.BlobConfig{
			Endpoint:      v.GetString("SMARTLIC_BLOB_ENDPOINT"),
			Bucket:        v.GetString("SMARTLIC_BLOB_BUCKET"),
			Prefix:        v.GetString("SMARTLIC_BLOB_PREFIX"),
			Region:        v.GetString("SMARTLIC_BLOB_REGION"),
			AccessKeyFile: v.GetString("SMARTLIC_BLOB_ACCESS_KEY_FILE"),
			SecretKeyFile: v.GetString("SMARTLIC_BLOB_SECRET_KEY_FILE"),
		},
		MQTT: notify.MQTTConfig{
			Broker:   v.GetString("SMARTLIC_MQTT_BROKER"),
			Username: v.GetString("SMARTLIC_MQTT_USERNAME"),
			Password: v.GetString("SMARTLIC_MQTT_PASSWORD"),
			Topic:    v.GetString("SMARTLIC_MQTT_TOPIC"),
		},
		MetricsFile: v.GetString("SMARTLIC_METRICS_FILE"),
		LogFile:     v.GetString("SMARTLIC_LOG_FILE"),
		Debug:       v.GetBool("SMARTLIC_DEBUG"),
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("SMARTLIC_AUTH_URL", smartaccount.DefaultAuthURL)
	v.SetDefault("SMARTLIC_BASE_URL", smartaccount.DefaultBaseURL)
	v.SetDefault("SMARTLIC_POLL_INTERVAL", smartaccount.DefaultPollInterval)
	v.SetDefault("SMARTLIC_POLL_WARMUP", smartaccount.DefaultPollWarmup)
	v.SetDefault("SMARTLIC_POLL_MAX_ATTEMPTS", smartaccount.DefaultMaxAttempts)
	v.SetDefault("SMARTLIC_POLL_UNBOUNDED", false)
	v.SetDefault("SMARTLIC_RATE_PER_MINUTE", DefaultRatePerMinute)
	v.SetDefault("SMARTLIC_USAGE_FILE", DefaultUsageFile)
	v.SetDefault("SMARTLIC_LICENSE_FILE", DefaultLicenseFile)
	v.SetDefault("SMARTLIC_ACK_FILE", DefaultAckFile)
	v.SetDefault("SMARTLIC_BLOB_PREFIX", artifact.DefaultBlobPrefix)
	v.SetDefault("SMARTLIC_MQTT_TOPIC", notify.DefaultTopic)
}

// Validate enforces what the given workflow needs.
func (c Config) Validate(workflow string) error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require("CLIENT_ID", c.ClientID)
	require("CLIENT_SECRET", c.ClientSecret)
	require("SMART_ACCOUNT", c.SmartAccount)
	require("VIRTUAL_ACCOUNT", c.VirtualAccount)
	require("DEVICE_PID", c.Device.PID)
	require("DEVICE_SERIAL", c.Device.Serial)

	switch workflow {
	case WorkflowReserve:
		require("DEVICE_HOSTNAME", c.Device.Hostname)
		require("LICENSE_TAG", c.LicenseTag)
		require("SMARTLIC_LICENSE_FILE", c.LicenseFile)
	case WorkflowReportUsage:
		require("LICENSE_TAG", c.LicenseTag)
		require("SMARTLIC_USAGE_FILE", c.UsageFile)
		require("SMARTLIC_ACK_FILE", c.AckFile)
	case WorkflowRemove:
		require("DEVICE_HOSTNAME", c.Device.Hostname)
	default:
		return fmt.Errorf("unknown workflow %q", workflow)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("SMARTLIC_POLL_INTERVAL must not be negative")
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("SMARTLIC_POLL_MAX_ATTEMPTS must not be negative")
	}
	if c.RatePerMinute < 0 {
		return fmt.Errorf("SMARTLIC_RATE_PER_MINUTE must not be negative")
	}
	return nil
}

// ClientConfig maps the run configuration onto the API client's.
func (c Config) ClientConfig() smartaccount.Config {
	return smartaccount.Config{
		AuthURL:        c.AuthURL,
		BaseURL:        c.BaseURL,
		ClientID:       c.ClientID,
		ClientSecret:   c.ClientSecret,
		SmartAccount:   c.SmartAccount,
		VirtualAccount: c.VirtualAccount,
		Device:         c.Device,
		Poll:           c.Poll,
		RatePerMinute:  c.RatePerMinute,
	}
}

// PollTimeout is a rough upper bound for a bounded poll, useful for logs.
func (c Config) PollTimeout() time.Duration {
	if c.Poll.Unbounded || c.Poll.MaxAttempts == 0 {
		return 0
	}
	return c.Poll.Warmup + time.Duration(c.Poll.MaxAttempts)*c.Poll.Interval
}
