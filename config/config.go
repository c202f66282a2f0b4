package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (TRACE_RESCUE_ALERT_COOLDOWN=30s).
const EnvPrefix = "TRACE_RESCUE"

// Config is the root configuration for both the recognizer and the report server.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	CompreFace CompreFaceConfig `mapstructure:"compreface"`
	Alert      AlertConfig      `mapstructure:"alert"`
	Messaging  MessagingConfig  `mapstructure:"messaging"`
	Email      EmailConfig      `mapstructure:"email"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	ReportSink ReportSinkConfig `mapstructure:"report_sink"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
}

// ServerConfig holds settings of the report server.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	DataDir      string `mapstructure:"data_dir"`
	FoundDir     string `mapstructure:"found_dir"`
	PublicURL    string `mapstructure:"public_url"`
	Timezone     string `mapstructure:"timezone"`
	MaxUploadMiB int    `mapstructure:"max_upload_mib"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds the SQLite file location.
type DBConfig struct {
	File string `mapstructure:"file"`
}

// CameraConfig describes the video source and where it is installed.
type CameraConfig struct {
	URL      string `mapstructure:"url"`
	Location string `mapstructure:"location"`
}

// DetectionConfig tunes the detection loop.
type DetectionConfig struct {
	MatchThreshold float64       `mapstructure:"match_threshold"`
	FaceSize       int           `mapstructure:"face_size"`
	ReadRetries    int           `mapstructure:"read_retries"`
	ReadBackoff    time.Duration `mapstructure:"read_backoff"`
	StopAfterAlert bool          `mapstructure:"stop_after_alert"`
	Preview        bool          `mapstructure:"preview"`
	CascadePath    string        `mapstructure:"cascade_path"`
	ScaleFactor    float64       `mapstructure:"scale_factor"`
	MinNeighbors   int           `mapstructure:"min_neighbors"`
	MinFaceSize    int           `mapstructure:"min_face_size"`
}

// RecognizerConfig selects the classifier backend and its artifacts.
type RecognizerConfig struct {
	Provider   string `mapstructure:"provider"` // "lbph" or "compreface"
	ModelPath  string `mapstructure:"model_path"`
	LabelsPath string `mapstructure:"labels_path"`
}

// CompreFaceConfig holds settings for the remote CompreFace recognizer.
type CompreFaceConfig struct {
	URL               string        `mapstructure:"url"`
	RecognitionAPIKey string        `mapstructure:"recognition_api_key"`
	DetProbThreshold  float64       `mapstructure:"det_prob_threshold"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// AlertConfig controls the dispatcher.
type AlertConfig struct {
	Cooldown    time.Duration `mapstructure:"cooldown"`
	Debug       bool          `mapstructure:"debug"`
	SnapshotDir string        `mapstructure:"snapshot_dir"`
	Language    string        `mapstructure:"language"`
	Sound       bool          `mapstructure:"sound"`
}

// MessagingConfig configures the instant-message channel.
type MessagingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Transport  string         `mapstructure:"transport"` // "mqtt" or "whatsapp"
	Recipients []string       `mapstructure:"recipients"`
	SendDelay  time.Duration  `mapstructure:"send_delay"`
	TopicBase  string         `mapstructure:"topic_base"`
	WhatsApp   WhatsAppConfig `mapstructure:"whatsapp"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials.
type WhatsAppConfig struct {
	APIURL        string        `mapstructure:"api_url"`
	PhoneNumberID string        `mapstructure:"phone_number_id"`
	AccessToken   string        `mapstructure:"access_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// EmailConfig configures the email channel.
type EmailConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	Recipients []string      `mapstructure:"recipients"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MQTTConfig holds settings for the MQTT broker connection.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
}

// ReportSinkConfig points the recognizer at the report server.
type ReportSinkConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Message string        `mapstructure:"message"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CleanupConfig holds settings for automatic data cleanup.
type CleanupConfig struct {
	RetentionDays int           `mapstructure:"retention_days"`
	Interval      time.Duration `mapstructure:"interval"`
}

// Load reads configuration from defaults, an optional YAML file, an optional
// .env file and the environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the recognizer cannot run without.
func (c *Config) Validate() error {
	if c.Camera.URL == "" {
		return errors.New("camera.url is required")
	}
	if c.Detection.MatchThreshold <= 0 {
		return fmt.Errorf("detection.match_threshold must be positive, got %v", c.Detection.MatchThreshold)
	}
	if c.Detection.FaceSize <= 0 {
		return fmt.Errorf("detection.face_size must be positive, got %d", c.Detection.FaceSize)
	}
	if c.Alert.Cooldown < 0 {
		return fmt.Errorf("alert.cooldown must not be negative, got %s", c.Alert.Cooldown)
	}
	switch c.Recognizer.Provider {
	case "lbph":
		if c.Recognizer.ModelPath == "" || c.Recognizer.LabelsPath == "" {
			return errors.New("recognizer.model_path and recognizer.labels_path are required for lbph")
		}
	case "compreface":
		if c.CompreFace.URL == "" {
			return errors.New("compreface.url is required for the compreface recognizer")
		}
	default:
		return fmt.Errorf("unknown recognizer.provider %q", c.Recognizer.Provider)
	}
	if c.Messaging.Enabled {
		switch c.Messaging.Transport {
		case "mqtt", "whatsapp":
		default:
			return fmt.Errorf("unknown messaging.transport %q", c.Messaging.Transport)
		}
	}
	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		return errors.New("email.host and email.from are required when email is enabled")
	}
	return nil
}

// setDefaults mirrors the values the original deployment shipped with.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", "data")
	v.SetDefault("server.found_dir", "data/found_snapshots")
	v.SetDefault("server.public_url", "http://localhost:8000")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.max_upload_mib", 16)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("db.file", "data/trace-rescue.db")

	v.SetDefault("camera.url", "")
	v.SetDefault("camera.location", "Unknown location")

	v.SetDefault("detection.match_threshold", 70.0)
	v.SetDefault("detection.face_size", 200)
	v.SetDefault("detection.read_retries", 3)
	v.SetDefault("detection.read_backoff", "200ms")
	v.SetDefault("detection.stop_after_alert", true)
	v.SetDefault("detection.preview", false)
	v.SetDefault("detection.cascade_path", "models/haarcascade_frontalface_default.xml")
	v.SetDefault("detection.scale_factor", 1.1)
	v.SetDefault("detection.min_neighbors", 5)
	v.SetDefault("detection.min_face_size", 30)

	v.SetDefault("recognizer.provider", "lbph")
	v.SetDefault("recognizer.model_path", "models/trained_model.yml")
	v.SetDefault("recognizer.labels_path", "models/labels.yaml")

	v.SetDefault("compreface.det_prob_threshold", 0.8)
	v.SetDefault("compreface.timeout", "10s")

	v.SetDefault("alert.cooldown", "45s")
	v.SetDefault("alert.debug", false)
	v.SetDefault("alert.snapshot_dir", "data/snapshots")
	v.SetDefault("alert.language", "en")
	v.SetDefault("alert.sound", true)

	v.SetDefault("messaging.enabled", false)
	v.SetDefault("messaging.transport", "mqtt")
	v.SetDefault("messaging.send_delay", "0s")
	v.SetDefault("messaging.topic_base", "trace-rescue/alerts")
	v.SetDefault("messaging.whatsapp.api_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("messaging.whatsapp.timeout", "15s")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "smtp.gmail.com")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.timeout", "30s")

	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "trace-rescue")

	v.SetDefault("report_sink.enabled", true)
	v.SetDefault("report_sink.url", "http://localhost:8000/person-found")
	v.SetDefault("report_sink.message", "Missing person detected!")
	v.SetDefault("report_sink.timeout", "10s")

	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval", "24h")
}

// ensureDirectories creates the data, snapshot and log directories.
func ensureDirectories(cfg *Config) error {
	dirs := []string{cfg.Server.DataDir, cfg.Server.FoundDir, cfg.Alert.SnapshotDir}
	if cfg.Log.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.Log.File))
	}
	if cfg.DB.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.DB.File))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
