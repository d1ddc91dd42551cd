package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings holds everything the bridge needs to talk to Origin and Target,
// receive callbacks, and persist course mappings. Credentials have no
// defaults; a missing one fails Load.
type Settings struct {
	Origin  OriginSettings  `mapstructure:"origin"`
	Target  TargetSettings  `mapstructure:"target"`
	Webhook WebhookSettings `mapstructure:"webhook"`
	Store   StoreSettings   `mapstructure:"store"`
	Export  ExportSettings  `mapstructure:"export"`
	Archive ArchiveSettings `mapstructure:"archive"`
	Sync    SyncSettings    `mapstructure:"sync"`
	Log     LogSettings     `mapstructure:"log"`
}

type OriginSettings struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key" validate:"required"`
}

type TargetSettings struct {
	BaseURL       string `mapstructure:"base_url" validate:"required,url"`
	PublicKey     string `mapstructure:"public_key" validate:"required"`
	PrivateKey    string `mapstructure:"private_key" validate:"required"`
	CreatorUserID int    `mapstructure:"creator_user_id"`
	Language      string `mapstructure:"language"`
}

type WebhookSettings struct {
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
	Path          string `mapstructure:"path"`
	ListenAddr    string `mapstructure:"listen_addr"`
}

// CallbackURL is the public URL Origin will POST the finished package to.
func (w WebhookSettings) CallbackURL() string {
	return strings.TrimRight(w.PublicBaseURL, "/") + w.Path
}

type StoreSettings struct {
	Type       string `mapstructure:"type" validate:"required,oneof=postgres mongo memory"`
	DSN        string `mapstructure:"dsn"`
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// ExportSettings are the fixed fields sent with every SCORM export request.
type ExportSettings struct {
	ClientID    string `mapstructure:"client_id"`
	Type        string `mapstructure:"type"`
	Format      string `mapstructure:"format"`
	Navigation  string `mapstructure:"navigation"`
	WebhookVerb string `mapstructure:"webhook_verb"`
}

// ArchiveSettings configures optional SFTP archival of received packages.
// Leaving Host empty disables archival.
type ArchiveSettings struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Pass      string `mapstructure:"pass"`
	RemoteDir string `mapstructure:"remote_dir"`
}

type SyncSettings struct {
	Workers int `mapstructure:"workers"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return err
	}
	switch s.Store.Type {
	case "postgres":
		if s.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn is required for the postgres store")
		}
	case "mongo":
		if s.Store.URI == "" {
			return fmt.Errorf("config: store.uri is required for the mongo store")
		}
	}
	return nil
}

// Load reads settings from an optional bridge.yaml in the working directory,
// overlaid with BRIDGE_* environment variables (BRIDGE_ORIGIN_BASE_URL etc).
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("bridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid settings: %w", err)
	}
	return cfg, nil
}

var boundKeys = []string{
	"origin.base_url",
	"origin.api_key",
	"target.base_url",
	"target.public_key",
	"target.private_key",
	"target.creator_user_id",
	"target.language",
	"webhook.public_base_url",
	"webhook.path",
	"webhook.listen_addr",
	"store.type",
	"store.dsn",
	"store.uri",
	"store.database",
	"store.collection",
	"export.client_id",
	"export.type",
	"export.format",
	"export.navigation",
	"export.webhook_verb",
	"archive.host",
	"archive.port",
	"archive.user",
	"archive.pass",
	"archive.remote_dir",
	"sync.workers",
	"log.level",
	"log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.language", "en-US")
	v.SetDefault("webhook.path", "/callbacks/scorm")
	v.SetDefault("webhook.listen_addr", ":8080")
	v.SetDefault("store.database", "scormbridge")
	v.SetDefault("store.collection", "course_mappings")
	v.SetDefault("export.client_id", "001")
	v.SetDefault("export.type", "light")
	v.SetDefault("export.format", "scorm2004")
	v.SetDefault("export.navigation", "free")
	v.SetDefault("export.webhook_verb", "POST")
	v.SetDefault("archive.port", 22)
	v.SetDefault("sync.workers", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
