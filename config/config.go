// Package config loads the settings of a dropper widget instance: what
// entity files are stored as, which restrictions apply to them, how they
// are verified, and where the host lives.
//
// Settings are read from a YAML file and from environment variables
// prefixed with DROPPER_, with nested keys joined by underscores:
//
//	DROPPER_DATA_FILE_ENTITY=MyModule.Document
//	DROPPER_HOST_BASE_URL=https://app.example.com
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"impractical.co/dropper"
	"impractical.co/dropper/commit"
	"impractical.co/dropper/host"
	"impractical.co/dropper/s3"
)

// Settings is the complete configuration of one widget instance.
type Settings struct {
	Logging      LoggingSettings      `mapstructure:"logging"`
	Data         DataSettings         `mapstructure:"data"`
	Restrictions RestrictionSettings  `mapstructure:"restrictions"`
	Verification VerificationSettings `mapstructure:"verification"`
	Events       EventSettings        `mapstructure:"events"`
	UI           UISettings           `mapstructure:"ui"`
	Texts        dropper.Texts        `mapstructure:"texts"`
	Host         HostSettings         `mapstructure:"host"`
}

// LoggingSettings controls log output.
type LoggingSettings struct {
	// Level is debug or info.
	Level string `mapstructure:"level" validate:"oneof=debug info"`
}

// DataSettings names the entity files are stored as and the attributes
// their details are written to.
type DataSettings struct {
	FileEntity string `mapstructure:"file_entity" validate:"required"`
	NameAttr   string `mapstructure:"name_attr"`
	TypeAttr   string `mapstructure:"type_attr"`
	ExtAttr    string `mapstructure:"ext_attr"`

	// ContextAssociation is the association from the file entity to the
	// context object, in "Module.Assoc/Module.Entity" form.
	ContextAssociation string `mapstructure:"context_association"`

	AutoSave   bool   `mapstructure:"auto_save"`
	SaveMethod string `mapstructure:"save_method" validate:"oneof=saveDocument postRequest"`
}

// RestrictionSettings limits what can be dropped.
type RestrictionSettings struct {
	// MaxFileSize is in megabytes; 0 is unlimited.
	MaxFileSize float64 `mapstructure:"max_file_size" validate:"gte=0"`
	// MaxFileCount is the number of files a widget holds; 0 is unlimited.
	MaxFileCount int    `mapstructure:"max_file_count" validate:"gte=0"`
	MimeType     string `mapstructure:"mime_type"`
}

// VerificationSettings configures the checks files go through before and
// after they are saved.
type VerificationSettings struct {
	OnAcceptMicroflow string `mapstructure:"on_accept_microflow"`

	Entity                string `mapstructure:"entity"`
	NameAttr              string `mapstructure:"name_attr"`
	SizeAttr              string `mapstructure:"size_attr"`
	TypeAttr              string `mapstructure:"type_attr"`
	ExtAttr               string `mapstructure:"ext_attr"`
	BeforeAcceptMicroflow string `mapstructure:"before_accept_microflow"`
	BeforeAcceptNanoflow  string `mapstructure:"before_accept_nanoflow"`
}

// EventSettings names the actions fired after a file is committed.
type EventSettings struct {
	AfterCommitMicroflow string `mapstructure:"after_commit_microflow"`
	AfterCommitNanoflow  string `mapstructure:"after_commit_nanoflow"`
}

// UISettings holds the presentation options of the widget.
type UISettings struct {
	DeleteButtonStyle string `mapstructure:"delete_button_style" validate:"oneof=glyphicon builtin"`
	DeleteButtonGlyph string `mapstructure:"delete_button_glyph"`
	SaveButtonStyle   string `mapstructure:"save_button_style" validate:"oneof=glyphicon builtin"`
	SaveButtonGlyph   string `mapstructure:"save_button_glyph"`
	ErrorButtonStyle  string `mapstructure:"error_button_style" validate:"oneof=glyphicon builtin"`
	ErrorButtonGlyph  string `mapstructure:"error_button_glyph"`

	ShowPreviewLabel       bool `mapstructure:"show_preview_label"`
	ShowImagePreviews      bool `mapstructure:"show_image_previews"`
	HideProgressOnComplete bool `mapstructure:"hide_progress_on_complete"`
}

// HostSettings describes the host platform files are saved to.
type HostSettings struct {
	BaseURL   string `mapstructure:"base_url" validate:"omitempty,url"`
	CSRFToken string `mapstructure:"csrf_token"`

	// Storage selects where document contents are kept: memory or s3.
	Storage string    `mapstructure:"storage" validate:"oneof=memory s3"`
	S3      s3.Config `mapstructure:"s3"`

	// Entities are the domain model entities known to the host.
	Entities []EntitySettings `mapstructure:"entities" validate:"dive"`
}

// EntitySettings describes one entity of the host's domain model.
type EntitySettings struct {
	Name            string   `mapstructure:"name" validate:"required"`
	Generalizations []string `mapstructure:"generalizations"`
	Persistable     bool     `mapstructure:"persistable"`
	Attributes      []string `mapstructure:"attributes"`
	References      []string `mapstructure:"references"`
}

// Load reads settings from the file at configPath, or from config.yaml in
// the default config directory when configPath is empty, overlays DROPPER_
// environment variables, fills in defaults, and validates the result.
func Load(configPath string) (*Settings, error) {
	return LoadFs(afero.NewOsFs(), configPath)
}

// LoadFs is Load, reading the config file from fs.
func LoadFs(fs afero.Fs, configPath string) (*Settings, error) {
	v := viper.New()
	v.SetFs(fs)
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DROPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

var envKeys = []string{
	"logging.level",
	"data.file_entity",
	"data.name_attr",
	"data.type_attr",
	"data.ext_attr",
	"data.context_association",
	"data.auto_save",
	"data.save_method",
	"restrictions.max_file_size",
	"restrictions.max_file_count",
	"restrictions.mime_type",
	"verification.on_accept_microflow",
	"verification.entity",
	"verification.before_accept_microflow",
	"verification.before_accept_nanoflow",
	"events.after_commit_microflow",
	"events.after_commit_nanoflow",
	"host.base_url",
	"host.csrf_token",
	"host.storage",
	"host.s3.bucket",
	"host.s3.region",
	"host.s3.key_prefix",
	"host.s3.endpoint",
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDir returns $XDG_CONFIG_HOME/dropper, falling back to
// ~/.config/dropper and then the working directory.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dropper")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dropper")
}

// HostEntities returns the configured domain model as host entities.
func (s *Settings) HostEntities() []host.Entity {
	entities := make([]host.Entity, 0, len(s.Host.Entities))
	for _, e := range s.Host.Entities {
		entities = append(entities, host.Entity{
			Name:            e.Name,
			Generalizations: e.Generalizations,
			Persistable:     e.Persistable,
			Attributes:      e.Attributes,
			References:      e.References,
		})
	}
	return entities
}

// MaxFileSize returns the size limit in bytes.
func (s *Settings) MaxFileSize() int64 {
	return int64(s.Restrictions.MaxFileSize * 1024 * 1024)
}

// StoreOptions returns the Store options the settings describe. Image
// entities only accept images, whatever mime type is configured.
func (s *Settings) StoreOptions(checks Checks) dropper.Options {
	accept := s.Restrictions.MimeType
	if checks.Image {
		accept = "image/*"
	}
	return dropper.Options{
		AutoSave:           s.Data.AutoSave,
		SaveBase64:         dropper.Bool(s.UI.ShowImagePreviews),
		MaxNumber:          s.Restrictions.MaxFileCount,
		MaxSize:            s.MaxFileSize(),
		Accept:             accept,
		Texts:              s.Texts,
		ValidationMessages: Messages(s, checks),
	}
}

// AdapterConfig returns the commit.Adapter configuration the settings
// describe. The before-accept action is only used together with a
// verification entity, and a microflow wins over a nanoflow.
func (s *Settings) AdapterConfig() commit.Config {
	cfg := commit.Config{
		Entity:      s.Data.FileEntity,
		NameAttr:    s.Data.NameAttr,
		TypeAttr:    s.Data.TypeAttr,
		ExtAttr:     s.Data.ExtAttr,
		Association: s.Data.ContextAssociation,
		SaveMethod:  commit.SaveMethod(s.Data.SaveMethod),
		OnAccept:    s.Verification.OnAcceptMicroflow,
		AfterCommit: host.Action{
			Microflow: s.Events.AfterCommitMicroflow,
			Nanoflow:  s.Events.AfterCommitNanoflow,
		},
	}
	v := s.Verification
	if v.Entity == "" {
		return cfg
	}
	cfg.Verification = commit.Verification{
		Entity:   v.Entity,
		NameAttr: v.NameAttr,
		SizeAttr: v.SizeAttr,
		TypeAttr: v.TypeAttr,
		ExtAttr:  v.ExtAttr,
	}
	switch {
	case v.BeforeAcceptMicroflow != "":
		cfg.Verification.BeforeAccept = host.Action{Microflow: v.BeforeAcceptMicroflow}
	case v.BeforeAcceptNanoflow != "":
		cfg.Verification.BeforeAccept = host.Action{Nanoflow: v.BeforeAcceptNanoflow}
	}
	return cfg
}

// EntityLookup finds entities of the host's domain model. host.Platform
// implements it.
type EntityLookup interface {
	Entity(ctx context.Context, name string) (host.Entity, error)
}

// Checks holds what the host's domain model says about the configured
// entities.
type Checks struct {
	// NotFileDocument is set when the file entity is not a
	// System.FileDocument, or is unknown.
	NotFileDocument bool
	// PersistentVerification is set when the verification entity is
	// persistable.
	PersistentVerification bool
	// Image is set when the file entity is a System.Image.
	Image bool
}

// Inspect looks the configured entities up in the domain model.
func (s *Settings) Inspect(ctx context.Context, lookup EntityLookup) (Checks, error) {
	var checks Checks
	entity, err := lookup.Entity(ctx, s.Data.FileEntity)
	switch {
	case err == nil:
		checks.NotFileDocument = !entity.IsA(host.FileDocument)
		checks.Image = entity.IsA(host.Image)
	case isUnknownEntity(err):
		checks.NotFileDocument = true
	default:
		return Checks{}, fmt.Errorf("error looking up file entity %q: %w", s.Data.FileEntity, err)
	}
	if s.Verification.Entity == "" {
		return checks, nil
	}
	verification, err := lookup.Entity(ctx, s.Verification.Entity)
	if err != nil {
		return Checks{}, fmt.Errorf("error looking up verification entity %q: %w", s.Verification.Entity, err)
	}
	checks.PersistentVerification = verification.Persistable
	return checks, nil
}
