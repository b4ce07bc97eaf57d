package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"impractical.co/dropper"
	"impractical.co/dropper/commit"
	"impractical.co/dropper/config"
	"impractical.co/dropper/host"
	"impractical.co/dropper/memory"
)

const settingsYAML = `
logging:
  level: DEBUG
data:
  file_entity: MyModule.Photo
  name_attr: Name
  context_association: MyModule.Photo_Album/MyModule.Album
  auto_save: true
restrictions:
  max_file_size: 2.5
  max_file_count: 3
  mime_type: application/pdf
verification:
  entity: MyModule.FileCheck
  name_attr: Name
  before_accept_nanoflow: MyModule.NF_Check
texts:
  drop_zone: Drop it
host:
  base_url: http://localhost:8080/
  entities:
    - name: MyModule.Photo
      generalizations: [System.Image, System.FileDocument]
      persistable: true
      attributes: [Name]
      references: [MyModule.Photo_Album]
    - name: MyModule.FileCheck
      attributes: [Name]
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, settingsYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "MyModule.Photo", cfg.Data.FileEntity)
	assert.Equal(t, "saveDocument", cfg.Data.SaveMethod)
	assert.True(t, cfg.Data.AutoSave)
	assert.Equal(t, int64(2.5*1024*1024), cfg.MaxFileSize())
	assert.Equal(t, "builtin", cfg.UI.DeleteButtonStyle)
	assert.Equal(t, "memory", cfg.Host.Storage)
	assert.Equal(t, "http://localhost:8080", cfg.Host.BaseURL)

	assert.Equal(t, "Drop it", cfg.Texts.DropZone)
	assert.Equal(t, dropper.DefaultTexts().DropZoneMaximum, cfg.Texts.DropZoneMaximum)

	entities := cfg.HostEntities()
	require.Len(t, entities, 2)
	assert.True(t, entities[0].IsA(host.Image))
	assert.True(t, entities[0].Has("MyModule.Photo_Album"))
	assert.False(t, entities[1].Persistable)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("DROPPER_DATA_FILE_ENTITY", "MyModule.Other")
	t.Setenv("DROPPER_RESTRICTIONS_MAX_FILE_COUNT", "7")
	t.Setenv("DROPPER_HOST_CSRF_TOKEN", "token")

	cfg, err := config.Load(writeConfig(t, settingsYAML))
	require.NoError(t, err)
	assert.Equal(t, "MyModule.Other", cfg.Data.FileEntity)
	assert.Equal(t, 7, cfg.Restrictions.MaxFileCount)
	assert.Equal(t, "token", cfg.Host.CSRFToken)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DROPPER_DATA_FILE_ENTITY", "MyModule.Document")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "MyModule.Document", cfg.Data.FileEntity)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]struct {
		yaml    string
		message string
	}{
		"missing-entity": {
			yaml:    "data:\n  name_attr: Name\n",
			message: "Settings.Data.FileEntity: validation failed on 'required' tag",
		},
		"bad-save-method": {
			yaml:    "data:\n  file_entity: A.B\n  save_method: ftp\n",
			message: "Settings.Data.SaveMethod: validation failed on 'oneof' tag",
		},
		"bad-button-style": {
			yaml:    "data:\n  file_entity: A.B\nui:\n  save_button_style: fancy\n",
			message: "Settings.UI.SaveButtonStyle: validation failed on 'oneof' tag",
		},
		"negative-size": {
			yaml:    "data:\n  file_entity: A.B\nrestrictions:\n  max_file_size: -1\n",
			message: "Settings.Restrictions.MaxFileSize: validation failed on 'gte' tag",
		},
		"s3-without-bucket": {
			yaml:    "data:\n  file_entity: A.B\nhost:\n  storage: s3\n",
			message: "host.s3.bucket: required when host.storage is s3",
		},
		"post-without-base-url": {
			yaml:    "data:\n  file_entity: A.B\n  save_method: postRequest\n",
			message: "host.base_url: required when data.save_method is postRequest",
		},
		"duplicate-entity": {
			yaml:    "data:\n  file_entity: A.B\nhost:\n  entities:\n    - name: A.B\n    - name: A.B\n",
			message: `host.entities[1]: duplicate entity name "A.B"`,
		},
		"unnamed-entity": {
			yaml:    "data:\n  file_entity: A.B\nhost:\n  entities:\n    - persistable: true\n",
			message: "Settings.Host.Entities[0].Name: validation failed on 'required' tag",
		},
		"bad-yaml": {
			yaml:    "data: [\n",
			message: "failed to read config file",
		},
	}

	for name, test := range tests {
		name, test := name, test
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, test.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.message)
		})
	}
}

func TestAdapterConfig(t *testing.T) {
	tests := map[string]struct {
		verification config.VerificationSettings
		want         host.Action
		entity       string
	}{
		"none": {},
		"microflow-wins": {
			verification: config.VerificationSettings{Entity: "A.Check", BeforeAcceptMicroflow: "A.MF", BeforeAcceptNanoflow: "A.NF"},
			want:         host.Action{Microflow: "A.MF"},
			entity:       "A.Check",
		},
		"nanoflow": {
			verification: config.VerificationSettings{Entity: "A.Check", BeforeAcceptNanoflow: "A.NF"},
			want:         host.Action{Nanoflow: "A.NF"},
			entity:       "A.Check",
		},
		"no-entity": {
			verification: config.VerificationSettings{BeforeAcceptMicroflow: "A.MF"},
		},
	}

	for name, test := range tests {
		name, test := name, test
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := config.Settings{
				Data:         config.DataSettings{FileEntity: "A.Doc", NameAttr: "Name", SaveMethod: "postRequest"},
				Verification: test.verification,
				Events:       config.EventSettings{AfterCommitMicroflow: "A.After"},
			}
			cfg := s.AdapterConfig()
			assert.Equal(t, "A.Doc", cfg.Entity)
			assert.Equal(t, commit.PostRequest, cfg.SaveMethod)
			assert.Equal(t, host.Action{Microflow: "A.After"}, cfg.AfterCommit)
			assert.Equal(t, test.entity, cfg.Verification.Entity)
			assert.Equal(t, test.want, cfg.Verification.BeforeAccept)
		})
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()
	s := &config.Settings{
		UI: config.UISettings{
			DeleteButtonStyle: "glyphicon",
			SaveButtonStyle:   "glyphicon",
			SaveButtonGlyph:   "glyphicon-floppy-disk",
			ErrorButtonStyle:  "glyphicon",
		},
		Verification: config.VerificationSettings{
			BeforeAcceptMicroflow: "A.MF",
			BeforeAcceptNanoflow:  "A.NF",
		},
	}

	messages := config.Messages(s, config.Checks{NotFileDocument: true, PersistentVerification: true})
	var got []string
	for _, m := range messages {
		assert.True(t, m.Fatal)
		assert.False(t, m.Dismissable)
		got = append(got, m.Message)
	}
	assert.Equal(t, []string{
		"[Data] :: Configured entity is not of type 'System.FileDocument'! Widget disabled",
		"[Verification] :: Verification entity can only be a non-persistable entity",
		"[UI] :: Delete button style is set to 'Glyphicon', but class is empty. Either set the class or use the built-in icon",
		"[UI] :: Error button style is set to 'Glyphicon', but class is empty. Either set the class or use the built-in icon",
		"[Verification] :: Only select a microflow OR nanoflow for verification, not both",
	}, got)

	assert.Empty(t, config.Messages(&config.Settings{}, config.Checks{}))
}

func TestInspect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg, err := config.Load(writeConfig(t, settingsYAML))
	require.NoError(t, err)
	platform, err := memory.Factory{}.NewPlatform(ctx, cfg.HostEntities()...)
	require.NoError(t, err)

	checks, err := cfg.Inspect(ctx, platform)
	require.NoError(t, err)
	assert.Equal(t, config.Checks{Image: true}, checks)

	opts := cfg.StoreOptions(checks)
	assert.Equal(t, "image/*", opts.Accept)
	assert.Equal(t, 3, opts.MaxNumber)
	assert.True(t, opts.AutoSave)
	assert.Empty(t, opts.ValidationMessages)

	cfg.Data.FileEntity = "MyModule.Missing"
	checks, err = cfg.Inspect(ctx, platform)
	require.NoError(t, err)
	assert.True(t, checks.NotFileDocument)
	opts = cfg.StoreOptions(checks)
	assert.Equal(t, "application/pdf", opts.Accept)
	require.Len(t, opts.ValidationMessages, 1)

	cfg.Verification.Entity = "MyModule.Missing"
	_, err = cfg.Inspect(ctx, platform)
	assert.ErrorIs(t, err, host.ErrUnknownEntity)
}

func TestLoadFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/dropper.yaml", []byte("data:\n  file_entity: MyModule.Document\nlogging:\n  level: verbose\n"), 0o600))

	_, err := config.LoadFs(fs, "/etc/dropper.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Settings.Logging.Level: validation failed on 'oneof' tag (value: verbose)")

	_, err = config.LoadFs(fs, "/etc/missing.yaml")
	require.Error(t, err)
}
