package dropper

import (
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	placeholderFilename = "%%FILENAME%%"
	placeholderError    = "%%ERROR%%"
	placeholderMaxSize  = "%%MAXSIZE%%"
)

// Texts holds the user-facing messages of the widget. Templates may use
// %%FILENAME%%, %%ERROR%% and %%MAXSIZE%% placeholders.
type Texts struct {
	DropZone              string `mapstructure:"drop_zone"`
	DropZoneMaximum       string `mapstructure:"drop_zone_maximum"`
	FilesRejected         string `mapstructure:"files_rejected"`
	FilesRejectedByServer string `mapstructure:"files_rejected_by_server"`
	FileRejectedSize      string `mapstructure:"file_rejected_size"`
}

// DefaultTexts returns the built-in English texts.
func DefaultTexts() Texts {
	return Texts{
		DropZone:              "Click me to add a file!",
		DropZoneMaximum:       "Maximum amount for files reached, please consider removing files",
		FilesRejected:         "The following files are rejected:",
		FilesRejectedByServer: "File: '%%FILENAME%%' rejected: %%ERROR%%",
		FileRejectedSize:      "File: '%%FILENAME%%' is rejected, file size exceeds %%MAXSIZE%%",
	}
}

// Merge returns t with every non-empty field of overrides applied.
func (t Texts) Merge(overrides Texts) Texts {
	if overrides.DropZone != "" {
		t.DropZone = overrides.DropZone
	}
	if overrides.DropZoneMaximum != "" {
		t.DropZoneMaximum = overrides.DropZoneMaximum
	}
	if overrides.FilesRejected != "" {
		t.FilesRejected = overrides.FilesRejected
	}
	if overrides.FilesRejectedByServer != "" {
		t.FilesRejectedByServer = overrides.FilesRejectedByServer
	}
	if overrides.FileRejectedSize != "" {
		t.FileRejectedSize = overrides.FileRejectedSize
	}
	return t
}

// RejectedByServer renders FilesRejectedByServer for a file and the reason
// the server gave.
func (t Texts) RejectedByServer(name, reason string) string {
	return strings.NewReplacer(
		placeholderFilename, name,
		placeholderError, reason,
	).Replace(t.FilesRejectedByServer)
}

// RejectedSize renders FileRejectedSize for a file that exceeds maxSize
// bytes.
func (t Texts) RejectedSize(name string, maxSize int64) string {
	return strings.NewReplacer(
		placeholderFilename, name,
		placeholderMaxSize, humanize.IBytes(uint64(maxSize)),
	).Replace(t.FileRejectedSize)
}

// Rejected renders FilesRejected followed by the rejected file names, one
// per line.
func (t Texts) Rejected(names []string) string {
	return strings.Join(append([]string{t.FilesRejected, ""}, names...), "\n")
}
