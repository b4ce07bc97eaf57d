package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"impractical.co/dropper"
	"impractical.co/dropper/commit"
	"impractical.co/dropper/config"
	"impractical.co/dropper/host"
	"impractical.co/dropper/httpupload"
	"impractical.co/dropper/memory"
	"impractical.co/dropper/subscription"
	"yall.in"
)

var (
	errDisabled     = errors.New("widget is disabled by its settings")
	errUploadFailed = errors.New("not every file was saved")
)

type uploadOptions struct {
	context string
	post    bool
}

func newUploadCommand(a *app) *cobra.Command {
	var opts uploadOptions
	cmd := &cobra.Command{
		Use:     "upload [files...]",
		Aliases: []string{"up"},
		Example: "$ dropper upload --config widget.yaml ./scan.pdf ./photo.jpg",
		Short:   "Save files through a dropper store",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(a, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.context, "context", "", "GUID of the object files are associated with")
	cmd.Flags().BoolVar(&opts.post, "post", false, "post file contents to the host's file endpoint instead of saving them as documents")
	return cmd
}

func runUpload(a *app, paths []string, opts uploadOptions) error {
	ctx := a.ctx
	log := yall.FromContext(ctx)

	settings := *a.settings
	if opts.post {
		settings.Data.SaveMethod = string(commit.PostRequest)
	}

	platform, err := newPlatform(ctx, &settings)
	if err != nil {
		return err
	}
	checks, err := settings.Inspect(ctx, platform)
	if err != nil {
		return err
	}

	var uploader commit.Uploader
	if commit.SaveMethod(settings.Data.SaveMethod) == commit.PostRequest {
		baseURL, stop, err := startHost(ctx, platform, "127.0.0.1:0")
		if err != nil {
			return err
		}
		defer stop()
		uploader = httpupload.New(baseURL, settings.Host.CSRFToken, nil)
	}

	bridge := subscription.New(ctx, platform)
	defer bridge.Close()
	adapter := commit.New(platform, memory.NewActions(), uploader, settings.AdapterConfig())

	storeOpts := adapter.Options(settings.StoreOptions(checks))
	storeOpts.AutoSave = true
	storeOpts.Subscriptions = bridge.Handle
	storeOpts.Context, err = contextObject(ctx, platform, &settings, opts.context)
	if err != nil {
		return err
	}
	store := dropper.NewStore(storeOpts)
	adapter.Attach(store)
	bridge.Attach(store)

	if store.Disabled() {
		printSummary(a.out, nil, store.ValidationMessages())
		return errDisabled
	}

	raws := make([]dropper.RawFile, 0, len(paths))
	for _, path := range paths {
		raw, err := dropper.OpenFile(a.fs, path)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}

	accepted, rejected := store.Filter(ctx, raws)
	dropped := store.Drop(ctx, accepted, rejected)
	store.Wait()
	adapter.Wait()
	log.WithField("cli.dropped", len(dropped)).WithField("cli.rejected", len(rejected)).Debug("[cli] upload finished")

	if !printSummary(a.out, store.Files(), store.ValidationMessages()) {
		return errUploadFailed
	}
	return nil
}

// contextObject returns the GUID of the object dropped files belong to:
// id when set, otherwise a new object of the entity at the far end of the
// context association. Without a known associated entity, files belong to
// a context nothing else refers to.
func contextObject(ctx context.Context, platform *memory.Platform, settings *config.Settings, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	_, entity, _ := strings.Cut(settings.Data.ContextAssociation, "/")
	if entity == "" {
		return uuid.NewString(), nil
	}
	if _, err := platform.Entity(ctx, entity); errors.Is(err, host.ErrUnknownEntity) {
		return uuid.NewString(), nil
	}
	obj, err := platform.Create(ctx, entity)
	if err != nil {
		return "", fmt.Errorf("error creating context object: %w", err)
	}
	return obj.GUID, nil
}

// printSummary writes a line per file and the store's validation
// messages to w. It reports whether every file was saved.
func printSummary(w io.Writer, files []*dropper.File, messages []dropper.ValidationMessage) bool {
	ok := true
	if len(files) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tSTATUS\tDETAIL")
		for _, f := range files {
			snap := f.Snapshot()
			detail := snap.GUID
			if snap.Status != dropper.StatusSaved {
				ok = false
				detail = snap.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", snap.Name, humanize.IBytes(uint64(snap.Size)), snap.Status, detail)
		}
		tw.Flush()
	}
	for _, m := range messages {
		severity := dropper.SeverityWarning
		if m.Fatal {
			severity = dropper.SeverityFatal
		}
		fmt.Fprintf(w, "%s: %s\n", severity, m.Message)
	}
	return ok
}
