package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/models"
	syncpkg "github.com/kimhsiao/damagelog/backend/internal/sync"
	"github.com/kimhsiao/damagelog/backend/internal/sync/storage"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	FieldsFile string
	Fields     models.DamageFields
	Images     []string
	Voice      string
}

func newEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a damage report",
		Long: `Store a damage report locally. It is synced by the next drain.

Fields come from flags or from a YAML/JSON file; flags override the file.

Examples:
  damagelog enqueue --category crushed --shop shop-7 --reporter u-42 --image box.jpg
  damagelog enqueue --fields report.yaml --voice note.ogg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.FieldsFile, "fields", "", "YAML or JSON file with report fields")
	f.StringVar(&opts.Fields.Category, "category", "", "damage category")
	f.StringVar(&opts.Fields.Size, "size", "", "damage size")
	f.StringVar(&opts.Fields.ShopID, "shop", "", "shop id")
	f.StringVar(&opts.Fields.CustomerType, "customer-type", "", "customer type")
	f.StringVar(&opts.Fields.Notes, "notes", "", "free-text notes")
	f.StringVar(&opts.Fields.ReporterID, "reporter", "", "reporter id")
	f.StringVar(&opts.Fields.ReporterName, "reporter-name", "", "reporter display name")
	f.StringArrayVar(&opts.Images, "image", nil, "image file (repeatable, order is kept)")
	f.StringVar(&opts.Voice, "voice", "", "voice note file")

	return cmd
}

func runEnqueue(cmd *cobra.Command, opts *EnqueueOptions) error {
	fields, err := opts.loadFields()
	if err != nil {
		return opts.fail(cmd, WrapExitError(ExitCommandError, "read fields", err))
	}

	var images []models.Attachment
	for _, path := range opts.Images {
		a, err := readAttachment(path)
		if err != nil {
			return opts.fail(cmd, WrapExitError(ExitCommandError, "read image", err))
		}
		images = append(images, a)
	}
	var voice *models.Attachment
	if opts.Voice != "" {
		a, err := readAttachment(opts.Voice)
		if err != nil {
			return opts.fail(cmd, WrapExitError(ExitCommandError, "read voice note", err))
		}
		voice = &a
	}

	ctx := cmd.Context()
	a, err := opts.open(ctx)
	if err != nil {
		return opts.fail(cmd, err)
	}
	defer a.Close()

	a.CheckConnectivity(ctx)
	receipt, err := a.Capture.EnqueueWithReceipt(ctx, fields, images, voice)
	if err != nil {
		return opts.fail(cmd, WrapExitError(ExitCommandError, "entry not saved", err))
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(receipt)
	}
	return opts.formatter(cmd).Success(fmt.Sprintf("%s\n%s", receipt.ID, receipt.Notice))
}

// loadFields reads the fields file, then applies non-empty flags on top.
func (o *EnqueueOptions) loadFields() (models.DamageFields, error) {
	var fields models.DamageFields
	if o.FieldsFile != "" {
		data, err := os.ReadFile(o.FieldsFile)
		if err != nil {
			return fields, err
		}
		// JSON is valid YAML, so one decoder reads both.
		if err := yaml.Unmarshal(data, &fields); err != nil {
			return fields, fmt.Errorf("parse %s: %w", o.FieldsFile, err)
		}
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&fields.Category, o.Fields.Category)
	override(&fields.Size, o.Fields.Size)
	override(&fields.ShopID, o.Fields.ShopID)
	override(&fields.CustomerType, o.Fields.CustomerType)
	override(&fields.Notes, o.Fields.Notes)
	override(&fields.ReporterID, o.Fields.ReporterID)
	override(&fields.ReporterName, o.Fields.ReporterName)
	return fields, nil
}

func readAttachment(path string) (models.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{ContentType: storage.DetectContentType(data), Data: data}, nil
}

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Online bool
}

func newSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the queue now",
		Long: `Push every pending and errored entry to the remote, oldest first.

Exits with code 1 when at least one entry failed; failed entries stay queued
and are retried by the next drain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			defer a.Close()

			if opts.Online {
				a.SetOnline(true)
			} else {
				a.CheckConnectivity(ctx)
			}

			result, err := a.Scheduler.SyncNow(ctx)
			if err != nil {
				return opts.fail(cmd, WrapExitError(ExitCommandError, "sync failed", err))
			}

			if opts.Format == "json" {
				if err := opts.formatter(cmd).Success(result); err != nil {
					return err
				}
			} else if err := opts.formatter(cmd).Success(describeDrain(result)); err != nil {
				return err
			}
			if result.Failed > 0 {
				return WrapExitError(ExitFailure, fmt.Sprintf("%d entries failed", result.Failed), nil)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Online, "online", false, "assume the network is up instead of probing")
	return cmd
}

func describeDrain(r *syncpkg.DrainResult) string {
	switch r.Skipped {
	case syncpkg.SkipOffline:
		return "Offline: nothing was sent."
	case syncpkg.SkipInProgress:
		return "A sync is already running."
	}
	if r.Attempted == 0 {
		return "Nothing to sync."
	}
	msg := fmt.Sprintf("Synced %d of %d entries in %s.", r.Synced, r.Attempted, r.Duration.Round(time.Millisecond))
	if r.Failed > 0 {
		msg += fmt.Sprintf(" %d failed and will be retried.", r.Failed)
	}
	if r.ImageFailures > 0 {
		msg += fmt.Sprintf(" %d images were skipped.", r.ImageFailures)
	}
	return msg
}

// statusView is the output of the status command.
type statusView struct {
	Pending int  `json:"pending"`
	Errored int  `json:"errored"`
	Syncing int  `json:"syncing"`
	Online  bool `json:"online"`
}

func (s statusView) String() string {
	state := "offline"
	if s.Online {
		state = "online"
	}
	return fmt.Sprintf("%d waiting to sync (%d with errors), %s", s.Pending, s.Errored, state)
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			defer a.Close()

			stats, err := a.Store.Stats(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			return opts.formatter(cmd).Success(statusView{
				Pending: stats.Actionable(),
				Errored: stats.Errored,
				Syncing: stats.Syncing,
				Online:  a.CheckConnectivity(ctx),
			})
		},
	}
}

func newCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the remote database and storage buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(ctx, a.Config.ProbeTimeout+10*time.Second)
			defer cancel()
			if err := a.CheckRemote(ctx); err != nil {
				return opts.fail(cmd, WrapExitError(ExitFailure, "remote check failed", err))
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(map[string]bool{"ok": true})
			}
			return opts.formatter(cmd).Success("Remote database and buckets are reachable.")
		},
	}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued entries in sync order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			defer a.Close()

			entries, err := a.Store.List(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			if opts.Format == "json" {
				if entries == nil {
					entries = []*models.QueuedEntry{}
				}
				return opts.formatter(cmd).Success(entries)
			}
			return writeEntryTable(cmd, entries)
		},
	}
}

func writeEntryTable(cmd *cobra.Command, entries []*models.QueuedEntry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tRETRIES\tCAPTURED\tCATEGORY\tIMAGES\tVOICE\tLAST ERROR")
	for _, e := range entries {
		voice := "-"
		if e.HasVoice() {
			voice = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.Status, e.RetryCount,
			e.CreatedAtTime().Local().Format("2006-01-02 15:04"),
			e.Fields.Category, len(e.Images), voice, oneLine(e.LastError, 60))
	}
	return w.Flush()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Yes bool
}

func newClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every queued entry (unsynced reports are lost)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return opts.fail(cmd, WrapExitError(ExitCommandError, "refusing to clear the queue",
					apperrors.New(apperrors.ErrInvalid, "pass --yes to confirm")))
			}
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			defer a.Close()

			n, err := a.Store.Clear(ctx)
			if err != nil {
				return opts.fail(cmd, err)
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(map[string]int{"removed": n})
			}
			return opts.formatter(cmd).Success(fmt.Sprintf("Removed %d entries.", n))
		},
	}
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deleting all entries")
	return cmd
}
