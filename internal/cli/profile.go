package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/deckd/internal/plugin"
	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
)

// ProfileSummary is the listing entry for one profile.
type ProfileSummary struct {
	Device   string `json:"device"`
	ID       string `json:"id"`
	Selected bool   `json:"selected"`
	Seq      int64  `json:"seq"`
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage device profiles",
	}

	cmd.AddCommand(newProfileListCommand(rootOpts))
	cmd.AddCommand(newProfileShowCommand(rootOpts))
	cmd.AddCommand(newProfileCreateCommand(rootOpts))
	cmd.AddCommand(newProfileDeleteCommand(rootOpts))
	cmd.AddCommand(newProfileSelectCommand(rootOpts))
	cmd.AddCommand(newProfileExportCommand(rootOpts))
	cmd.AddCommand(newProfileImportCommand(rootOpts))
	cmd.AddCommand(newProfileBindCommand(rootOpts))
	cmd.AddCommand(newProfileClearCommand(rootOpts))

	return cmd
}

// withStore loads config, opens the store and runs fn against it.
func withStore(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, st *store.Store, f *OutputFormatter) error) error {
	f := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts, f)
	if err != nil {
		return err
	}
	setupLogging(opts, cfg)

	st, err := openStore(cfg, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, st, f)
}

// storeError reports a store failure with the matching code and exit status.
func storeError(f *OutputFormatter, msg string, err error) error {
	code := ErrCodeStore
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = ErrCodeNotFound
	case errors.Is(err, store.ErrSelectedProfile):
		code = ErrCodeInUse
	case errors.Is(err, profile.ErrInvalidProfile):
		code = ErrCodeInvalid
	case errors.Is(err, profile.ErrPositionOutOfRange), errors.Is(err, profile.ErrUnknownController):
		code = ErrCodeBadContext
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", msg, err), nil)
	return WrapExitError(ExitCommandError, msg, err)
}

func newProfileListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <device>",
		Short:         "List the profiles of a device",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				deviceID := args[0]
				ids, err := st.ListProfiles(ctx, deviceID)
				if err != nil {
					return storeError(f, "list profiles", err)
				}
				selected, err := st.SelectedProfile(ctx, deviceID)
				if err != nil {
					return storeError(f, "list profiles", err)
				}

				summaries := make([]ProfileSummary, 0, len(ids))
				rows := make([][]string, 0, len(ids))
				for _, id := range ids {
					seq, err := st.ProfileSeq(ctx, deviceID, id)
					if err != nil {
						return storeError(f, "list profiles", err)
					}
					s := ProfileSummary{Device: deviceID, ID: id, Selected: id == selected, Seq: seq}
					summaries = append(summaries, s)
					mark := ""
					if s.Selected {
						mark = "*"
					}
					rows = append(rows, []string{mark, id, strconv.FormatInt(seq, 10)})
				}
				return f.Table(summaries, []string{"", "PROFILE", "SEQ"}, rows)
			})
		},
	}
}

func newProfileShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <device> <profile>",
		Short:         "Print a profile as YAML (or JSON with --format json)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				p, err := st.ReadProfile(ctx, args[0], args[1])
				if err != nil {
					return storeError(f, "read profile", err)
				}
				if f.Format == "json" {
					return f.Success(p)
				}
				data, err := profile.EncodeYAML(p)
				if err != nil {
					return WrapExitError(ExitCommandError, "encode profile", err)
				}
				_, err = f.Writer.Write(data)
				return err
			})
		},
	}
}

func newProfileCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "create <device> <profile>",
		Short:         "Create an empty profile sized to the device",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				info, err := st.ReadDevice(ctx, args[0])
				if err != nil {
					return storeError(f, "read device", err)
				}
				if _, err := st.ReadProfile(ctx, info.ID, args[1]); err == nil {
					_ = f.Error(ErrCodeInvalid, fmt.Sprintf("profile %s already exists on %s", args[1], info.ID), nil)
					return NewExitError(ExitCommandError, "profile exists")
				}
				p, err := st.EnsureProfile(ctx, info, args[1])
				if err != nil {
					return storeError(f, "create profile", err)
				}
				return f.Success(ProfileSummary{Device: p.Device, ID: p.ID, Seq: 1})
			})
		},
	}
}

func newProfileDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <device> <profile>",
		Short:         "Delete a profile that is not selected",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				if err := st.DeleteProfile(ctx, args[0], args[1]); err != nil {
					return storeError(f, "delete profile", err)
				}
				return f.Success(fmt.Sprintf("deleted %s/%s", args[0], args[1]))
			})
		},
	}
}

func newProfileSelectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "select <device> <profile>",
		Short:         "Make a profile the active one on its device",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				if err := st.SelectProfile(ctx, args[0], args[1]); err != nil {
					return storeError(f, "select profile", err)
				}
				return f.Success(fmt.Sprintf("selected %s/%s", args[0], args[1]))
			})
		},
	}
}

func newProfileExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:           "export <device> <profile>",
		Short:         "Write a profile to a YAML file",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				p, err := st.ReadProfile(ctx, args[0], args[1])
				if err != nil {
					return storeError(f, "read profile", err)
				}
				data, err := profile.EncodeYAML(p)
				if err != nil {
					return WrapExitError(ExitCommandError, "encode profile", err)
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					_ = f.Error(ErrCodeWriteFailed, err.Error(), nil)
					return WrapExitError(ExitCommandError, "write profile", err)
				}
				return f.Success(fmt.Sprintf("exported %s/%s to %s", p.Device, p.ID, output))
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newProfileImportCommand(rootOpts *RootOptions) *cobra.Command {
	var selectIt bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a profile from a YAML or JSON file",
		Long: `Load a profile from a YAML or JSON file.

The document is checked against the profile schema before it is stored. The
device and id inside the document decide where it is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				res := LoadProfileFile(args[0])
				if len(res.Errors) > 0 {
					return reportValidation(f, res)
				}
				p := res.Profile

				written, err := st.SaveProfile(ctx, p)
				if err != nil {
					return storeError(f, "save profile", err)
				}
				if selectIt {
					if err := st.SelectProfile(ctx, p.Device, p.ID); err != nil {
						return storeError(f, "select profile", err)
					}
				}
				seq, err := st.ProfileSeq(ctx, p.Device, p.ID)
				if err != nil {
					return storeError(f, "read profile", err)
				}
				f.VerboseLog("import %s/%s: written=%t", p.Device, p.ID, written)
				return f.Success(ProfileSummary{Device: p.Device, ID: p.ID, Selected: selectIt, Seq: seq})
			})
		},
	}
	cmd.Flags().BoolVar(&selectIt, "select", false, "select the profile after import")
	return cmd
}

func newProfileBindCommand(rootOpts *RootOptions) *cobra.Command {
	var pluginsDir string
	cmd := &cobra.Command{
		Use:   "bind <device> <profile> <Keypad|Encoder> <position> <action-uuid>",
		Short: "Bind a plugin action to a slot",
		Long: `Bind a plugin action to a slot.

The action is looked up in the plugins directory. The new instance starts in
state 0 with empty settings.`,
		Args:          cobra.ExactArgs(5),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			cfg, err := loadConfig(rootOpts, f)
			if err != nil {
				return err
			}
			if pluginsDir == "" {
				pluginsDir = cfg.PluginsDir
			}
			catalog, err := plugin.Scan(pluginsDir)
			if err != nil {
				_ = f.Error(ErrCodeNotFound, err.Error(), nil)
				return WrapExitError(ExitCommandError, "load plugins", err)
			}

			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				ctrl, pos, err := parseSlot(args[2], args[3])
				if err != nil {
					return storeError(f, "bind", err)
				}
				action, ok := catalog.Lookup(args[4])
				if !ok {
					_ = f.Error(ErrCodeNotFound, "unknown action "+args[4], nil)
					return NewExitError(ExitCommandError, "unknown action")
				}
				if !action.Supports(ctrl) {
					_ = f.Error(ErrCodeBadContext, fmt.Sprintf("action %s does not support %s", action.UUID, ctrl), nil)
					return NewExitError(ExitCommandError, "unsupported controller")
				}

				p, err := st.ReadProfile(ctx, args[0], args[1])
				if err != nil {
					return storeError(f, "read profile", err)
				}
				inst := profile.NewInstance(action, profile.SlotContext(p.Device, p.ID, ctrl, pos))
				if err := p.Bind(ctrl, pos, inst); err != nil {
					return storeError(f, "bind", err)
				}
				if _, err := st.SaveProfile(ctx, p); err != nil {
					return storeError(f, "save profile", err)
				}
				return f.Success(fmt.Sprintf("bound %s to %s", action.UUID, inst.Context))
			})
		},
	}
	cmd.Flags().StringVar(&pluginsDir, "plugins", "", "plugins directory (default from config)")
	return cmd
}

func newProfileClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear <device> <profile> <Keypad|Encoder> <position>",
		Short:         "Remove the action bound to a slot",
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				ctrl, pos, err := parseSlot(args[2], args[3])
				if err != nil {
					return storeError(f, "clear", err)
				}
				p, err := st.ReadProfile(ctx, args[0], args[1])
				if err != nil {
					return storeError(f, "read profile", err)
				}
				if err := p.Clear(ctrl, pos); err != nil {
					return storeError(f, "clear", err)
				}
				if _, err := st.SaveProfile(ctx, p); err != nil {
					return storeError(f, "save profile", err)
				}
				return f.Success(fmt.Sprintf("cleared %s", profile.SlotContext(p.Device, p.ID, ctrl, pos)))
			})
		},
	}
}

func parseSlot(controller, position string) (profile.Controller, int, error) {
	ctrl, err := profile.ParseController(controller)
	if err != nil {
		return "", 0, err
	}
	pos, err := strconv.Atoi(position)
	if err != nil || pos < 0 {
		return "", 0, fmt.Errorf("%w: position %q", profile.ErrPositionOutOfRange, position)
	}
	return ctrl, pos, nil
}
