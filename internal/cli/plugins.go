package cli

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/deckd/internal/plugin"
)

// PluginSummary describes an installed plugin.
type PluginSummary struct {
	UUID     string   `json:"uuid"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Category string   `json:"category"`
	Launch   string   `json:"launch"`
	Actions  []string `json:"actions"`
}

// NewPluginsCommand creates the plugins command.
func NewPluginsCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:           "plugins",
		Short:         "List installed plugins and their actions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			if dir == "" {
				cfg, err := loadConfig(rootOpts, f)
				if err != nil {
					return err
				}
				dir = cfg.PluginsDir
			}
			catalog, err := plugin.Scan(dir)
			if err != nil {
				_ = f.Error(ErrCodeNotFound, err.Error(), nil)
				return WrapExitError(ExitCommandError, "load plugins", err)
			}
			return runPlugins(f, catalog, runtime.GOOS)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "plugins directory (default from config)")
	return cmd
}

func runPlugins(f *OutputFormatter, catalog *plugin.Catalog, goos string) error {
	summaries := []PluginSummary{}
	var rows [][]string
	for _, p := range catalog.Plugins() {
		launch := "unsupported"
		if l, err := plugin.ResolveLaunch(&p.Manifest, goos); err == nil {
			launch = string(l.Mode)
		}
		s := PluginSummary{
			UUID:     p.UUID,
			Name:     p.Manifest.Name,
			Version:  p.Manifest.Version,
			Category: p.Manifest.Category,
			Launch:   launch,
			Actions:  []string{},
		}
		if s.Category == "" {
			s.Category = plugin.DefaultCategory
		}
		for _, a := range p.Actions {
			s.Actions = append(s.Actions, a.UUID)
		}
		summaries = append(summaries, s)
		rows = append(rows, []string{s.UUID, s.Name, s.Version, s.Category, s.Launch, strings.Join(s.Actions, ",")})
	}
	return f.Table(summaries, []string{"UUID", "NAME", "VERSION", "CATEGORY", "LAUNCH", "ACTIONS"}, rows)
}
