package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jacentio/canopy/dict"
)

// ErrNoSharedCache is returned by "dict clear" when no Redis is configured:
// a fresh process has no memory cache worth clearing.
var ErrNoSharedCache = errors.New("dict clear needs a shared cache: set [redis] addr")

func (c *CLI) dictCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Manage the dictionary cache",
	}
	cmd.AddCommand(c.dictClearCommand())
	return cmd
}

func (c *CLI) dictClearCommand() *cobra.Command {
	var (
		locale     string
		allLocales bool
	)

	cmd := &cobra.Command{
		Use:   "clear [type...]",
		Short: "Drop cached dictionary types (all types of the locale when none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return ErrNoSharedCache
			}
			if locale != "" {
				cfg.Dict.Locale = locale
			}
			if allLocales && len(args) == 0 {
				return errors.New("--all-locales needs at least one type")
			}

			cache, err := c.newDictCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cache.Close()

			svc := dict.NewService(nil, cache, cfg.Dict.serviceConfig())
			svc.SetLogger(c.slog())
			out := cmd.OutOrStdout()
			if allLocales {
				if err := svc.InvalidateAllLocales(cmd.Context(), args...); err != nil {
					return err
				}
				printSuccess(out, "Cleared %d dictionary types for %s", len(args), StyleHighlight.Render("every locale"))
				return nil
			}

			if err := svc.Invalidate(cmd.Context(), args...); err != nil {
				return err
			}
			if len(args) == 0 {
				printSuccess(out, "Cleared all dictionaries for %s", StyleHighlight.Render(svc.Locale()))
			} else {
				printSuccess(out, "Cleared %d dictionary types for %s", len(args), StyleHighlight.Render(svc.Locale()))
			}
			printDetail(out, "redis %s db %d", cfg.Redis.Addr, cfg.Redis.DB)
			return nil
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "cache locale (overrides [dict] locale)")
	cmd.Flags().BoolVar(&allLocales, "all-locales", false, "clear the given types in every locale")
	return cmd
}
