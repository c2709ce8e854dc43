package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/mikan-crawler/internal/app"
	"github.com/JakeFAU/mikan-crawler/internal/crawler"
)

func newListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Prints stored catalog entries or resources",
	}
	cmd.PersistentFlags().StringVar(&format, "format", "yaml", "output format: yaml or json")

	entries := &cobra.Command{
		Use:   "entries",
		Short: "Prints every stored catalog entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(_ *app.App, store crawler.Store) error {
				rows, err := store.ListEntries(cmd.Context())
				if err != nil {
					return err
				}
				return encode(cmd.OutOrStdout(), format, rows)
			})
		},
	}

	var entryID string
	resources := &cobra.Command{
		Use:   "resources",
		Short: "Prints the resources stored for one entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(_ *app.App, store crawler.Store) error {
				rows, err := store.ListResources(cmd.Context(), entryID)
				if err != nil {
					return err
				}
				return encode(cmd.OutOrStdout(), format, rows)
			})
		},
	}
	resources.Flags().StringVar(&entryID, "entry", "", "entry id whose resources are listed")
	_ = resources.MarkFlagRequired("entry")

	cmd.AddCommand(entries, resources)
	return cmd
}

func withStore(cmd *cobra.Command, fn func(*app.App, crawler.Store) error) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	store, err := a.OpenStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			a.Logger.Warn("close store failed", zap.Error(cerr))
		}
	}()
	return fn(a, store)
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q, want yaml or json", format)
	}
}
