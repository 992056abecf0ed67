package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/tinylink/pkg/config"
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/core/services"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

type storeOpener func(dbURL string) (ports.LinkStore, error)

type cli struct {
	cfg   *config.Config
	log   *slog.Logger
	open  storeOpener
	dbURL string
}

func newRootCmd(cfg *config.Config, log *slog.Logger, open storeOpener) *cobra.Command {
	c := &cli{cfg: cfg, log: log, open: open}

	root := &cobra.Command{
		Use:          "tinylink",
		Short:        "Administer the tinylink link store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.dbURL, "db", cfg.DatabaseURL, "database URL (file:, libsql://, postgres://)")

	root.AddCommand(
		c.createCmd(),
		c.renameCmd(),
		c.deleteCmd(),
		c.statsCmd(),
		c.exportCmd(),
		c.importCmd(),
	)
	return root
}

// withService opens the store for the duration of fn.
func (c *cli) withService(fn func(svc *services.LinkService) error) error {
	store, err := c.open(c.dbURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return fn(services.NewLinkService(store, c.log))
}

func (c *cli) createCmd() *cobra.Command {
	var longURL, code string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Shorten a long URL",
		Example: `  tinylink create --url="https://go.dev/doc"
  tinylink create --url="https://go.dev/doc" --code=godocs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *services.LinkService) error {
				link, err := svc.Shorten(cmd.Context(), longURL, code)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Code: %s\nShort URL: %s/r/%s\n", link.Code, c.cfg.BaseURL, link.Code)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&longURL, "url", "", "long URL to shorten")
	cmd.Flags().StringVar(&code, "code", "", "custom code (6-8 alphanumeric characters)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func (c *cli) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <code> <new-code>",
		Short: "Change the code of a link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *services.LinkService) error {
				link, err := svc.Rename(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s -> %s\n", args[0], link.Code)
				return nil
			})
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a link by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return c.withService(func(svc *services.LinkService) error {
				if err := svc.DeleteLink(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted link %d\n", id)
				return nil
			})
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print total links and clicks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *services.LinkService) error {
				stats, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Links: %d\nClicks: %d\n", stats.TotalLinks, stats.TotalClicks)
				return nil
			})
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every link as JSON to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *services.LinkService) error {
				links, err := svc.Export(cmd.Context())
				if err != nil {
					return err
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(links)
			})
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create links from a JSON export, keeping their codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			var links []domain.Link
			if err := json.NewDecoder(f).Decode(&links); err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}

			return c.withService(func(svc *services.LinkService) error {
				imported, skipped := 0, 0
				for _, l := range links {
					_, err := svc.Shorten(cmd.Context(), l.LongURL, l.Code)
					switch {
					case err == nil:
						imported++
					case domain.IsConflict(err), domain.IsValidation(err):
						c.log.Warn("import skipped", "code", l.Code, "error", err)
						skipped++
					default:
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d links, skipped %d\n", imported, skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file produced by export")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
