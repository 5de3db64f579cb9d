package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"realm/internal/app"
	"realm/internal/cache"
	"realm/internal/cache/disk"
	"realm/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and edit the configured Cache Store",
}

// withStore opens the configured store for the duration of fn.
func withStore(fn func(cache.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s, closers, err := app.OpenStore(cfg.Cache)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if s == nil {
		return errors.New("cache backend is none")
	}
	return fn(s)
}

func createCacheGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the entry stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s cache.Store) error {
				raw, ok, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: not cached", args[0])
				}
				_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			})
		},
	}
}

func createCachePutCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "put <key> [value]",
		Short: "Store value (or --file, or stdin) under key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			switch {
			case len(args) == 2:
				raw = []byte(args[1])
			case file != "":
				raw, err = os.ReadFile(file)
			default:
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			return withStore(func(s cache.Store) error {
				return s.Put(cmd.Context(), args[0], raw)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the value from a file")
	return cmd
}

func createCachePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <key>...",
		Short: "Delete entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s cache.Store) error {
				for _, key := range args {
					if err := s.Delete(cmd.Context(), key); err != nil {
						return fmt.Errorf("purge %s: %w", key, err)
					}
				}
				return nil
			})
		},
	}
}

// openDisk opens the disk backend directly so its manifest is visible.
func openDisk() (*disk.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Backend != config.BackendDisk {
		return nil, fmt.Errorf("cache backend is %q, manifest needs %q", cfg.Cache.Backend, config.BackendDisk)
	}
	return disk.New(disk.Config{Root: cfg.Cache.Dir, MaxEntries: cfg.Cache.MaxEntries, TTL: cfg.Cache.TTL})
}

func createCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List disk cache entries with their module and build hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDisk()
			if err != nil {
				return err
			}
			defer s.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tMODULE\tHASH\tSIZE\tSTORED")
			for _, rec := range s.Records() {
				page := rec.Page
				if rec.Pinned {
					page = "(pinned)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", rec.Key, page, rec.Hash, rec.Size, rec.StoredAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func createCacheDropPageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-page <module-id>",
		Short: "Delete every disk cache entry rendered by a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDisk()
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.PurgePage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d entries\n", n)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(
		createCacheGetCmd(),
		createCachePutCmd(),
		createCachePurgeCmd(),
		createCacheListCmd(),
		createCacheDropPageCmd(),
	)
}
