package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jacentio/fskv/dynimport"
	"github.com/jacentio/fskv/store"
	"github.com/jacentio/fskv/watch"
)

// app carries global flags and the state derived from them.
type app struct {
	configPath   string
	root         string
	noCreate     bool
	marker       string
	treeHeight   int
	segmentWidth int
	logLevel     string

	file   fileConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "fskv",
		Short: "Filesystem key-value store tool",
		Long: `fskv reads and writes records of a filesystem key-value store.

Each record is a file named after its key, stored under directories
derived from the MD5 digest of the key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML configuration file")
	f.StringVar(&a.root, "root", "", "Store root directory")
	f.BoolVar(&a.noCreate, "no-create", false, "Fail instead of creating a missing store")
	f.StringVar(&a.marker, "marker", store.DefaultMarker, "Marker directory identifying a store root (empty disables the check)")
	f.IntVar(&a.treeHeight, "tree-height", 0, "Shard directory levels (default 3)")
	f.IntVar(&a.segmentWidth, "segment-width", 0, "Hex characters per shard directory (default 4)")
	f.StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newPutCmd(a),
		newGetCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newHasCmd(a),
		newPathCmd(a),
		newWatchCmd(a),
		newImportCmd(a),
	)
	return cmd
}

// init loads the config file and sets up logging. Explicit flags win over the file.
func (a *app) init(cmd *cobra.Command) error {
	if a.configPath != "" {
		file, err := loadFileConfig(a.configPath)
		if err != nil {
			return err
		}
		a.file = file
	}
	level := a.logLevel
	if !cmd.Flags().Changed("log-level") && a.file.LogLevel != "" {
		level = a.file.LogLevel
	}
	logger, err := newLogger(cmd.ErrOrStderr(), level)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// openStore opens the store selected by flags and config file.
func (a *app) openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg := a.file.storeConfig()
	flags := cmd.Flags()
	root := a.file.Root
	if flags.Changed("root") {
		root = a.root
	}
	if root == "" {
		return nil, errors.New("no store root: use --root or set root in --config")
	}
	if flags.Changed("no-create") {
		cfg.Create = !a.noCreate
	}
	if flags.Changed("marker") {
		cfg.Marker = a.marker
	}
	if flags.Changed("tree-height") {
		cfg.TreeHeight = a.treeHeight
	}
	if flags.Changed("segment-width") {
		cfg.SegmentWidth = a.segmentWidth
	}
	cfg.Logger = a.logger
	return store.New(root, cfg)
}

// readValue returns the --value flag, args[i], or stdin when args[i] is
// absent or "-".
func readValue(cmd *cobra.Command, args []string, i int) ([]byte, error) {
	if cmd.Flags().Changed("value") {
		if len(args) > i {
			return nil, errors.New("value given both as argument and --value")
		}
		v, err := cmd.Flags().GetString("value")
		return []byte(v), err
	}
	if len(args) > i && args[i] != "-" {
		return []byte(args[i]), nil
	}
	v, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read value from stdin: %w", err)
	}
	return v, nil
}

func newPutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put KEY [VALUE|-]",
		Short: "Create a record; fails if the key exists",
		Long: `The value is read from stdin when VALUE is omitted or "-".
Use --value to store a value that is literally "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			value, err := readValue(cmd, args, 1)
			if err != nil {
				return err
			}
			return s.Put(args[0], value)
		},
	}
	cmd.Flags().String("value", "", "value to store instead of VALUE or stdin")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a record's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			value, err := s.Get(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(value)
			return err
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update KEY [VALUE|-]",
		Short: "Create or atomically replace a record",
		Long: `The value is read from stdin when VALUE is omitted or "-".
Use --value to store a value that is literally "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			value, err := readValue(cmd, args, 1)
			if err != nil {
				return err
			}
			return s.Update(args[0], value)
		},
	}
	cmd.Flags().String("value", "", "value to store instead of VALUE or stdin")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			return s.Delete(args[0])
		},
	}
}

func newHasCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "has KEY",
		Short: "Print whether a record exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			ok, err := s.Has(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
}

func newPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path KEY",
		Short: "Print the file path of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			p, err := s.RecordPath(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch KEY...",
		Short: "Print changes to records until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			w, err := watch.New(s, a.logger)
			if err != nil {
				return err
			}
			defer w.Close()
			for _, key := range args {
				if err := w.Add(key); err != nil {
					return err
				}
			}

			errc := make(chan error, 1)
			go func() { errc <- w.Run(cmd.Context()) }()
			for e := range w.Events() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", e.Op, e.Key); err != nil {
					return err
				}
			}
			return <-errc
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	cfg := dynimport.DefaultConfig()
	var profile, region, endpoint string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a DynamoDB table into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			opts := a.file.clientOptions()
			if cmd.Flags().Changed("profile") {
				opts.Profile = profile
			}
			if cmd.Flags().Changed("region") {
				opts.Region = region
			}
			if cmd.Flags().Changed("endpoint") {
				opts.Endpoint = endpoint
			}
			client, err := dynimport.NewClient(cmd.Context(), opts)
			if err != nil {
				return err
			}

			cfg.Logger = a.logger
			stats, err := dynimport.New(client, s, cfg).Run(cmd.Context())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d imported=%d skipped=%d invalid=%d\n",
				stats.Scanned, stats.Imported, stats.Skipped, stats.Invalid)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Table, "table", "", "DynamoDB table to scan")
	f.StringVar(&cfg.KeyAttr, "key-attr", cfg.KeyAttr, "String attribute holding the record key")
	f.StringVar(&cfg.ValueAttr, "value-attr", cfg.ValueAttr, "String or binary attribute holding the record value")
	f.BoolVar(&cfg.Overwrite, "overwrite", false, "Replace existing records instead of skipping them")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent record writes")
	f.Int32Var(&cfg.PageSize, "page-size", 0, "Items per Scan request (0 = service default)")
	f.StringVar(&profile, "profile", "", "AWS shared config profile")
	f.StringVar(&region, "region", "", "AWS region")
	f.StringVar(&endpoint, "endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
