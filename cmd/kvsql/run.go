package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vegasq/kvsql/config"
	"github.com/vegasq/kvsql/logger"
	"github.com/vegasq/kvsql/output"
	"github.com/vegasq/kvsql/query"
	"github.com/vegasq/kvsql/reader"
	"github.com/vegasq/kvsql/store/memstore"
)

type runOptions struct {
	loads   []string
	indexes []string
	explain bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [statement.json]",
		Short: "Load data and run a JSON statement (reads stdin without a file)",
		Example: `  kvsql run --load users=users.parquet --index users.age query.json
  echo '{"select":{"table":"users","where":{"column":"age","op":">","value":30}}}' | kvsql run --load users=users.parquet`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			in := io.Reader(cmd.InOrStdin())
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open statement: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			return run(cmd.Context(), cfg, opts, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVar(&opts.loads, "load", nil, "load parquet files into a set: set=path (glob allowed)")
	cmd.Flags().StringArrayVar(&opts.indexes, "index", nil, "create a secondary index: set.bin")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "print the access plan instead of running a select")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts runOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store := memstore.New()

	for _, spec := range opts.indexes {
		set, bin, ok := strings.Cut(spec, ".")
		if !ok || set == "" || bin == "" {
			return fmt.Errorf("invalid index %q, want set.bin", spec)
		}
		store.CreateIndex(cfg.Namespace, set, bin)
	}
	for _, spec := range opts.loads {
		set, path, ok := strings.Cut(spec, "=")
		if !ok || set == "" || path == "" {
			return fmt.Errorf("invalid load %q, want set=path", spec)
		}
		n, err := reader.Load(ctx, store, path, reader.LoadOptions{
			Namespace:  cfg.Namespace,
			Set:        set,
			PrimaryKey: cfg.Data.PK,
		})
		if err != nil {
			return err
		}
		logger.Info("loaded records", "set", set, "path", path, "count", n)
	}

	doc, err := decodeDocument(in)
	if err != nil {
		return err
	}

	engine := query.NewEngine(store, query.Options{
		Namespace:  cfg.Namespace,
		SampleSize: cfg.SampleSize,
		LossyOrder: cfg.Order.Lossy,
		PageSize:   cfg.Order.PageSize,
		Logger:     logger.Get(),
	})

	var cursor query.Cursor
	switch {
	case doc.Insert != nil:
		n, err := engine.Insert(ctx, doc.Insert.insert())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%d record(s) inserted\n", n)
		return err
	case doc.Update != nil:
		upd, err := doc.Update.update()
		if err != nil {
			return err
		}
		n, err := engine.Update(ctx, upd)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%d record(s) updated\n", n)
		return err
	case doc.Union != nil:
		u := &query.Union{All: doc.Union.All}
		for _, spec := range doc.Union.Statements {
			stmt, err := spec.statement()
			if err != nil {
				return err
			}
			u.Statements = append(u.Statements, stmt)
		}
		if cursor, err = engine.CompileUnion(ctx, u); err != nil {
			return err
		}
	default:
		stmt, err := doc.Select.statement()
		if err != nil {
			return err
		}
		if opts.explain {
			plan, err := engine.Explain(stmt)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, plan)
			return err
		}
		if cursor, err = engine.Compile(ctx, stmt); err != nil {
			return err
		}
	}

	formatter, err := output.New(cfg.Output.Format, out)
	if err != nil {
		_ = cursor.Close()
		return err
	}
	return formatter.Format(cursor)
}
