package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/vegasq/kvsql/output"
	"github.com/vegasq/kvsql/query"
	"github.com/vegasq/kvsql/reader"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <file.parquet>",
		Short: "Show the columns of a parquet file and the bin types they load as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return showSchema(args[0], cfg.Output.Format, cmd.OutOrStdout())
		},
	}
}

// showSchema formats the schema through the regular result formatters.
func showSchema(path, format string, out io.Writer) error {
	infos, err := reader.ExtractSchemaInfo(path)
	if err != nil {
		return err
	}

	columns := []*query.Column{
		query.NewColumn("name"),
		query.NewColumn("type"),
		query.NewColumn("physical_type"),
		query.NewColumn("logical_type"),
		query.NewColumn("bin_type"),
		query.NewColumn("required"),
		query.NewColumn("optional"),
		query.NewColumn("repeated"),
	}
	rows := make([]query.Row, len(infos))
	for i, info := range infos {
		rows[i] = query.Row{
			info.Name, info.Type, info.PhysicalType, info.LogicalType,
			info.BinType, info.Required, info.Optional, info.Repeated,
		}
	}

	formatter, err := output.New(format, out)
	if err != nil {
		return err
	}
	return formatter.Format(query.NewListCursor(columns, rows))
}
