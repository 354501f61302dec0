// Package reader loads Apache Parquet files into a key-value store.
//
// Rows are decoded with github.com/parquet-go/parquet-go into bin maps whose
// values follow the store's value domain (int64, float64, string, []byte,
// bool, lists and nested maps) and written with one Put per row.
//
// # Loading
//
//	n, err := reader.Load(ctx, client, "data/*.parquet", reader.LoadOptions{
//	    Namespace:  "test",
//	    Set:        "users",
//	    PrimaryKey: "id",
//	})
//
// The key column is removed from the bins and becomes the record key. Without
// a key column, rows are keyed by their position. Glob loads tag each record
// with its source path in the "_file" bin.
//
// # Schema Introspection
//
//	infos, err := reader.ExtractSchemaInfo("data.parquet")
//	for _, info := range infos {
//	    fmt.Printf("%s: %s (%s)\n", info.Name, info.Type, info.BinType)
//	}
package reader
