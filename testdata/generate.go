//go:build ignore

// Generates the sample sets used by the README examples:
//
//	go run testdata/generate.go
//	kvsql run --pk id --load users=testdata/users.parquet --load orders=testdata/orders.parquet < query.json
package main

import (
	"log"
	"os"

	"github.com/parquet-go/parquet-go"
)

type User struct {
	ID     int64   `parquet:"id"`
	Name   string  `parquet:"name"`
	Age    int32   `parquet:"age"`
	Active bool    `parquet:"active"`
	Score  float64 `parquet:"score"`
}

type Order struct {
	ID     int64   `parquet:"id"`
	UserID int64   `parquet:"user_id"`
	Amount float64 `parquet:"amount"`
	Status string  `parquet:"status"`
}

func write[T any](path string, rows []T) {
	file, err := os.Create(path)
	if err != nil {
		log.Fatal(err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		log.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		log.Fatal(err)
	}
	log.Printf("Generated %s with %d rows", path, len(rows))
}

func main() {
	write("users.parquet", []User{
		{ID: 1, Name: "alice", Age: 30, Active: true, Score: 95.5},
		{ID: 2, Name: "bob", Age: 25, Active: false, Score: 82.3},
		{ID: 3, Name: "charlie", Age: 35, Active: true, Score: 88.7},
		{ID: 4, Name: "diana", Age: 28, Active: true, Score: 91.2},
		{ID: 5, Name: "eve", Age: 42, Active: false, Score: 76.8},
	})
	write("orders.parquet", []Order{
		{ID: 100, UserID: 1, Amount: 25.0, Status: "shipped"},
		{ID: 101, UserID: 1, Amount: 12.5, Status: "pending"},
		{ID: 102, UserID: 3, Amount: 99.9, Status: "shipped"},
		{ID: 103, UserID: 7, Amount: 5.0, Status: "cancelled"},
	})
}
