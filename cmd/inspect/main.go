package main

import (
	"chat-pair/internal"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// inspect prints the queue snapshot stored by an observer, one row per waiting participant.
// It opens the database read-only and may run next to the observer owning it.
func main() {
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	prefix := flag.String("prefix", internal.DefaultInspectPrefix, "Prefix to scan")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("No database given, use -db or BADGER_FILEPATH")
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLogger(nil))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Participant", "Username", "Language", "Joined at", "Waited", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	mapper := internal.SnapshotMapper(time.Now)
	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(v []byte) error {
				for _, row := range mapper(key, v) {
					table.Append([]string{row.Key, row.ParticipantID, row.Username, row.Language, row.JoinedAt, row.Waited, row.Detail})
					rows++
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	header := fmt.Sprintf(" %s  prefix=%q  rows=%d ", *dbPath, *prefix, rows)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))
	table.Render()
}
