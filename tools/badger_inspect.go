package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"chat-relay/services"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	chat := flag.Int("chat", 0, "Channel to print as a conversation")
	prefix := flag.String("prefix", "msg:", "Prefix to scan when no channel is given")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := newTable()
	if *chat > 0 {
		err = conversation(db, domain.ChannelID(*chat), table)
	} else {
		err = scan(db, *prefix, table)
	}
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
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
	return table
}

// conversation prints a channel as its members would see it after a replay.
func conversation(db *badger.DB, channelID domain.ChannelID, table *tablewriter.Table) error {
	logger := logs.GetLoggerFromLevel(slog.LevelError)
	store := repositories.NewReadOnlyStore(db, logger)
	identity := services.NewIdentityService(store, logger)

	channel, err := store.GetChannel(channelID)
	if err != nil {
		return err
	}
	messages, err := store.ListMessages(channel.ID)
	if err != nil {
		return err
	}
	color.Info.Printf("Chat %d, app %d, user %d: %d messages\n", channel.ID, channel.AppID, channel.UserID, len(messages))

	table.SetHeader([]string{"ID", "Sent at", "Sender", "Role", "Payload"})
	for _, message := range messages {
		role := "user"
		resolution, err := identity.Resolve(message.SenderID)
		switch {
		case err != nil:
			role = color.Red.Sprint("unknown")
		case resolution.IsDeveloper:
			role = color.Cyan.Sprint("developer")
		}
		table.Append([]string{
			strconv.Itoa(int(message.ID)),
			message.SentAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(int(message.SenderID)),
			role,
			resolution.Label + message.Body(),
		})
	}
	return nil
}

// scan dumps raw records under a key prefix.
func scan(db *badger.DB, prefix string, table *tablewriter.Table) error {
	table.SetHeader([]string{"Key", "Size", "Value"})
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			// Sequences hold binary counters
			if strings.HasPrefix(key, "seq:") {
				continue
			}
			err := item.Value(func(v []byte) error {
				table.Append([]string{key, strconv.Itoa(len(v)), string(v)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}
