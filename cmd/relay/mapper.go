package main

import (
	"chat-relay/repositories"
	"encoding/json"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// MessageMapper renders relay records in the Badger inspector.
// Message keys follow msg:{chat}:{ts}:{id}, the default mapper already splits them.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if !strings.HasPrefix(key, "msg:") {
		row.Type = strings.ToUpper(strings.SplitN(key, ":", 2)[0])
		row.Detail = string(val)
		return row
	}

	var message repositories.DiskMessage
	if err := json.Unmarshal(val, &message); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = "MESSAGE"
	row.Detail = message.Content
	if message.Attachment != "" {
		row.Type = "ATTACHMENT"
		row.Detail = message.Attachment
	}
	return row
}
