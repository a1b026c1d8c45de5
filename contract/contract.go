//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/search"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives payloads broadcast to a channel member.
type EventSink interface {
	Consume(ctx context.Context, payload string) error
}

type IRegistry interface {
	Join(channelID domain.ChannelID, participantID string, sink EventSink)
	Leave(channelID domain.ChannelID, participantID string)
	Broadcast(ctx context.Context, channelID domain.ChannelID, payload string) int
}

// IRecordStore is the read/write view of persisted records the relay relies on.
type IRecordStore interface {
	GetChannel(id domain.ChannelID) (domain.Channel, error)
	GetUser(id domain.UserID) (domain.User, error)
	GetDeveloper(id domain.DeveloperID) (domain.Developer, error)
	GetAccount(id domain.AccountID) (domain.Account, error)
	GetApp(id domain.AppID) (domain.App, error)
	GetCompany(id domain.CompanyID) (domain.Company, error)
	ListMessages(channelID domain.ChannelID) ([]domain.Message, error)
	CreateMessage(channelID domain.ChannelID, senderID domain.AccountID, content string) (domain.Message, error)
}

// IIndexSink is the external search sink. IndexDocument never propagates
// failures: it logs them and reports false.
type IIndexSink interface {
	IndexDocument(ctx context.Context, doc domain.IndexDocument) bool
	Search(ctx context.Context, query search.Query) ([]domain.IndexDocument, error)
}

type IIndexQueue interface {
	Submit(job domain.IndexJob) error
}

type IIdentityResolver interface {
	Resolve(accountID domain.AccountID) (domain.Resolution, error)
	ResolveConnecting(identity domain.ConnectingIdentity) (domain.ResolvedIdentity, error)
}

// Connection is one client socket as seen by the session controller.
type Connection interface {
	Receive() (domain.Frame, error)
	Send(frame domain.Frame) error
	Close() error
}
