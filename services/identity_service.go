package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
)

// IdentityService decides how a sender is displayed in a channel.
// Developers speak with a label, users don't.
type IdentityService struct {
	store contract.IRecordStore
	log   *slog.Logger
}

func NewIdentityService(store contract.IRecordStore, log *slog.Logger) *IdentityService {
	return &IdentityService{store: store, log: log}
}

// Resolve looks the account up and tells whether a developer owns it.
func (s *IdentityService) Resolve(accountID domain.AccountID) (domain.Resolution, error) {
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve account %d: %w", accountID, err)
	}
	if account.DeveloperID == nil {
		return domain.Resolution{AccountID: accountID}, nil
	}
	developer, err := s.store.GetDeveloper(*account.DeveloperID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve developer of account %d: %w", accountID, err)
	}
	return domain.Resolution{
		AccountID:   accountID,
		IsDeveloper: true,
		Name:        developer.Name,
		Label:       developer.Label(),
	}, nil
}

// ResolveConnecting maps the identity supplied at connect time to its account.
// The account must exist and link back to the identity.
// The label rule is decided here once for the whole session.
func (s *IdentityService) ResolveConnecting(identity domain.ConnectingIdentity) (domain.ResolvedIdentity, error) {
	switch identity.Kind {
	case domain.KindDeveloper:
		developer, err := s.store.GetDeveloper(domain.DeveloperID(identity.ID))
		if err != nil {
			return domain.ResolvedIdentity{}, fmt.Errorf("connecting %s: %w", identity, err)
		}
		account, err := s.linkedAccount(identity, developer.AccountID)
		if err != nil {
			return domain.ResolvedIdentity{}, err
		}
		if account.DeveloperID == nil || *account.DeveloperID != developer.ID {
			return domain.ResolvedIdentity{}, fmt.Errorf("connecting %s: account %d not linked: %w", identity, account.ID, errors.ErrNotFound)
		}
		return domain.ResolvedIdentity{
			Identity:  identity,
			AccountID: account.ID,
			Name:      developer.Name,
			Label:     developer.Label(),
		}, nil
	case domain.KindUser:
		user, err := s.store.GetUser(domain.UserID(identity.ID))
		if err != nil {
			return domain.ResolvedIdentity{}, fmt.Errorf("connecting %s: %w", identity, err)
		}
		account, err := s.linkedAccount(identity, user.AccountID)
		if err != nil {
			return domain.ResolvedIdentity{}, err
		}
		if account.UserID == nil || *account.UserID != user.ID {
			return domain.ResolvedIdentity{}, fmt.Errorf("connecting %s: account %d not linked: %w", identity, account.ID, errors.ErrNotFound)
		}
		return domain.ResolvedIdentity{Identity: identity, AccountID: account.ID}, nil
	default:
		return domain.ResolvedIdentity{}, fmt.Errorf("connecting %s: %w", identity, errors.ErrValidation)
	}
}

func (s *IdentityService) linkedAccount(identity domain.ConnectingIdentity, accountID domain.AccountID) (domain.Account, error) {
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("connecting %s: account %d: %w", identity, accountID, err)
	}
	return account, nil
}
