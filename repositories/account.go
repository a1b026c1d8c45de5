package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type diskAccount struct {
	ID          int  `json:"id"`
	UserID      *int `json:"user_id,omitempty"`
	DeveloperID *int `json:"developer_id,omitempty"`
}

type diskUser struct {
	ID         int    `json:"id"`
	AccountID  int    `json:"account_id"`
	ExternalID string `json:"external_id"`
}

// diskDeveloper never stores the password; credentials live with the
// provisioning service.
type diskDeveloper struct {
	ID        int    `json:"id"`
	AccountID int    `json:"account_id"`
	CompanyID int    `json:"company_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

func accountKey(id int) string { return fmt.Sprintf("account:%d", id) }
func userKey(id int) string { return fmt.Sprintf("user:%d", id) }
func userExternalKey(ext string) string { return "user:ext:" + ext }
func developerKey(id int) string { return fmt.Sprintf("developer:%d", id) }
func developerEmailKey(em string) string { return "developer:email:" + em }

// CreateAccount allocates an identity anchor, not linked yet.
func (s *Store) CreateAccount() (domain.Account, error) {
	id, err := s.nextID(seqAccount)
	if err != nil {
		return domain.Account{}, err
	}
	account := diskAccount{ID: id}
	err = s.update(func(txn *badger.Txn) error {
		return setJSON(txn, accountKey(id), account)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return toAccount(account), nil
}

func (s *Store) GetAccount(id domain.AccountID) (domain.Account, error) {
	var account diskAccount
	if err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, accountKey(int(id)), &account)
	}); err != nil {
		return domain.Account{}, err
	}
	return toAccount(account), nil
}

// linkAccount loads an account and rejects it if a User or a Developer already owns it.
func linkAccount(txn *badger.Txn, accountID int) (diskAccount, error) {
	var account diskAccount
	if err := getJSON(txn, accountKey(accountID), &account); err != nil {
		return diskAccount{}, err
	}
	if account.UserID != nil || account.DeveloperID != nil {
		return diskAccount{}, fmt.Errorf("account %d: %w", accountID, errors.ErrAccountAlreadyLinked)
	}
	return account, nil
}

// CreateUser links a new end-user to an unlinked account.
// External ids are unique.
func (s *Store) CreateUser(accountID domain.AccountID, externalID string) (domain.User, error) {
	id, err := s.nextID(seqUser)
	if err != nil {
		return domain.User{}, err
	}
	user := diskUser{ID: id, AccountID: int(accountID), ExternalID: externalID}
	err = s.update(func(txn *badger.Txn) error {
		account, err := linkAccount(txn, user.AccountID)
		if err != nil {
			return err
		}
		if externalID != "" {
			found, err := exists(txn, userExternalKey(externalID))
			if err != nil {
				return err
			}
			if found {
				return fmt.Errorf("user %q: %w", externalID, errors.ErrAlreadyExists)
			}
			if err = setJSON(txn, userExternalKey(externalID), id); err != nil {
				return err
			}
		}
		account.UserID = lo.ToPtr(id)
		if err = setJSON(txn, accountKey(account.ID), account); err != nil {
			return err
		}
		return setJSON(txn, userKey(id), user)
	})
	if err != nil {
		return domain.User{}, err
	}
	return toUser(user), nil
}

func (s *Store) GetUser(id domain.UserID) (domain.User, error) {
	var user diskUser
	if err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(int(id)), &user)
	}); err != nil {
		return domain.User{}, err
	}
	return toUser(user), nil
}

// CreateDeveloper links a new app-team operator to an unlinked account.
// Emails are unique.
func (s *Store) CreateDeveloper(developer domain.Developer) (domain.Developer, error) {
	id, err := s.nextID(seqDeveloper)
	if err != nil {
		return domain.Developer{}, err
	}
	disk := diskDeveloper{
		ID:        id,
		AccountID: int(developer.AccountID),
		CompanyID: int(developer.CompanyID),
		Name:      developer.Name,
		Email:     developer.Email,
		Role:      developer.Role,
	}
	err = s.update(func(txn *badger.Txn) error {
		account, err := linkAccount(txn, disk.AccountID)
		if err != nil {
			return err
		}
		if disk.Email != "" {
			found, err := exists(txn, developerEmailKey(disk.Email))
			if err != nil {
				return err
			}
			if found {
				return fmt.Errorf("developer %q: %w", disk.Email, errors.ErrAlreadyExists)
			}
			if err = setJSON(txn, developerEmailKey(disk.Email), id); err != nil {
				return err
			}
		}
		account.DeveloperID = lo.ToPtr(id)
		if err = setJSON(txn, accountKey(account.ID), account); err != nil {
			return err
		}
		return setJSON(txn, developerKey(id), disk)
	})
	if err != nil {
		return domain.Developer{}, err
	}
	return toDeveloper(disk), nil
}

func (s *Store) GetDeveloper(id domain.DeveloperID) (domain.Developer, error) {
	var developer diskDeveloper
	if err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, developerKey(int(id)), &developer)
	}); err != nil {
		return domain.Developer{}, err
	}
	return toDeveloper(developer), nil
}

func toAccount(account diskAccount) domain.Account {
	res := domain.Account{ID: domain.AccountID(account.ID)}
	if account.UserID != nil {
		res.UserID = lo.ToPtr(domain.UserID(*account.UserID))
	}
	if account.DeveloperID != nil {
		res.DeveloperID = lo.ToPtr(domain.DeveloperID(*account.DeveloperID))
	}
	return res
}

func toUser(user diskUser) domain.User {
	return domain.User{
		ID:         domain.UserID(user.ID),
		AccountID:  domain.AccountID(user.AccountID),
		ExternalID: user.ExternalID,
	}
}

func toDeveloper(developer diskDeveloper) domain.Developer {
	return domain.Developer{
		ID:        domain.DeveloperID(developer.ID),
		AccountID: domain.AccountID(developer.AccountID),
		CompanyID: domain.CompanyID(developer.CompanyID),
		Name:      developer.Name,
		Email:     developer.Email,
		Role:      developer.Role,
	}
}
