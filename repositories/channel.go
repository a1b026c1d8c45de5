package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type diskCompany struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type diskApp struct {
	ID         int    `json:"id"`
	CompanyID  int    `json:"company_id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
	Store      string `json:"store,omitempty"`
}

type diskChannel struct {
	ID     int `json:"id"`
	AppID  int `json:"app_id"`
	UserID int `json:"user_id"`
}

func companyKey(id int) string { return fmt.Sprintf("company:%d", id) }
func appKey(id int) string { return fmt.Sprintf("app:%d", id) }
func channelKey(id int) string { return fmt.Sprintf("channel:%d", id) }

// channelPairKey enforces one channel per (app, user) pair.
func channelPairKey(appID, userID int) string {
	return fmt.Sprintf("channel:pair:%d:%d", appID, userID)
}

func (s *Store) CreateCompany(name string) (domain.Company, error) {
	id, err := s.nextID(seqCompany)
	if err != nil {
		return domain.Company{}, err
	}
	company := diskCompany{ID: id, Name: name}
	err = s.update(func(txn *badger.Txn) error {
		return setJSON(txn, companyKey(id), company)
	})
	if err != nil {
		return domain.Company{}, err
	}
	return toCompany(company), nil
}

func (s *Store) GetCompany(id domain.CompanyID) (domain.Company, error) {
	var company diskCompany
	if err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, companyKey(int(id)), &company)
	}); err != nil {
		return domain.Company{}, err
	}
	return toCompany(company), nil
}

func (s *Store) CreateApp(app domain.App) (domain.App, error) {
	id, err := s.nextID(seqApp)
	if err != nil {
		return domain.App{}, err
	}
	disk := diskApp{
		ID:         id,
		CompanyID:  int(app.CompanyID),
		Name:       app.Name,
		ExternalID: app.ExternalID,
		Store:      app.Store,
	}
	err = s.update(func(txn *badger.Txn) error {
		if err := getJSON(txn, companyKey(disk.CompanyID), &diskCompany{}); err != nil {
			return err
		}
		return setJSON(txn, appKey(id), disk)
	})
	if err != nil {
		return domain.App{}, err
	}
	return toApp(disk), nil
}

func (s *Store) GetApp(id domain.AppID) (domain.App, error) {
	var app diskApp
	if err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, appKey(int(id)), &app)
	}); err != nil {
		return domain.App{}, err
	}
	return toApp(app), nil
}

// CreateChannel opens the conversation between an application and one of its users.
func (s *Store) CreateChannel(appID domain.AppID, userID domain.UserID) (domain.Channel, error) {
	id, err := s.nextID(seqChannel)
	if err != nil {
		return domain.Channel{}, err
	}
	channel := diskChannel{ID: id, AppID: int(appID), UserID: int(userID)}
	err = s.update(func(txn *badger.Txn) error {
		if err := getJSON(txn, appKey(channel.AppID), &diskApp{}); err != nil {
			return err
		}
		if err := getJSON(txn, userKey(channel.UserID), &diskUser{}); err != nil {
			return err
		}
		pair := channelPairKey(channel.AppID, channel.UserID)
		found, err := exists(txn, pair)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("channel for app %d and user %d: %w", appID, userID, errors.ErrAlreadyExists)
		}
		if err = setJSON(txn, pair, id); err != nil {
			return err
		}
		return setJSON(txn, channelKey(id), channel)
	})
	if err != nil {
		return domain.Channel{}, err
	}
	return toChannel(channel), nil
}

func (s *Store) GetChannel(id domain.ChannelID) (domain.Channel, error) {
	var channel diskChannel
	if err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, channelKey(int(id)), &channel)
	}); err != nil {
		return domain.Channel{}, err
	}
	return toChannel(channel), nil
}

// FindChannel returns the channel of an (app, user) pair.
func (s *Store) FindChannel(appID domain.AppID, userID domain.UserID) (domain.Channel, error) {
	var channel diskChannel
	if err := s.view(func(txn *badger.Txn) error {
		var id int
		if err := getJSON(txn, channelPairKey(int(appID), int(userID)), &id); err != nil {
			return err
		}
		return getJSON(txn, channelKey(id), &channel)
	}); err != nil {
		return domain.Channel{}, err
	}
	return toChannel(channel), nil
}

func toCompany(company diskCompany) domain.Company {
	return domain.Company{ID: domain.CompanyID(company.ID), Name: company.Name}
}

func toApp(app diskApp) domain.App {
	return domain.App{
		ID:         domain.AppID(app.ID),
		CompanyID:  domain.CompanyID(app.CompanyID),
		Name:       app.Name,
		ExternalID: app.ExternalID,
		Store:      app.Store,
	}
}

func toChannel(channel diskChannel) domain.Channel {
	return domain.Channel{
		ID:     domain.ChannelID(channel.ID),
		AppID:  domain.AppID(channel.AppID),
		UserID: domain.UserID(channel.UserID),
	}
}
