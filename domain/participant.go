// Package domain contains core concepts of the support chat relay.
// This file defines the identities that can speak in a channel.
// An Account is shared 1:1 by a User or a Developer, never both.
package domain

import "fmt"

type AccountID int

type Account struct {
	ID          AccountID
	UserID      *UserID
	DeveloperID *DeveloperID
}

type UserID int

// User is an end-customer of an application.
type User struct {
	ID         UserID
	AccountID  AccountID
	ExternalID string
}

type DeveloperID int

// Developer is an app-team operator answering users.
type Developer struct {
	ID        DeveloperID
	AccountID AccountID
	CompanyID CompanyID
	Name      string
	Email     string
	Role      string
}

// Label is the prefix attached to everything a developer says.
func (d Developer) Label() string {
	return DeveloperLabel(d.Name)
}

func DeveloperLabel(name string) string {
	return fmt.Sprintf("%s (app team): ", name)
}

// Resolution is the outcome of resolving a sender account.
// Label is set iff IsDeveloper.
type Resolution struct {
	AccountID   AccountID
	IsDeveloper bool
	Name        string
	Label       string
}
