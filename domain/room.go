// Package domain contains core concepts of the support chat relay.
// This file defines the Channel, the unit of conversation and broadcast scope.
package domain

import "strconv"

type ChannelID int

func (c ChannelID) String() string {
	return strconv.Itoa(int(c))
}

// Channel pairs exactly one application with one end-user.
// At most one Channel exists per (AppID, UserID).
type Channel struct {
	ID     ChannelID
	AppID  AppID
	UserID UserID
}

type CompanyID int

type Company struct {
	ID   CompanyID
	Name string
}

type AppID int

type App struct {
	ID         AppID
	CompanyID  CompanyID
	Name       string
	ExternalID string
	Store      string
}
