package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HttpAddr string `envconfig:"RELAY_HTTP_ADDR"`
	GrpcAddr string `envconfig:"RELAY_GRPC_ADDR"`
	// Channel and participants already provisioned on the target relay
	Chat        int `envconfig:"E2E_CHAT"`
	UserID      int `envconfig:"E2E_USER_ID"`
	DeveloperID int `envconfig:"E2E_DEVELOPER_ID"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
