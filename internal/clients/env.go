// Package clients builds exchange clients from credentials in the environment.
package clients

import (
	"os"

	"github.com/pkg/errors"
)

// Environment keys holding exchange credentials.
const (
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceAPISecret = "BINANCE_API_SECRET"
	EnvBybitAPIKey      = "BYBIT_API_KEY"
	EnvBybitAPISecret   = "BYBIT_API_SECRET"
)

// ErrUnsupportedPlatform returned for unknown platform names.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// FromEnv creates the client for platform using credentials from getenv.
// A nil getenv means os.Getenv.
func FromEnv(platform string, getenv func(string) string) (any, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	switch platform {
	case "binance":
		key, secret := getenv(EnvBinanceAPIKey), getenv(EnvBinanceAPISecret)
		if key == "" || secret == "" {
			return nil, errors.Errorf("%s and %s environment variables must be set", EnvBinanceAPIKey, EnvBinanceAPISecret)
		}
		return NewBinanceClient(key, secret), nil
	case "bybit":
		key, secret := getenv(EnvBybitAPIKey), getenv(EnvBybitAPISecret)
		if key == "" || secret == "" {
			return nil, errors.Errorf("%s and %s environment variables must be set", EnvBybitAPIKey, EnvBybitAPISecret)
		}
		return NewBybitClient(key, secret), nil
	case "simulate":
		return NewSimulateClient(), nil
	default:
		return nil, errors.Wrap(ErrUnsupportedPlatform, platform)
	}
}
