package clients

import (
	"github.com/adshao/go-binance/v2"
)

// SimulateClient marks paper trading. Market data comes from the Binance
// public API, orders never leave the process.
type SimulateClient struct {
	binanceClient *binance.Client
}

// NewSimulateClient creates a client without API keys.
func NewSimulateClient() *SimulateClient {
	return &SimulateClient{binanceClient: binance.NewClient("", "")}
}

// GetBinanceClient returns the public Binance client.
func (c *SimulateClient) GetBinanceClient() *binance.Client {
	return c.binanceClient
}
