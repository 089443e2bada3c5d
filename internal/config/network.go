package config

import "strings"

// Public cluster endpoints.
const (
	MainnetURL  = "https://api.mainnet-beta.solana.com"
	DevnetURL   = "https://api.devnet.solana.com"
	TestnetURL  = "https://api.testnet.solana.com"
	LocalnetURL = "http://localhost:8899"
)

// MainnetGenesisHash identifies mainnet; remote verification is limited to it.
const MainnetGenesisHash = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"

// ResolveRPCURL maps a network alias to its endpoint. Anything that is not an
// alias is returned unchanged.
func ResolveRPCURL(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "main", "m", "mainnet-beta":
		return MainnetURL
	case "devnet", "dev", "d":
		return DevnetURL
	case "testnet", "test", "t":
		return TestnetURL
	case "localnet", "localhost", "local", "l":
		return LocalnetURL
	default:
		return strings.TrimSpace(s)
	}
}
