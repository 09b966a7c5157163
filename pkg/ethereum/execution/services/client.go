package services

import "strings"

type Client string

const (
	ClientUnknown    Client = "unknown"
	ClientGeth       Client = "geth"
	ClientNethermind Client = "nethermind"
	ClientBesu       Client = "besu"
	ClientErigon     Client = "erigon"
	ClientReth       Client = "reth"
	ClientTaikoGeth  Client = "taiko-geth"
)

// ClientFromString maps a web3_clientVersion string such as
// "Geth/v1.15.0-stable/linux-amd64/go1.23" to a known client.
func ClientFromString(version string) Client {
	v := strings.ToLower(version)

	switch {
	case strings.HasPrefix(v, "taiko-geth"):
		return ClientTaikoGeth
	case strings.HasPrefix(v, "geth"):
		return ClientGeth
	case strings.HasPrefix(v, "nethermind"):
		return ClientNethermind
	case strings.HasPrefix(v, "besu"):
		return ClientBesu
	case strings.HasPrefix(v, "erigon"):
		return ClientErigon
	case strings.HasPrefix(v, "reth"):
		return ClientReth
	default:
		return ClientUnknown
	}
}
