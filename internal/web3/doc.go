// Package web3 houses blockchain connectivity for intent settlement:
// an abstract chain client interface, YAML based multi-chain
// configuration, an EVM implementation backed by go-ethereum, and a
// deterministic in-memory ledger used as the simulated settlement
// backend when no chain is reachable.
package web3
