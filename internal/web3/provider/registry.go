// Package provider 按配置装配各链的结算客户端。
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/config"
	"IntentWise-Chain/internal/web3"
	"IntentWise-Chain/internal/web3/ethereum"
	"IntentWise-Chain/internal/web3/sim"
)

// Registry manages a set of chain clients keyed by human readable names.
// 模拟账本独立于链客户端，永远可用，作为结算降级后端。
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
	simulator    *sim.Ledger
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]web3.Client)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:            name,
				RPCURL:          chain.RPCURL,
				EscrowContract:  chain.EscrowContract,
				ReceiptContract: chain.ReceiptContract,
				PrivateKey:      chain.PrivateKey,
				Notes:           chain.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			clients[name] = client
		case "sim":
			// 显式声明的模拟链在下面统一挂载。
		default:
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}

	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{Name: "default", RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	gasPrice := decimal.Decimal{}
	if raw := strings.TrimSpace(cfg.SimGasPriceGwei); raw != "" {
		gasPrice, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("模拟 gas 价格不是合法的十进制数: %q", cfg.SimGasPriceGwei)
		}
	}
	simulator := sim.NewLedger(gasPrice)
	clients["sim"] = simulator

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, clients: clients, simulator: simulator}, nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Simulator returns the deterministic ledger used for fallback settlement.
func (r *Registry) Simulator() *sim.Ledger {
	if r == nil {
		return nil
	}
	return r.simulator
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
