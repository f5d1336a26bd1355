package uniswap

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the Uniswap v1 exchange, factory and ERC20 methods the keeper calls.
const exchangeABIJSON = `[
	{"name":"addLiquidity","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"min_liquidity","type":"uint256"},{"name":"max_tokens","type":"uint256"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"removeLiquidity","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"amount","type":"uint256"},{"name":"min_eth","type":"uint256"},{"name":"min_tokens","type":"uint256"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"tokenAddress","type":"function","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"address"}]}
]`

const factoryABIJSON = `[
	{"name":"getExchange","type":"function","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"name":"allowance","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

var (
	exchangeABI = mustParse(exchangeABIJSON)
	factoryABI  = mustParse(factoryABIJSON)
	erc20ABI    = mustParse(erc20ABIJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
