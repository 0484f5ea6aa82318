// Package wiring is the composition root: it turns one configs.ChainYAML
// plus its resolved *market.Chain into a fully wired scorer.Deps and
// chainagent.Agent, the same job the teacher's cmd/main.go did for a single
// chain and single strategy, generalized to N chains and the 12-gate
// cascade. Every on-chain read lives behind a minimal, hand-written ABI
// fragment rather than a generated binding, matching pkg/contractclient's
// own Call/Send surface.
package wiring

// liquidatorABI is the Liquidator contract's two entry points, packed by
// internal/execution.Submitter via pkg/contractclient.
const liquidatorABI = `[
  {"type":"function","name":"liquidateWithFlash","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[
    {"name":"borrower","type":"address"},
    {"name":"debtAsset","type":"address"},
    {"name":"collateralAsset","type":"address"},
    {"name":"repayAmount","type":"uint256"},
    {"name":"minCollateralOut","type":"uint256"},
    {"name":"router","type":"address"},
    {"name":"routeData","type":"bytes"},
    {"name":"deadline","type":"uint256"},
    {"name":"morphoMarketId","type":"bytes32"},
    {"name":"morphoRepayShares","type":"uint256"}
  ]}],"outputs":[]},
  {"type":"function","name":"liquidateWithFunds","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[
    {"name":"borrower","type":"address"},
    {"name":"debtAsset","type":"address"},
    {"name":"collateralAsset","type":"address"},
    {"name":"repayAmount","type":"uint256"},
    {"name":"minCollateralOut","type":"uint256"},
    {"name":"router","type":"address"},
    {"name":"routeData","type":"bytes"},
    {"name":"deadline","type":"uint256"},
    {"name":"morphoMarketId","type":"bytes32"},
    {"name":"morphoRepayShares","type":"uint256"}
  ]}],"outputs":[]}
]`

// aaveV3PoolABI covers the subset of Aave v3's IPool (and its v3-family
// forks: Radiant, Seamless) the scorer cascade needs: the borrower's
// aggregate account data for gate 10's on-chain health-factor read.
const aaveV3PoolABI = `[
  {"type":"function","name":"getUserAccountData","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[
    {"name":"totalCollateralBase","type":"uint256"},
    {"name":"totalDebtBase","type":"uint256"},
    {"name":"availableBorrowsBase","type":"uint256"},
    {"name":"currentLiquidationThreshold","type":"uint256"},
    {"name":"ltv","type":"uint256"},
    {"name":"healthFactor","type":"uint256"}
  ]}
]`

// morphoCoreABI covers Morpho Blue's singleton reads gate 10 needs to
// recompute a position's health factor without trusting the subgraph: the
// stored (supplyShares, borrowShares, collateral) tuple and the market's
// (totalBorrowAssets, totalBorrowShares, lltv).
const morphoCoreABI = `[
  {"type":"function","name":"position","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"},{"name":"user","type":"address"}],"outputs":[
    {"name":"supplyShares","type":"uint256"},
    {"name":"borrowShares","type":"uint128"},
    {"name":"collateral","type":"uint128"}
  ]},
  {"type":"function","name":"market","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[
    {"name":"totalSupplyAssets","type":"uint128"},
    {"name":"totalSupplyShares","type":"uint128"},
    {"name":"totalBorrowAssets","type":"uint128"},
    {"name":"totalBorrowShares","type":"uint128"},
    {"name":"lastUpdate","type":"uint128"},
    {"name":"fee","type":"uint128"}
  ]},
  {"type":"function","name":"idToMarketParams","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[
    {"name":"loanToken","type":"address"},
    {"name":"collateralToken","type":"address"},
    {"name":"oracle","type":"address"},
    {"name":"irm","type":"address"},
    {"name":"lltv","type":"uint256"}
  ]},
  {"type":"function","name":"isAuthorized","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"authorized","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

// morphoOracleABI is Morpho Blue's standard IOracle, a single price() view
// scaled by 1e36 / (10**collateralDecimals) / (10**loanDecimals), per the
// protocol's own oracle scaling convention.
const morphoOracleABI = `[
  {"type":"function","name":"price","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// erc20ABI is the minimal read the gate-12 funds-vs-flash decision needs.
const erc20ABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// uniV3QuoterABI mirrors Uniswap's QuoterV1 (callable via eth_call despite
// being non-view on-chain, the same trick pkg/contractclient.Call already
// relies on for any state-mutating-but-side-effect-free method).
const uniV3QuoterABI = `[
  {"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable","inputs":[
    {"name":"tokenIn","type":"address"},
    {"name":"tokenOut","type":"address"},
    {"name":"fee","type":"uint24"},
    {"name":"amountIn","type":"uint256"},
    {"name":"sqrtPriceLimitX96","type":"uint160"}
  ],"outputs":[{"name":"amountOut","type":"uint256"}]},
  {"type":"function","name":"quoteExactInput","stateMutability":"nonpayable","inputs":[
    {"name":"path","type":"bytes"},
    {"name":"amountIn","type":"uint256"}
  ],"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

// uniV2RouterABI covers the getAmountsOut view shared by UniswapV2Router02
// and every SolidlyV2 fork that kept the V2-compatible router interface
// alongside its stable/volatile pair logic.
const uniV2RouterABI = `[
  {"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"path","type":"address[]"}
  ],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// aggregatorV3ABI is Chainlink's AggregatorV3Interface, used both for price
// feeds (internal/pricecache.AggregatorReader) and for the L2 sequencer
// uptime feed (gate 5), which reports through the identical interface with
// answer==0 meaning "up".
const aggregatorV3ABI = `[
  {"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[
    {"name":"roundId","type":"uint80"},
    {"name":"answer","type":"int256"},
    {"name":"startedAt","type":"uint256"},
    {"name":"updatedAt","type":"uint256"},
    {"name":"answeredInRound","type":"uint80"}
  ]},
  {"type":"function","name":"latestAnswer","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int256"}]},
  {"type":"function","name":"latestTimestamp","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"aggregator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// preliqOfferABI is the pre-liquidation offer contract's read surface, the
// views internal/preliq.ReadOfferParams calls. Nothing in this package
// builds a client from it.
const preliqOfferABI = `[
  {"type":"function","name":"preLLTV","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"preLCF1","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"preLCF2","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"preLIF1","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"preLIF2","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"oracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"expiry","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int256"}]}
]`
