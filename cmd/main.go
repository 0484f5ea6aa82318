package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/configs"
	"github.com/blackhole-labs/liquidationd/internal/adaptive"
	"github.com/blackhole-labs/liquidationd/internal/aggregator"
	"github.com/blackhole-labs/liquidationd/internal/alert"
	"github.com/blackhole-labs/liquidationd/internal/bootenv"
	"github.com/blackhole-labs/liquidationd/internal/chainagent"
	"github.com/blackhole-labs/liquidationd/internal/db"
	"github.com/blackhole-labs/liquidationd/internal/execution"
	"github.com/blackhole-labs/liquidationd/internal/ingest"
	"github.com/blackhole-labs/liquidationd/internal/killswitch"
	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/metrics"
	"github.com/blackhole-labs/liquidationd/internal/rpcpool"
	"github.com/blackhole-labs/liquidationd/internal/session"
	"github.com/blackhole-labs/liquidationd/internal/throttle"
	"github.com/blackhole-labs/liquidationd/internal/wiring"
	"github.com/blackhole-labs/liquidationd/pkg/txlistener"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	conf, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	chains, err := conf.ToChains()
	if err != nil {
		log.Fatal("resolve chains", zap.Error(err))
	}

	recorder, err := db.NewAttemptRecorder(conf.DB.DSN)
	if err != nil {
		log.Fatal("connect attempt recorder", zap.Error(err))
	}

	var redisClient *redis.Client
	if conf.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: conf.Redis.Addr})
	}

	adaptiveClient := adaptive.New(
		conf.Adaptive.BaseURL,
		time.Duration(conf.Adaptive.TimeoutMs)*time.Millisecond,
		conf.Adaptive.PeggedPairs,
		conf.Adaptive.PeggedGapMultiplier,
	)

	sess := session.New(
		uint64(conf.Session.MaxLiveExecutions),
		decimal.NewFromFloat(conf.Session.MaxSessionNotionalUSD),
	)

	alerter := alert.NewThrottled(log, 15*time.Minute)
	ks := killswitch.New(bootenv.KillSwitchPath(), bootenv.KillSwitchEnvVar(), alerter)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector()
	go metrics.Serve(ctx, conf.Metrics.Addr, collector, log)

	reportChan := make(chan string, 256)
	go func() {
		for update := range reportChan {
			log.Info("agent report", zap.String("payload", update))

			var r chainagent.Report
			if err := json.Unmarshal([]byte(update), &r); err == nil {
				collector.Observe(strconv.FormatInt(r.ChainID, 10), r.EventType)
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := sess.Snapshot()
				notional, _ := snap.SessionNotionalUSD.Float64()
				collector.SetNotionalUSD("all", notional)
			}
		}
	}()

	var wg sync.WaitGroup
	for i, cy := range conf.Chains {
		chain := chains[i]
		cy := cy
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runChain(ctx, chain, cy, log, adaptiveClient, redisClient, recorder, sess, ks, alerter, reportChan); err != nil {
				log.Error("chain agent stopped", zap.String("chain", chain.Name), zap.Error(err))
			}
		}()
	}

	wg.Wait()
	close(reportChan)
}

// runChain builds and runs one chain's full ingestion -> scoring ->
// execution pipeline until ctx is cancelled or the agent halts itself.
func runChain(
	ctx context.Context,
	chain *market.Chain,
	cy configs.ChainYAML,
	log *zap.Logger,
	adaptiveClient *adaptive.Client,
	redisClient *redis.Client,
	recorder *db.AttemptRecorder,
	sess *session.Counters,
	ks *killswitch.Switch,
	alerter *alert.Throttled,
	reportChan chan<- string,
) error {
	chainLog := log.With(zap.String("chain", chain.Name), zap.Int64("chain_id", chain.ChainID))

	httpClient, err := ethclient.Dial(chain.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	pool := rpcpool.New(httpClient, chain.WSURLs, chainLog)

	tunables := bootenv.LoadPrecommitTunables()
	pricingTunables := bootenv.LoadPricingTunables()
	throttleStore := throttle.New(redisClient, chainLog, time.Hour)

	rt, err := wiring.NewRuntime(pool, adaptiveClient, throttleStore, cy.ToPolicies(), cy.Denylisted, tunables.Alpha, pricingTunables, chainLog)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	listener := txlistener.NewTxListener(
		httpClient,
		txlistener.WithPollInterval(3*time.Second),
		txlistener.WithTimeout(5*time.Minute),
	)
	liquidatorClient, err := wiring.NewLiquidatorClient(pool, chain)
	if err != nil {
		return fmt.Errorf("build liquidator client: %w", err)
	}
	submitter := execution.NewSubmitter(liquidatorClient, chain, execution.NewNonceLock(), listener, chainLog)
	if chain.Bundler3 != (common.Address{}) {
		aggTunables := bootenv.LoadAggregatorTunables()
		submitter.HTTPClient = httpClient
		submitter.Bundler3Addr = chain.Bundler3
		submitter.Bundler3 = execution.Bundler3Builder{WrappedNative: chain.WrappedNative}
		submitter.Aggregator = aggregator.New(aggregator.Config{
			OdosBaseURL:    aggTunables.OdosBaseURL,
			OdosAPIKey:     aggTunables.OdosAPIKey,
			OneInchBaseURL: aggTunables.OneInchBaseURL,
			OneInchAPIKey:  aggTunables.OneInchAPIKey,
		}, &http.Client{Timeout: 10 * time.Second}, chainLog)
	}

	merger := ingest.NewMerger(chainLog, ingest.DefaultDedupeWindow, ingest.DefaultMergedChannelDepth)
	producers, retryQueue := startIngestion(ctx, chain, cy, pool, rt, chainLog)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	go merger.Run(done, producers...)

	tapped := make(chan market.Candidate, ingest.DefaultMergedChannelDepth)
	go func() {
		defer close(tapped)
		for c := range merger.Out() {
			rt.ObserveCandidate(c)
			tapped <- c
		}
	}()

	cfg := chainagent.DefaultConfig()
	cfg.FailRateCap = chain.Risk.FailRateCap
	cfg.DryRun = os.Getenv("DRY_RUN") == "true"

	agent := wiring.BuildAgent(chain, rt, cfg, tapped, submitter, recorder, sess, ks, alerter, chainLog)
	agent.RetryQueue = retryQueue
	return agent.Run(ctx, reportChan)
}

// startIngestion builds and launches every candidate producer configured
// for chain, returning their output channels for the Merger to fan in
// along with the retry queue the agent schedules HF-above-max rejections
// onto.
func startIngestion(ctx context.Context, chain *market.Chain, cy configs.ChainYAML, pool *rpcpool.Pool, rt *wiring.Runtime, log *zap.Logger) ([]<-chan market.Candidate, *ingest.RetryQueue) {
	var producers []<-chan market.Candidate

	rl := bootenv.LoadRateLimitTunables()

	if chain.Protocol == market.ProtocolMorphoBlue {
		if endpoint, ok := cy.Subgraphs["morpho"]; ok {
			poller := ingest.NewMorphoPoller(log, chain, ingest.MorphoPollerConfig{Endpoint: endpoint}, ingest.DefaultMergedChannelDepth)
			go poller.Run(ctx)
			producers = append(producers, poller.Out())
		}
	} else if endpoint, ok := cy.Subgraphs[string(chain.Protocol)]; ok {
		fallback, _ := bootenv.SubgraphFallback(chain.Name, string(chain.Protocol))
		endpoints := []string{endpoint}
		if fallback != "" {
			endpoints = append(endpoints, fallback)
		}
		poller := ingest.NewSubgraphPoller(log, chain, ingest.SubgraphPollerConfig{
			Endpoints:       endpoints,
			RateLimitPerSec: float64(rl.MaxPerWindow) / rl.Window.Seconds(),
			RateLimitBurst:  rl.MaxConcurrent,
		}, ingest.DefaultMergedChannelDepth)
		go poller.Run(ctx)
		producers = append(producers, poller.Out())
	}

	resolver := wiring.NewPositionResolver(rt, chain)
	feeds := make([]ingest.PriceFeed, 0, len(chain.Tokens))
	for _, tok := range chain.Tokens {
		if tok.OracleFeed != (common.Address{}) {
			feeds = append(feeds, ingest.PriceFeed{ProxyAddress: tok.OracleFeed, CacheKey: tok.OracleFeed.Hex()})
		}
	}
	watcher := ingest.NewWatcher(log, chain, pool, resolver, nil, feeds, rt.FeedStates, nil, ingest.DefaultMergedChannelDepth)
	go watcher.Run(ctx)
	producers = append(producers, watcher.Out())

	retryQueue := ingest.NewRetryQueue(log, 5*time.Second, 60*time.Second, ingest.DefaultMergedChannelDepth)
	producers = append(producers, retryQueue.Out())

	return producers, retryQueue
}
