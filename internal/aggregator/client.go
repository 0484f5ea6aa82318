// Package aggregator quotes a profitable collateral->debt swap for the
// Bundler3 pre-liquidation path (SPEC_FULL.md §4.3/§6): Odos is tried first,
// 1inch v5.2 is the fallback. Grounded on internal/adaptive's plain
// net/http + encoding/json client idiom — no HTTP client wrapper library
// appears anywhere in the teacher or the rest of the pack for small JSON
// request/response clients like this one. Both providers require a bearer
// API key; a missing key degrades that branch to "no quote" rather than an
// error, matching adaptive.Client's degrade-on-outage pattern.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var errNoQuote = errors.New("aggregator: no profitable quote available")

// Quote is a ready-to-embed swap: router to call, calldata to forward, and
// the output amount it promises, used both for the Bundler3 callback_data
// and for a net-proceeds check before submission.
type Quote struct {
	Router    common.Address
	Calldata  []byte
	AmountOut *big.Int
	Source    string
}

// Client tries Odos first, then 1inch, returning the first usable quote.
type Client struct {
	httpClient *http.Client

	odosBaseURL  string
	odosAPIKey   string
	oneInchBaseURL string
	oneInchAPIKey  string

	log *zap.Logger
}

// Config names the two providers' endpoints and bearer keys. Empty API keys
// disable that provider's branch.
type Config struct {
	OdosBaseURL    string
	OdosAPIKey     string
	OneInchBaseURL string
	OneInchAPIKey  string
}

// New builds a Client. Base URLs default to the providers' public hosts when
// left empty.
func New(cfg Config, httpClient *http.Client, log *zap.Logger) *Client {
	odosBase := cfg.OdosBaseURL
	if odosBase == "" {
		odosBase = "https://api.odos.xyz"
	}
	oneInchBase := cfg.OneInchBaseURL
	if oneInchBase == "" {
		oneInchBase = "https://api.1inch.dev"
	}
	return &Client{
		httpClient:     httpClient,
		odosBaseURL:    odosBase,
		odosAPIKey:     cfg.OdosAPIKey,
		oneInchBaseURL: oneInchBase,
		oneInchAPIKey:  cfg.OneInchAPIKey,
		log:            log,
	}
}

// Quote asks Odos for a quote, falling back to 1inch when Odos has no key
// configured or fails, returning errNoQuote only once both branches are
// exhausted.
func (c *Client) Quote(ctx context.Context, chainID int64, sellToken, buyToken, userAddr common.Address, amountIn *big.Int) (*Quote, error) {
	if c.odosAPIKey != "" {
		q, err := c.odosQuote(ctx, chainID, sellToken, buyToken, userAddr, amountIn)
		if err == nil {
			return q, nil
		}
		c.log.Warn("aggregator: odos quote failed, falling back to 1inch", zap.Error(err))
	}

	if c.oneInchAPIKey != "" {
		q, err := c.oneInchQuote(ctx, chainID, sellToken, buyToken, userAddr, amountIn)
		if err == nil {
			return q, nil
		}
		c.log.Warn("aggregator: 1inch quote failed", zap.Error(err))
	}

	return nil, errNoQuote
}

type odosQuoteRequest struct {
	ChainID       int64                  `json:"chainId"`
	InputTokens   []odosTokenAmount      `json:"inputTokens"`
	OutputTokens  []odosOutputProportion `json:"outputTokens"`
	UserAddr      string                 `json:"userAddr"`
	SlippageLimit float64                `json:"slippageLimitPercent"`
}

type odosTokenAmount struct {
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
}

type odosOutputProportion struct {
	TokenAddress string  `json:"tokenAddress"`
	Proportion   float64 `json:"proportion"`
}

type odosQuoteResponse struct {
	PathID    string `json:"pathId"`
	OutAmount string `json:"outAmounts"`
}

type odosAssembleRequest struct {
	UserAddr string `json:"userAddr"`
	PathID   string `json:"pathId"`
}

type odosAssembleResponse struct {
	Transaction struct {
		To   string `json:"to"`
		Data string `json:"data"`
	} `json:"transaction"`
	OutputTokens []struct {
		Amount string `json:"amount"`
	} `json:"outputTokens"`
}

// odosQuote implements Odos's two-step quote/sor/v2 -> assemble flow
// (spec.md §6): /sor/quote/v2 returns a pathId, then /sor/assemble turns
// that into the actual router call.
func (c *Client) odosQuote(ctx context.Context, chainID int64, sellToken, buyToken, userAddr common.Address, amountIn *big.Int) (*Quote, error) {
	quoteBody, err := json.Marshal(odosQuoteRequest{
		ChainID:       chainID,
		InputTokens:   []odosTokenAmount{{TokenAddress: sellToken.Hex(), Amount: amountIn.String()}},
		OutputTokens:  []odosOutputProportion{{TokenAddress: buyToken.Hex(), Proportion: 1}},
		UserAddr:      userAddr.Hex(),
		SlippageLimit: 1,
	})
	if err != nil {
		return nil, err
	}

	var quoteResp odosQuoteResponse
	if err := c.post(ctx, c.odosBaseURL+"/sor/quote/v2", c.odosAPIKey, quoteBody, &quoteResp); err != nil {
		return nil, fmt.Errorf("odos quote: %w", err)
	}
	if quoteResp.PathID == "" {
		return nil, fmt.Errorf("odos quote: empty pathId")
	}

	assembleBody, err := json.Marshal(odosAssembleRequest{UserAddr: userAddr.Hex(), PathID: quoteResp.PathID})
	if err != nil {
		return nil, err
	}

	var assembleResp odosAssembleResponse
	if err := c.post(ctx, c.odosBaseURL+"/sor/assemble", c.odosAPIKey, assembleBody, &assembleResp); err != nil {
		return nil, fmt.Errorf("odos assemble: %w", err)
	}
	if assembleResp.Transaction.To == "" || assembleResp.Transaction.Data == "" {
		return nil, fmt.Errorf("odos assemble: incomplete transaction")
	}

	amountOut := new(big.Int)
	if len(assembleResp.OutputTokens) > 0 {
		amountOut, _ = new(big.Int).SetString(assembleResp.OutputTokens[0].Amount, 10)
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("odos assemble: non-positive amountOut")
	}

	return &Quote{
		Router:    common.HexToAddress(assembleResp.Transaction.To),
		Calldata:  common.FromHex(assembleResp.Transaction.Data),
		AmountOut: amountOut,
		Source:    "odos",
	}, nil
}

type oneInchSwapResponse struct {
	ToAmount string `json:"toAmount"`
	Tx       struct {
		To   string `json:"to"`
		Data string `json:"data"`
	} `json:"tx"`
}

// oneInchQuote calls 1inch v5.2's /swap/v5.2/{chainId}/swap, the single-shot
// endpoint that returns a ready-to-submit router call (spec.md §6).
func (c *Client) oneInchQuote(ctx context.Context, chainID int64, sellToken, buyToken, userAddr common.Address, amountIn *big.Int) (*Quote, error) {
	url := fmt.Sprintf("%s/swap/v5.2/%d/swap?src=%s&dst=%s&amount=%s&from=%s&slippage=1&disableEstimate=true",
		c.oneInchBaseURL, chainID, sellToken.Hex(), buyToken.Hex(), amountIn.String(), userAddr.Hex())

	var resp oneInchSwapResponse
	if err := c.get(ctx, url, c.oneInchAPIKey, &resp); err != nil {
		return nil, fmt.Errorf("1inch swap: %w", err)
	}
	if resp.Tx.To == "" || resp.Tx.Data == "" {
		return nil, fmt.Errorf("1inch swap: incomplete transaction")
	}

	amountOut, ok := new(big.Int).SetString(resp.ToAmount, 10)
	if !ok || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("1inch swap: non-positive toAmount")
	}

	return &Quote{
		Router:    common.HexToAddress(resp.Tx.To),
		Calldata:  common.FromHex(resp.Tx.Data),
		AmountOut: amountOut,
		Source:    "1inch",
	}, nil
}

func (c *Client) post(ctx context.Context, url, apiKey string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, url, apiKey string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %s", strconv.Itoa(resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
