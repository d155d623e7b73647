// Package verify submits deployed contracts to an Etherscan-compatible explorer
// for source verification.
package verify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/engine"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/logging"
)

// APIKeyEnvVar holds the explorer API key.
const APIKeyEnvVar = "ETHERSCAN_API_KEY"

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxPolls     = 30
	DefaultRate         = 5 // requests per second, the free-tier limit
)

// ErrVerificationFailed means the explorer rejected the submission.
var ErrVerificationFailed = errors.New("verification failed")

// Config configures a Reporter.
type Config struct {
	APIURL       string
	APIKey       string
	PollInterval time.Duration
	MaxPolls     int
	Rate         float64
	HTTPClient   *http.Client
	RetryPolicy  *engine.RetryPolicy
}

// Reporter verifies deployments on one network. It implements engine.Verifier.
type Reporter struct {
	cfg       Config
	network   ir.NetworkContext
	artifacts artifact.Source
	limiter   *rate.Limiter
}

var _ engine.Verifier = (*Reporter)(nil)

func New(cfg Config, network ir.NetworkContext, artifacts artifact.Source) *Reporter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Reporter{
		cfg:       cfg,
		network:   network,
		artifacts: artifacts,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), 1),
	}
}

// Enabled reports whether verification can run at all on this network.
func (r *Reporter) Enabled() bool {
	return !r.network.Ephemeral && r.cfg.APIKey != "" && r.cfg.APIURL != ""
}

// Verify never returns an error: failures are logged and reported as Failed.
func (r *Reporter) Verify(ctx context.Context, rec *ir.DeploymentRecord) ir.VerificationStatus {
	log := logging.With("resource", rec.Name, "address", rec.Address)
	if !r.Enabled() {
		log.Debug("verification skipped", "ephemeral", r.network.Ephemeral, "apiKey", r.cfg.APIKey != "")
		return ir.VerificationSkipped
	}

	err := r.Submit(ctx, rec)
	switch {
	case err == nil:
		log.Info("contract verified")
		return ir.VerificationVerified
	case errors.Is(err, errNoBuildInfo):
		log.Warn("verification skipped", "reason", err)
		return ir.VerificationSkipped
	default:
		log.Warn("verification failed", "error", err)
		return ir.VerificationFailed
	}
}

var errNoBuildInfo = errors.New("artifact has no build info")

// Submit sends the source of rec's contract and waits for the explorer's verdict.
func (r *Reporter) Submit(ctx context.Context, rec *ir.DeploymentRecord) error {
	contract := rec.Contract
	if contract == "" {
		contract = rec.Name
	}
	art, err := r.artifacts.Load(contract)
	if err != nil {
		return err
	}
	if art.BuildInfo == nil {
		return fmt.Errorf("%w: %s", errNoBuildInfo, contract)
	}

	ctorArgs, err := art.PackConstructor(rec.Args...)
	if err != nil {
		return fmt.Errorf("failed to encode constructor arguments: %w", err)
	}

	form := url.Values{
		"apikey":                {r.cfg.APIKey},
		"module":                {"contract"},
		"action":                {"verifysourcecode"},
		"chainid":               {strconv.FormatUint(r.network.ID, 10)},
		"contractaddress":       {rec.Address},
		"sourceCode":            {string(art.BuildInfo.Input)},
		"codeformat":            {"solidity-standard-json-input"},
		"contractname":          {art.QualifiedName()},
		"compilerversion":       {"v" + strings.TrimPrefix(art.BuildInfo.SolcLongVersion, "v")},
		"constructorArguements": {hex.EncodeToString(ctorArgs)},
	}

	resp, err := r.call(ctx, http.MethodPost, form)
	if err != nil {
		return err
	}
	if !resp.ok() {
		if alreadyVerified(resp.Result) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result)
	}

	return r.poll(ctx, resp.Result)
}

func (r *Reporter) poll(ctx context.Context, guid string) error {
	query := url.Values{
		"apikey": {r.cfg.APIKey},
		"module": {"contract"},
		"action": {"checkverifystatus"},
		"guid":   {guid},
	}

	for i := 0; i < r.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}

		resp, err := r.call(ctx, http.MethodGet, query)
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(resp.Result, "Pass"), alreadyVerified(resp.Result):
			return nil
		case strings.Contains(strings.ToLower(resp.Result), "pending"):
			continue
		default:
			return fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result)
		}
	}
	return fmt.Errorf("%w: still pending after %d polls", ErrVerificationFailed, r.cfg.MaxPolls)
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

func (a *apiResponse) ok() bool {
	return a.Status == "1"
}

func alreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}

// call performs one rate-limited request, retrying transient transport errors.
func (r *Reporter) call(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	var out *apiResponse
	err := engine.RetryWithBackoff(ctx, r.cfg.RetryPolicy, func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := r.do(ctx, method, params)
		if err != nil {
			return err
		}
		if !resp.ok() && strings.Contains(strings.ToLower(resp.Result), "rate limit") {
			return fmt.Errorf("explorer: %s", resp.Result)
		}
		out = resp
		return nil
	}, engine.IsTransientError)
	return out, err
}

func (r *Reporter) do(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, r.cfg.APIURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, r.cfg.APIURL+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}

	res, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer: HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("explorer: invalid response: %w", err)
	}
	return &out, nil
}
