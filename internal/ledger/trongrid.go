// Package ledger проверяет поступление TRC20-переводов через TronGrid.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxBodySize = 4 << 20

// Config — параметры доступа к TronGrid
type Config struct {
	BaseURL         string
	ContractAddress string
	APIKey          string
	Decimals        int32
	Limit           int
	RequestTimeout  time.Duration
	RPS             float64
	Burst           int
	// пауза после ошибки апстрима растёт от CoolDownInitial до CoolDownMax
	CoolDownInitial time.Duration
	CoolDownMax     time.Duration
}

// TronGridProbe ищет среди последних входящих переводов на адрес перевод нужной суммы.
// Любая ошибка апстрима трактуется как "оплата не найдена".
type TronGridProbe struct {
	log     *slog.Logger
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter

	mu        sync.Mutex
	bo        *backoff.ExponentialBackOff
	coolUntil time.Time
}

func NewTronGridProbe(log *slog.Logger, cfg Config, client *http.Client) *TronGridProbe {
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	if cfg.Decimals <= 0 {
		cfg.Decimals = 6
	}
	if cfg.CoolDownInitial <= 0 {
		cfg.CoolDownInitial = time.Second
	}
	if cfg.CoolDownMax <= 0 {
		cfg.CoolDownMax = time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.CoolDownInitial
	bo.MaxInterval = cfg.CoolDownMax
	bo.Reset()

	return &TronGridProbe{
		log:     log,
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		bo:      bo,
	}
}

// ObserveTransfer возвращает true, если среди последних переводов на address
// есть перевод не раньше since на сумму expected ± tolerance.
func (p *TronGridProbe) ObserveTransfer(ctx context.Context, address string, since time.Time, expected, tolerance decimal.Decimal) bool {
	const op = "ledger.TronGridProbe.ObserveTransfer"
	log := p.log.With(slog.String("op", op), slog.String("address", address))

	if p.coolingDown() {
		log.Debug("upstream cooling down, skipping request")
		return false
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}

	body, err := p.fetch(ctx, address)
	if err != nil {
		p.fail()
		log.Warn("trongrid request failed", slog.String("error", err.Error()))
		return false
	}
	if !gjson.ValidBytes(body) {
		p.fail()
		log.Warn("trongrid returned invalid json")
		return false
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		p.fail()
		log.Warn("trongrid response has no data array")
		return false
	}
	p.succeed()

	minMillis := since.UnixMilli()
	found := false
	data.ForEach(func(_, tx gjson.Result) bool {
		ts := tx.Get("block_timestamp")
		if !ts.Exists() {
			return true
		}
		millis, err := strconv.ParseInt(ts.Raw, 10, 64)
		if err != nil {
			log.Debug("skipping transfer with bad timestamp", slog.String("raw", ts.Raw))
			return true
		}
		if millis < minMillis {
			return true
		}
		raw, err := decimal.NewFromString(tx.Get("value").String())
		if err != nil {
			log.Debug("skipping transfer with bad value", slog.String("tx", tx.Get("transaction_id").String()))
			return true
		}
		amount := raw.Shift(-p.cfg.Decimals)
		if amount.Sub(expected).Abs().LessThanOrEqual(tolerance) {
			log.Info("matching transfer observed",
				slog.String("tx", tx.Get("transaction_id").String()),
				slog.String("amount", amount.String()),
			)
			found = true
			return false
		}
		return true
	})
	return found
}

func (p *TronGridProbe) fetch(ctx context.Context, address string) ([]byte, error) {
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.cfg.Limit))
	q.Set("only_to", "true")
	if p.cfg.ContractAddress != "" {
		q.Set("contract_address", p.cfg.ContractAddress)
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(address), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

func (p *TronGridProbe) coolingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Before(p.coolUntil)
}

func (p *TronGridProbe) fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coolUntil = time.Now().Add(p.bo.NextBackOff())
}

func (p *TronGridProbe) succeed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bo.Reset()
	p.coolUntil = time.Time{}
}
