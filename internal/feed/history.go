package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
)

// Default history configuration values.
const (
	DefaultHistoryTimeout  = 30 * time.Second
	DefaultHistoryPageSize = 100
	DefaultHistoryRPS      = 5.0
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 1 * time.Second
	DefaultMaxDelay        = 10 * time.Second
	// maxPages bounds one Fetch in case the server ignores the cursor.
	maxPages = 10000
)

// HistoryConfig configures a HistorySource.
type HistoryConfig struct {
	BaseURL    string
	PageSize   int
	RPS        float64
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HistorySource fetches a token's trade history over REST.
//
// Pages are requested as GET {base}/tokens/{address}/transactions?limit=N&before=<sig>,
// newest first, until an empty page. Requests are rate limited, retried with
// exponential backoff and guarded by a circuit breaker.
type HistorySource struct {
	base       string
	client     *http.Client
	pageSize   int
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

type historyPage struct {
	Transactions []wireTrade `json:"transactions"`
}

// statusError is a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// NewHistorySource creates a HistorySource.
func NewHistorySource(cfg HistoryConfig) *HistorySource {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = DefaultHistoryRPS
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHistoryTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("history")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "history-source",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HistorySource{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		client:     client,
		pageSize:   pageSize,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		maxDelay:   maxDelay,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker:    breaker,
		logger:     logger,
	}
}

// Fetch returns every trade of token, oldest first.
func (h *HistorySource) Fetch(ctx context.Context, token string) ([]domain.TradeEvent, error) {
	var (
		all    []domain.TradeEvent
		before string
	)
	for page := 0; page < maxPages; page++ {
		trades, err := h.fetchPage(ctx, token, before)
		if err != nil {
			return nil, err
		}
		if len(trades) == 0 {
			break
		}
		for i := range trades {
			all = append(all, trades[i].event())
		}
		last := trades[len(trades)-1].Signature
		if last == "" || last == before {
			break
		}
		before = last
	}

	// Pages arrive newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	h.logger.Debug("history fetched", zap.String("token", token), zap.Int("transactions", len(all)))
	return all, nil
}

func (h *HistorySource) fetchPage(ctx context.Context, token, before string) ([]wireTrade, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(h.pageSize))
	if before != "" {
		q.Set("before", before)
	}
	endpoint := fmt.Sprintf("%s/tokens/%s/transactions?%s", h.base, url.PathEscape(token), q.Encode())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.retryDelay
	b.MaxInterval = h.maxDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(h.maxRetries)), ctx)

	var page historyPage
	operation := func() error {
		if err := h.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := h.breaker.Execute(func() (interface{}, error) {
			return nil, h.get(ctx, endpoint, &page)
		})
		if err == nil {
			observability.RecordHistoryRequest("ok")
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.RecordHistoryRequest("open")
			return backoff.Permanent(err)
		}
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests {
			observability.RecordHistoryRequest("rejected")
			return backoff.Permanent(err)
		}
		observability.RecordHistoryRequest("retry")
		return err
	}

	notify := func(err error, d time.Duration) {
		h.logger.Warn("history request failed, retrying",
			zap.String("token", token),
			zap.Duration("delay", d),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("fetch history page: %w", err)
	}
	return page.Transactions, nil
}

func (h *HistorySource) get(ctx context.Context, endpoint string, out *historyPage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, body: string(truncate(body, 256))}
	}

	*out = historyPage{}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
