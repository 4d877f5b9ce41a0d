package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"telegrama/internal/settings"
	"telegrama/internal/transport"
	logx "telegrama/pkg/logx"
)

// BotClient sends Bot API calls through telebot's Raw method. Bots are
// created offline (no getMe) and cached per token.
//
// Raw takes no context. A cancelled ctx makes Send return early while the
// call itself finishes in the background, bounded by the client timeout.
// There are no retries: the first response is returned.
type BotClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func NewBotClient(opts settings.ClientOptions, log logx.Logger) *BotClient {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = settings.DefaultAPIBaseURL
	}
	c := &BotClient{
		baseURL: base,
		http:    &http.Client{Timeout: opts.Timeout},
		log:     log.With(logx.String("comp", "transport.telebot")),
		bots:    map[string]*tele.Bot{},
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	return c
}

func (c *BotClient) bot(token string) (*tele.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bots[token]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     c.baseURL,
		Client:  c.http,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	c.bots[token] = b
	return b, nil
}

type rawResult struct {
	data []byte
	err  error
}

func (c *BotClient) Send(ctx context.Context, req transport.Request) (transport.RawResponse, error) {
	fail := func(err error) (transport.RawResponse, error) {
		return transport.RawResponse{}, &transport.Error{Method: req.Method, Err: scrub(err, req.Token)}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}
	b, err := c.bot(req.Token)
	if err != nil {
		return fail(err)
	}

	done := make(chan rawResult, 1)
	go func() {
		data, err := b.Raw(req.Method, req.Body)
		done <- rawResult{data: data, err: err}
	}()

	var res rawResult
	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	case res = <-done:
	}

	// Raw returns the body together with the API error, so a rejection
	// still has a decodable envelope.
	if len(res.data) == 0 {
		if res.err == nil {
			res.err = errors.New("empty response")
		}
		return fail(res.err)
	}
	resp := transport.DecodeResponse(0, res.data)
	if !resp.Success() {
		c.log.Debug("sendMessage rejected", logx.String("description", resp.Description), logx.Int("code", resp.ErrorCode))
	}
	return resp, nil
}
