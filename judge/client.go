package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Dosada05/duel-arena/models"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

var (
	ErrUpstream       = errors.New("judge request failed")
	ErrHandleNotFound = errors.New("judge handle not found")
)

const (
	statusOK        = "OK"
	VerdictAccepted = "OK"
)

// Fetcher is the raw judge API, one HTTP call per method.
type Fetcher interface {
	ListProblems(ctx context.Context) ([]models.Problem, error)
	UserStatus(ctx context.Context, handle string, from, count int) ([]Submission, error)
}

type Submission struct {
	ID        int64      `json:"id"`
	ContestID int        `json:"contestId"`
	Problem   APIProblem `json:"problem"`
	Verdict   string     `json:"verdict"`
	Created   int64      `json:"creationTimeSeconds"`
}

type APIProblem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    *int     `json:"rating,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type apiEnvelope[T any] struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
	Result  T      `json:"result"`
}

type problemsetResult struct {
	Problems []APIProblem `json:"problems"`
}

func (p APIProblem) toModel() models.Problem {
	return models.Problem{
		ContestID: p.ContestID,
		Index:     p.Index,
		Name:      p.Name,
		Rating:    p.Rating,
	}
}

// Client talks to the Codeforces API. Every request, whatever the caller,
// goes through one shared limiter.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
	limiter *rate.Limiter
}

type ClientConfig struct {
	BaseURL         string
	RequestInterval time.Duration
	Timeout         time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Client) ListProblems(ctx context.Context) ([]models.Problem, error) {
	res, err := doRequest[problemsetResult](ctx, c, c.baseURL+"/problemset.problems")
	if err != nil {
		return nil, err
	}

	problems := make([]models.Problem, 0, len(res.Problems))
	for _, p := range res.Problems {
		problems = append(problems, p.toModel())
	}
	return problems, nil
}

func (c *Client) UserStatus(ctx context.Context, handle string, from, count int) ([]Submission, error) {
	q := url.Values{}
	q.Set("handle", handle)
	q.Set("from", fmt.Sprint(from))
	if count > 0 {
		q.Set("count", fmt.Sprint(count))
	}

	subs, err := doRequest[[]Submission](ctx, c, c.baseURL+"/user.status?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return *subs, nil
}

func doRequest[T any](ctx context.Context, c *Client, uri string) (*T, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrUpstream, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var env apiEnvelope[T]
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: status %d, undecodable body: %v", ErrUpstream, resp.StatusCode(), err)
	}
	if env.Status != statusOK {
		if resp.StatusCode() == fasthttp.StatusBadRequest && isHandleError(env.Comment) {
			return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, env.Comment)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode(), env.Comment)
	}
	return &env.Result, nil
}

func isHandleError(comment string) bool {
	return strings.HasPrefix(comment, "handle")
}
