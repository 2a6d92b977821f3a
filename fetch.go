package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
)

// blockSentinel is the fixed literal the anti-bot layer returns in place of
// data when it has decided the caller is not a browser.
const blockSentinel = "Attack !"

// PayloadShape selects which of the two request shapes an attempt carries.
type PayloadShape int

const (
	ShapeFull PayloadShape = iota
	ShapeMinimal
)

func (s PayloadShape) String() string {
	if s == ShapeMinimal {
		return "minimal"
	}
	return "full"
}

// fetchState tracks the orchestrator through its single-fallback protocol.
type fetchState int

const (
	stateIdle fetchState = iota
	stateFullSent
	stateMinimalSent
	stateDone
)

// Outcome is the terminal classification of a data fetch.
type Outcome int

const (
	// OutcomeSuccess: the endpoint returned a parseable payload with no error field.
	OutcomeSuccess Outcome = iota
	// OutcomeBlocked: the anti-bot sentinel came back on both request shapes.
	// Usually means the endpoint wants a subscription, not different headers.
	OutcomeBlocked
	// OutcomeMalformed: the body was not parseable as the expected structure,
	// or carried a server error other than the blocking sentinel.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "malformed"
	}
}

// FleetVessel is one row of the fleet table, kept schemaless because the
// column set varies with the viewer's entitlement level.
type FleetVessel map[string]any

// FleetPage is the DataTables-style response envelope.
type FleetPage struct {
	Draw            int           `json:"draw"`
	RecordsTotal    int           `json:"recordsTotal"`
	RecordsFiltered int           `json:"recordsFiltered"`
	Data            []FleetVessel `json:"data"`
	Error           string        `json:"error,omitempty"`
}

// ClassifiedResponse is the terminal artifact of the orchestrator. Raw is
// preserved on every non-success outcome so an operator can tell "needs
// different headers" from "needs access" offline.
type ClassifiedResponse struct {
	Outcome  Outcome
	Page     *FleetPage
	Raw      string
	Attempts int
}

// FetchAttempt is one disposable request: built fresh per try, never mutated.
type FetchAttempt struct {
	Shape  PayloadShape
	Header http.Header
	Form   url.Values
}

// Orchestrator issues the authenticated data request and runs the bounded
// fallback protocol: one full-shape attempt, and on a detected block exactly
// one minimal-shape retry after a back-off. Never more than two network
// calls - hammering an endpoint that has already fingerprinted the full
// request only invites an IP-level block.
type Orchestrator struct {
	client    httpDoer
	profile   *BrowserProfile
	creds     *Credentials
	origin    string
	targetURL string
	backoff   time.Duration
	logger    Logger

	state fetchState
}

func NewOrchestrator(sc *SessionContext, creds *Credentials) *Orchestrator {
	return &Orchestrator{
		client:    sc.client,
		profile:   sc.profile,
		creds:     creds,
		origin:    sc.baseURL,
		targetURL: sc.targetURL,
		backoff:   sc.delays.BlockBackoff,
		logger:    sc.logger,
	}
}

// Run drives the state machine to a terminal ClassifiedResponse. An error
// return means transport failure; every protocol-level outcome, including
// Blocked and Malformed, comes back classified, not as an error.
func (o *Orchestrator) Run(ctx context.Context) (*ClassifiedResponse, error) {
	o.state = stateIdle

	attempt := o.BuildAttempt(ShapeFull)
	o.state = stateFullSent
	res, err := o.submit(ctx, attempt)
	if err != nil {
		return nil, err
	}
	res.Attempts = 1

	if res.Outcome != OutcomeBlocked {
		o.state = stateDone
		return res, nil
	}

	// Reactive back-off, deliberately longer than the proactive page delay:
	// the defense has just flagged us and an instant retry confirms the flag.
	o.logger.Log("Blocked on %s attempt, backing off before minimal retry", ShapeFull)
	if err := sleepCtx(ctx, o.backoff); err != nil {
		return nil, err
	}

	attempt = o.BuildAttempt(ShapeMinimal)
	o.state = stateMinimalSent
	res, err = o.submit(ctx, attempt)
	if err != nil {
		return nil, err
	}
	res.Attempts = 2
	o.state = stateDone

	if res.Outcome == OutcomeBlocked {
		o.logger.Log("Still blocked after minimal retry; endpoint likely requires subscribed access")
	}
	return res, nil
}

// BuildAttempt constructs the request shape for one try. The full shape
// mirrors the default request of the site's own table widget; the minimal
// shape keeps only the fields the server strictly needs and drops the
// optional fingerprinting headers.
func (o *Orchestrator) BuildAttempt(shape PayloadShape) *FetchAttempt {
	if shape == ShapeMinimal {
		return &FetchAttempt{
			Shape: ShapeMinimal,
			Form: url.Values{
				"draw":   {"1"},
				"start":  {"0"},
				"length": {"10"},
			},
			Header: http.Header{
				"accept":           {"application/json"},
				"content-type":     {"application/x-www-form-urlencoded"},
				"x-csrf-token":     {o.creds.CSRFToken},
				"x-requested-with": {"XMLHttpRequest"},
				"user-agent":       {o.profile.UserAgent},
				"referer":          {o.targetURL},
				"accept-encoding":  {"gzip, deflate, br, zstd"},
				"accept-language":  {"en-US,en;q=0.9"},
				http.HeaderOrderKey: {
					"accept",
					"content-type",
					"x-csrf-token",
					"x-requested-with",
					"user-agent",
					"referer",
					"accept-encoding",
					"accept-language",
					"cookie",
				},
				http.PHeaderOrderKey: PseudoHeaderOrder,
			},
		}
	}

	return &FetchAttempt{
		Shape: ShapeFull,
		Form: url.Values{
			"draw":                      {"1"},
			"columns[0][data]":          {"0"},
			"columns[0][name]":          {""},
			"columns[0][searchable]":    {"true"},
			"columns[0][orderable]":     {"true"},
			"columns[0][search][value]": {""},
			"columns[0][search][regex]": {"false"},
			"start":                     {"0"},
			"length":                    {"25"},
			"search[value]":             {""},
			"search[regex]":             {"false"},
			"order[0][column]":          {"0"},
			"order[0][dir]":             {"asc"},
		},
		Header: http.Header{
			"accept":                      {"application/json, text/javascript, */*; q=0.01"},
			"content-type":                {"application/x-www-form-urlencoded; charset=UTF-8"},
			"x-csrf-token":                {o.creds.CSRFToken},
			"x-requested-with":            {"XMLHttpRequest"},
			"sec-ch-ua":                   {o.profile.SecChUa},
			"sec-ch-ua-full-version-list": {o.profile.FullVersionList},
			"sec-ch-ua-mobile":            {o.profile.Mobile},
			"sec-ch-ua-platform":          {o.profile.Platform},
			"user-agent":                  {o.profile.UserAgent},
			"origin":                      {o.origin},
			"sec-fetch-site":              {"same-origin"},
			"sec-fetch-mode":              {"cors"},
			"sec-fetch-dest":              {"empty"},
			"referer":                     {o.targetURL},
			"accept-encoding":             {"gzip, deflate, br, zstd"},
			"accept-language":             {"en-US,en;q=0.9"},
			http.HeaderOrderKey: {
				"accept",
				"content-type",
				"x-csrf-token",
				"x-requested-with",
				"sec-ch-ua",
				"sec-ch-ua-full-version-list",
				"sec-ch-ua-mobile",
				"sec-ch-ua-platform",
				"user-agent",
				"origin",
				"sec-fetch-site",
				"sec-fetch-mode",
				"sec-fetch-dest",
				"referer",
				"accept-encoding",
				"accept-language",
				"cookie",
			},
			http.PHeaderOrderKey: PseudoHeaderOrder,
		},
	}
}

func (o *Orchestrator) submit(ctx context.Context, attempt *FetchAttempt) (*ClassifiedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.creds.EndpointURL, strings.NewReader(attempt.Form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header = attempt.Header

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Log("POST %s (%s) -> error: %v", o.creds.EndpointURL, attempt.Shape, err)
		return nil, &NetworkError{Stage: "data fetch (" + attempt.Shape.String() + ")", Err: err}
	}
	defer resp.Body.Close()
	o.logger.Log("POST %s (%s) -> %d", o.creds.EndpointURL, attempt.Shape, resp.StatusCode)

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, &NetworkError{Stage: "data fetch (" + attempt.Shape.String() + ")", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Stage: fmt.Sprintf("data fetch (%s)", attempt.Shape), Status: resp.StatusCode}
	}

	return classify(body), nil
}

// classify turns a raw endpoint body into its tagged outcome. The blocking
// sentinel is matched exactly; any other non-empty error field is treated as
// a malformed (server-reported) failure rather than a silent success.
func classify(body []byte) *ClassifiedResponse {
	var page FleetPage
	if err := json.Unmarshal(body, &page); err != nil {
		return &ClassifiedResponse{Outcome: OutcomeMalformed, Raw: string(body)}
	}

	switch {
	case page.Error == blockSentinel:
		return &ClassifiedResponse{Outcome: OutcomeBlocked, Raw: string(body)}
	case page.Error != "":
		return &ClassifiedResponse{Outcome: OutcomeMalformed, Raw: string(body)}
	default:
		return &ClassifiedResponse{Outcome: OutcomeSuccess, Page: &page, Raw: string(body)}
	}
}
