// Package mutation serves the two privileged write endpoints. Each request
// moves through received, authenticated, rate_checked, validated,
// sanitized (publish only) and committed, and is rejected at the first
// stage that fails. Nothing is retried: a client retries with a fresh nonce.
package mutation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/1a11/billard/internal/hawk"
	"github.com/1a11/billard/internal/httpmw"
	"github.com/1a11/billard/internal/log"
	"github.com/1a11/billard/internal/ratelimit"
	"github.com/1a11/billard/internal/sanitize"
	"github.com/1a11/billard/internal/store"
	"github.com/1a11/billard/internal/xerrors"
)

const (
	OpPublish = "publish"
	OpRemove  = "remove"

	defaultMaxBody = 1 << 20
)

const (
	stageReceived      = "received"
	stageAuthenticated = "authenticated"
	stageRateChecked   = "rate_checked"
	stageValidated     = "validated"
	stageSanitized     = "sanitized"
	stageCommitted     = "committed"
)

var tracer = otel.Tracer("billard/mutation")

type Authenticator interface {
	Authenticate(hawk.Request) (hawk.Credential, error)
}

type Limiter interface {
	Allow(key string) bool
}

// Store is the write side of the content store.
type Store interface {
	Commit(ctx context.Context, d *store.Draft) error
	Remove(ctx context.Context, filename string) error
}

type Metrics interface {
	ObserveMutation(op, result string, seconds float64)
	IncAuthFailure(reason string)
	IncMutationRateLimited(op string)
	IncSanitized(op string)
	SetNonceEntries(n int)
}

type Options struct {
	Logger  log.Logger
	Auth    Authenticator
	Limiter Limiter
	Store   Store
	Metrics Metrics
	// NonceCount reports the replay cache size after each request.
	NonceCount func() int
	// ExternalPort is the port clients sign when Host carries none, for
	// deployments behind a TLS-terminating proxy.
	ExternalPort int
	MaxBodyBytes int64
	Now          func() time.Time
}

type API struct {
	opts Options
}

func NewAPI(opts Options) (*API, error) {
	if opts.Auth == nil || opts.Limiter == nil || opts.Store == nil {
		return nil, xerrors.New("mutation: Auth, Limiter and Store are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &API{opts: opts}, nil
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(httpmw.Scope("mutation"))
		r.Post("/upload", api.HandlePublish)
		r.Post("/remove", api.HandleRemove)
	})
}

type PublishResponse struct {
	OK        bool   `json:"ok"`
	Sanitized bool   `json:"sanitized"`
	Filename  string `json:"filename,omitempty"`
}

type RemoveRequest struct {
	Filename string `json:"filename"`
}

type RemoveResponse struct {
	OK bool `json:"ok"`
}

// attempt is the per-request pipeline state.
type attempt struct {
	op     string
	stage  string
	client string
	body   []byte
	cred   hawk.Credential
	reason hawk.Reason
}

func (api *API) HandlePublish(w http.ResponseWriter, r *http.Request) {
	api.serve(w, r, OpPublish, http.StatusCreated, api.publish)
}

func (api *API) HandleRemove(w http.ResponseWriter, r *http.Request) {
	api.serve(w, r, OpRemove, http.StatusOK, api.remove)
}

func (api *API) serve(w http.ResponseWriter, r *http.Request, op string, okStatus int,
	run func(context.Context, *attempt) (any, error)) {
	start := time.Now()
	ctx, span := tracer.Start(r.Context(), "mutation."+op)
	defer span.End()

	a := &attempt{op: op, stage: stageReceived, client: httpmw.ClientIPFromContext(ctx)}
	var resp any
	err := api.admit(ctx, w, r, a)
	if err == nil {
		resp, err = run(ctx, a)
	}

	api.opts.Metrics.ObserveMutation(op, resultLabel(err), time.Since(start).Seconds())
	if api.opts.NonceCount != nil {
		api.opts.Metrics.SetNonceEntries(api.opts.NonceCount())
	}
	span.SetAttributes(attribute.String("mutation.stage", a.stage))

	if err != nil {
		span.SetStatus(codes.Error, resultLabel(err))
		api.reject(ctx, w, a, err)
		return
	}
	writeJSON(w, okStatus, resp)
}

// admit reads the bounded body, then authenticates and rate-limits.
func (api *API) admit(ctx context.Context, w http.ResponseWriter, r *http.Request, a *attempt) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return xerrors.Wrap(ErrBodyTooLarge, "read body")
		}
		return xerrors.Mark(xerrors.Wrap(err, "read body"), ErrValidation)
	}
	a.body = body

	err = step(ctx, "authenticate", func(context.Context) error {
		cred, err := api.opts.Auth.Authenticate(hawk.RequestFromHTTP(r, body, api.opts.ExternalPort))
		if err != nil {
			a.reason = hawk.ReasonOf(err)
			api.opts.Metrics.IncAuthFailure(string(a.reason))
			return err
		}
		a.cred = cred
		return nil
	})
	if err != nil {
		return err
	}
	a.stage = stageAuthenticated

	if !api.opts.Limiter.Allow(ratelimit.Key(a.client, a.op)) {
		api.opts.Metrics.IncMutationRateLimited(a.op)
		return ErrRateLimited
	}
	a.stage = stageRateChecked
	return nil
}

func (api *API) publish(ctx context.Context, a *attempt) (any, error) {
	doc, err := store.DecodeDocument(a.body)
	if err != nil {
		return nil, err
	}
	draft, err := store.Prepare(doc, api.opts.Now())
	if err != nil {
		return nil, err
	}
	a.stage = stageValidated

	clean, changed := sanitize.Value(draft.Doc)
	draft.Doc = clean.(map[string]any)
	if changed {
		api.opts.Metrics.IncSanitized(a.op)
	}
	a.stage = stageSanitized

	err = step(ctx, "commit", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("content.file", draft.Filename))
		return api.opts.Store.Commit(ctx, draft)
	})
	if err != nil {
		return nil, err
	}
	a.stage = stageCommitted

	log.FromContext(ctx).Info(ctx, "article published",
		"credential", a.cred.ID,
		"file", draft.Filename,
		"sanitized", changed,
	)
	return PublishResponse{OK: true, Sanitized: changed, Filename: draft.Filename}, nil
}

func (api *API) remove(ctx context.Context, a *attempt) (any, error) {
	var req RemoveRequest
	dec := json.NewDecoder(bytes.NewReader(a.body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, xerrors.Mark(xerrors.Wrap(err, "decode remove request"), ErrValidation)
	}
	if dec.More() {
		return nil, xerrors.Wrap(ErrValidation, "trailing data after remove request")
	}
	name, err := store.CleanFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	a.stage = stageValidated

	err = step(ctx, "remove", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("content.file", name))
		return api.opts.Store.Remove(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	a.stage = stageCommitted

	log.FromContext(ctx).Info(ctx, "article removed", "credential", a.cred.ID, "file", name)
	return RemoveResponse{OK: true}, nil
}

// reject logs the failure with the stage reached and writes the classified
// status. The client only ever sees the sentinel text.
func (api *API) reject(ctx context.Context, w http.ResponseWriter, a *attempt, err error) {
	kind := classify(err)
	status := statusFor(err)
	L := log.FromContext(ctx)
	// client, method and path come from the request-scoped logger
	fields := []any{
		"op", a.op,
		"stage", a.stage,
		"result", resultLabel(err),
		"http.response.status_code", status,
	}
	switch {
	case kind == ErrAuthentication:
		fields = append(fields, "hawk_reason", string(a.reason))
		L.Warn(ctx, "authentication failed", fields...)
		w.Header().Set("WWW-Authenticate", "Hawk")
	case status >= 500:
		L.Error(ctx, err, "mutation failed", fields...)
	default:
		L.Warn(ctx, "mutation rejected", append(fields, "err", err.Error())...)
	}
	writeJSON(w, status, map[string]string{"error": kind.Error()})
}

func step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "mutation."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type nopMetrics struct{}

func (nopMetrics) ObserveMutation(string, string, float64) {}
func (nopMetrics) IncAuthFailure(string)                   {}
func (nopMetrics) IncMutationRateLimited(string)           {}
func (nopMetrics) IncSanitized(string)                     {}
func (nopMetrics) SetNonceEntries(int)                     {}
