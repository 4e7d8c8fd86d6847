package payment

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PixelDroid19/puntokoreano-app/internal/notify"
	"github.com/PixelDroid19/puntokoreano-app/pkg/enums"
	pkgerrors "github.com/PixelDroid19/puntokoreano-app/pkg/errors"
	"github.com/PixelDroid19/puntokoreano-app/pkg/keylock"
	"github.com/PixelDroid19/puntokoreano-app/pkg/kv"
	"github.com/PixelDroid19/puntokoreano-app/pkg/logger"
	"github.com/PixelDroid19/puntokoreano-app/pkg/metrics"
)

const (
	statusValidating = "validating"
	statusReady      = "payment method ready"
	statusFailed     = "payment method invalid"
	statusCancelled  = "cancelled"
)

// SelectionError is the last validation failure of the selected method.
type SelectionError struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Details any            `json:"details,omitempty"`
}

// Selection is the latest onValidChange outcome for a session. Valid is true
// only with a complete Intent.
type Selection struct {
	Method     enums.PaymentMethodType `json:"method"`
	Valid      bool                    `json:"valid"`
	Intent     *Intent                 `json:"intent,omitempty"`
	Pending    bool                    `json:"pending"`
	Status     string                  `json:"status"`
	Error      *SelectionError         `json:"error,omitempty"`
	Generation uint64                  `json:"generation"`
	UpdatedAt  time.Time               `json:"updatedAt"`
}

// AuthReset handles authorization failures surfaced by the payment backend.
type AuthReset interface {
	ForceLogout(ctx context.Context, sessionID, reason string)
}

type AdapterParams struct {
	Store             kv.Store
	Backend           Backend
	Notify            notify.Sink
	Session           AuthReset
	Metrics           *metrics.CheckoutMetrics
	Logger            *logger.Logger
	CardDebounce      time.Duration
	NequiPollInterval time.Duration
	NequiMaxAttempts  int
	TTL               time.Duration
}

type task struct {
	gen    uint64
	cancel context.CancelFunc
	timer  *time.Timer
	done   chan struct{}
	once   sync.Once
	wg     *sync.WaitGroup
}

func (t *task) finish() {
	t.once.Do(func() {
		close(t.done)
		t.wg.Done()
	})
}

// stop cancels the task. A debounced task whose timer has not fired yet is
// finished here since it will never run.
func (t *task) stop() {
	t.cancel()
	if t.timer != nil && t.timer.Stop() {
		t.finish()
	}
}

// Adapter owns the payment validation tasks of every session. Each update
// supersedes the previous one; results of superseded tasks are dropped.
type Adapter struct {
	store    kv.Store
	notify   notify.Sink
	session  AuthReset
	logg     *logger.Logger
	methods  map[enums.PaymentMethodType]Method
	catalog  *Catalog
	debounce time.Duration
	ttl      time.Duration
	locks    *keylock.Locker
	now      func() time.Time

	seq   atomic.Uint64
	mu    sync.Mutex
	gens  map[string]uint64
	tasks map[string]*task
	wg    sync.WaitGroup
}

func NewAdapter(params AdapterParams) (*Adapter, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kv store is required")
	}
	if params.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment backend is required")
	}
	if params.Notify == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification sink is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	if params.NequiMaxAttempts <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nequi max attempts must be positive")
	}
	catalog := NewCatalog(params.Backend, params.Notify, params.Logger)
	a := &Adapter{
		store:    params.Store,
		notify:   params.Notify,
		session:  params.Session,
		logg:     params.Logger,
		catalog:  catalog,
		debounce: params.CardDebounce,
		ttl:      params.TTL,
		locks:    keylock.New(),
		now:      time.Now,
		gens:     map[string]uint64{},
		tasks:    map[string]*task{},
	}
	a.register(
		newCardMethod(params.Backend, params.Metrics),
		&pseMethod{catalog: catalog},
		&nequiMethod{
			backend:     params.Backend,
			metrics:     params.Metrics,
			interval:    params.NequiPollInterval,
			maxAttempts: params.NequiMaxAttempts,
		},
		daviPlataMethod{},
	)
	return a, nil
}

func (a *Adapter) register(methods ...Method) {
	a.methods = make(map[enums.PaymentMethodType]Method, len(methods))
	for _, m := range methods {
		a.methods[m.Type()] = m
	}
}

// Catalog exposes the method and bank catalog.
func (a *Adapter) Catalog() *Catalog {
	return a.catalog
}

// Update re-validates the session's payment form. Inline methods return the
// final selection; debounced and async methods return a pending selection
// and report through Current once they settle.
func (a *Adapter) Update(ctx context.Context, sessionID, method string, raw json.RawMessage, env Env) (*Selection, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	typ, err := enums.ParsePaymentMethodType(method)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method").
			WithDetails(map[string]any{"method": method, "allowed": enums.PaymentMethodTypes()})
	}
	m, ok := a.methods[typ]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method not registered")
	}
	ctx = a.logg.WithField(a.logg.WithSessionID(ctx, sessionID), "payment_method", typ.String())

	unlock := a.locks.Lock(sessionID)
	gen := a.begin(sessionID)
	form, err := m.Decode(raw)
	if err != nil {
		unlock()
		return a.settle(ctx, sessionID, gen, typ, nil, err)
	}

	switch m.Schedule() {
	case ScheduleInline:
		unlock()
		intent, verr := m.Validate(ctx, form, env, func(string) {})
		return a.settle(ctx, sessionID, gen, typ, intent, verr)
	case ScheduleDebounced, ScheduleAsync:
		pending := &Selection{Method: typ, Pending: true, Status: statusValidating, Generation: gen, UpdatedAt: a.now().UTC()}
		err := a.save(ctx, sessionID, pending)
		unlock()
		if err != nil {
			return nil, err
		}
		delay := time.Duration(0)
		if m.Schedule() == ScheduleDebounced {
			delay = a.debounce
		}
		a.spawn(ctx, sessionID, gen, delay, func(taskCtx context.Context) {
			intent, verr := m.Validate(taskCtx, form, env, a.progress(taskCtx, sessionID, gen, typ))
			if taskCtx.Err() != nil {
				return
			}
			_, _ = a.settle(taskCtx, sessionID, gen, typ, intent, verr)
		})
		return pending, nil
	default:
		unlock()
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown payment schedule")
	}
}

// Current returns the latest selection, or nil when no method was chosen.
func (a *Adapter) Current(ctx context.Context, sessionID string) (*Selection, error) {
	var sel Selection
	found, err := kv.Load(ctx, a.store, kv.SessionKey(a.store, sessionID, kv.Payment), &sel)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment selection")
	}
	if !found {
		return nil, nil
	}
	return &sel, nil
}

// Wait blocks until the session's running task settles or ctx ends.
func (a *Adapter) Wait(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	t := a.tasks[sessionID]
	a.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Teardown cancels in-flight validation for the session. A pending selection
// is marked cancelled so it never turns valid.
func (a *Adapter) Teardown(ctx context.Context, sessionID string) error {
	unlock := a.locks.Lock(sessionID)
	defer unlock()
	defer a.release(sessionID, a.begin(sessionID))

	sel, err := a.Current(ctx, sessionID)
	if err != nil || sel == nil || !sel.Pending {
		return err
	}
	sel.Pending = false
	sel.Valid = false
	sel.Intent = nil
	sel.Status = statusCancelled
	sel.UpdatedAt = a.now().UTC()
	return a.save(ctx, sessionID, sel)
}

// Reset cancels in-flight validation and forgets the selection.
func (a *Adapter) Reset(ctx context.Context, sessionID string) error {
	unlock := a.locks.Lock(sessionID)
	defer unlock()
	defer a.release(sessionID, a.begin(sessionID))
	if err := a.store.Del(ctx, kv.SessionKey(a.store, sessionID, kv.Payment)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete payment selection")
	}
	return nil
}

// Shutdown cancels every task and waits for them to return.
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	for sid, t := range a.tasks {
		t.stop()
		delete(a.tasks, sid)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin supersedes the session's running task and returns the new generation.
// Generations are unique across sessions so a pruned entry never matches a
// stale one.
func (a *Adapter) begin(sessionID string) uint64 {
	gen := a.seq.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if t := a.tasks[sessionID]; t != nil {
		t.stop()
		delete(a.tasks, sessionID)
	}
	a.gens[sessionID] = gen
	return gen
}

// release forgets the session once its latest generation has settled.
func (a *Adapter) release(sessionID string, gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gens[sessionID] == gen {
		delete(a.gens, sessionID)
	}
}

func (a *Adapter) current(sessionID string, gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gens[sessionID] == gen
}

func (a *Adapter) spawn(ctx context.Context, sessionID string, gen uint64, delay time.Duration, run func(context.Context)) {
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{gen: gen, cancel: cancel, done: make(chan struct{}), wg: &a.wg}

	a.mu.Lock()
	if a.gens[sessionID] != gen {
		a.mu.Unlock()
		cancel()
		return
	}
	a.wg.Add(1)
	a.tasks[sessionID] = t
	body := func() {
		defer t.finish()
		defer cancel()
		run(taskCtx)
		a.mu.Lock()
		if a.tasks[sessionID] == t {
			delete(a.tasks, sessionID)
		}
		a.mu.Unlock()
		a.release(sessionID, gen)
	}
	if delay > 0 {
		t.timer = time.AfterFunc(delay, body)
	} else {
		go body()
	}
	a.mu.Unlock()
}

func (a *Adapter) progress(ctx context.Context, sessionID string, gen uint64, typ enums.PaymentMethodType) Progress {
	return func(status string) {
		if ctx.Err() != nil {
			return
		}
		unlock := a.locks.Lock(sessionID)
		defer unlock()
		if !a.current(sessionID, gen) {
			return
		}
		sel := &Selection{Method: typ, Pending: true, Status: status, Generation: gen, UpdatedAt: a.now().UTC()}
		if err := a.save(ctx, sessionID, sel); err != nil {
			a.logg.Error(ctx, "save payment progress", err)
		}
	}
}

// settle records the onValidChange outcome when gen is still current.
func (a *Adapter) settle(ctx context.Context, sessionID string, gen uint64, typ enums.PaymentMethodType, intent *Intent, verr error) (*Selection, error) {
	sel := &Selection{Method: typ, Generation: gen, UpdatedAt: a.now().UTC()}
	if verr == nil {
		verr = intent.Check()
	}
	if verr == nil {
		sel.Valid = true
		sel.Intent = intent
		sel.Status = statusReady
	} else {
		sel.Status = statusFailed
		typed := pkgerrors.As(verr)
		if typed == nil {
			typed = pkgerrors.Wrap(pkgerrors.CodeInternal, verr, "payment validation failed")
		}
		sel.Error = &SelectionError{Code: typed.Code(), Message: typed.Message()}
		if pkgerrors.MetadataFor(typed.Code()).DetailsAllowed {
			sel.Error.Details = typed.Details()
		}
	}

	unlock := a.locks.Lock(sessionID)
	defer unlock()
	if !a.current(sessionID, gen) {
		return sel, nil
	}
	defer a.release(sessionID, gen)
	if err := a.save(ctx, sessionID, sel); err != nil {
		return nil, err
	}
	if sel.Error != nil {
		a.report(ctx, sessionID, sel.Error, verr)
	}
	return sel, nil
}

// report routes non-form failures to the notification sink or the session
// reset handler. Form errors stay on the selection.
func (a *Adapter) report(ctx context.Context, sessionID string, selErr *SelectionError, err error) {
	switch selErr.Code {
	case pkgerrors.CodeValidation:
		return
	case pkgerrors.CodeUnauthorized:
		if a.session != nil {
			a.session.ForceLogout(ctx, sessionID, "payment backend rejected credentials")
		}
		return
	}
	a.logg.Error(ctx, "payment validation failed", err)
	a.notify.Notify(ctx, sessionID, notify.Error(strings.ToLower(string(selErr.Code)), selErr.Message))
}

func (a *Adapter) save(ctx context.Context, sessionID string, sel *Selection) error {
	if err := kv.Save(ctx, a.store, kv.SessionKey(a.store, sessionID, kv.Payment), sel, a.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save payment selection")
	}
	return nil
}
