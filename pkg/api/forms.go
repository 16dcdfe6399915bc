package api

import (
	"sync"
	"time"

	"banca-client/pkg/session"
	"banca-client/pkg/transfer"
)

// FormIDHeader names the transfer form a request belongs to. Requests with
// the same customer and form id share one pipeline, so a double submit is
// refused instead of sent twice.
const FormIDHeader = "X-Form-Id"

type form struct {
	subject  string
	session  *session.Swappable
	pipeline *transfer.Pipeline
	lastUsed time.Time
}

// pipelineRegistry keeps one transfer pipeline per (customer, form).
type pipelineRegistry struct {
	mu    sync.Mutex
	forms map[string]*form
	build func(session.Session) (*transfer.Pipeline, error)
	idle  time.Duration
	now   func() time.Time
}

func newPipelineRegistry(build func(session.Session) (*transfer.Pipeline, error), idle time.Duration) *pipelineRegistry {
	return &pipelineRegistry{
		forms: make(map[string]*form),
		build: build,
		idle:  idle,
		now:   time.Now,
	}
}

func formKey(subject, formID string) string {
	return subject + "\x00" + formID
}

// acquire returns the form's pipeline, creating it on first use. The form
// keeps using the newest credential the customer presented.
func (r *pipelineRegistry) acquire(sess session.Session, formID string) (*transfer.Pipeline, error) {
	r.sweep()

	r.mu.Lock()
	defer r.mu.Unlock()

	key := formKey(sess.Subject(), formID)
	if f, ok := r.forms[key]; ok {
		if err := f.session.Swap(sess); err != nil {
			return nil, err
		}
		f.lastUsed = r.now()
		return f.pipeline, nil
	}

	sw := session.NewSwappable(sess)
	p, err := r.build(sw)
	if err != nil {
		return nil, err
	}
	r.forms[key] = &form{
		subject:  sess.Subject(),
		session:  sw,
		pipeline: p,
		lastUsed: r.now(),
	}
	return p, nil
}

// pending finds the customer's form whose pending outcome has transferID.
func (r *pipelineRegistry) pending(sess session.Session, transferID string) (*transfer.Pipeline, *transfer.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.forms {
		if f.subject != sess.Subject() {
			continue
		}
		outcome, ok := f.pipeline.Pending()
		if !ok || outcome.TransferID != transferID {
			continue
		}
		if err := f.session.Swap(sess); err != nil {
			return nil, nil, false
		}
		f.lastUsed = r.now()
		return f.pipeline, outcome, true
	}
	return nil, nil, false
}

// sweep closes forms idle for longer than the idle timeout. Forms with a
// submit in flight are kept.
func (r *pipelineRegistry) sweep() {
	r.mu.Lock()
	var stale []*transfer.Pipeline
	now := r.now()
	for key, f := range r.forms {
		if now.Sub(f.lastUsed) <= r.idle || busy(f.pipeline) {
			continue
		}
		stale = append(stale, f.pipeline)
		delete(r.forms, key)
	}
	r.mu.Unlock()

	for _, p := range stale {
		p.Close()
	}
}

func (r *pipelineRegistry) closeAll() {
	r.mu.Lock()
	forms := r.forms
	r.forms = make(map[string]*form)
	r.mu.Unlock()

	for _, f := range forms {
		f.pipeline.Close()
	}
}

func (r *pipelineRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

func busy(p *transfer.Pipeline) bool {
	s := p.State()
	return s == transfer.StateValidating || s == transfer.StateSubmitting
}
