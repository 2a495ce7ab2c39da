package patientsearch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/rebook/internal/platform/metrics"
)

// DefaultDebounce is the delay between the last keystroke and the lookup.
const DefaultDebounce = 300 * time.Millisecond

// DefaultLimit caps the number of results requested from the directory.
const DefaultLimit = 20

// Directory searches the patient directory of a company.
type Directory interface {
	SearchPatients(ctx context.Context, term, companyID string, limit int) ([]Record, error)
}

// FormWriter receives the patient fields the resolver owns on the host form.
type FormWriter interface {
	SetPatient(patientID, clientID string)
}

// Options configures a Resolver.
type Options struct {
	Debounce  time.Duration
	CompanyID string
	Limit     int
}

// State is a snapshot of the resolver for rendering.
type State struct {
	Term     string    `json:"term"`
	Open     bool      `json:"open"`
	Loading  bool      `json:"loading"`
	Results  []Patient `json:"results"`
	Selected *Patient  `json:"selected,omitempty"`
}

// Resolver is a debounced patient typeahead bound to one host form.
// Only the newest request's result is applied: each Search, Select, Clear
// and Close advances a token, and a lookup result whose token is no longer
// current is discarded.
type Resolver struct {
	dir     Directory
	form    FormWriter
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.RebookMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	token    uint64
	timer    *time.Timer
	closed   bool
	term     string
	open     bool
	loading  bool
	records  []Record
	selected *Patient
}

// NewResolver creates a Resolver. The resolver starts with the search box open.
func NewResolver(dir Directory, form FormWriter, opts Options, logger zerolog.Logger, m *metrics.RebookMetrics) *Resolver {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		dir:     dir,
		form:    form,
		opts:    opts,
		logger:  logger.With().Str("component", "patient_resolver").Logger(),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		open:    true,
	}
}

// Search records the term and schedules a lookup after the debounce delay.
// A blank term clears the results without a lookup.
func (r *Resolver) Search(term string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.token++
	tok := r.token
	r.term = term
	r.open = true
	r.stopTimerLocked()

	q := strings.TrimSpace(term)
	if q == "" {
		r.records = nil
		r.loading = false
		return
	}
	r.loading = true
	r.timer = time.AfterFunc(r.opts.Debounce, func() {
		r.lookup(tok, q)
	})
}

func (r *Resolver) lookup(tok uint64, term string) {
	r.mu.Lock()
	if r.closed || tok != r.token {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	r.mu.Unlock()

	start := time.Now()
	records, err := r.dir.SearchPatients(ctx, term, r.opts.CompanyID, r.opts.Limit)
	r.metrics.ObserveLatency("patient_directory", time.Since(start).Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || tok != r.token {
		r.metrics.ObserveStaleDropped("patient_search")
		r.logger.Debug().Str("term", term).Uint64("token", tok).Msg("discarding stale patient search result")
		return
	}
	r.loading = false
	if err != nil {
		r.metrics.ObservePatientLookup("error")
		r.logger.Warn().Err(err).Str("term", term).Msg("patient search failed")
		r.records = nil
		return
	}
	r.metrics.ObservePatientLookup("ok")
	r.records = records
}

// Select promotes a record to the stable selection, writes patientId and
// clientId to the host form, clears the term and closes the result list.
func (r *Resolver) Select(rec Record) Patient {
	p := Normalize(rec)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return p
	}
	r.token++
	r.stopTimerLocked()
	r.selected = &p
	r.term = ""
	r.open = false
	r.loading = false
	r.records = nil
	r.form.SetPatient(p.ID, p.ClientID)
	return p
}

// Clear empties both form fields and reopens the search box.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.token++
	r.stopTimerLocked()
	r.selected = nil
	r.term = ""
	r.open = true
	r.loading = false
	r.records = nil
	r.form.SetPatient("", "")
}

// Preselect seeds the selection from an existing appointment without
// touching the form.
func (r *Resolver) Preselect(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || p.ID == "" {
		return
	}
	r.selected = &p
	r.open = false
}

// Close stops pending timers and cancels in-flight lookups. Results that
// arrive afterwards are ignored.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.token++
	r.stopTimerLocked()
	r.cancel()
}

// State returns a snapshot for rendering.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := State{
		Term:    r.term,
		Open:    r.open,
		Loading: r.loading,
		Results: make([]Patient, 0, len(r.records)),
	}
	for _, rec := range r.records {
		st.Results = append(st.Results, Normalize(rec))
	}
	if r.selected != nil {
		p := *r.selected
		st.Selected = &p
	}
	return st
}

func (r *Resolver) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
