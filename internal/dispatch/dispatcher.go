// Package dispatch routes inbound packets and transcripts. All gate and session
// mutations happen on a single consumer goroutine; reactions run as tracked
// tasks so the loop never waits on the language model or speech synthesis.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/filter"
	"github.com/gyaneshwarpardhi/procrastihator/internal/gate"
	"github.com/gyaneshwarpardhi/procrastihator/internal/metrics"
	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
	"github.com/gyaneshwarpardhi/procrastihator/internal/respond"
	"github.com/gyaneshwarpardhi/procrastihator/internal/session"
	"github.com/gyaneshwarpardhi/procrastihator/internal/voice"
)

// Decision is what the loop did with one inbound item.
type Decision string

const (
	DecisionReact     Decision = "react"
	DecisionSuppress  Decision = "suppress"
	DecisionControl   Decision = "control"
	DecisionIgnored   Decision = "ignored"
	DecisionFiltered  Decision = "filtered"
	DecisionDuplicate Decision = "duplicate"
)

// UserSpeech is the task kind for replies to transcribed speech.
const UserSpeech = "USER_SPEECH"

var (
	ErrQueueFull = errors.New("dispatch: queue full")
	ErrTimeout   = errors.New("dispatch: timed out waiting for result")
)

// Result is the outcome of dispatching one item.
type Result struct {
	PacketID string   `json:"packet_id,omitempty"`
	Event    string   `json:"event"`
	Decision Decision `json:"decision"`
	TaskID   string   `json:"task_id,omitempty"`
}

// Responder produces the spoken reactions.
type Responder interface {
	Scold(ctx context.Context, req respond.ScoldRequest) error
	Reply(ctx context.Context, req respond.ExcuseRequest) error
}

// policy is the hot-reloadable part of the configuration.
type policy struct {
	kinds              map[string]struct{}
	filters            filter.Set
	resetCooldowns     bool
	minTranscriptChars int
	eventTimeout       time.Duration
}

func newPolicy(cfg *config.AgentConfig) (*policy, error) {
	filters, err := filter.CompileSet(cfg.Gate.Filters)
	if err != nil {
		return nil, err
	}
	p := &policy{
		kinds:              make(map[string]struct{}, len(cfg.Gate.DetectionKinds)),
		filters:            filters,
		resetCooldowns:     cfg.Session.ResetCooldownOnSessionStart,
		minTranscriptChars: 2,
		eventTimeout:       cfg.Dispatch.EventTimeout,
	}
	if n := cfg.Session.MinTranscriptChars; n != nil {
		p.minTranscriptChars = *n
	}
	for _, k := range cfg.Gate.DetectionKinds {
		p.kinds[k] = struct{}{}
	}
	return p, nil
}

type inbound struct {
	pkt        *packet.Packet
	transcript *voice.TranscriptEvent
	resultC    chan *Result
}

// Dispatcher owns the serial loop and the response tasks it starts.
type Dispatcher struct {
	gate    *gate.Gate
	session *session.Context
	resp    Responder
	tracker *Tracker
	policy  atomic.Pointer[policy]
	seen    *lru.Cache[string, struct{}]
	queue   *serialQueue[*inbound]
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// New starts a dispatcher. cfg must already carry defaults and be valid.
func New(ctx context.Context, cfg *config.AgentConfig, g *gate.Gate, sess *session.Context, resp Responder, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pol, err := newPolicy(cfg)
	if err != nil {
		return nil, err
	}
	seen, err := lru.New[string, struct{}](cfg.Dispatch.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		gate:    g,
		session: sess,
		resp:    resp,
		tracker: NewTracker(ctx, logger),
		seen:    seen,
		cancel:  cancel,
		logger:  logger,
	}
	d.policy.Store(pol)
	d.queue = newSerialQueue(ctx, cfg.Dispatch.QueueDepth, d.handle)
	return d, nil
}

// ApplyConfig swaps the reloadable settings: detection kinds and filters,
// transcript threshold, session-start policy and the gate cooldown.
func (d *Dispatcher) ApplyConfig(cfg *config.AgentConfig) {
	pol, err := newPolicy(cfg)
	if err != nil {
		d.logger.Error("config reload: keeping previous dispatch policy", "err", err)
		return
	}
	if err := d.gate.SetCooldown(cfg.Gate.Cooldown); err != nil {
		d.logger.Error("config reload: cooldown rejected", "err", err)
	}
	d.policy.Store(pol)
	d.logger.Info("dispatch policy reloaded", "cooldown", cfg.Gate.Cooldown, "detection_kinds", cfg.Gate.DetectionKinds)
}

// Submit enqueues a packet. It returns false when the queue is full or closed.
func (d *Dispatcher) Submit(p *packet.Packet) bool {
	return d.enqueue(&inbound{pkt: p}, p.Event)
}

// SubmitRaw decodes b and enqueues the packet. Payloads that fail to decode
// are logged, counted and dropped without touching any state.
func (d *Dispatcher) SubmitRaw(b []byte) error {
	p, err := packet.Decode(b)
	if err != nil {
		metrics.PacketsInvalid.Inc()
		d.logger.Warn("dropping invalid packet", "err", err, "bytes", len(b))
		return err
	}
	if !d.Submit(p) {
		return ErrQueueFull
	}
	return nil
}

// SubmitTranscript enqueues a transcript event from the user's microphone.
func (d *Dispatcher) SubmitTranscript(ev voice.TranscriptEvent) bool {
	return d.enqueue(&inbound{transcript: &ev}, UserSpeech)
}

// ProcessSync dispatches p and waits for the decision, bounded by the
// configured event timeout.
func (d *Dispatcher) ProcessSync(ctx context.Context, p *packet.Packet) (*Result, error) {
	resultC := make(chan *Result, 1)
	if !d.enqueue(&inbound{pkt: p, resultC: resultC}, p.Event) {
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, d.queue.QueueCap())
	}

	timeout := d.policy.Load().eventTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resultC:
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) enqueue(in *inbound, label string) bool {
	if !d.queue.Submit(in) {
		metrics.PacketsDropped.Inc()
		d.logger.Warn("dispatch queue full, dropping", "event", label)
		return false
	}
	metrics.PacketsReceived.WithLabelValues(label).Inc()
	metrics.QueueUtilization.Set(d.QueueUtilization())
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (d *Dispatcher) QueueUtilization() float64 {
	c := d.queue.QueueCap()
	if c == 0 {
		return 0
	}
	return float64(d.queue.QueueLen()) / float64(c)
}

// InFlight lists running response tasks.
func (d *Dispatcher) InFlight() []TaskInfo {
	return d.tracker.InFlight()
}

// Shutdown stops accepting input, finishes what is queued, then waits for
// response tasks until ctx ends and cancels whatever is still running.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.queue.Drain()
	err := d.tracker.Wait(ctx)
	if err != nil {
		d.logger.Warn("cancelling unfinished responses", "in_flight", len(d.tracker.InFlight()))
		d.tracker.CancelAll()
		// Tasks observe cancellation promptly; give them a moment to report.
		waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.tracker.Wait(waitCtx)
	}
	d.cancel()
	return err
}

// handle runs on the queue's single consumer goroutine.
func (d *Dispatcher) handle(_ context.Context, in *inbound) {
	var res *Result
	if in.transcript != nil {
		res = d.route(*in.transcript)
	} else {
		res = d.dispatch(in.pkt)
	}
	metrics.Decisions.WithLabelValues(string(res.Decision)).Inc()
	metrics.QueueUtilization.Set(d.QueueUtilization())
	if in.resultC != nil {
		in.resultC <- res
	}
}

func (d *Dispatcher) dispatch(p *packet.Packet) *Result {
	res := &Result{PacketID: p.ID, Event: p.Event}
	if p.ID != "" {
		if seen, _ := d.seen.ContainsOrAdd(p.ID, struct{}{}); seen {
			d.logger.Debug("duplicate packet", "id", p.ID, "event", p.Event)
			res.Decision = DecisionDuplicate
			return res
		}
	}

	pol := d.policy.Load()
	switch p.Event {
	case packet.PersonalityUpdate:
		persona := session.PersonaFromData(p.Data)
		if d.session.SetPersona(persona) {
			d.logger.Info("persona updated", "persona", persona.Name)
		}
		res.Decision = DecisionControl

	case packet.SessionStart:
		d.gate.Clear()
		if pol.resetCooldowns {
			d.gate.ResetCooldowns()
		}
		epoch := d.session.Restart()
		d.logger.Info("session started", "epoch", epoch, "cooldowns_reset", pol.resetCooldowns)
		res.Decision = DecisionControl

	default:
		if _, ok := pol.kinds[p.Event]; !ok {
			d.logger.Debug("ignoring unrecognized event", "event", p.Event)
			res.Decision = DecisionIgnored
			return res
		}
		if ok, err := pol.filters.Match(p.Event, p.Data); err != nil {
			d.logger.Warn("filter failed, treating as a match", "event", p.Event, "err", err)
		} else if !ok {
			d.logger.Debug("rejected by filter", "event", p.Event, "filter", pol.filters[p.Event])
			res.Decision = DecisionFiltered
			return res
		}
		stats := d.session.Stats()
		stats.Observe(p.Event)
		if !d.gate.Admit(p.Event, p.Data) {
			d.logger.Debug("suppressed by cooldown", "event", p.Event)
			res.Decision = DecisionSuppress
			return res
		}
		stats.Reacted(p.Event)
		req := respond.ScoldRequest{
			Event:   p.Event,
			Data:    p.Data,
			Persona: d.session.Persona(),
			Memory:  d.gate.Summary(),
		}
		task := d.tracker.Start(p.Event, func(ctx context.Context) error {
			return d.resp.Scold(ctx, req)
		})
		d.logger.Info("reacting", "event", p.Event, "task", task.ID)
		res.Decision = DecisionReact
		res.TaskID = task.ID
	}
	return res
}

func (d *Dispatcher) route(ev voice.TranscriptEvent) *Result {
	res := &Result{Event: UserSpeech}
	text := strings.TrimSpace(ev.Text)
	if !ev.Final || text == "" || utf8.RuneCountInString(text) < d.policy.Load().minTranscriptChars {
		res.Decision = DecisionIgnored
		return res
	}
	d.logger.Info("user speech", "text", text)
	req := respond.ExcuseRequest{
		Transcript: text,
		Persona:    d.session.Persona(),
		Memory:     d.gate.Summary(),
	}
	task := d.tracker.Start(UserSpeech, func(ctx context.Context) error {
		return d.resp.Reply(ctx, req)
	})
	res.Decision = DecisionReact
	res.TaskID = task.ID
	return res
}
