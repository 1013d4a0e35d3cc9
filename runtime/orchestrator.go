// Package runtime handles event production, propagation and the lifecycle of the supervised workers.
// It orchestrates the system without containing pairing rules.
package runtime

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/matchmaking"
	"chat-pair/observability"
	"chat-pair/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultSinkTimeout        = 2 * time.Second
	DefaultMatchSweepInterval = time.Second
	DefaultLatencyThreshold   = 5 * time.Second
	DefaultSessionRetention   = 5 * time.Minute
	DefaultEvictionInterval   = 30 * time.Second
)

type OrchestratorConfig struct {
	SinkTimeout          time.Duration
	MatchSweepInterval   time.Duration
	StateSyncInterval    time.Duration
	HeartbeatInterval    time.Duration
	LatencyThreshold     time.Duration
	// SessionRetention is how long a closed session stays readable before it is evicted.
	SessionRetention     time.Duration
	EvictionInterval     time.Duration
	// LowCapacityThreshold is the fill ratio above which a sampled channel is reported.
	LowCapacityThreshold float64
}

// Orchestrator wires one observer: its queue, the coordination transport, the session registry,
// the message router and the fan-out of their events to the connected participants.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	config         OrchestratorConfig
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	queue          *matchmaking.Queue
	router         *MessageRouter
	sessions       *SessionRelay
	transport      contract.Transport
	events         chan event.DomainEvent
	counter        *event.Counter
	monitoring     *observability.MonitoringManager
	permanentSinks []contract.EventSink
	extraWorkers   []contract.Worker
	unsubscribe    []func()
}

// NewOrchestrator expects events to be the channel the router publishes into.
// It binds the router and the session relay to the transport. transport and monitoring may be nil.
func NewOrchestrator(log *slog.Logger, config OrchestratorConfig, supervisor contract.ISupervisor,
	registry contract.IRegistry, queue *matchmaking.Queue, router *MessageRouter, transport contract.Transport,
	events chan event.DomainEvent, counter *event.Counter, monitoring *observability.MonitoringManager) *Orchestrator {
	config.SinkTimeout = lo.CoalesceOrEmpty(config.SinkTimeout, DefaultSinkTimeout)
	config.MatchSweepInterval = lo.CoalesceOrEmpty(config.MatchSweepInterval, DefaultMatchSweepInterval)
	config.LatencyThreshold = lo.CoalesceOrEmpty(config.LatencyThreshold, DefaultLatencyThreshold)
	config.SessionRetention = lo.CoalesceOrEmpty(config.SessionRetention, DefaultSessionRetention)
	config.EvictionInterval = lo.CoalesceOrEmpty(config.EvictionInterval, DefaultEvictionInterval)
	if transport != nil {
		router.WithTransport(queue.ObserverID(), transport)
	}
	o := &Orchestrator{
		log:        log,
		config:     config,
		supervisor: supervisor,
		registry:   registry,
		queue:      queue,
		router:     router,
		transport:  transport,
		events:     events,
		counter:    counter,
		monitoring: monitoring,
	}
	o.sessions = NewSessionRelay(log, queue.ObserverID(), transport, registry, router, o.Dispatch)
	return o
}

// Sessions returns the relay applying session operations on this observer.
func (o *Orchestrator) Sessions() *SessionRelay {
	return o.sessions
}

// Add registers sinks receiving every event, whoever the recipients are.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// AddWorkers registers extra workers supervised alongside the observer ones.
func (o *Orchestrator) AddWorkers(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extraWorkers = append(o.extraWorkers, w...)
}

// Dispatch hands an event to the fan-out. It never blocks: when the channel is full the event is dropped.
func (o *Orchestrator) Dispatch(evt event.DomainEvent) {
	select {
	case o.events <- evt:
	default:
		o.log.Warn("Event channel full, dropping event", "type", evt.Type(), "recipients", evt.Recipients())
	}
}

// Start subscribes to the queue, warms it up and runs every worker under supervision.
// It blocks until the context is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	// 1. Preparation phase (No Lock)
	unsubscribe := []func(){
		o.queue.OnPaired(func(p event.Paired) { o.Dispatch(p) }),
		o.queue.OnQueueUpdate(func(u event.QueueUpdated) {
			if len(u.Waiting) > 0 {
				o.Dispatch(u)
			}
		}),
		o.queue.OnTimeout(func(t event.MatchTimedOut) { o.Dispatch(t) }),
	}
	observerWorkers := o.prepareObserverWorkers()

	// 2. Critical Section (Short Lock)
	o.mu.Lock()
	o.unsubscribe = append(o.unsubscribe, unsubscribe...)
	o.supervisor.Add(o.prepareFanout())
	o.supervisor.Add(observerWorkers...)
	o.supervisor.Add(o.extraWorkers...)
	o.mu.Unlock()

	// 3. Execution phase (No Lock)
	o.queue.Start(ctx)
	o.log.Info("Starting observer and all supervised workers",
		"observer", o.queue.ObserverID(), "workers", len(observerWorkers)+len(o.extraWorkers)+1)
	o.supervisor.Run(ctx)
	return nil
}

func (o *Orchestrator) prepareFanout() contract.Worker {
	handlers := []event.Handler{event.NewLatencyHandler(o.log, o.config.LatencyThreshold)}
	if o.counter != nil {
		handlers = append(handlers, event.NewCountingHandler(o.counter))
	}
	return workers.NewEventFanout(o.log, o.registry, o.events, o.config.SinkTimeout, o.permanentSinks...).
		WithHandlers(handlers...)
}

func (o *Orchestrator) prepareObserverWorkers() []contract.Worker {
	res := []contract.Worker{
		workers.NewMatchTimeoutWorker(o.log, o.config.MatchSweepInterval, o.queue),
		workers.NewSessionEvictionWorker(o.log, o.config.EvictionInterval, o.config.SessionRetention, o.registry, o.router.Discard),
	}
	if o.transport != nil {
		res = append(res, workers.NewTransportListener(o.log, o.transport, envelopeMux{queue: o.queue, sessions: o.sessions}))
		if runner, ok := o.transport.(contract.Worker); ok {
			res = append(res, runner)
		}
		if o.config.StateSyncInterval > 0 {
			res = append(res, workers.NewStateSyncWorker(o.log, o.config.StateSyncInterval, o.queue))
		}
	}
	if o.monitoring != nil && o.config.HeartbeatInterval > 0 {
		channels := []workers.NamedChannel{{Name: "events", Channel: o.events}}
		if o.transport != nil {
			channels = append(channels, workers.NamedChannel{Name: "coordination", Channel: o.transport.Receive()})
		}
		res = append(res,
			workers.NewHeartbeatWorker(o.log, o.config.HeartbeatInterval, o.queue, o.monitoring),
			workers.NewChannelCapacityWorker(o.log, channels, o.monitoring, o.config.HeartbeatInterval, o.config.LowCapacityThreshold))
	}
	return res
}

// Stop initiates a graceful shutdown: queue listeners are removed, workers are cancelled
// and pending translations are aborted.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.mu.Lock()
	for _, fn := range o.unsubscribe {
		fn()
	}
	o.unsubscribe = nil
	o.mu.Unlock()

	o.supervisor.Stop()
	o.router.Close()
}

// envelopeMux hands session envelopes to the session relay and the rest to the queue.
type envelopeMux struct {
	queue    workers.EnvelopeHandler
	sessions workers.EnvelopeHandler
}

func (m envelopeMux) Handle(ctx context.Context, envelope domain.Envelope) error {
	if envelope.Type.SessionScoped() {
		return m.sessions.Handle(ctx, envelope)
	}
	return m.queue.Handle(ctx, envelope)
}
