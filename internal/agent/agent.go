package agent

import (
	"context"
	"fmt"
	"time"

	"coflowd/internal/agent/config"
	"coflowd/internal/agent/export"
	"coflowd/internal/agent/heartbeat"
	"coflowd/internal/agent/master"
	"coflowd/internal/agent/router"
	"coflowd/internal/agent/telemetry"
	"coflowd/internal/types"

	"go.uber.org/zap"
)

// Events processed by the agent loop. Master lifecycle events arrive as
// master.Registered, master.Rejected and master.Disassociated.

// connectFailed reports a transport or resolution error during registration
type connectFailed struct {
	err error
}

// tickEvent carries one heartbeat cycle's sampled rate
type tickEvent struct {
	rate types.BandwidthRate
}

// controlEvent carries one inbound control message and its reply channel
type controlEvent struct {
	msg   types.ControlMessage
	reply chan bool
}

// stateEvent requests an introspection snapshot
type stateEvent struct {
	reply chan types.AgentView
}

// Agent is the composing root. All mutable state (current rates, master
// UI endpoint) is owned by the single Run loop; timers, network I/O and
// HTTP handlers feed it through the events channel and never touch the
// fields directly.
type Agent struct {
	cfg      *config.Config
	logger   *zap.Logger
	identity Identity
	workDir  string

	conn      *master.Connection
	scheduler *heartbeat.Scheduler
	router    *router.Router
	mirror    *export.KafkaMirror

	events chan any
	done   chan struct{}

	// Loop-owned state
	rxBps    float64
	txBps    float64
	masterUI string
}

// New creates an agent from configuration. The working directory is
// resolved and created here; failure to do so is fatal and returned.
func New(cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	workDir, err := ResolveWorkDir(&cfg.Agent)
	if err != nil {
		return nil, types.NewFatal("work directory unavailable", err)
	}

	a := &Agent{
		cfg:      cfg,
		logger:   logger,
		identity: NewIdentity(&cfg.Agent, time.Now()),
		workDir:  workDir,
		events:   make(chan any, 64),
		done:     make(chan struct{}),
	}

	a.conn = master.NewConnection(&cfg.Master, a.identity.RegisterRequest(), a.deliver, logger.Named("master"))

	sampler := telemetry.NewSampler(
		telemetry.NewSysfsSource(logger.Named("telemetry")),
		cfg.Heartbeat.Interval,
		logger.Named("telemetry"))
	a.scheduler = heartbeat.NewScheduler(cfg.Heartbeat.Interval, sampler, func(rate types.BandwidthRate) {
		a.deliver(tickEvent{rate: rate})
	}, logger.Named("heartbeat"))

	a.router = router.NewRouter(cfg, a, logger.Named("router"))

	if cfg.Export.Kafka.Enabled {
		mirror, err := export.NewKafkaMirror(&cfg.Export.Kafka, logger.Named("export"))
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka mirror: %w", err)
		}
		a.mirror = mirror
	}

	return a, nil
}

// Identity returns the agent's immutable identity
func (a *Agent) Identity() Identity {
	return a.identity
}

// WorkDir returns the resolved working directory
func (a *Agent) WorkDir() string {
	return a.workDir
}

// deliver feeds one event into the loop, dropping it once the loop has
// terminated
func (a *Agent) deliver(ev any) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

// Control implements router.Agent: one message in, exactly one reply out
func (a *Agent) Control(ctx context.Context, msg types.ControlMessage) (bool, error) {
	ev := controlEvent{msg: msg, reply: make(chan bool, 1)}

	select {
	case a.events <- ev:
	case <-a.done:
		return false, types.ErrNotRegistered
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case ok := <-ev.reply:
		return ok, nil
	case <-a.done:
		return false, types.ErrNotRegistered
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// State implements router.Agent: an on-demand AgentView snapshot
func (a *Agent) State(ctx context.Context) (types.AgentView, error) {
	ev := stateEvent{reply: make(chan types.AgentView, 1)}

	select {
	case a.events <- ev:
	case <-a.done:
		return types.AgentView{}, types.ErrNotRegistered
	case <-ctx.Done():
		return types.AgentView{}, ctx.Err()
	}

	select {
	case view := <-ev.reply:
		return view, nil
	case <-a.done:
		return types.AgentView{}, types.ErrNotRegistered
	case <-ctx.Done():
		return types.AgentView{}, ctx.Err()
	}
}

// Run starts the agent and processes events until ctx is cancelled or a
// fatal condition occurs. Fatal conditions return a *types.FatalError;
// the caller is the supervisor and decides the process exit.
func (a *Agent) Run(ctx context.Context) error {
	defer a.shutdown()

	a.logger.Info("Starting agent",
		zap.String("id", a.identity.ID),
		zap.String("host", a.identity.Host),
		zap.Int("control_port", a.identity.ControlPort),
		zap.String("public_address", a.identity.PublicAddress),
		zap.String("work_dir", a.workDir),
		zap.String("master", a.cfg.Master.Address))

	if err := a.router.Start(ctx); err != nil {
		return types.NewFatal("control server failed to start", err)
	}

	// Registration runs off-loop; its outcome comes back as an event.
	go func() {
		if err := a.conn.Connect(ctx); err != nil {
			a.deliver(connectFailed{err: err})
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopping")
			return nil

		case ev := <-a.events:
			switch ev := ev.(type) {
			case master.Registered:
				a.masterUI = ev.MasterUI
				a.logger.Info("Registered with master",
					zap.String("master", a.cfg.Master.Address),
					zap.String("master_ui", ev.MasterUI))

				if a.cfg.Heartbeat.Enabled {
					a.scheduler.Start(ctx)
				} else {
					a.logger.Warn("Heartbeat disabled by configuration")
				}

			case master.Rejected:
				a.logger.Error("Registration rejected by master",
					zap.String("reason", ev.Reason))
				return types.NewFatal("registration rejected: "+ev.Reason, nil)

			case master.Disassociated:
				a.logger.Error("Master disassociated", zap.Error(ev.Err))
				return types.NewFatal("master disassociated", ev.Err)

			case connectFailed:
				a.logger.Error("Failed to connect to master", zap.Error(ev.err))
				return types.NewFatal("master connection failed", ev.err)

			case tickEvent:
				a.handleTick(ctx, ev)

			case controlEvent:
				ev.reply <- a.handleControl(ctx, ev.msg)

			case stateEvent:
				ev.reply <- a.view()
			}
		}
	}
}

// handleTick records the sampled rate and fires the heartbeat. The send
// runs off-loop; its failure is only logged, the master watch loop is
// what turns a dead master into a fatal condition.
func (a *Agent) handleTick(ctx context.Context, ev tickEvent) {
	a.rxBps = ev.rate.RxBps
	a.txBps = ev.rate.TxBps

	hb := types.Heartbeat{
		AgentID: a.identity.ID,
		RxBps:   a.rxBps,
		TxBps:   a.txBps,
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, a.cfg.Master.Timeout)
		defer cancel()

		if err := a.conn.SendHeartbeat(sendCtx, hb); err != nil {
			a.logger.Warn("Failed to send heartbeat", zap.Error(err))
		}

		if a.mirror != nil {
			if err := a.mirror.Publish(sendCtx, hb); err != nil {
				a.logger.Warn("Failed to mirror heartbeat", zap.Error(err))
			}
		}
	}()
}

// handleControl applies the per-message contract: rewrite where the
// table says so, forward where the table says so, reply true always.
// The router holds no flow table; descriptors pass through unchanged
// apart from the control-port rewrite.
func (a *Agent) handleControl(ctx context.Context, msg types.ControlMessage) bool {
	switch msg.Kind {
	case types.ControlRegisterCoflow, types.ControlUnregisterCoflow:
		a.logger.Debug("Coflow lifecycle message acknowledged",
			zap.String("kind", string(msg.Kind)))

	case types.ControlAddFlow:
		if msg.Flow == nil {
			a.logger.Warn("AddFlow without descriptor")
			break
		}
		desc := *msg.Flow
		if desc.DataType != types.DataTypeInMemory {
			desc.ControlPort = a.identity.ControlPort
		}
		a.forward(ctx, func(fctx context.Context) error {
			return a.conn.ForwardFlow(fctx, desc)
		})

	case types.ControlAddFlows:
		if msg.Batch == nil {
			a.logger.Warn("AddFlows without batch")
			break
		}
		batch := *msg.Batch
		if batch.DataType != types.DataTypeInMemory {
			flows := make([]types.FlowDescriptor, len(batch.Flows))
			copy(flows, batch.Flows)
			for i := range flows {
				flows[i].ControlPort = a.identity.ControlPort
			}
			batch.Flows = flows
		}
		a.forward(ctx, func(fctx context.Context) error {
			return a.conn.ForwardFlows(fctx, batch)
		})

	case types.ControlGetFlow, types.ControlGetFlows, types.ControlDeleteFlow:
		a.logger.Debug("Flow query acknowledged",
			zap.String("kind", string(msg.Kind)),
			zap.String("flow_id", msg.FlowID))

	default:
		a.logger.Warn("Unknown control message kind",
			zap.String("kind", string(msg.Kind)))
	}

	// The reply never depends on the forwarding outcome.
	return true
}

// forward relays to the master off-loop; failures are logged only
func (a *Agent) forward(ctx context.Context, fn func(context.Context) error) {
	go func() {
		fctx, cancel := context.WithTimeout(ctx, a.cfg.Master.Timeout)
		defer cancel()

		if err := fn(fctx); err != nil {
			a.logger.Warn("Failed to forward to master", zap.Error(err))
		}
	}()
}

// view builds the introspection snapshot from loop-owned state
func (a *Agent) view() types.AgentView {
	return types.AgentView{
		ID:             a.identity.ID,
		Host:           a.identity.Host,
		ControlPort:    a.identity.ControlPort,
		MasterEndpoint: a.cfg.Master.Address,
		MasterUI:       a.masterUI,
		RxBps:          a.rxBps,
		TxBps:          a.txBps,
	}
}

// shutdown stops components in reverse start order
func (a *Agent) shutdown() {
	close(a.done)

	if err := a.scheduler.Stop(); err != nil {
		a.logger.Error("Failed to stop heartbeat scheduler", zap.Error(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("Failed to close master connection", zap.Error(err))
	}
	if err := a.router.Stop(); err != nil {
		a.logger.Error("Failed to stop control server", zap.Error(err))
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Error("Failed to close kafka mirror", zap.Error(err))
		}
	}
}
