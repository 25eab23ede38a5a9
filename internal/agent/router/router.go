package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coflowd/internal/agent/config"
	"coflowd/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Agent is the router's view of the agent core. Control delivers one
// message into the agent's event loop and returns its single reply;
// State returns an on-demand snapshot.
type Agent interface {
	Control(ctx context.Context, msg types.ControlMessage) (bool, error)
	State(ctx context.Context) (types.AgentView, error)
}

// Router mediates flow/coflow lifecycle messages between clients and
// the agent core. It keeps no flow bookkeeping of its own: every
// message is acknowledged and, where the contract says so, forwarded.
type Router struct {
	engine *gin.Engine
	server *http.Server
	agent  Agent
	logger *zap.Logger
}

// NewRouter creates and configures the control-plane router
func NewRouter(cfg *config.Config, agent Agent, logger *zap.Logger) *Router {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		agent:  agent,
		logger: logger,
	}

	r.engine.Use(gin.Recovery())
	r.setupRoutes()

	r.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Agent.ControlPort),
		Handler: r.engine,
	}

	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupRoutes registers the control-plane routes
func (r *Router) setupRoutes() {
	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/coflows", r.registerCoflow)
		v1.DELETE("/coflows/:id", r.unregisterCoflow)
		v1.POST("/flows", r.addFlow)
		v1.POST("/flows/batch", r.addFlows)
		v1.GET("/flows", r.getFlows)
		v1.GET("/flows/:id", r.getFlow)
		v1.DELETE("/flows/:id", r.deleteFlow)
		v1.GET("/state", r.state)
		v1.GET("/healthz", r.healthz)
	}
}

// Start begins serving the control port
func (r *Router) Start(ctx context.Context) error {
	go func() {
		if err := r.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("Control server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the control server down gracefully
func (r *Router) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown control server: %w", err)
	}
	return nil
}

// deliver routes one message into the agent loop and writes its single
// reply. Forwarding outcomes are not part of the reply contract.
func (r *Router) deliver(c *gin.Context, msg types.ControlMessage) {
	msg.ID = uuid.New().String()

	ok, err := r.agent.Control(c.Request.Context(), msg)
	if err != nil {
		r.logger.Error("Control message not delivered",
			zap.String("kind", string(msg.Kind)),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ok)
}

// registerCoflow handles coflow registration
func (r *Router) registerCoflow(c *gin.Context) {
	var coflow types.CoflowHandle
	if err := c.ShouldBindJSON(&coflow); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid coflow payload"})
		return
	}

	r.deliver(c, types.ControlMessage{
		Kind:   types.ControlRegisterCoflow,
		Coflow: &coflow,
	})
}

// unregisterCoflow handles coflow removal
func (r *Router) unregisterCoflow(c *gin.Context) {
	r.deliver(c, types.ControlMessage{
		Kind:     types.ControlUnregisterCoflow,
		CoflowID: c.Param("id"),
	})
}

// addFlow handles a single flow registration
func (r *Router) addFlow(c *gin.Context) {
	var desc types.FlowDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flow descriptor"})
		return
	}

	r.deliver(c, types.ControlMessage{
		Kind: types.ControlAddFlow,
		Flow: &desc,
	})
}

// addFlows handles a batch of flow registrations for one coflow
func (r *Router) addFlows(c *gin.Context) {
	var batch types.AddFlowsRequest
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flow batch"})
		return
	}

	r.deliver(c, types.ControlMessage{
		Kind:  types.ControlAddFlows,
		Batch: &batch,
	})
}

// getFlow acknowledges a flow lookup
func (r *Router) getFlow(c *gin.Context) {
	r.deliver(c, types.ControlMessage{
		Kind:   types.ControlGetFlow,
		FlowID: c.Param("id"),
	})
}

// getFlows acknowledges a bulk flow lookup
func (r *Router) getFlows(c *gin.Context) {
	r.deliver(c, types.ControlMessage{
		Kind: types.ControlGetFlows,
	})
}

// deleteFlow acknowledges a flow removal
func (r *Router) deleteFlow(c *gin.Context) {
	r.deliver(c, types.ControlMessage{
		Kind:     types.ControlDeleteFlow,
		FlowID:   c.Param("id"),
		CoflowID: c.Query("coflow_id"),
	})
}

// state returns the agent introspection snapshot
func (r *Router) state(c *gin.Context) {
	view, err := r.agent.State(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// healthz reports liveness
func (r *Router) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
