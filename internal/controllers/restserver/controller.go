// Package restserver exposes mount control and status over HTTP: a JSON API
// for goto/sync/abort, slew history, and a websocket feed of live status.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/chrissnell/remotescope/internal/log"
	"github.com/chrissnell/remotescope/internal/types"
	"github.com/chrissnell/remotescope/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MountService is the slice of the mount driver the API needs.
type MountService interface {
	Name() string
	Goto(ra, dec float64) error
	Sync(ra, dec float64) error
	Abort() error
}

// SlewHistory serves past slews for the /api/slews endpoint.
type SlewHistory interface {
	Recent(limit int) ([]types.SlewRecord, error)
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	logger     *zap.SugaredLogger
	handlers   *Handlers

	mounts  map[string]MountService
	history SlewHistory

	// live status, fed by the fan-out goroutine
	statusChan <-chan types.MountStatus
	latestMu   sync.RWMutex
	latest     map[string]types.MountStatus

	subsMu sync.Mutex
	subs   map[chan types.MountStatus]struct{}
}

// NewController creates a new REST server controller. The history source may
// be nil when no storage backend is configured.
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, mounts []MountService, history SlewHistory, statusChan <-chan types.MountStatus, logger *zap.SugaredLogger) (*Controller, error) {
	if len(mounts) == 0 {
		return nil, fmt.Errorf("no mounts configured - the REST server needs at least one mount to control")
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		logger:     logger,
		mounts:     make(map[string]MountService),
		history:    history,
		statusChan: statusChan,
		latest:     make(map[string]types.MountStatus),
		subs:       make(map[chan types.MountStatus]struct{}),
	}

	for _, m := range mounts {
		if _, dup := ctrl.mounts[m.Name()]; dup {
			return nil, fmt.Errorf("duplicate mount name %q", m.Name())
		}
		ctrl.mounts[m.Name()] = m
	}

	// If a listen address was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if rc.Port == 0 {
		logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}

	ctrl.handlers = NewHandlers(ctrl)

	router := ctrl.setupRouter()
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = router

	return ctrl, nil
}

// StartController starts the REST server and the status fan-out loop.
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	c.wg.Add(1)
	go c.fanOutStatus()

	return nil
}

// fanOutStatus consumes the mount status stream, keeps the latest snapshot
// per mount and forwards updates to websocket subscribers.
func (c *Controller) fanOutStatus() {
	defer c.wg.Done()

	for {
		select {
		case st := <-c.statusChan:
			c.latestMu.Lock()
			c.latest[st.MountName] = st
			c.latestMu.Unlock()

			c.subsMu.Lock()
			for sub := range c.subs {
				select {
				case sub <- st:
				default:
					// Slow consumer, drop this update for it.
				}
			}
			c.subsMu.Unlock()
		case <-c.ctx.Done():
			log.Info("cancellation request received. Stopping status fan-out")
			return
		}
	}
}

func (c *Controller) subscribe() chan types.MountStatus {
	sub := make(chan types.MountStatus, 16)
	c.subsMu.Lock()
	c.subs[sub] = struct{}{}
	c.subsMu.Unlock()
	return sub
}

func (c *Controller) unsubscribe(sub chan types.MountStatus) {
	c.subsMu.Lock()
	delete(c.subs, sub)
	c.subsMu.Unlock()
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/status", c.handlers.GetStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/status/{mount}", c.handlers.GetMountStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/goto", c.handlers.PostGoto).Methods(http.MethodPost)
	router.HandleFunc("/api/sync", c.handlers.PostSync).Methods(http.MethodPost)
	router.HandleFunc("/api/abort", c.handlers.PostAbort).Methods(http.MethodPost)
	router.HandleFunc("/api/slews", c.handlers.GetSlews).Methods(http.MethodGet)
	router.HandleFunc("/ws", c.handlers.ServeStatusSocket)

	return router
}

func (c *Controller) mountByName(name string) (MountService, bool) {
	// A single-mount deployment may omit the name.
	if name == "" && len(c.mounts) == 1 {
		for _, m := range c.mounts {
			return m, true
		}
	}
	m, ok := c.mounts[name]
	return m, ok
}
