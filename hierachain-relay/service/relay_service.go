// Package service wires the relay hub's components together.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/VanDung-dev/HieraChain-Relay/api"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/configuration"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/core"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/data"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/network"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "hierachain_relay"

// RelayStatus represents the current status of the relay service.
type RelayStatus struct {
	Address   string             `json:"address"`
	IsRunning bool               `json:"is_running"`
	PeerCount int                `json:"peer_count"`
	Pending   int                `json:"pending"`
	Resolved  int                `json:"resolved"`
	Peers     []network.PeerInfo `json:"peers"`
	HubStats  network.HubStats   `json:"hub_stats"`
}

// RelayService orchestrates all relay components: hub, registry,
// dispatcher, the metrics endpoint and the gRPC health endpoint.
type RelayService struct {
	log    *logger.L
	config *configuration.Configuration

	registry   *network.PeerRegistry
	hub        *network.ZmqHub
	tracker    *core.Tracker
	dispatcher *core.Dispatcher
	metrics    *api.Metrics
	journal    *data.Journal
	server     *api.MetricsServer
	health     *api.HealthServer

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	running bool
}

// NewRelayService creates a relay service with the given configuration.
func NewRelayService(config *configuration.Configuration) *RelayService {
	timing := config.Timing()

	registry := network.NewPeerRegistry(config.RateLimit, config.RateBurst)
	hub := network.NewZmqHub(config.Listen, registry, config.MailboxSize)
	metrics := api.NewMetrics(MetricsNamespace)
	journal := data.NewJournal(config.JournalSize)

	tracker := core.NewTracker(hub, timing.RequestTimeout, metrics, journal)
	relay := core.NewRelay(hub, metrics)
	dispatcher := core.NewDispatcher(core.DispatcherConfig{
		StaleTimeout:  timing.StaleTimeout,
		PruneInterval: timing.PruneInterval,
		SweepInterval: timing.SweepInterval,
	}, registry, relay, tracker, metrics)

	s := &RelayService{
		log:        logger.New("service"),
		config:     config,
		registry:   registry,
		hub:        hub,
		tracker:    tracker,
		dispatcher: dispatcher,
		metrics:    metrics,
		journal:    journal,
	}

	if config.Metrics != "" {
		s.server = api.NewMetricsServer(config.Metrics, metrics)
		s.server.HandleStatus(func() interface{} {
			return s.GetStatus()
		})
		s.server.HandleJournal(journal)
	}

	if config.GRPC != "" {
		s.health = api.NewHealthServer(metrics)
	}

	return s
}

// Start binds the hub, starts the dispatcher and the endpoints.
func (s *RelayService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.hub.Start(); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	if s.health != nil {
		if err := s.health.StartAsync(s.config.GRPC); err != nil {
			s.hub.Stop()
			return fmt.Errorf("failed to start health server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.dispatcher.Run(ctx, s.hub.Events())
	}()

	if s.server != nil {
		s.server.StartAsync()
		s.log.Infof("metrics on: %s", s.config.Metrics)
	}

	if s.health != nil {
		s.health.SetServing(true)
	}

	s.running = true
	s.log.Infof("relay started at: %s", s.hub.Addr())
	return nil
}

// Stop shuts down the service in reverse start order.
func (s *RelayService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	if s.health != nil {
		s.health.Stop()
	}

	if s.server != nil {
		if err := s.server.Stop(); err != nil {
			s.log.Warnf("metrics server stop: %v", err)
		}
	}

	// closing the hub closes the event channel, which ends the dispatcher
	s.hub.Stop()
	<-s.done
	s.cancel()

	s.running = false
	s.log.Info("relay stopped")
}

// Addr returns the address peers connect to.
func (s *RelayService) Addr() string {
	return s.hub.Addr()
}

// GetStatus returns the current status of the relay service.
func (s *RelayService) GetStatus() RelayStatus {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	return RelayStatus{
		Address:   s.hub.Addr(),
		IsRunning: running,
		PeerCount: s.registry.Count(),
		Pending:   s.tracker.Pending(),
		Resolved:  s.journal.Len(),
		Peers:     s.registry.GetPeers(),
		HubStats:  s.hub.GetStats(),
	}
}

// Metrics returns the service's metrics.
func (s *RelayService) Metrics() *api.Metrics {
	return s.metrics
}

// Journal returns the resolution journal.
func (s *RelayService) Journal() *data.Journal {
	return s.journal
}

// IsRunning returns whether the service is currently running.
func (s *RelayService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
