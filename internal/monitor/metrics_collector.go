package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/event"
	"github.com/t77yq/mission-control/internal/model"
	"github.com/t77yq/mission-control/internal/orchestrator"
)

// MetricsSource exposes the orchestrator state the collector samples
type MetricsSource interface {
	Counters() orchestrator.Counters
	AgentInfos() []model.AgentInfo
}

// Snapshot is one metrics sample
type Snapshot struct {
	Timestamp   time.Time             `json:"timestamp"`
	CPUUsage    float64               `json:"cpu_usage"`
	MemoryUsage float64               `json:"memory_usage"`
	Missions    orchestrator.Counters `json:"missions"`
	Agents      []model.AgentInfo     `json:"agents"`
}

// MetricsCollector periodically samples system and orchestration metrics
// and publishes them on the event bus
type MetricsCollector struct {
	logger   *zap.Logger
	bus      *event.Bus
	source   MetricsSource
	interval time.Duration
	mu       sync.RWMutex
	last     *Snapshot
	stop     chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(source MetricsSource, bus *event.Bus, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		bus:      bus,
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the metrics collector
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector",
		zap.Duration("interval", c.interval))

	go c.collectLoop(ctx)

	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

// collectMetrics collects one snapshot
func (c *MetricsCollector) collectMetrics() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	snapshot := &Snapshot{
		Timestamp:   time.Now(),
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
		Missions:    c.source.Counters(),
		Agents:      c.source.AgentInfos(),
	}

	c.mu.Lock()
	c.last = snapshot
	c.mu.Unlock()

	c.bus.PublishMetrics(snapshot)

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", snapshot.CPUUsage),
		zap.Float64("memory_usage", snapshot.MemoryUsage),
		zap.Int("missions_active", snapshot.Missions.MissionsActive),
		zap.Int("agent_count", len(snapshot.Agents)))
}

// LastSnapshot returns the most recent sample, or nil before the first one.
func (c *MetricsCollector) LastSnapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
