package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/event"
	"github.com/t77yq/mission-control/internal/model"
	"github.com/t77yq/mission-control/internal/monitor"
	"github.com/t77yq/mission-control/internal/orchestrator"
	"github.com/t77yq/mission-control/internal/schedule"
	"github.com/t77yq/mission-control/internal/storage"
	"github.com/t77yq/mission-control/internal/work"
)

// staticDecomposer returns a fixed three-phase plan. Stands in for the real
// decomposition provider, which lives outside this process.
type staticDecomposer struct{}

func (staticDecomposer) Decompose(ctx context.Context, description string, requirements map[string]interface{}) ([]byte, error) {
	plan := model.MissionPlan{
		Subtasks: []model.PlannedTask{
			{
				Name:        "gather-sources",
				Description: "Collect source material for: " + description,
				Phase:       "research",
				AgentType:   "research",
				Priority:    model.TaskPriorityHigh,
			},
			{
				Name:         "analyze-findings",
				Description:  "Analyze gathered material",
				Phase:        "analysis",
				AgentType:    "analysis",
				Priority:     model.TaskPriorityMedium,
				Dependencies: []string{"gather-sources"},
			},
			{
				Name:         "write-report",
				Description:  "Assemble the final report",
				Phase:        "reporting",
				AgentType:    "report",
				Priority:     model.TaskPriorityMedium,
				Dependencies: []string{"analyze-findings"},
			},
		},
	}
	return json.Marshal(plan)
}

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("app.name", "mission-control")
	viper.SetDefault("nats.urls", []string{nats.DefaultURL})
	viper.SetDefault("nats.max_reconnects", 10)
	viper.SetDefault("nats.reconnect_wait", 2*time.Second)
	viper.SetDefault("nats.connect_timeout", 5*time.Second)
	viper.SetDefault("orchestrator.max_concurrent_missions", 3)
	viper.SetDefault("orchestrator.admission_interval", 5*time.Second)
	viper.SetDefault("orchestrator.dispatch_interval", 5*time.Second)
	viper.SetDefault("orchestrator.progress_interval", 10*time.Second)
	viper.SetDefault("orchestrator.mission_deadline", 30*time.Minute)
	viper.SetDefault("archive.path", "missions.db")
	viper.SetDefault("archive.retention", 30*24*time.Hour)
	viper.SetDefault("metrics.interval", 30*time.Second)
	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("No config file found, using defaults", zap.Error(err))
	}

	// Connect to NATS with retry
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	natsURL := nats.DefaultURL
	if urls := viper.GetStringSlice("nats.urls"); len(urls) > 0 {
		natsURL = urls[0]
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(natsURL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	bus, err := event.NewBus(js, logger)
	if err != nil {
		logger.Fatal("Failed to create event bus", zap.Error(err))
	}

	archive, err := storage.NewSQLiteMissionArchive(logger, viper.GetString("archive.path"))
	if err != nil {
		logger.Fatal("Failed to create mission archive", zap.Error(err))
	}
	defer archive.Close()

	registry := orchestrator.NewAgentRegistry(logger)
	orch := orchestrator.New(orchestrator.Config{
		MaxConcurrentMissions: viper.GetInt("orchestrator.max_concurrent_missions"),
		AdmissionInterval:     viper.GetDuration("orchestrator.admission_interval"),
		DispatchInterval:      viper.GetDuration("orchestrator.dispatch_interval"),
		ProgressInterval:      viper.GetDuration("orchestrator.progress_interval"),
		MissionDeadline:       viper.GetDuration("orchestrator.mission_deadline"),
	}, registry, orchestrator.BestConfidenceStrategy{}, bus, archive, logger)

	coordinator := orch.Coordinator()

	// Build the default agent set
	agents := []*agent.Agent{
		agent.New(agent.Config{
			ID:   "planner-1",
			Name: "Mission Planner",
			Capabilities: []model.Capability{{
				Name:            "mission-decomposition",
				InputTypes:      []string{model.TaskTypePlanning},
				OutputTypes:     []string{"plan"},
				ConfidenceScore: 0.95,
			}},
			MaxRetries: 2,
		}, work.NewPlannerExecutor(staticDecomposer{}, logger), coordinator, logger),
		agent.New(agent.Config{
			ID:   "researcher-1",
			Name: "Research Agent",
			Capabilities: []model.Capability{{
				Name:            "web-research",
				InputTypes:      []string{"research", "general"},
				OutputTypes:     []string{"sources"},
				ConfidenceScore: 0.85,
			}},
			MaxRetries: 3,
		}, work.NewResearchExecutor(logger), coordinator, logger),
		agent.New(agent.Config{
			ID:   "analyst-1",
			Name: "Analysis Agent",
			Capabilities: []model.Capability{{
				Name:            "data-analysis",
				InputTypes:      []string{"analysis"},
				OutputTypes:     []string{"insights"},
				ConfidenceScore: 0.9,
			}},
		}, work.NewAnalysisExecutor(logger), coordinator, logger),
		agent.New(agent.Config{
			ID:   "writer-1",
			Name: "Report Agent",
			Capabilities: []model.Capability{{
				Name:            "report-writing",
				InputTypes:      []string{"report", "general"},
				OutputTypes:     []string{"report"},
				ConfidenceScore: 0.8,
			}},
		}, work.NewReportExecutor(logger), coordinator, logger),
	}

	for _, a := range agents {
		if err := registry.Register(a); err != nil {
			logger.Fatal("Failed to register agent", zap.Error(err))
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	for _, a := range agents {
		if err := a.Start(ctx); err != nil {
			logger.Fatal("Failed to start agent", zap.Error(err))
		}
	}
	if err := orch.Start(ctx); err != nil {
		logger.Fatal("Failed to start orchestrator", zap.Error(err))
	}

	collector := monitor.NewMetricsCollector(orch, bus, viper.GetDuration("metrics.interval"), logger)
	if err := collector.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}

	// Recurring nightly status mission
	cronScheduler := schedule.NewCronScheduler(orch.StartMission, logger)
	cronScheduler.Start()
	if err := cronScheduler.AddSchedule(&schedule.RecurringMission{
		Name:        "nightly-digest",
		Expression:  "0 0 2 * * *",
		Description: "Compile the nightly activity digest",
		Priority:    model.TaskPriorityLow,
	}); err != nil {
		logger.Error("Failed to add recurring mission", zap.Error(err))
	}

	// Submit an example mission
	missionID, err := orch.StartMission(
		"Research the current state of embedded message brokers",
		map[string]interface{}{
			"sources": []string{"https://api.github.com"},
		},
		model.TaskPriorityHigh,
	)
	if err != nil {
		logger.Error("Failed to submit mission", zap.Error(err))
	} else {
		logger.Info("Example mission submitted", zap.String("mission_id", missionID))
	}

	// Report mission status and prune old archives periodically
	go func() {
		statusTicker := time.NewTicker(15 * time.Second)
		cleanupTicker := time.NewTicker(24 * time.Hour)
		defer statusTicker.Stop()
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-statusTicker.C:
				if missionID == "" {
					continue
				}
				report, err := orch.GetMissionStatus(ctx, missionID)
				if err != nil {
					logger.Error("Failed to get mission status", zap.Error(err))
					continue
				}
				logger.Info("Mission status",
					zap.String("mission_id", report.MissionID),
					zap.String("status", string(report.Status)),
					zap.Float64("progress", report.ProgressPercentage),
					zap.String("phase", report.CurrentPhase))
			case <-cleanupTicker.C:
				cutoff := time.Now().Add(-viper.GetDuration("archive.retention"))
				if err := archive.DeleteBefore(ctx, cutoff); err != nil {
					logger.Error("Failed to prune mission archive", zap.Error(err))
				}
			}
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	cronScheduler.Stop()
	collector.Stop()
	orch.Stop()

	logger.Info("Server shutting down gracefully")
}
