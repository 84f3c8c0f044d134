package main

import (
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/activities"
	"github.com/yourorg/kb-extract/internal/config"
	kbmetrics "github.com/yourorg/kb-extract/internal/metrics"
	"github.com/yourorg/kb-extract/internal/workflow"
)

func main() {
	// Support both TEMPORAL_TARGET_HOST and TEMPORAL_ADDRESS for compatibility
	taddr := getenv("TEMPORAL_TARGET_HOST", getenv("TEMPORAL_ADDRESS", "localhost:7233"))
	ns := getenv("TEMPORAL_NAMESPACE", "default")
	q := getenv("TEMPORAL_TASK_QUEUE", "kb-extract")
	scratch := getenv("KBX_SCRATCH_DIR", "/var/kb-extract")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		log.Fatal("scratch dir:", err)
	}

	// Defaults for every run come from .kbextract.yaml and KBX_* env.
	cfg, err := config.Load(os.Getenv("KBX_CONFIG"), nil)
	if err != nil {
		log.Fatal("config:", err)
	}
	zl, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatal("logger:", err)
	}
	defer func() { _ = zl.Sync() }()

	kbmetrics.Init()
	maddr := cfg.MetricsAddr
	if maddr == "" {
		maddr = kbmetrics.AddrFromEnv()
	}
	go func() {
		if err := kbmetrics.Serve(maddr); err != nil {
			zl.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	c, err := client.Dial(client.Options{HostPort: taddr, Namespace: ns})
	if err != nil {
		log.Fatal("temporal client:", err)
	}
	defer c.Close()

	w := worker.New(c, q, worker.Options{})
	activities.New(activities.Config{ScratchDir: scratch, Base: *cfg, Logger: zl.Named("activities")}).Register(w)
	w.RegisterWorkflow(workflow.ExtractWorkflow)

	zl.Info("worker started", zap.String("namespace", ns), zap.String("taskQueue", q), zap.String("scratch", scratch), zap.String("metrics", maddr))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker failed:", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
