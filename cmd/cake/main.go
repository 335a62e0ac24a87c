// Command cake runs CAKE as a standalone supervisor in front of an
// arbitrary coding-agent CLI: it launches the agent as a child process,
// watches its stdout/stderr for recognized error patterns, and injects
// operator interventions back into the agent when warranted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/cake/pkg/adapter"
	"github.com/codeready-toolchain/cake/pkg/classifier"
	"github.com/codeready-toolchain/cake/pkg/config"
	"github.com/codeready-toolchain/cake/pkg/controller"
	"github.com/codeready-toolchain/cake/pkg/event"
	"github.com/codeready-toolchain/cake/pkg/interceptor"
	"github.com/codeready-toolchain/cake/pkg/metrics"
	"github.com/codeready-toolchain/cake/pkg/operator"
	"github.com/codeready-toolchain/cake/pkg/recall"
	"github.com/codeready-toolchain/cake/pkg/slack"
	"github.com/codeready-toolchain/cake/pkg/snapshot"
	"github.com/codeready-toolchain/cake/pkg/version"
	"github.com/codeready-toolchain/cake/pkg/voice"
	"github.com/codeready-toolchain/cake/pkg/watchdog"
)

func main() {
	configPath := flag.String("config", "cake.yaml", "path to the CAKE configuration file")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics and /healthz on")
	policyPath := flag.String("policy", "", "path to an optional OPA/Rego policy file for the command interceptor")
	flag.Parse()

	runID := uuid.NewString()
	logger := slog.Default().With("component", "cake", "run_id", runID, "version", version.Full())
	slog.SetDefault(logger)

	if err := run(*configPath, *metricsAddr, *policyPath); err != nil {
		logger.Error("cake exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr, policyPath string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("cake: failed to load .env file", "error", err)
	}

	cfgMgr, err := config.Initialize(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	defer cfgMgr.Close()
	cfg := cfgMgr.Current()

	recall.SetBaselineTTL(cfg.RecallTTL())

	store, err := openRecallStore(cfg)
	if err != nil {
		return fmt.Errorf("opening recall store: %w", err)
	}
	defer store.Close()

	corpus, err := loadVoiceCorpus(cfg.Voice.CorpusPath)
	if err != nil {
		slog.Warn("cake: voice corpus unavailable, gate runs in degraded lexical mode", "error", err)
	}
	gate := voice.NewGate(cfg.VoiceGateConfig(), corpus)
	builder := operator.NewBuilder(gate)
	clsfr := classifier.New(cfg.ClassifierConfig())

	queue := watchdog.NewBoundedQueue(256)
	monitor := watchdog.NewMonitor(queue, watchdog.CompilePatterns(watchdog.DefaultPatterns()))

	ic, auditCloser, err := buildInterceptor(cfg, policyPath)
	if err != nil {
		return fmt.Errorf("building interceptor: %w", err)
	}
	defer auditCloser.Close()

	var snapshots controller.Snapshotter
	var snapMgr *snapshot.Manager
	if mgr, err := snapshot.Open(cfg.Snapshot.RepoPath); err != nil {
		slog.Warn("cake: snapshot manager unavailable, continuing without snapshots", "error", err)
	} else {
		snapshots = mgr
		snapMgr = mgr
	}

	escalator := slack.NewService(slack.ServiceConfig{
		Token:   os.Getenv("CAKE_SLACK_TOKEN"),
		Channel: os.Getenv("CAKE_SLACK_CHANNEL"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()

	var registry *adapter.Registry
	var launch func() error
	if len(args) == 0 {
		slog.Info("cake: no supervised command given, running as a bare event-intercept service")
		registry = adapter.NewRegistry(adapter.NewCannedAdapter())
		launch = func() error { <-ctx.Done(); return nil }
	} else {
		stdio, wireStdio, err := buildStdioAdapter(args)
		if err != nil {
			return fmt.Errorf("preparing supervised agent: %w", err)
		}
		registry = adapter.NewRegistry(stdio, adapter.NewCannedAdapter())
		launch = func() error {
			defer monitor.Wait()
			return wireStdio(ctx, monitor, ic)
		}
	}

	ctrl := controller.New(queue, clsfr, store, builder, registry, snapshots, escalator)

	cfgMgr.OnReload(func(c *config.Config) {
		recall.SetBaselineTTL(c.RecallTTL())
	})

	metricsSrv := metrics.NewServer(metricsAddr, map[string]metrics.HealthFunc{
		"adapter": func(ctx context.Context) error { return combineHealth(registry.Health(ctx)) },
	})
	go func() {
		if err := metricsSrv.ListenAndServe(ctx); err != nil {
			slog.Error("cake: metrics server stopped", "error", err)
		}
	}()

	purger := recall.NewPurgeLoop(store, 5*time.Minute)
	purger.Start(ctx)
	defer purger.Stop()

	if snapMgr != nil {
		gc := snapshot.NewGCLoop(snapMgr, time.Hour, cfg.SnapshotRetention(), cfg.SnapshotMaxSizeBytes(), recallSignatureLookup{store})
		gc.Start(ctx)
		defer gc.Stop()
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	go ctrl.Run(ctx, done)

	if err := launch(); err != nil {
		slog.Error("cake: supervised agent exited with error", "error", err)
	}
	stop()
	return nil
}

// recallSignatureLookup adapts the recall store to snapshot.SignatureLookup
// so the Snapshot Manager's GC can pin snapshots tied to signatures the
// recall store still considers live, without the snapshot package
// importing recall directly.
type recallSignatureLookup struct {
	store recall.Store
}

func (r recallSignatureLookup) IsLive(signature string) bool {
	sig, err := recall.ParseSignature(signature)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok, err := r.store.Lookup(ctx, sig)
	return err == nil && ok
}

func combineHealth(results map[string]error) error {
	var errs []error
	for name, err := range results {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func openRecallStore(cfg *config.Config) (recall.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	durable, err := recall.Open(ctx, cfg.Database.Path)
	if err != nil {
		slog.Warn("cake: recall store open failed, starting in degraded mode", "error", err)
		return recall.NewMemoryStore(), nil
	}
	return recall.NewDegradingStore(durable, cfg.Database.Path, recall.Open), nil
}

func loadVoiceCorpus(path string) (*voice.Corpus, error) {
	if path == "" {
		return nil, fmt.Errorf("voice: no corpus_path configured")
	}
	return voice.LoadCorpus(path)
}

func buildInterceptor(cfg *config.Config, policyPath string) (*interceptor.Interceptor, io.Closer, error) {
	rules := interceptor.DefaultRules()
	for _, pattern := range cfg.Safety.BlockedCommands {
		rules = append(rules, interceptor.Rule{Name: "config-blocked", Pattern: pattern, Action: interceptor.ActionBlocked, Reason: "blocked by configured safety policy"})
	}
	for _, pattern := range cfg.Safety.RequireConfirmation {
		rules = append(rules, interceptor.Rule{Name: "config-confirm", Pattern: pattern, Action: interceptor.ActionConfirm, Reason: "requires confirmation by configured safety policy"})
	}

	rs, compileErrs := interceptor.CompileRules(rules)
	for _, e := range compileErrs {
		slog.Warn("cake: skipping invalid interceptor rule", "error", e)
	}

	var policy interceptor.PolicyEngine
	if policyPath != "" {
		src, err := os.ReadFile(policyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading policy file: %w", err)
		}
		engine, err := interceptor.NewRegoEngine(context.Background(), string(src))
		if err != nil {
			return nil, nil, fmt.Errorf("preparing policy: %w", err)
		}
		policy = engine
	}

	auditFile, err := os.OpenFile("cake-audit.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}

	return interceptor.New(rs, policy, interceptor.NewAuditor(auditFile), cfg.MaxLatency()), auditFile, nil
}

// buildStdioAdapter prepares the child process for the supervised agent
// named by args without starting it yet, returning the StdioAdapter
// wrapping its stdin and a closure that launches it once the controller
// is wired and running. Splitting construction from launch lets the
// Registry (and thus the Controller) exist before the child's own
// lifecycle begins.
func buildStdioAdapter(args []string) (*adapter.StdioAdapter, func(ctx context.Context, monitor *watchdog.Monitor, ic *interceptor.Interceptor) error, error) {
	cmd := exec.Command(args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("attaching stderr: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("attaching stdin: %w", err)
	}

	stdio := adapter.NewStdioAdapter(stdin)
	stdio.RegisterPreExecute(func(_ context.Context, cmdline string, decision interceptor.Decision) error {
		if decision.Action == interceptor.ActionBlocked {
			return fmt.Errorf("interceptor blocked launch of %q: %s", cmdline, decision.Reason)
		}
		return nil
	})

	launch := func(ctx context.Context, monitor *watchdog.Monitor, ic *interceptor.Interceptor) error {
		cmdline := joinArgs(args)
		cwd, _ := os.Getwd()
		decision := ic.Decide(ctx, cmdline, cwd, envMap())

		return stdio.Execute(ctx, cmdline, decision, func() error {
			monitor.WatchStream(ctx, stdout, event.SourceStdout)
			monitor.WatchStream(ctx, stderr, event.SourceStderr)

			if err := cmd.Start(); err != nil {
				return fmt.Errorf("starting supervised agent: %w", err)
			}
			done := make(chan error, 1)
			go func() { done <- cmd.Wait() }()
			select {
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				<-done
				return nil
			case err := <-done:
				return err
			}
		})
	}

	return stdio, launch, nil
}

func envMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
