// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/artifactcache"
	"github.com/secretsync-io/secret-sync-controller/pkg/engine"
	"github.com/secretsync-io/secret-sync-controller/pkg/metrics"
	"github.com/secretsync-io/secret-sync-controller/pkg/notify"
	"github.com/secretsync-io/secret-sync-controller/pkg/overlay"
	"github.com/secretsync-io/secret-sync-controller/pkg/reconcilermanager"
	"github.com/secretsync-io/secret-sync-controller/pkg/reconcilermanager/controllers"
	"github.com/secretsync-io/secret-sync-controller/pkg/runtimeconfig"
	"github.com/secretsync-io/secret-sync-controller/pkg/scheduler"
	"github.com/secretsync-io/secret-sync-controller/pkg/statuswriter"
	"github.com/secretsync-io/secret-sync-controller/pkg/tracing"
)

var (
	cacheRoot = flag.String("cache-root", os.Getenv("SECRETSYNC_CACHE_ROOT"),
		"Directory used to store downloaded and extracted Source Artifacts.")
	overlayCommand = flag.String("overlay-command", envOr("SECRETSYNC_OVERLAY_COMMAND", "kustomize"),
		"Executable invoked to render an overlay directory into resource documents.")
	pubsubProject = flag.String("pubsub-project", os.Getenv("SECRETSYNC_PUBSUB_PROJECT"),
		"GCP project hosting the best-effort reconciliation-event topic. Empty disables notifications.")
	pubsubTopic = flag.String("pubsub-topic", os.Getenv("SECRETSYNC_PUBSUB_TOPIC"),
		"Pub/Sub topic ID reconciliation events are published to.")
	metricsAddr = flag.String("metrics-addr", envOr("SECRETSYNC_METRICS_ADDR", ":8080"),
		"Address the /metrics, /healthz and /readyz endpoints are served on.")
	otlpEndpoint = flag.String("otlp-endpoint", os.Getenv("SECRETSYNC_OTLP_ENDPOINT"),
		"OTLP gRPC collector address for reconcile-span tracing. Empty disables tracing.")
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		klog.Fatalf("registering client-go types: %v", err)
	}
	if err := secretsyncv1alpha1.AddToScheme(scheme); err != nil {
		klog.Fatalf("registering SecretSync types: %v", err)
	}
	return scheme
}

func main() {
	flag.Parse()
	ctrl.SetLogger(textlogger.NewLogger(textlogger.NewConfig()))

	if *cacheRoot == "" {
		klog.Fatal("cache-root must be set")
	}

	cfgStore := runtimeconfig.NewStore(runtimeconfig.FromEnv(runtimeconfig.Default()))

	signalCtx := signals.SetupSignalHandler()

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 newScheme(),
		BaseContext:            func() context.Context { return signalCtx },
		HealthProbeBindAddress: "0",
		Metrics:                metricsserver.Options{BindAddress: "0"},
	})
	if err != nil {
		klog.Fatalf("instantiating controller manager: %v", err)
	}

	ctx := context.Background()
	notifier, err := newNotifier(ctx, *pubsubProject, *pubsubTopic)
	if err != nil {
		klog.Fatalf("instantiating Pub/Sub notifier: %v", err)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			klog.Warningf("closing Pub/Sub notifier: %v", err)
		}
	}()

	eng := engine.New(
		artifactcache.New(*cacheRoot),
		reconcilermanager.SourceResolver{Client: mgr.GetClient()},
		overlay.New(*overlayCommand),
		reconcilermanager.ProviderFactory{},
		nil, // Keys is supplied per-MC by the Runner, which knows the MC's namespace.
	)

	if *otlpEndpoint != "" {
		tracer, shutdown, err := tracing.NewOTLPTracer(ctx, tracing.OTLPConfig{
			Endpoint:    *otlpEndpoint,
			ServiceName: "secret-sync-controller",
		})
		if err != nil {
			klog.Fatalf("instantiating OTLP tracer: %v", err)
		}
		eng.Tracer = tracer
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				klog.Warningf("shutting down OTLP tracer: %v", err)
			}
		}()
	}

	runner := reconcilermanager.NewRunner(mgr.GetClient(), eng, statuswriter.New(mgr.GetClient()), notifier)

	sched := scheduler.New(runner.Reconcile)
	applySchedulerConfig(sched, cfgStore.Load())

	reconciler := controllers.NewSecretSyncReconciler(mgr.GetClient(), sched, runner)
	if err := reconciler.SetupWithManager(mgr); err != nil {
		klog.Fatalf("registering SecretSync controller: %v", err)
	}

	go handleSIGHUP(cfgStore, sched)
	go serveObservability(*metricsAddr, mgr)

	klog.Info("starting scheduler")
	go sched.Run(signalCtx)

	klog.Info("starting controller manager")
	if err := mgr.Start(signalCtx); err != nil {
		klog.Fatalf("controller manager exited: %v", err)
	}
}

// applySchedulerConfig copies the hot-reloadable fields of cfg onto sched.
// Safe to call while sched.Run is already executing: the fields are only
// read by the scheduler's own goroutine between ticks, and the SIGHUP
// handler is the sole writer after start-up.
func applySchedulerConfig(sched *scheduler.Scheduler, cfg runtimeconfig.Config) {
	sched.Workers = cfg.Workers
	sched.MinBackoff = cfg.MinBackoff
	sched.MaxBackoff = cfg.MaxBackoff
}

// handleSIGHUP reloads the runtime configuration from the environment and
// applies it to sched on each SIGHUP (SPEC_FULL.md's "hot-reloadable
// runtime configuration" note), kept separate from the controller-runtime
// SIGTERM/SIGINT handling signals.SetupSignalHandler already covers.
func handleSIGHUP(cfgStore *runtimeconfig.Store, sched *scheduler.Scheduler) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	for range ch {
		cfgStore.ReloadFromEnv()
		applySchedulerConfig(sched, cfgStore.Load())
	}
}

func newNotifier(ctx context.Context, project, topic string) (*notify.Notifier, error) {
	if project == "" || topic == "" {
		return nil, nil
	}
	return notify.New(ctx, project, topic)
}

// serveObservability serves spec.md §6's three endpoints: Prometheus
// metrics, and hand-rolled liveness/readiness checks backed by the
// controller manager's own cache sync state.
func serveObservability(addr string, mgr ctrl.Manager) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !mgr.GetCache().WaitForCacheSync(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "cache not synced")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	klog.Infof("serving /metrics, /healthz, /readyz on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		klog.Errorf("observability server exited: %v", err)
	}
}
