// Command ownmon is the desktop activity monitor's composition root: flag
// parsing, config load, collaborator wiring, and signal-based graceful
// shutdown, mirroring the teacher's cmd/server/main.go.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/counter"
	"github.com/ownmon/ownmon/internal/instance"
	"github.com/ownmon/ownmon/internal/integrity"
	"github.com/ownmon/ownmon/internal/mockdriver"
	"github.com/ownmon/ownmon/internal/platform"
	"github.com/ownmon/ownmon/internal/poller"
	"github.com/ownmon/ownmon/internal/secretstore"
	"github.com/ownmon/ownmon/internal/server"
	"github.com/ownmon/ownmon/internal/storage"
)

func main() {
	mockMode := flag.Bool("mock", false, "drive a simulated environment instead of the real host")
	configPath := flag.String("config", "", "path to config file (defaults to the XDG config directory)")
	port := flag.Int("port", 0, "override the server port")
	mockSeed := flag.Int64("mock-seed", 1, "seed for the deterministic simulated environment (--mock only)")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	stateDir := config.DefaultStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Fatalf("failed to create state directory: %v", err)
	}

	lock, err := instance.Acquire(filepath.Join(stateDir, "ownmon.lock"))
	if err != nil {
		log.Fatalf("failed to acquire single-instance lock: %v", err)
	}
	defer lock.Close()

	keys := loadKeyManager()

	persistence, err := storage.Open(filepath.Join(stateDir, "ownmon.db"), cfg, keys)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer persistence.Close()

	if err := persistence.RecoverMissingDailyIntegrity(); err != nil {
		log.Printf("daily integrity recovery: %v", err)
	}

	astore := activity.NewStore(activity.Config{
		AfkThreshold:       cfg.Monitor.AfkThreshold,
		MinSessionDuration: cfg.Monitor.MinSessionDuration,
		MaxSessions:        cfg.Monitor.MaxSessions,
	}, nil)

	ring := counter.New()

	var (
		hooks  platform.HookInstaller
		window platform.ForegroundWindow
		media  platform.MediaSampler
		driver *mockdriver.Driver
	)
	if *mockMode {
		log.Println("ownmon: starting in mock mode against a simulated environment")
		driver = mockdriver.New(*mockSeed)
		hooks, window, media = driver, driver, driver
	} else {
		log.Println("ownmon: starting against the real host")
		host := platform.NewHostStub()
		hooks, window, media = host, host, host
	}

	if _, err := hooks.InstallKeyboardHook(func(kind platform.InputKind) { ring.Increment(kind) }); err != nil {
		log.Printf("ownmon: keyboard hook unavailable: %v", err)
	}
	if _, err := hooks.InstallMouseHook(func(kind platform.InputKind) { ring.Increment(kind) }); err != nil {
		log.Printf("ownmon: mouse hook unavailable: %v", err)
	}

	p := poller.New(cfg, astore, ring, window, media, persistence)

	broadcaster := server.NewBroadcaster(astore, cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval, cfg.Server.MaxConnections)
	defer broadcaster.Stop()
	broadcaster.SetPrivacyFilter(&server.PrivacyFilter{BlockedPatterns: cfg.Blacklist})

	p.SetSessionHook(func(sess *activity.FocusSession) { broadcaster.QueueSessionChange(sess) })
	p.SetMediaHook(func(media *activity.MediaSession) { broadcaster.QueueMediaUpdate(media) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	if *mockMode {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.Monitor.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-ticker.C:
					driver.Tick(t)
				}
			}
		}()
	}

	httpSrv := server.New(cfg, persistence, broadcaster)
	mux := http.NewServeMux()
	httpSrv.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("ownmon: shutting down")
		cancel()
		wg.Wait()

		astore.FinalizeCurrentSession()
		persistence.DrainAndAppend(astore.DrainPendingSessions(), astore.DrainPendingMedia())
		today := time.Now().UTC().Format("2006-01-02")
		if err := persistence.ComputeDailyIntegrity(today); err != nil {
			log.Printf("ownmon: final daily integrity commit: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.ListenAndServe(cfg, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// loadKeyManager prefers the OS keyring, falling back to a file-backed
// secret store under the state directory when the keyring is unavailable
// (e.g. a headless Linux host with no secret-service provider running).
func loadKeyManager() *integrity.KeyManager {
	pubPath := config.DefaultPublicKeyPath()

	km := integrity.NewKeyManager(secretstore.New(), pubPath)
	if err := km.Load(); err == nil {
		return km
	}
	log.Print("ownmon: OS keyring unavailable, falling back to file-backed secret storage")

	km = integrity.NewKeyManager(secretstore.NewFile(config.DefaultStateDir()), pubPath)
	if err := km.Load(); err != nil {
		log.Printf("ownmon: failed to load or generate a signing key, sessions will be persisted unsigned: %v", err)
	}
	return km
}
