// The orchestrator process hosts the long-running loops: the Scheduler's
// timer wheel dispatching bot evaluations, and one Position Monitor loop
// per credential. It shares internal/svc wiring with the API process but
// serves no HTTP traffic.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"botfleet/internal/cli"
	"botfleet/internal/config"
	"botfleet/internal/svc"
)

const (
	// refreshInterval re-reads the bot table so newly activated bots join
	// the wheel and fresh credentials get a monitor loop without a restart.
	refreshInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	_ = godotenv.Load()
	flag.Parse()

	cfg := config.MustLoad()
	cli.LogConfigSummary(cfg)

	svcCtx := svc.NewServiceContext(*cfg)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svcCtx.Scheduler.Run(rootCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		superviseMonitors(rootCtx, svcCtx, &wg)
	}()

	log.Println("[main] orchestrator running; Ctrl-C to stop")
	<-rootCtx.Done()
	log.Println("[main] shutting down...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("[main] clean shutdown")
	case <-time.After(shutdownTimeout):
		log.Println("[main] shutdown timeout exceeded, exiting")
		os.Exit(1)
	}
}

// superviseMonitors keeps the Scheduler's wheel and the per-credential
// monitor loops aligned with the bot table.
func superviseMonitors(ctx context.Context, svcCtx *svc.ServiceContext, wg *sync.WaitGroup) {
	running := make(map[string]struct{})

	resync := func() {
		loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		bots, err := svcCtx.Repo.AllActiveBots(loadCtx)
		if err != nil {
			log.Printf("[main] load active bots: %v", err)
			return
		}
		for _, bot := range bots {
			svcCtx.Scheduler.Register(bot)
			svcCtx.ConfigureCredential(bot.CredentialID, svcCtx.Config.Orchestrator.MaxConcurrentPerCred)
			if _, ok := running[bot.CredentialID]; ok {
				continue
			}
			running[bot.CredentialID] = struct{}{}
			credentialID := bot.CredentialID
			wg.Add(1)
			go func() {
				defer wg.Done()
				svcCtx.Monitor.RunLoop(ctx, credentialID)
			}()
			log.Printf("[main] monitor started credential=%s", credentialID)
		}
	}

	resync()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resync()
		}
	}
}
