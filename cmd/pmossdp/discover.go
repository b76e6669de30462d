package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/internal/ssdpconfig"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdpdisco"
)

const identity = "pmossdp/1.0 UPnP/1.0"

var (
	discoverFilter   string
	discoverWait     int
	discoverSock     string
	discoverNoDaemon bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover UPnP devices on the local network (control-point mode)",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverFilter, "filter", "", `search target filter; "root" and bare words expand to UPnP device types`)
	discoverCmd.Flags().IntVar(&discoverWait, "wait", 0, "seconds to wait for responses after a one-shot search (0 uses the config default)")
	discoverCmd.Flags().StringVar(&discoverSock, "sock", "", "unix socket path for listener connections (empty uses the config default)")
	discoverCmd.Flags().BoolVar(&discoverNoDaemon, "no-daemon", false, "perform a single foreground search instead of listening for NOTIFYs continuously")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg := ssdpconfig.Load(configPath)
	filter := ssdpconfig.ExpandFilter(discoverFilter)

	wait := discoverWait
	if wait <= 0 {
		wait = cfg.DiscoverWaitSeconds()
	}
	sockPath := discoverSock
	if sockPath == "" {
		sockPath = cfg.SockPath()
	}

	coordinator := ssdpdisco.NewCoordinator(identity, filter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("👋 shutting down")
		logSessionSummary()
		cancel()
	}()

	if discoverNoDaemon {
		log.Infof("🔍 searching for %s", defaultTarget(filter))
		return coordinator.Discover(ctx, time.Duration(wait)*time.Second)
	}

	go func() {
		if err := ssdpdisco.ServeListeners(ctx, coordinator, sockPath); err != nil {
			log.Warnf("❌ listener socket stopped: %v", err)
		}
	}()

	log.Infof("🔍 running discovery daemon, listeners connect at %s", sockPath)
	return coordinator.RunDaemon(ctx)
}

func defaultTarget(filter string) string {
	if filter == "" {
		return "ssdp:all"
	}
	return filter
}
