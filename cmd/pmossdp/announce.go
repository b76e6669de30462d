package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/internal/ssdpconfig"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/netutils"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/scpd"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdpdisco"
)

var (
	announceName         string
	announceType         string
	announceIcon         string
	announcePort         int
	announceIgnoreFilter bool
)

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Announce this host as a UPnP device and serve its root description",
	RunE:  runAnnounce,
}

func init() {
	announceCmd.Flags().StringVar(&announceName, "name", "Basic Device", "friendly name advertised for this device")
	announceCmd.Flags().StringVar(&announceType, "type", "Basic", "UPnP device type, expanded to urn:schemas-upnp-org:device:<type>:1")
	announceCmd.Flags().StringVar(&announceIcon, "icon", "", "path to a PNG icon to serve alongside the root description")
	announceCmd.Flags().IntVar(&announcePort, "port", 0, "TCP port to serve the root description and icon on (0 uses the config default)")
	announceCmd.Flags().BoolVar(&announceIgnoreFilter, "ignore-filter", false, "accepted for CLI-surface parity; this engine always announces unfiltered")
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	cfg := ssdpconfig.Load(configPath)

	host, err := netutils.GuessLocalIP()
	if err != nil {
		return err
	}
	for iface, ips := range netutils.ListAllIPs() {
		log.Debugf("interface %s: %v", iface, ips)
	}
	port := announcePort
	if port <= 0 {
		port = cfg.AnnouncePort()
	}
	deviceType := announceType
	if !strings.Contains(deviceType, ":") {
		deviceType = fmt.Sprintf("urn:schemas-upnp-org:device:%s:1", deviceType)
	}

	var icon []byte
	if announceIcon != "" {
		icon, err = os.ReadFile(announceIcon)
		if err != nil {
			return err
		}
	}

	device := &ssdpdisco.LocalDevice{
		Host: host,
		Port: port,
		UUID: cfg.DeviceUUID(deviceType, announceName),
		Type: deviceType,
		Name: announceName,
		Icon: icon,
	}

	httpServer := scpd.NewServer(device.Host, device.Port, device.Type, device.Name, device.UUID, device.Icon)

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

	if err := httpServer.Start(ctx); err != nil {
		return err
	}
	defer httpServer.Stop()

	engine := ssdp.New(identity, nil)
	if err := engine.Join(); err != nil {
		return err
	}
	defer engine.Close()

	for _, d := range device.ToSSDPDevices() {
		if err := engine.Announce(d); err != nil {
			log.Warnf("❌ failed to announce %s: %v", d.USN, err)
		}
	}

	log.Infof("📣 announcing %s (%s) at %s", device.Name, device.Type, device.Location())
	return engine.Run(ctx)
}
