package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/internal/obslog"
)

var (
	configPath string
	verbose    bool

	logRing = obslog.NewRingHook(0)
)

var rootCmd = &cobra.Command{
	Use:   "pmossdp",
	Short: "UPnP SSDP discovery and announcement engine",
	Long: `pmossdp discovers UPnP devices on the local network and fetches their
root descriptions (control-point mode), or announces this host as a UPnP
device and serves its own root description and icon (device mode).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		log.AddHook(logRing)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a pmossdp.yml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(announceCmd)
}

// logSessionSummary reports how many warnings and errors the log ring
// retained, so an unattended run's exit line points at trouble without
// scrolling back through the whole session.
func logSessionSummary() {
	var warns, errs int
	for _, entry := range logRing.Recent() {
		switch entry.Level {
		case log.WarnLevel:
			warns++
		case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
			errs++
		}
	}
	if warns == 0 && errs == 0 {
		return
	}
	log.Infof("session retained %d warning(s) and %d error(s)", warns, errs)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logSessionSummary()
		log.Fatalf("❌ %v", err)
	}
}
