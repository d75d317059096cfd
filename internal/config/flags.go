package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagOut       = flag.String("out", "", "Output directory")
	flagStripLODs = flag.Int("strip-lods", -1, "Drop that many top LODs from every source mesh")
	flagNoChecks  = flag.Bool("no-checks", false, "Skip hierarchy compatibility checking")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagOut != "" {
		cfg.Output.Dir = *flagOut
	}
	if *flagStripLODs >= 0 {
		cfg.Geometry.StripTopLODs = *flagStripLODs
	}
	if *flagNoChecks {
		cfg.Hierarchy.CheckCompatibility = false
	}
}
