package reconcile

import "time"

// Config controls sweep cadence and the preview window.
type Config struct {
	GraceSweepInterval   time.Duration `env:"SWEEP_GRACE_INTERVAL" envDefault:"15m"`
	PreviewSweepInterval time.Duration `env:"SWEEP_PREVIEW_INTERVAL" envDefault:"5m"`
	PreviewDuration      time.Duration `env:"PREVIEW_DURATION" envDefault:"48h"`
	// ProcessorTimeout bounds each processor call made on behalf of one profile.
	ProcessorTimeout time.Duration `env:"SWEEP_PROCESSOR_TIMEOUT" envDefault:"10s"`
}
