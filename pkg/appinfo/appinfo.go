package appinfo

import (
	"time"
)

var (
	Name        = "dragonfly"
	Title       = "Dragonfly Gateway"
	Description = "Fan-out/fan-in HTTP dispatch gateway."

	// Application version
	Version = "0.1.0"

	StartTime = time.Now()
)
