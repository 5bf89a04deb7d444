package config

// ValidateForTest runs the same validation/defaulting pass Load uses,
// exported so other packages' tests can build in-memory Config fixtures
// (e.g. to populate TargetConfig.CompiledCondition/IsDefaultTarget) without
// a YAML round trip. Not part of the public configuration-loading contract.
func ValidateForTest(cfg *Config) error {
	for i := range cfg.Listeners {
		if cfg.Listeners[i].On == "" {
			cfg.Listeners[i].On = "1"
		}
	}
	return validateAndApplyDefaults(cfg)
}
