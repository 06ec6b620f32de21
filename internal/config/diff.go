package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is applied live by swapping the logger level.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ModelsChanged and VoiceChanged take effect for the next operation or
	// voice session.
	ModelsChanged bool
	VoiceChanged  bool

	// RestartRequired names the sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ModelsChanged = old.Models != new.Models
	d.VoiceChanged = old.Voice != new.Voice

	restart := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"server.rate_limit", old.Server.RateLimit, new.Server.RateLimit},
		{"server.tls", old.Server.TLS, new.Server.TLS},
		{"providers", old.Providers, new.Providers},
		{"workflow", old.Workflow, new.Workflow},
		{"chat", old.Chat, new.Chat},
		{"store", old.Store, new.Store},
	}
	for _, s := range restart {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
