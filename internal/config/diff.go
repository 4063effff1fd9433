package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AnalysisChanged and RecordingChanged apply from the next recording.
	AnalysisChanged  bool
	RecordingChanged bool

	// PlaybackChanged applies from the next playback.
	PlaybackChanged bool

	// SinksChanged and ServerChanged need a restart; they are reported so
	// the caller can warn.
	SinksChanged  bool
	ServerChanged bool
}

// HotReloadable reports whether every change in d can be applied without a
// restart.
func (d ConfigDiff) HotReloadable() bool {
	return !d.SinksChanged && !d.ServerChanged
}

// Changed reports whether anything in d differs.
func (d ConfigDiff) Changed() bool {
	return len(d.Sections()) > 0
}

// Sections names the changed parts of the config, in file order.
func (d ConfigDiff) Sections() []string {
	var out []string
	if d.ServerChanged {
		out = append(out, "server")
	}
	if d.LogLevelChanged {
		out = append(out, "server.log_level")
	}
	for _, s := range []struct {
		name    string
		changed bool
	}{
		{"analysis", d.AnalysisChanged},
		{"recording", d.RecordingChanged},
		{"playback", d.PlaybackChanged},
		{"sinks", d.SinksChanged},
	} {
		if s.changed {
			out = append(out, s.name)
		}
	}
	return out
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		AnalysisChanged:  old.Analysis != new.Analysis,
		RecordingChanged: old.Recording != new.Recording,
		PlaybackChanged:  old.Playback != new.Playback,
		SinksChanged:     old.Sinks != new.Sinks,
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.ServerChanged = true
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
