package utils

import "path/filepath"

// Paths resolves the filesystem locations used by pvebot.
type Paths struct {
	DataDir string `json:"data_dir"`
}

// NewPaths constructs Paths rooted at the specified data directory.
func NewPaths(dataDir string) *Paths {
	return &Paths{DataDir: dataDir}
}

// HistoryFile returns the path of the persisted per-entity history series.
func (p *Paths) HistoryFile() string {
	return filepath.Join(p.DataDir, "history.json")
}

// NotifyFile returns the path of the persisted notify-channel configuration.
func (p *Paths) NotifyFile() string {
	return filepath.Join(p.DataDir, "notify.json")
}

// LogFile returns the path of the bot's log file.
func (p *Paths) LogFile() string {
	return filepath.Join(p.DataDir, "pvebot.log")
}
