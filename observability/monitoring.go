package observability

import (
	"chat-pair/domain/event"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitoringStats aggregates what the health endpoint reports about an observer.
type MonitoringStats struct {
	ObserverID string                     `json:"observer_id"`
	Mode       string                     `json:"mode"`
	QueueSize  int                        `json:"queue_size"`
	Events     map[string]uint64          `json:"events"`
	Channels   map[string]ChannelCapacity `json:"channels,omitempty"`

	// --- SYSTEM METRICS ---
	Pid        int32   `json:"pid"`
	PidStatus  string  `json:"pid_status"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	UpdatedAt  string  `json:"updated_at"`
}

// ChannelCapacity is the last sampled fill level of a buffered channel.
type ChannelCapacity struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
}

// MonitoringManager keeps the latest stats of the process and the event counters.
type MonitoringManager struct {
	log        *slog.Logger
	observerID string
	mode       string
	counter    *event.Counter
	process    *process.Process

	mu          sync.RWMutex
	latestStats MonitoringStats
	channels    map[string]ChannelCapacity
}

func NewMonitoringManager(log *slog.Logger, observerID, mode string, counter *event.Counter) *MonitoringManager {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
	}
	return &MonitoringManager{
		log:        log,
		observerID: observerID,
		mode:       mode,
		counter:    counter,
		process:    p,
		channels:   make(map[string]ChannelCapacity),
		latestStats: MonitoringStats{
			ObserverID: observerID,
			Mode:       mode,
			Events:     make(map[string]uint64),
		},
	}
}

// Refresh recomputes the stats. queueSize is read by the caller so that this package
// does not depend on the queue.
func (mm *MonitoringManager) Refresh(queueSize int) MonitoringStats {
	stats := MonitoringStats{
		ObserverID: mm.observerID,
		Mode:       mm.mode,
		QueueSize:  queueSize,
		Events:     make(map[string]uint64),
		Goroutines: runtime.NumGoroutine(),
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for t, n := range mm.counter.Snapshot() {
		stats.Events[string(t)] = n
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC

	if mm.process != nil {
		stats.Pid = mm.process.Pid
		if rss, cpu, status, err := selfStats(mm.process); err != nil {
			mm.log.Debug("Failed to collect self stats", "error", err)
		} else {
			stats.RSSBytes, stats.CPUPercent, stats.PidStatus = rss, cpu, status
		}
	}

	mm.mu.Lock()
	stats.Channels = make(map[string]ChannelCapacity, len(mm.channels))
	for name, c := range mm.channels {
		stats.Channels[name] = c
	}
	mm.latestStats = stats
	mm.mu.Unlock()
	return stats
}

// RecordChannel keeps the latest sample of a channel until the next Refresh reports it.
func (mm *MonitoringManager) RecordChannel(name string, length, capacity int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.channels[name] = ChannelCapacity{Length: length, Capacity: capacity}
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}

// selfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
