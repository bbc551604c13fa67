package datastore

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

// ResourceSnapshot captures host resources at a point in time. Queries are
// materialized in memory, so the loader logs one before each load.
type ResourceSnapshot struct {
	Timestamp    time.Time        `json:"timestamp"`
	DatabaseFile DatabaseFileInfo `json:"database_file"`
	SystemMemory MemoryInfo       `json:"system_memory"`
	ProcessInfo  ProcessInfo      `json:"process_info"`
}

// DatabaseFileInfo contains information about the source database files.
type DatabaseFileInfo struct {
	Path          string    `json:"path"`
	SizeBytes     int64     `json:"size_bytes"`
	LastModified  time.Time `json:"last_modified"`
	JournalExists bool      `json:"journal_exists"`
	WALExists     bool      `json:"wal_exists"`
	WALSize       int64     `json:"wal_size"`
}

// MemoryInfo contains system memory information.
type MemoryInfo struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// ProcessInfo contains current process resource usage.
type ProcessInfo struct {
	PID              int   `json:"pid"`
	ResidentMemoryMB int64 `json:"resident_memory_mb"`
	GoroutineCount   int   `json:"goroutine_count"`
	HeapAllocMB      int64 `json:"heap_alloc_mb"`
}

// CaptureResourceSnapshot collects what it can; sections that fail are
// left zero and reported in the returned error.
func CaptureResourceSnapshot(dbPath string) (*ResourceSnapshot, error) {
	snapshot := &ResourceSnapshot{Timestamp: time.Now()}
	var errs []error

	if info, err := captureDatabaseFileInfo(dbPath); err == nil {
		snapshot.DatabaseFile = info
	} else {
		errs = append(errs, err)
	}

	if info, err := captureMemoryInfo(); err == nil {
		snapshot.SystemMemory = info
	} else {
		errs = append(errs, err)
	}

	snapshot.ProcessInfo = captureProcessInfo()

	return snapshot, errors.Join(errs...)
}

func captureDatabaseFileInfo(dbPath string) (DatabaseFileInfo, error) {
	info := DatabaseFileInfo{Path: dbPath}

	stat, err := os.Stat(dbPath)
	if err != nil {
		return info, errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("operation", "stat_database_file").
			Build()
	}
	info.SizeBytes = stat.Size()
	info.LastModified = stat.ModTime()

	info.JournalExists, _ = checkAuxiliaryFile(dbPath + "-journal")
	info.WALExists, info.WALSize = checkAuxiliaryFile(dbPath + "-wal")

	return info, nil
}

func checkAuxiliaryFile(path string) (exists bool, size int64) {
	if stat, err := os.Stat(path); err == nil {
		return true, stat.Size()
	}
	return false, 0
}

func captureMemoryInfo() (MemoryInfo, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return MemoryInfo{}, errors.Newf("failed to get virtual memory stats: %w", err).
			Component("datastore").
			Category(errors.CategoryGeneric).
			Build()
	}
	return MemoryInfo{
		TotalBytes:     vmStat.Total,
		AvailableBytes: vmStat.Available,
		UsedPercent:    vmStat.UsedPercent,
	}, nil
}

func captureProcessInfo() ProcessInfo {
	info := ProcessInfo{
		PID:            os.Getpid(),
		GoroutineCount: runtime.NumGoroutine(),
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	info.HeapAllocMB = int64(memStats.HeapAlloc / 1024 / 1024)

	if proc, err := process.NewProcess(int32(info.PID)); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			info.ResidentMemoryMB = int64(memInfo.RSS / 1024 / 1024)
		}
	}

	return info
}

// FitsInMemory reports whether n bytes fit in the available system memory.
// It returns true when the available amount is unknown.
func (s *ResourceSnapshot) FitsInMemory(n int64) bool {
	if s.SystemMemory.AvailableBytes == 0 || n <= 0 {
		return true
	}
	return uint64(n) <= s.SystemMemory.AvailableBytes
}
