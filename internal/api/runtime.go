package api

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RuntimeStats holds process and host resource usage.
type RuntimeStats struct {
	CPULoad1    float64 `json:"cpu_load_1"`
	CPULoad5    float64 `json:"cpu_load_5"`
	CPULoad15   float64 `json:"cpu_load_15"`
	CPUPercent  float64 `json:"cpu_percent"`
	CPUCores    int     `json:"cpu_cores"`
	MemUsedMB   float64 `json:"mem_used_mb"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	MemPercent  float64 `json:"mem_percent"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`
}

type cpuSample struct {
	idle  uint64
	total uint64
}

// runtimeSampler remembers the previous /proc/stat sample so CPU percent
// covers the interval between two status calls. Host fields stay zero where
// /proc is unavailable.
type runtimeSampler struct {
	mu   sync.Mutex
	prev cpuSample
	proc string
}

func newRuntimeSampler() *runtimeSampler {
	return &runtimeSampler{proc: "/proc"}
}

func (s *runtimeSampler) collect(start time.Time) RuntimeStats {
	st := RuntimeStats{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(start).Seconds()),
	}

	cur := s.readCPU()
	s.mu.Lock()
	if s.prev.total > 0 && cur.total > s.prev.total {
		dTotal := float64(cur.total - s.prev.total)
		dIdle := float64(cur.idle - s.prev.idle)
		st.CPUPercent = (1.0 - dIdle/dTotal) * 100.0
	}
	s.prev = cur
	s.mu.Unlock()

	s.readLoad(&st)
	s.readMem(&st)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	st.SysMB = float64(ms.Sys) / 1024 / 1024
	st.GCRuns = ms.NumGC
	return st
}

func (s *runtimeSampler) readCPU() cpuSample {
	f, err := os.Open(s.proc + "/stat")
	if err != nil {
		return cpuSample{}
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			break
		}
		var total, idle uint64
		for i := 1; i < len(fields); i++ {
			v, _ := strconv.ParseUint(fields[i], 10, 64)
			total += v
			if i == 4 {
				idle = v
			}
		}
		return cpuSample{idle: idle, total: total}
	}
	return cpuSample{}
}

func (s *runtimeSampler) readLoad(st *RuntimeStats) {
	b, err := os.ReadFile(s.proc + "/loadavg")
	if err != nil {
		return
	}
	fields := strings.Fields(string(b))
	if len(fields) < 3 {
		return
	}
	for i, dst := range []*float64{&st.CPULoad1, &st.CPULoad5, &st.CPULoad15} {
		if v, err := strconv.ParseFloat(fields[i], 64); err == nil {
			*dst = v
		}
	}
}

func (s *runtimeSampler) readMem(st *RuntimeStats) {
	f, err := os.Open(s.proc + "/meminfo")
	if err != nil {
		return
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
	}
	if total > 0 && available <= total {
		used := total - available
		st.MemTotalMB = float64(total) / 1024
		st.MemUsedMB = float64(used) / 1024
		st.MemPercent = float64(used) / float64(total) * 100
	}
}
