package plugin

import (
	"os"
	"runtime"

	"github.com/goreplica/goreplica/engine/async"
	"github.com/goreplica/goreplica/engine/consts"
	"github.com/goreplica/goreplica/engine/gwlog"
	"github.com/goreplica/goreplica/engine/reflection"
	"github.com/shirou/gopsutil/process"
	"github.com/xiaonanln/goTimer"
)

const statsJobGroup = "plugin.stats"

// ServerStats publishes load figures of the server process
type ServerStats struct {
	Plugin

	CPUPercent   float64
	MemoryRSS    int64
	NumGoroutine int64
	Peers        int64
	Objects      int64

	samples int
	timer   *timer.Timer
	proc    *process.Process
}

type processSample struct {
	cpu float64
	rss int64
}

// DescribePlugin returns the properties of ServerStats
func (ss *ServerStats) DescribePlugin() []*reflection.PropertyDescriptor {
	self := func(o interface{}) *ServerStats { return o.(*ServerStats) }
	return []*reflection.PropertyDescriptor{
		reflection.NewProperty("CPUPercent", reflection.KindDouble,
			func(o interface{}) interface{} { return self(o).CPUPercent },
			func(o interface{}, v interface{}) { self(o).CPUPercent = v.(float64) }).WithPrecision(1).MarkSynced(),
		reflection.NewProperty("MemoryRSS", reflection.KindInt,
			func(o interface{}) interface{} { return self(o).MemoryRSS },
			func(o interface{}, v interface{}) { self(o).MemoryRSS = v.(int64) }).MarkSynced(),
		reflection.NewProperty("NumGoroutine", reflection.KindInt,
			func(o interface{}) interface{} { return self(o).NumGoroutine },
			func(o interface{}, v interface{}) { self(o).NumGoroutine = v.(int64) }).MarkSynced(),
		reflection.NewProperty("Peers", reflection.KindInt,
			func(o interface{}) interface{} { return self(o).Peers },
			func(o interface{}, v interface{}) { self(o).Peers = v.(int64) }).MarkSynced(),
		reflection.NewProperty("Objects", reflection.KindInt,
			func(o interface{}) interface{} { return self(o).Objects },
			func(o interface{}, v interface{}) { self(o).Objects = v.(int64) }).MarkSynced(),
	}
}

// Create starts sampling every StatsInterval
func (ss *ServerStats) Create() {
	interval := ss.Manager().Config().Plugins.StatsInterval
	if interval <= 0 {
		interval = consts.DEFAULT_STATS_INTERVAL
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		gwlog.Warnf("%s: process stats unavailable: %v", ss, err)
	}
	ss.proc = proc
	ss.Sample()
	ss.timer = timer.AddTimer(interval, ss.Sample)
}

// OnDestroy stops sampling
func (ss *ServerStats) OnDestroy() {
	if ss.timer != nil {
		ss.timer.Cancel()
		ss.timer = nil
	}
}

// Samples returns the number of completed process samples
func (ss *ServerStats) Samples() int {
	return ss.samples
}

// Sample updates the counters and queries the process figures in the background
func (ss *ServerStats) Sample() {
	ss.Set("NumGoroutine", runtime.NumGoroutine())
	if rm := ss.Manager().Replica(); rm != nil {
		ss.Set("Peers", rm.Stats().Peers)
		ss.Set("Objects", rm.Objects().Len())
	}

	if async.Pending(statsJobGroup) > 0 {
		gwlog.Debugf("%s: previous sample still running", ss)
		return
	}
	proc := ss.proc
	async.AppendAsyncJob(statsJobGroup, func() (interface{}, error) {
		if proc == nil {
			return processSample{}, nil
		}
		cpu, err := proc.CPUPercent()
		if err != nil {
			return nil, err
		}
		mem, err := proc.MemoryInfo()
		if err != nil {
			return nil, err
		}
		return processSample{cpu: cpu, rss: int64(mem.RSS)}, nil
	}, func(res interface{}, err error) {
		if ss.IsDestroyed() {
			return
		}
		ss.samples++
		if err != nil {
			gwlog.Warnf("%s: sample process failed: %v", ss, err)
			return
		}
		sample := res.(processSample)
		ss.Set("CPUPercent", sample.cpu)
		ss.Set("MemoryRSS", sample.rss)
	})
}
