// Package metrics implements the run report and Prometheus bridge described
// in section 6: a human/JSON report assembled from a stats.Snapshot at the
// end of a run, plus a Collector whose gauges are synced from periodic
// stats.Snapshot values during the run.
package metrics

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldline/tarvault/config"
	"github.com/coldline/tarvault/stats"
)

// Report is the end-of-run summary section 6 mandates on stdout: start/end
// timestamps, duration, source, destination, the active policy and its
// threshold, worker count, and every RunStats counter.
type Report struct {
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"-"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Policy      string        `json:"policy"`
	Threshold   string        `json:"threshold"`
	Workers     int           `json:"workers"`

	stats.Snapshot
}

// NewReport assembles a Report from a run's start time, its final
// stats.Snapshot, and the configuration that shaped it.
func NewReport(start time.Time, snap stats.Snapshot, cfg *config.Config) Report {
	end := time.Now()
	return Report{
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Source:      sourceDescription(cfg),
		Destination: destDescription(cfg),
		Policy:      string(cfg.Combine),
		Threshold:   thresholdDescription(cfg),
		Workers:     cfg.MaxProcess,
		Snapshot:    snap,
	}
}

func sourceDescription(cfg *config.Config) string {
	if cfg.InputFile != "" {
		return "input-file:" + cfg.InputFile
	}
	if cfg.SrcType == config.SourceObjectStore {
		return fmt.Sprintf("s3://%s/%s", cfg.SrcBucket, cfg.SrcPrefix)
	}
	return cfg.SrcPath
}

func destDescription(cfg *config.Config) string {
	if cfg.DstType == config.DestObjectStore {
		return fmt.Sprintf("s3://%s/%s", cfg.DstBucket, cfg.DstPrefix)
	}
	return cfg.DstPath
}

func thresholdDescription(cfg *config.Config) string {
	if cfg.Combine == config.CombineSize {
		return fmt.Sprintf("%d bytes", cfg.MaxTarSize)
	}
	return fmt.Sprintf("%d files", cfg.MaxFileNumber)
}

// throughput returns files_ok per second of wall-clock duration.
func (r Report) throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.FilesOK) / r.Duration.Seconds()
}

// MarshalJSON renders Duration and Throughput explicitly: a human-readable
// duration, not nanoseconds, plus a derived field the struct doesn't store
// directly.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration   string  `json:"duration"`
		Throughput float64 `json:"throughput"`
	}{
		Alias:      Alias(r),
		Duration:   r.Duration.String(),
		Throughput: r.throughput(),
	})
}

// String renders the report for stdout, per section 6's run report.
func (r Report) String() string {
	return fmt.Sprintf(
		"Run complete in %s\n"+
			"Started: %s\n"+
			"Finished: %s\n"+
			"Source: %s\n"+
			"Destination: %s\n"+
			"Policy: %s (threshold %s)\n"+
			"Workers: %d\n"+
			"Files ok: %d\n"+
			"Files failed: %d\n"+
			"Archives written: %d\n"+
			"Manifests written: %d\n"+
			"Bytes transferred: %d\n"+
			"Throughput: %.2f files/sec",
		r.Duration, r.StartTime.Format(time.RFC3339), r.EndTime.Format(time.RFC3339),
		r.Source, r.Destination, r.Policy, r.Threshold, r.Workers,
		r.FilesOK, r.FilesFailed, r.ArchivesWritten, r.ManifestsWritten,
		r.BytesTransferred, r.throughput(),
	)
}

// Collector exposes RunStats counters as Prometheus metrics: one gauge
// per counter, registered once and kept in sync by polling a RunStats
// snapshot rather than incrementing inline (RunStats already owns the
// atomic increments; Collector only mirrors them for scraping).
type Collector struct {
	filesOK          prometheus.Gauge
	filesFailed      prometheus.Gauge
	archivesWritten  prometheus.Gauge
	manifestsWritten prometheus.Gauge
	bytesTransferred prometheus.Gauge
}

// NewCollector creates and registers a Collector against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		filesOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tarvault_files_ok",
			Help: "Files successfully archived in the current run.",
		}),
		filesFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tarvault_files_failed",
			Help: "Files that could not be read or archived in the current run.",
		}),
		archivesWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tarvault_archives_written",
			Help: "Archive artifacts persisted by the sink in the current run.",
		}),
		manifestsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tarvault_manifests_written",
			Help: "Manifest artifacts persisted by the sink in the current run.",
		}),
		bytesTransferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tarvault_bytes_transferred",
			Help: "Bytes written to archives in the current run.",
		}),
	}
	reg.MustRegister(c.filesOK, c.filesFailed, c.archivesWritten, c.manifestsWritten, c.bytesTransferred)
	return c
}

// Sync copies a stats.Snapshot's values onto the gauges. Callers poll this
// from the same ticker that drives the coordinator's progress log.
func (c *Collector) Sync(snap stats.Snapshot) {
	c.filesOK.Set(float64(snap.FilesOK))
	c.filesFailed.Set(float64(snap.FilesFailed))
	c.archivesWritten.Set(float64(snap.ArchivesWritten))
	c.manifestsWritten.Set(float64(snap.ManifestsWritten))
	c.bytesTransferred.Set(float64(snap.BytesTransferred))
}
