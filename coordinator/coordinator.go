// Package coordinator wires the Source Reader, Batcher, Archiver Workers
// and Sink into one run: a reader goroutine, a batcher goroutine, and a
// pool of N worker goroutines draining the batch channel, using
// signal.NotifyContext, a sync.WaitGroup worker pool, a buffered batch
// channel, and a workerStatus map guarded by sync.RWMutex for the
// progress ticker.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coldline/tarvault/archiveworker"
	"github.com/coldline/tarvault/batch"
	"github.com/coldline/tarvault/config"
	"github.com/coldline/tarvault/metrics"
	"github.com/coldline/tarvault/sink"
	"github.com/coldline/tarvault/source"
	"github.com/coldline/tarvault/stats"
)

// WorkerStatus tracks one worker's progress for the periodic progress log,
// per section 5's shared-state rules (read under RLock, written under
// Lock, never accessed outside the mutex).
type WorkerStatus struct {
	ID            int
	StartTime     time.Time
	LastActive    time.Time
	CurrentBatch  int
	BatchesDone   int64
	LastError     error
	LastErrorTime time.Time
}

// Coordinator runs one archival pass end to end.
type Coordinator struct {
	cfg      *config.Config
	reader   source.Reader
	batcher  *batch.Batcher
	worker   *archiveworker.Worker
	sink     sink.Sink
	stats    *stats.RunStats
	logger   *logrus.Logger
	metrics  *metrics.Collector

	workerStatus map[int]*WorkerStatus
	statusMu     sync.RWMutex
}

// New creates a Coordinator from its fully constructed dependencies. The
// caller picks the Reader/Opener/Sink implementations appropriate to
// cfg.SrcType/cfg.DstType before calling New.
func New(cfg *config.Config, reader source.Reader, opener source.Opener, snk sink.Sink, logger *logrus.Logger, collector *metrics.Collector) *Coordinator {
	st := stats.New()
	seq := stats.NewSequence()

	var policy batch.Policy
	if cfg.Combine == config.CombineSize {
		policy = batch.SizePolicy{MaxSize: cfg.MaxTarSize}
	} else {
		policy = batch.CountPolicy{MaxCount: cfg.MaxFileNumber}
	}

	return &Coordinator{
		cfg:          cfg,
		reader:       reader,
		batcher:      batch.NewBatcher(policy, seq),
		worker:       archiveworker.NewWorker(opener, cfg.Compress, os.TempDir(), logger),
		sink:         snk,
		stats:        st,
		logger:       logger,
		metrics:      collector,
		workerStatus: make(map[int]*WorkerStatus),
	}
}

// Run drives one archival pass: it starts the Reader and Batcher, spawns
// cfg.MaxProcess Archiver Workers over the batch channel, and blocks until
// either the Reader's stream is exhausted and every batch has been
// processed, or a fatal Reader error / cancellation occurs.
//
// A single SIGINT initiates graceful shutdown: the Reader stops
// enumerating, the Batcher emits its final open batch, in-flight workers
// finish their current batch and Sink op, and any batch still sitting in
// the channel is discarded and counted as failed, per section 5's
// cancellation paragraph.
func (c *Coordinator) Run(ctx context.Context) (metrics.Report, error) {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	start := time.Now()
	runTimestamp := start

	files, readErrc := c.reader.Read(ctx)
	batches := c.batcher.Run(ctx, files, 2*c.cfg.MaxProcess)

	var fatalErr error
	var fatalOnce sync.Once
	go func() {
		if err := <-readErrc; err != nil {
			fatalOnce.Do(func() { fatalErr = err })
			cancel()
		}
	}()

	stopProgress := make(chan struct{})
	go c.reportProgress(ctx, stopProgress)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.MaxProcess; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.initWorker(id)
			c.runWorker(ctx, id, batches, runTimestamp)
		}(i)
	}

	wg.Wait()
	close(stopProgress)

	report := metrics.NewReport(start, c.stats.Snapshot(), c.cfg)
	if fatalErr != nil {
		return report, fmt.Errorf("run aborted: %w", fatalErr)
	}
	return report, nil
}

func (c *Coordinator) initWorker(id int) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.workerStatus[id] = &WorkerStatus{ID: id, StartTime: time.Now()}
}

func (c *Coordinator) updateWorkerStatus(id int, fn func(*WorkerStatus)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if s, ok := c.workerStatus[id]; ok {
		fn(s)
		s.LastActive = time.Now()
	}
}

func (c *Coordinator) recordError(id int, err error) {
	if c.logger != nil {
		c.logger.WithField("worker", id).WithError(err).Error("worker failed on batch")
	}
	c.updateWorkerStatus(id, func(s *WorkerStatus) {
		s.LastError = err
		s.LastErrorTime = time.Now()
	})
}

// runWorker pulls batches until the channel closes or ctx is canceled. On
// cancellation, any batch still waiting in the channel is drained and
// counted as failed rather than processed, per section 5.
func (c *Coordinator) runWorker(ctx context.Context, id int, batches <-chan batch.Batch, runTimestamp time.Time) {
	for {
		select {
		case b, ok := <-batches:
			if !ok {
				return
			}
			c.processBatch(ctx, id, b, runTimestamp)
		case <-ctx.Done():
			c.drainDiscarded(batches)
			return
		}
	}
}

func (c *Coordinator) drainDiscarded(batches <-chan batch.Batch) {
	for {
		select {
		case b, ok := <-batches:
			if !ok {
				return
			}
			c.stats.RecordFilesFailed(int64(len(b.Files)))
		default:
			return
		}
	}
}

func (c *Coordinator) processBatch(ctx context.Context, id int, b batch.Batch, runTimestamp time.Time) {
	c.updateWorkerStatus(id, func(s *WorkerStatus) { s.CurrentBatch = b.Ordinal })

	archiveName := archiveworker.ArchiveName(runTimestamp, b.Ordinal, c.cfg.Compress)
	manifestName := archiveworker.ManifestName(runTimestamp, b.Ordinal)

	// The Worker itself records no RunStats; this function is the single
	// place batch outcomes turn into counters, so a batch that fails
	// outright is never double-counted against per-member outcomes
	// recorded earlier in the same batch.
	artifact, err := c.worker.Build(ctx, b, archiveName, manifestName)
	if err != nil {
		c.recordError(id, err)
		c.stats.RecordFilesFailed(int64(len(b.Files)))
		return
	}
	defer func() { _ = os.Remove(artifact.TarPath) }()

	if err := c.sink.Put(ctx, artifact); err != nil {
		c.recordError(id, err)
		c.stats.RecordFilesFailed(int64(len(b.Files)))
		return
	}

	c.stats.RecordArchiveWritten()
	c.stats.RecordManifestWritten()
	c.stats.RecordBytesTransferred(artifact.TarSize)
	c.stats.RecordFilesFailed(artifact.FailedMembers)
	for i := int64(0); i < int64(len(artifact.ManifestRows)); i++ {
		c.stats.RecordFileOK()
	}

	c.updateWorkerStatus(id, func(s *WorkerStatus) { s.BatchesDone++ })
}

// reportProgress logs a summary line every 5 seconds and, when a Collector
// is attached, syncs Prometheus gauges from the same snapshot.
func (c *Coordinator) reportProgress(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := c.stats.Snapshot()
			if c.metrics != nil {
				c.metrics.Sync(snap)
			}
			if c.logger != nil {
				c.logger.WithFields(logrus.Fields{
					"files_ok":          snap.FilesOK,
					"files_failed":      snap.FilesFailed,
					"archives_written":  snap.ArchivesWritten,
					"bytes_transferred": snap.BytesTransferred,
				}).Info("progress")
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
