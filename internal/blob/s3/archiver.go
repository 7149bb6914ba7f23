package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// Archiver batches fired alerts and uploads them as JSONL objects under
// alerts/YYYY/MM/DD/HHMMSS.jsonl. Batches larger than MultipartThreshold go
// through the multipart uploader.
type Archiver struct {
	writer             domain.BlobWriter
	interval           time.Duration
	multipartThreshold int
	logger             *slog.Logger
	now                func() time.Time

	mu       sync.Mutex
	pending  []domain.AlertRecord
	lastBase string
	seq      int
}

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	FlushInterval      time.Duration
	MultipartThreshold int
}

// NewArchiver creates an Archiver writing through w.
func NewArchiver(w domain.BlobWriter, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = int(minPartSize)
	}
	return &Archiver{
		writer:             w,
		interval:           cfg.FlushInterval,
		multipartThreshold: cfg.MultipartThreshold,
		logger:             logger.With(slog.String("component", "archiver")),
		now:                time.Now,
	}
}

// Name implements alerts.Sink.
func (a *Archiver) Name() string { return "archive" }

// Deliver queues the alert for the next flush.
func (a *Archiver) Deliver(_ context.Context, alert domain.AlertRecord) error {
	a.mu.Lock()
	a.pending = append(a.pending, alert)
	a.mu.Unlock()
	return nil
}

// Pending returns the number of queued alerts.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush uploads queued alerts. On failure the batch is put back in front of
// anything queued since.
func (a *Archiver) Flush(ctx context.Context) (int, error) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := a.nextPath()
	if len(buf) > a.multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		a.mu.Unlock()
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.Info("alerts archived", slog.String("path", path), slog.Int("count", len(batch)))
	return len(batch), nil
}

// Run flushes on the configured interval and once more when ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if _, err := a.Flush(fctx); err != nil {
				a.logger.Error("final archive flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if _, err := a.Flush(ctx); err != nil {
				a.logger.Warn("archive flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// nextPath suffixes a sequence number when two flushes land in the same
// second.
func (a *Archiver) nextPath() string {
	base := archiveBase(a.now().UTC())
	a.mu.Lock()
	defer a.mu.Unlock()
	if base == a.lastBase {
		a.seq++
		return fmt.Sprintf("%s-%d.jsonl", base, a.seq)
	}
	a.lastBase, a.seq = base, 0
	return base + ".jsonl"
}

// archiveBase is the object key, minus extension, for a batch flushed at t:
//
//	alerts/2025/01/10/190000
func archiveBase(t time.Time) string {
	return "alerts/" + t.Format("2006/01/02/150405")
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
