// Package audit pushes completed remediation records to an external
// document store. Export is best-effort: one attempt per record, failures
// are logged and discarded, and remediation never waits on the sink.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/remedyd/internal/config"
	"github.com/lvonguyen/remedyd/internal/observability"
)

// Exporter ships audit documents asynchronously through a bounded queue.
type Exporter struct {
	docURL   string
	tokenEnv string
	client   *http.Client
	logger   *zap.Logger
	metrics  *observability.Metrics

	queue     chan map[string]any
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates an exporter for the configured sink. Returns nil when no
// sink URL is configured; the absence of a sink is not an error.
func New(cfg config.AuditConfig, metrics *observability.Metrics, logger *zap.Logger) *Exporter {
	if cfg.URL == "" {
		return nil
	}

	index := cfg.Index
	if index == "" {
		index = "remediations"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Exporter{
		docURL:   strings.TrimSuffix(cfg.URL, "/") + "/" + index + "/_doc",
		tokenEnv: cfg.TokenEnv,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		metrics:  metrics,
		queue:    make(chan map[string]any, queueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the export worker.
func (e *Exporter) Start() {
	e.startOnce.Do(func() {
		go e.run()
	})
}

// Submit enqueues one document without blocking. A full queue drops the
// document with a warning.
func (e *Exporter) Submit(doc map[string]any) {
	select {
	case e.queue <- doc:
	default:
		e.logger.Warn("Audit queue full, dropping document",
			zap.Any("record_id", doc["record_id"]),
		)
		e.count("dropped")
	}
}

// Close drains the queue and stops the worker.
func (e *Exporter) Close() {
	e.closeOnce.Do(func() {
		close(e.queue)
		<-e.done
	})
}

func (e *Exporter) run() {
	defer close(e.done)
	for doc := range e.queue {
		if err := e.push(doc); err != nil {
			e.logger.Warn("Audit export failed",
				zap.Any("record_id", doc["record_id"]),
				zap.Error(err),
			)
			e.count("failed")
			continue
		}
		e.count("ok")
	}
}

// push performs a single attempt against the sink.
func (e *Exporter) push(doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling audit document: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.docURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.tokenEnv != "" {
		if token := os.Getenv(e.tokenEnv); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit sink request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("audit sink returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (e *Exporter) count(result string) {
	if e.metrics != nil {
		e.metrics.AuditExports.WithLabelValues(result).Inc()
	}
}
