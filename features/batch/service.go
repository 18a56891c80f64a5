package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/urlwiz/domainwizard/features/listing"
	"github.com/urlwiz/domainwizard/internal/correlate"
)

// ErrIntegrity marks data corruption in a provider result (malformed
// correlation id, missing embedding, missing result file). It is fatal for
// the enclosing job and never retried.
var ErrIntegrity = errors.New("integrity violation")

// errTransient marks network-level download failures that warrant an
// in-place retry of the same download.
var errTransient = errors.New("transient download failure")

// ProviderStatus is the provider's view of a batch job.
type ProviderStatus struct {
	State        string
	OutputFileID string
}

func (s ProviderStatus) Completed() bool { return s.State == "completed" }

func (s ProviderStatus) Failed() bool {
	switch s.State {
	case "failed", "expired", "cancelled":
		return true
	}
	return false
}

// Provider is the external batch-computation API.
type Provider interface {
	Submit(ctx context.Context, payload io.Reader) (string, error)
	Poll(ctx context.Context, batchID string) (ProviderStatus, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, fileID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Options tune the lifecycle; zero values fall back to defaults.
type Options struct {
	GroupSize       int           // listings per provider job
	WriteBatchSize  int           // embeddings per write-back transaction
	DownloadRetries int           // bounded in-place download retries
	ResubmitWindow  time.Duration // failed jobs younger than this are resubmitted
	Concurrency     int           // concurrent job downloads
	Model           string
	FinalizedTopic  string
}

func (o *Options) defaults() {
	if o.GroupSize < 1 {
		o.GroupSize = 50000
	}
	if o.WriteBatchSize < 1 {
		o.WriteBatchSize = 5000
	}
	if o.DownloadRetries < 1 {
		o.DownloadRetries = 3
	}
	if o.ResubmitWindow <= 0 {
		o.ResubmitWindow = 48 * time.Hour
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.Model == "" {
		o.Model = "text-embedding-3-small"
	}
	if o.FinalizedTopic == "" {
		o.FinalizedTopic = "embeddings.finalized"
	}
}

// Service drives a listing's embedding from "needs computation" through the
// provider's asynchronous batch API to "embedding stored".
type Service struct {
	repo     Repository
	provider Provider
	pub      EventPublisher // may be nil when no worker is deployed
	opts     Options
}

func NewService(repo Repository, provider Provider, pub EventPublisher, opts Options) *Service {
	opts.defaults()
	return &Service{repo: repo, provider: provider, pub: pub, opts: opts}
}

type embeddingRequest struct {
	CustomID string               `json:"custom_id"`
	Method   string               `json:"method"`
	URL      string               `json:"url"`
	Body     embeddingRequestBody `json:"body"`
}

type embeddingRequestBody struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

// CreateJobs splits the pairs into provider-sized groups, submits one batch
// job per group and stamps each listing with its job.
func (s *Service) CreateJobs(ctx context.Context, pairs []listing.IDURL) error {
	for start := 0; start < len(pairs); start += s.opts.GroupSize {
		end := min(start+s.opts.GroupSize, len(pairs))
		if err := s.createJob(ctx, pairs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) createJob(ctx context.Context, group []listing.IDURL) error {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	ids := make([]int64, 0, len(group))
	for _, pair := range group {
		req := embeddingRequest{
			CustomID: fmt.Sprintf("%s:%d:%s", uuid.New().String(), pair.ID, pair.URL),
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body: embeddingRequestBody{
				Model:          s.opts.Model,
				Input:          []string{embeddingInput(pair.URL)},
				EncodingFormat: "float",
			},
		}
		if err := enc.Encode(req); err != nil {
			return err
		}
		ids = append(ids, pair.ID)
	}

	batchID, err := s.provider.Submit(ctx, &payload)
	if err != nil {
		return fmt.Errorf("submitting batch job: %w", err)
	}
	job, err := s.repo.Create(ctx, batchID, StatusProcessing)
	if err != nil {
		return err
	}
	if err := s.repo.StampListings(ctx, job.ID, ids); err != nil {
		return err
	}
	slog.InfoContext(ctx, "batch job submitted", "batch_id", batchID, "listings", len(ids))
	return nil
}

// embeddingInput derives the text to embed from the URL's label tokens:
// "coffeeroasters.com" becomes "coffeeroasters com".
func embeddingInput(url string) string {
	label, tld, found := strings.Cut(url, ".")
	if !found {
		return label
	}
	return label + " " + strings.ReplaceAll(tld, ".", " ")
}

// PollOpen queries the provider for every open job. Completed jobs move to
// COMPLETED; failed jobs younger than the resubmission window are resubmitted
// as a fresh job covering the same listing set, then marked FAILED either
// way. A poll error on one job never blocks the others.
func (s *Service) PollOpen(ctx context.Context) error {
	jobs, err := s.repo.ListByStatus(ctx, StatusPending, StatusProcessing)
	if err != nil {
		return err
	}

	var failures int
	for _, job := range jobs {
		if err := s.pollJob(ctx, job); err != nil {
			slog.ErrorContext(ctx, "polling batch job failed", "batch_id", job.BatchID, "error", err)
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("polling failed for %d of %d jobs", failures, len(jobs))
	}
	return nil
}

func (s *Service) pollJob(ctx context.Context, job Job) error {
	st, err := s.provider.Poll(ctx, job.BatchID)
	if err != nil {
		return err
	}

	switch {
	case st.Completed():
		if _, err := Transition(job.Status, EventCompleted); err != nil {
			return err
		}
		if err := s.repo.SetCompleted(ctx, job.ID, st.OutputFileID); err != nil {
			return err
		}
		slog.InfoContext(ctx, "batch job completed", "batch_id", job.BatchID, "output_file", st.OutputFileID)

	case st.Failed():
		age := job.Age(time.Now())
		if age < s.opts.ResubmitWindow {
			pairs, err := s.repo.ListingsForJob(ctx, job.ID)
			if err != nil {
				return err
			}
			slog.WarnContext(ctx, "batch job failed, resubmitting", "batch_id", job.BatchID,
				"age", age.Truncate(time.Minute), "listings", len(pairs))
			if err := s.CreateJobs(ctx, pairs); err != nil {
				return err
			}
		} else {
			slog.WarnContext(ctx, "batch job failed outside retry window", "batch_id", job.BatchID, "age", age.Truncate(time.Minute))
		}
		next, err := Transition(job.Status, EventFailed)
		if err != nil {
			return err
		}
		return s.repo.SetStatus(ctx, job.ID, next)
	}
	return nil
}

// DownloadCompleted downloads every COMPLETED job's result, concurrently
// across jobs but strictly sequentially within one job. One job's failure
// does not abort the others; the combined error surfaces in the run outcome.
func (s *Service) DownloadCompleted(ctx context.Context) error {
	jobs, err := s.repo.ListByStatus(ctx, StatusCompleted)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if err := s.downloadJob(gctx, job); err != nil {
				slog.ErrorContext(gctx, "batch job download failed", "batch_id", job.BatchID, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("job %s: %w", job.BatchID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// downloadJob retries the download in a bounded loop. Only network-level
// failures retry; the provider result is stable, so there is never a reason
// to create a new provider job here.
func (s *Service) downloadJob(ctx context.Context, job Job) error {
	if job.OutputFileID == nil || *job.OutputFileID == "" {
		return fmt.Errorf("%w: job %s has no result file", ErrIntegrity, job.BatchID)
	}

	var err error
	for attempt := 1; attempt <= s.opts.DownloadRetries; attempt++ {
		err = s.downloadOnce(ctx, job)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errTransient) {
			return err
		}
		slog.WarnContext(ctx, "transient download failure, retrying", "batch_id", job.BatchID,
			"attempt", attempt, "max_attempts", s.opts.DownloadRetries, "error", err)
	}
	return fmt.Errorf("download retries exhausted: %w", err)
}

func (s *Service) downloadOnce(ctx context.Context, job Job) error {
	body, err := s.provider.Download(ctx, *job.OutputFileID)
	if err != nil {
		return fmt.Errorf("%w: %w", errTransient, err)
	}
	defer body.Close()

	var written, skipped int64
	batch := make([]EmbeddingRow, 0, s.opts.WriteBatchSize)
	flush := func() error {
		n, err := s.repo.WriteEmbeddings(ctx, job.ID, batch)
		if err != nil {
			return err
		}
		written += n
		if n < int64(len(batch)) {
			// Another job claimed some of these listings since this one was
			// submitted. Skip them; the newer job owns their embeddings now.
			skipped += int64(len(batch)) - n
			slog.WarnContext(ctx, "write conflict, skipping stale rows", "batch_id", job.BatchID,
				"batch_size", len(batch), "written", n)
		}
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		row, err := parseResultLine(scanner.Bytes())
		if err != nil {
			return err
		}
		batch = append(batch, row)
		if len(batch) >= s.opts.WriteBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading result stream: %w", errTransient, err)
	}
	if err := flush(); err != nil {
		return err
	}

	next, err := Transition(job.Status, EventFinalized)
	if err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, job.ID, next); err != nil {
		return err
	}
	if err := s.provider.DeleteFile(ctx, *job.OutputFileID); err != nil {
		slog.WarnContext(ctx, "failed to release result file", "batch_id", job.BatchID, "error", err)
	}
	slog.InfoContext(ctx, "batch job finalized", "batch_id", job.BatchID, "written", written, "skipped", skipped)

	s.publishFinalized(ctx, job, written)
	return nil
}

func (s *Service) publishFinalized(ctx context.Context, job Job, written int64) {
	if s.pub == nil {
		return
	}
	event := FinalizedEvent{
		JobID:         job.ID,
		BatchID:       job.BatchID,
		Written:       written,
		CorrelationID: correlate.ID(ctx),
	}
	body, err := json.Marshal(event)
	if err == nil {
		err = s.pub.Publish(s.opts.FinalizedTopic, body)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to publish finalized event", "batch_id", job.BatchID, "error", err)
	}
}

type resultLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		Body struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		} `json:"body"`
	} `json:"response"`
}

// parseResultLine decodes one NDJSON result record. The correlation id is
// "<uuid>:<listing id>:<url>", generated at submission time.
func parseResultLine(line []byte) (EmbeddingRow, error) {
	var rec resultLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return EmbeddingRow{}, fmt.Errorf("%w: undecodable result line: %w", ErrIntegrity, err)
	}
	parts := strings.SplitN(rec.CustomID, ":", 3)
	if len(parts) != 3 {
		return EmbeddingRow{}, fmt.Errorf("%w: malformed correlation id %q", ErrIntegrity, rec.CustomID)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return EmbeddingRow{}, fmt.Errorf("%w: correlation id %q: %w", ErrIntegrity, rec.CustomID, err)
	}
	if len(rec.Response.Body.Data) == 0 || len(rec.Response.Body.Data[0].Embedding) == 0 {
		return EmbeddingRow{}, fmt.Errorf("%w: result line for listing %d has no embedding", ErrIntegrity, id)
	}
	return EmbeddingRow{ListingID: id, Embedding: rec.Response.Body.Data[0].Embedding}, nil
}
