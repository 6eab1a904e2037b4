package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/artur/tubegate/internal/database/models"
	"github.com/artur/tubegate/internal/delivery"
	"github.com/artur/tubegate/internal/downloader"
	"github.com/artur/tubegate/internal/media"
	"github.com/artur/tubegate/internal/storage"
	"github.com/artur/tubegate/internal/transport"
)

// User-facing messages.
const (
	MsgConvertingAudio = "Converting audio to MP3, please wait..."
	MsgDownloadingFmt  = "Downloading video in %s, please wait..."
	MsgTransferFailed  = "Failed to upload %s after multiple attempts."
	MsgFileMissing     = "Failed to download %s. File not found after download."
	MsgAcquireFailed   = "Failed to download %s. Error: %v"
	MsgDeletedFmt      = "The file %s has been deleted from the server after %s."
	BtnDownload        = "Download"
	BtnVerify          = "Verify and Download"
)

// shortFormHeaders make the short-form site treat the engine like a browser.
var shortFormHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Referer":         "https://www.tiktok.com/",
	"Accept-Language": "en-US,en;q=0.9",
}

// TransferError is a direct transfer that exhausted its attempts.
type TransferError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Policy decides and commits delivery methods.
type Policy interface {
	Decide(ctx context.Context, userID int64, quality string, size int64) delivery.Decision
	Commit(ctx context.Context, userID int64, d delivery.Decision) error
}

// Scheduler arranges deferred file deletion.
type Scheduler interface {
	Schedule(path string, ttl time.Duration, onDelete func(storage.DeleteResult))
}

// Shortener wraps a link in a verification step.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) string
}

// DeliveryLog stores completed deliveries.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d *models.Delivery) error
}

// Config wires an Orchestrator.
type Config struct {
	Resolver      *media.Resolver
	Fetcher       downloader.Fetcher
	Files         *storage.Files
	Scheduler     Scheduler
	Policy        Policy
	Retry         delivery.RetryPolicy
	Sender        transport.Sender
	Shortener     Shortener
	DeliveryLog   DeliveryLog
	PublicBaseURL string
	LinkTTL       time.Duration
	UploadLimit   int64
	Logger        *slog.Logger
}

// Orchestrator owns jobs from selection to completion.
type Orchestrator struct {
	cfg    Config
	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		log:    cfg.Logger.With(slog.String("component", "pipeline")),
		tracer: otel.Tracer("github.com/artur/tubegate/internal/pipeline"),
		now:    time.Now,
	}
}

// Classify reports the kind of a link.
func (o *Orchestrator) Classify(link string) (media.Kind, error) {
	return o.cfg.Resolver.Classify(link)
}

// Resolve lists the quality options for a link.
func (o *Orchestrator) Resolve(ctx context.Context, link string) (*media.Resolution, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.resolve", trace.WithAttributes(attribute.String("url", link)))
	defer span.End()

	res, err := o.cfg.Resolver.Resolve(ctx, link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("options", len(res.Options)))
	return res, nil
}

// ShortForm builds the request for a short-form link, which skips the quality choice.
func ShortForm(link string, kind media.Kind, userID, chatID int64) Request {
	return Request{
		UserID:   userID,
		ChatID:   chatID,
		URL:      link,
		Kind:     kind,
		MediaID:  media.ExtractID(kind, link),
		Quality:  downloader.SelectorBest,
		Selector: downloader.SelectorBest,
	}
}

// Capped builds the request for the /download command.
func Capped(link string, kind media.Kind, userID, chatID int64) Request {
	return Request{
		UserID:   userID,
		ChatID:   chatID,
		URL:      link,
		Kind:     kind,
		MediaID:  media.ExtractID(kind, link),
		Quality:  delivery.MidTier,
		Selector: downloader.Selector1080,
	}
}

// Run executes a job to a terminal state. Every failure is reported to the
// requester; nothing is returned to the caller but the finished job.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Job {
	job := NewJob(req)
	log := o.log.With(slog.String("job_id", job.ID), slog.Int64("user_id", req.UserID))

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("url", req.URL),
		attribute.String("quality", req.Quality),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("job panicked", slog.Any("error", err))
			o.failJob(ctx, job, err, o.acquireFailedText(req, err))
		}
		if err := job.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("job.state", string(job.State())))
	}()

	o.must(job.advance(StateFormatsResolved))

	if req.Audio {
		o.notify(ctx, req.ChatID, MsgConvertingAudio)
	} else {
		o.notify(ctx, req.ChatID, fmt.Sprintf(MsgDownloadingFmt, req.Quality))
	}

	if err := o.acquire(ctx, job); err != nil {
		log.Error("acquisition failed", slog.Any("error", err))
		text := o.acquireFailedText(req, err)
		if errors.Is(err, storage.ErrFileMissing) {
			text = fmt.Sprintf(MsgFileMissing, noun(req))
		}
		o.failJob(ctx, job, err, text)
		return job
	}

	o.must(job.advance(StateDelivering))
	job.Decision = o.cfg.Policy.Decide(ctx, req.UserID, req.Quality, job.Size)
	log.Info("delivering", slog.String("method", string(job.Decision.Method)), slog.Int64("size", job.Size))

	if job.Decision.IsLink() {
		o.deliverLink(ctx, job)
	} else if err := o.deliverDirect(ctx, job); err != nil {
		log.Error("direct transfer failed", slog.Any("error", err), slog.String("path", job.Path))
		o.failJob(ctx, job, err, fmt.Sprintf(MsgTransferFailed, noun(req)))
		return job
	}

	o.must(job.advance(StateCompleted))
	o.record(ctx, job)
	log.Info("job completed")
	return job
}

func (o *Orchestrator) acquire(ctx context.Context, job *Job) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.acquire")
	defer span.End()

	o.must(job.advance(StateAcquiring))

	path, size, err := o.download(ctx, job.ID, job.Request)
	if err != nil {
		span.RecordError(err)
		return err
	}
	job.Path, job.Size = path, size
	o.must(job.advance(StateAcquired))
	return nil
}

// download runs the engine in a private staging directory and moves the
// result into storage.
func (o *Orchestrator) download(ctx context.Context, jobID string, req Request) (string, int64, error) {
	staging, err := o.cfg.Files.StagingDir(jobID)
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(staging)

	fr := downloader.FetchRequest{
		URL:       req.URL,
		Selector:  req.Selector,
		Audio:     req.Audio,
		OutputDir: staging,
	}
	if req.Kind.ShortForm() {
		fr.Headers = shortFormHeaders
	}

	res, err := o.cfg.Fetcher.Fetch(ctx, fr)
	if err != nil {
		return "", 0, err
	}
	return o.cfg.Files.Finalize(res.Path)
}

func (o *Orchestrator) deliverDirect(ctx context.Context, job *Job) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.deliver_direct")
	defer span.End()

	kind := transport.KindForExt(strings.ToLower(filepath.Ext(job.Path)))
	attempts, err := o.cfg.Retry.Do(ctx, func(attempt int) error {
		serr := o.cfg.Sender.SendFile(ctx, job.Request.ChatID, job.Path, kind)
		if serr != nil {
			o.log.Warn("upload attempt failed",
				slog.String("job_id", job.ID),
				slog.Int("attempt", attempt),
				slog.Any("error", serr))
		}
		return serr
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		o.retain(job)
		return &TransferError{Path: job.Path, Attempts: attempts, Err: err}
	}

	if err := os.Remove(job.Path); err != nil && !os.IsNotExist(err) {
		o.log.Warn("failed to remove delivered file", slog.String("path", job.Path), slog.Any("error", err))
	}
	return nil
}

// retain moves an undelivered file out of the janitor's reach.
func (o *Orchestrator) retain(job *Job) {
	kept, err := o.cfg.Files.Retain(job.Path)
	if err != nil {
		o.log.Warn("failed to retain undelivered file", slog.String("path", job.Path), slog.Any("error", err))
		return
	}
	o.log.Warn("undelivered file retained", slog.String("job_id", job.ID), slog.String("path", kept))
	job.Path = kept
}

func (o *Orchestrator) deliverLink(ctx context.Context, job *Job) {
	ctx, span := o.tracer.Start(ctx, "pipeline.deliver_link")
	defer span.End()

	req := job.Request
	name := filepath.Base(job.Path)
	link := o.PublicURL(name)

	button := transport.Button{Text: BtnDownload, URL: link}
	if job.Decision.VerificationRequired {
		button = transport.Button{Text: BtnVerify, URL: o.cfg.Shortener.Shorten(ctx, link)}
	}

	// Deletion is armed before the link is sent.
	o.cfg.Scheduler.Schedule(job.Path, o.cfg.LinkTTL, func(res storage.DeleteResult) {
		if !res.Removed {
			return
		}
		text := fmt.Sprintf(MsgDeletedFmt, name, ttlText(o.cfg.LinkTTL))
		if err := o.cfg.Sender.SendText(context.Background(), req.ChatID, text); err != nil {
			o.log.Warn("failed to send deletion notice", slog.Any("error", err))
		}
	})

	o.notify(ctx, req.ChatID, o.linkText(job), button)

	if err := o.cfg.Policy.Commit(ctx, req.UserID, job.Decision); err != nil {
		o.log.Error("quota not updated", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// PublicURL is the file server address of a stored file.
func (o *Orchestrator) PublicURL(name string) string {
	return strings.TrimRight(o.cfg.PublicBaseURL, "/") + "/downloads/" + url.PathEscape(name)
}

func (o *Orchestrator) linkText(job *Job) string {
	var b strings.Builder
	if job.Size > o.cfg.UploadLimit {
		fmt.Fprintf(&b, "The file is too large to upload to Telegram (%s) because the Telegram bot has a %s upload limit. ",
			humanize.IBytes(uint64(job.Size)), humanize.IBytes(uint64(o.cfg.UploadLimit)))
	}
	if job.Decision.VerificationRequired {
		b.WriteString("This download requires verification. Use the button below to verify and download.\n\n")
	} else {
		b.WriteString("You can download it using the button below.\n\n")
	}
	ttl := ttlText(o.cfg.LinkTTL)
	fmt.Fprintf(&b, "Please download the file within %s. The file will be deleted from the server after %s to keep the server clean and efficient.", ttl, ttl)
	return b.String()
}

// Fetch acquires a file for the HTTP API: no quota, no chat, deletion after the TTL.
func (o *Orchestrator) Fetch(ctx context.Context, link, quality string, kind media.Kind) (string, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.fetch", trace.WithAttributes(
		attribute.String("url", link),
		attribute.String("quality", quality),
	))
	defer span.End()

	req := Request{URL: link, Kind: kind, Quality: quality, Selector: quality}
	if quality == media.AudioFormatID {
		req.Audio = true
		req.Selector = downloader.SelectorAudio
	}

	path, _, err := o.download(ctx, NewJob(req).ID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	o.cfg.Scheduler.Schedule(path, o.cfg.LinkTTL, nil)
	return path, nil
}

func (o *Orchestrator) record(ctx context.Context, job *Job) {
	if o.cfg.DeliveryLog == nil {
		return
	}
	req := job.Request
	err := o.cfg.DeliveryLog.RecordDelivery(ctx, &models.Delivery{
		UserID:        req.UserID,
		SourceKind:    string(req.Kind),
		MediaID:       mediaKey(req),
		MediaURL:      req.URL,
		Title:         strings.TrimSuffix(filepath.Base(job.Path), filepath.Ext(job.Path)),
		Quality:       req.Quality,
		Method:        string(job.Decision.Method),
		FileSizeBytes: job.Size,
		DeliveredAt:   o.now(),
	})
	if err != nil {
		o.log.Warn("failed to record delivery", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

func (o *Orchestrator) failJob(ctx context.Context, job *Job, err error, text string) {
	if ferr := job.fail(err); ferr != nil {
		o.log.Error("cannot fail job", slog.String("job_id", job.ID), slog.Any("error", ferr))
		return
	}
	o.notify(ctx, job.Request.ChatID, text)
}

func (o *Orchestrator) notify(ctx context.Context, chatID int64, text string, buttons ...transport.Button) {
	if chatID == 0 {
		return
	}
	var rows [][]transport.Button
	for _, b := range buttons {
		rows = append(rows, []transport.Button{b})
	}
	if err := o.cfg.Sender.SendText(ctx, chatID, text, rows...); err != nil {
		o.log.Warn("failed to send message", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func (o *Orchestrator) acquireFailedText(req Request, err error) string {
	return fmt.Sprintf(MsgAcquireFailed, noun(req), err)
}

// must panics on an illegal transition; Run recovers and fails the job.
func (o *Orchestrator) must(err error) {
	if err != nil {
		panic(err)
	}
}

func noun(req Request) string {
	if req.Audio {
		return "audio"
	}
	return "video"
}

func mediaKey(req Request) string {
	if req.MediaID != "" {
		return req.MediaID
	}
	return req.URL
}

func ttlText(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
