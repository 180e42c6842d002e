package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-credibility/internal/config"
	"github.com/DeafMist/news-credibility/internal/dedupe"
	"github.com/DeafMist/news-credibility/internal/elasticsearch"
	"github.com/DeafMist/news-credibility/internal/extract"
	"github.com/DeafMist/news-credibility/internal/logger"
	"github.com/DeafMist/news-credibility/internal/models"
	"github.com/DeafMist/news-credibility/internal/pipeline"
	"github.com/DeafMist/news-credibility/internal/processing"
	"github.com/DeafMist/news-credibility/internal/retry"
)

type rawArticle struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

type predictor interface {
	Predict(ctx context.Context, in models.Input) (*pipeline.Result, error)
	ModelVersion() string
}

type verdictIndexer interface {
	IndexVerdict(ctx context.Context, v models.Verdict) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	extractor := extract.New(extract.Options{
		Timeout:       cfg.ExtractTimeout,
		MaxBytes:      cfg.ExtractMaxBytes,
		UserAgent:     cfg.UserAgent,
		RespectRobots: cfg.RespectRobots,
	}, log)
	pipe := pipeline.New(extractor, cfg.MinWords, log)
	if err := pipe.LoadFile(ctx, cfg.ManifestPath, cfg.ExpectedFeatures, retry.Startup); err != nil {
		log.Error("load artifacts", slog.String("manifest", cfg.ManifestPath), slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	err = retry.Do(ctx, log, "prepare elasticsearch", retry.Startup, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := esClient.Ping(pingCtx); err != nil {
			return err
		}
		return esClient.EnsureIndex(pingCtx)
	})
	if err != nil {
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqWriter := &kafka.Writer{
		Addr:        kafka.TCP(cfg.KafkaBrokers...),
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	}
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.String("model", pipe.ModelVersion()),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, pipe, esClient, cache, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.String("error_type", pipeline.KindOf(err).String()),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Skip the commit when the DLQ is unreachable. The message may still be
			// lost if a later message commits past its offset.
			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func processMessage(ctx context.Context, log *slog.Logger, pipe predictor, idx verdictIndexer, cache *dedupe.Cache, cfg *config.Worker, msg kafka.Message) error {
	var payload rawArticle
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return &pipeline.Error{Kind: pipeline.KindInvalidInput, Message: "message is not a JSON article", Err: err}
	}

	title := strings.TrimSpace(payload.Title)
	text := strings.TrimSpace(payload.Text)
	rawURL := strings.TrimSpace(payload.URL)
	if text != "" {
		// Text wins when both are present; the URL is kept as metadata.
		rawURL = ""
	}

	in, err := pipeline.NewInput(text, rawURL)
	if err != nil {
		return err
	}

	published := parseTimestamp(payload.Timestamp)
	id := processing.BuildDocumentID(title, in.Value(), published)
	if cache.IsSeen(id) {
		log.Debug("duplicate article", slog.String("id", id))
		return nil
	}

	predictCtx, cancel := context.WithTimeout(ctx, cfg.PredictTimeout)
	defer cancel()

	res, err := pipe.Predict(predictCtx, in)
	if err != nil {
		return err
	}

	v := buildVerdict(payload, res, published)
	v.ID = id
	if err := idx.IndexVerdict(ctx, v); err != nil {
		return fmt.Errorf("index verdict: %w", err)
	}

	cache.MarkSeen(id)
	log.Info("indexed verdict",
		slog.String("id", v.ID),
		slog.String("label", v.Label),
		slog.Float64("confidence", v.Confidence),
		slog.String("source", v.Source),
	)
	return nil
}

func buildVerdict(payload rawArticle, res *pipeline.Result, published time.Time) models.Verdict {
	now := time.Now().UTC()
	text := strings.TrimSpace(payload.Text)

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = res.Title
	}
	if title == "" {
		title = processing.GenerateTitleFromText(text, 10)
	}

	source := strings.TrimSpace(payload.Source)
	if source == "" {
		source = "unknown"
	}
	if published.IsZero() {
		published = now
	}

	return models.Verdict{
		Title:        title,
		Text:         text,
		URL:          strings.TrimSpace(payload.URL),
		Source:       source,
		InputSource:  res.Source,
		Label:        string(res.Label),
		Prediction:   res.Prediction,
		Confidence:   res.Confidence,
		TextLength:   res.TextLength,
		ModelVersion: res.ModelVersion,
		Links:        processing.ExtractURLs(text),
		PublishedAt:  published,
		Timestamp:    now,
	}
}

// sendToDLQ forwards msg with error context, retrying with backoff. It
// reports whether the write eventually succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "error_type", Value: []byte(pipeline.KindOf(cause).String())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	err := retry.Do(ctx, log, "DLQ write", retry.Policy{Attempts: 5, Initial: time.Second, Max: 16 * time.Second}, func(ctx context.Context) error {
		return w.WriteMessages(ctx, dlqMsg)
	})
	if err != nil {
		log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
			slog.Any("err", err),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)
		return false
	}

	log.Info("message sent to DLQ", slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))
	return true
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts.UTC()
		}
	}

	if ts, err := dateparse.ParseIn(raw, time.UTC); err == nil {
		return ts.UTC()
	}

	return time.Time{}
}
