package dataset

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"eventstudy/internal/config"
	apperrors "eventstudy/internal/errors"
	"eventstudy/pkg/contracts/domain"
)

// revisionPattern matches the syntactic shape of a content hash. Only
// the shape is checked here; resolving the hash is the source's job.
var revisionPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// LoadStats reports what happened to the raw rows of one load.
type LoadStats struct {
	Fetched  int `json:"fetched"`
	Loaded   int `json:"loaded"`
	Dropped  int `json:"dropped"`
	Filtered int `json:"filtered"`
}

// Loader turns a pinned dataset revision into validated events.
type Loader struct {
	source   Source
	cfg      config.DatasetConfig
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLoader creates a loader over the given source.
func NewLoader(source Source, cfg config.DatasetConfig, logger *slog.Logger) *Loader {
	return &Loader{
		source:   source,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "dataset_loader")),
	}
}

// Load fetches the dataset pinned to revision and returns the validated
// events in source order. Rows with missing required fields are dropped
// and counted, never silently discarded. Fetch failures abort the run:
// the loader does not guess a fallback revision.
func (l *Loader) Load(ctx context.Context, revision string) ([]domain.Event, LoadStats, error) {
	var stats LoadStats

	revision = strings.TrimSpace(revision)
	if revision == "" {
		return nil, stats, apperrors.NewConfigError("dataset revision is empty", nil)
	}
	if !revisionPattern.MatchString(revision) {
		return nil, stats, apperrors.NewConfigError(
			"dataset revision "+revision+" is not a content hash", nil)
	}

	// Logged before the fetch so a crashed run still reveals intent.
	l.logger.InfoContext(ctx, "loading dataset at pinned revision",
		slog.String("dataset", l.cfg.Name),
		slog.String("revision", revision))

	rows, err := l.source.FetchDataset(ctx, l.cfg.Name, revision)
	if err != nil {
		if apperrors.IsDataSourceError(err) || apperrors.IsConfigError(err) {
			return nil, stats, err
		}
		return nil, stats, apperrors.NewDataSourceError("dataset fetch failed", err).
			WithContext("revision", revision)
	}
	stats.Fetched = len(rows)

	events := make([]domain.Event, 0, len(rows))
	for _, raw := range rows {
		if l.cfg.Sector != "" && raw.Sector != "" && raw.Sector != l.cfg.Sector {
			stats.Filtered++
			continue
		}

		event, ok := l.buildEvent(raw)
		if !ok {
			stats.Dropped++
			continue
		}
		events = append(events, event)
	}
	stats.Loaded = len(events)

	if stats.Dropped > 0 {
		l.logger.WarnContext(ctx, "dropped malformed event rows",
			slog.Int("dropped", stats.Dropped),
			slog.Int("fetched", stats.Fetched))
	}
	l.logger.InfoContext(ctx, "dataset loaded",
		slog.String("revision", revision),
		slog.Int("events", stats.Loaded),
		slog.Int("filtered", stats.Filtered))

	return events, stats, nil
}

// buildEvent validates one raw row and converts it into an Event.
func (l *Loader) buildEvent(raw RawEventRow) (domain.Event, bool) {
	if err := l.validate.Struct(raw); err != nil {
		return domain.Event{}, false
	}

	date, err := parseEventDate(raw.EventDate)
	if err != nil {
		return domain.Event{}, false
	}

	extra := raw.Extra
	if raw.Sector != "" {
		if extra == nil {
			extra = make(map[string]string)
		}
		extra["sector"] = raw.Sector
	}

	return domain.Event{
		Ticker:      strings.ToUpper(raw.Ticker),
		EventDate:   date,
		QASentScore: *raw.QASentScore,
		Extra:       extra,
	}, true
}

// parseEventDate accepts the date layouts seen in the dataset.
func parseEventDate(s string) (time.Time, error) {
	layouts := []string{domain.DateOnly, time.RFC3339, "2006-01-02 15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return domain.Midnight(t), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
