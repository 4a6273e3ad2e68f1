package dict

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoSource is returned when a Service has nothing to fetch from.
var ErrNoSource = errors.New("canopy: dictionary source not configured")

// DefaultLocale scopes cache keys until SetLocale is called.
const DefaultLocale = "zh-CN"

// Source loads the entries of one dictionary type.
type Source interface {
	FetchDict(ctx context.Context, dictType string) ([]Entry, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, dictType string) ([]Entry, error)

func (f SourceFunc) FetchDict(ctx context.Context, dictType string) ([]Entry, error) {
	return f(ctx, dictType)
}

// Config configures a Service.
type Config struct {
	// TTL bounds how long a cached type is served. Default: 30 minutes.
	TTL time.Duration

	// Locale is the initial cache scope. Default: DefaultLocale.
	Locale string
}

// DefaultConfig returns the default Service configuration.
func DefaultConfig() Config {
	return Config{
		TTL:    30 * time.Minute,
		Locale: DefaultLocale,
	}
}

func (c *Config) validate() {
	if c.TTL < 0 {
		c.TTL = 0
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
}

// Service resolves dictionary types through a cache in front of a Source.
type Service struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	locale string
}

// NewService creates a Service. A nil cache disables caching.
func NewService(source Source, cache Cache, config Config) *Service {
	config.validate()
	if cache == nil {
		cache = NullCache{}
	}
	return &Service{
		source: source,
		cache:  cache,
		ttl:    config.TTL,
		logger: slog.Default(),
		locale: config.Locale,
	}
}

// SetLogger replaces the logger. A nil logger restores slog.Default().
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Locale returns the current cache scope.
func (s *Service) Locale() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

// SetLocale switches the cache scope and drops every entry cached under the
// previous one: labels are locale specific.
func (s *Service) SetLocale(ctx context.Context, locale string) error {
	if locale == "" {
		locale = DefaultLocale
	}
	s.mu.Lock()
	previous := s.locale
	s.locale = locale
	s.mu.Unlock()

	if err := s.cache.Clear(ctx, scope(previous)+"*"); err != nil {
		return err
	}
	s.logger.Info("dictionary locale changed", "from", previous, "to", locale)
	return nil
}

// Data returns the entries of every requested type. A type whose fetch fails
// maps to an empty list and is not cached, so the next call retries it.
func (s *Service) Data(ctx context.Context, dictTypes ...string) (map[string][]Entry, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}

	types := make([]string, 0, len(dictTypes))
	seen := make(map[string]bool, len(dictTypes))
	for _, t := range dictTypes {
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}

	loaded := make([][]Entry, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			loaded[i] = s.load(gctx, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(map[string][]Entry, len(types))
	for i, t := range types {
		result[t] = loaded[i]
	}
	return result, nil
}

func (s *Service) load(ctx context.Context, dictType string) []Entry {
	key := s.key(dictType)

	data, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("dictionary cache read failed", "key", key, "error", err)
	}
	if hit {
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err == nil {
			return entries
		}
		s.logger.Warn("dropping unreadable cache entry", "key", key)
		_ = s.cache.Delete(ctx, key)
	}

	entries, err := s.source.FetchDict(ctx, dictType)
	if err != nil {
		s.logger.Warn("dictionary fetch failed", "dictType", dictType, "error", err)
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}

	if data, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn("dictionary cache write failed", "key", key, "error", err)
		}
	}
	return entries
}

// Record maps each type to its value -> label lookup.
func (s *Service) Record(ctx context.Context, dictTypes ...string) (map[string]map[string]string, error) {
	data, err := s.Data(ctx, dictTypes...)
	if err != nil {
		return nil, err
	}
	records := make(map[string]map[string]string, len(data))
	for t, entries := range data {
		labels := make(map[string]string, len(entries))
		for _, e := range entries {
			labels[e.DictValue] = e.DictLabel
		}
		records[t] = labels
	}
	return records, nil
}

// Options maps each type to its select options in entry order.
func (s *Service) Options(ctx context.Context, dictTypes ...string) (map[string][]Option, error) {
	data, err := s.Data(ctx, dictTypes...)
	if err != nil {
		return nil, err
	}
	options := make(map[string][]Option, len(data))
	for t, entries := range data {
		opts := make([]Option, len(entries))
		for i, e := range entries {
			opts[i] = Option{Label: e.DictLabel, Value: e.DictValue, TagType: e.ListClass}
		}
		options[t] = opts
	}
	return options, nil
}

// Label returns the label of value within dictType.
func (s *Service) Label(ctx context.Context, dictType, value string) (string, bool, error) {
	data, err := s.Data(ctx, dictType)
	if err != nil {
		return "", false, err
	}
	label, ok := LabelFrom(value, data[dictType])
	return label, ok, nil
}

// Invalidate drops the cached entries of the given types, or of every type
// in the current locale when none are given.
func (s *Service) Invalidate(ctx context.Context, dictTypes ...string) error {
	if len(dictTypes) == 0 {
		return s.cache.Clear(ctx, scope(s.Locale())+"*")
	}
	for _, t := range dictTypes {
		if err := s.cache.Delete(ctx, s.key(t)); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateAllLocales drops the given types from every locale scope, so
// instances serving another locale from a shared cache refetch them too.
func (s *Service) InvalidateAllLocales(ctx context.Context, dictTypes ...string) error {
	for _, t := range dictTypes {
		if err := s.cache.Clear(ctx, "dict:*:"+globEscape(t)); err != nil {
			return err
		}
	}
	return nil
}

// Key returns the cache key of dictType in locale.
func Key(locale, dictType string) string {
	return "dict:" + locale + ":" + dictType
}

// scope is the key prefix of locale, escaped for use in a Clear pattern.
func scope(locale string) string {
	return "dict:" + globEscape(locale) + ":"
}

const globMeta = `*?[]\`

func globEscape(s string) string {
	if !strings.ContainsAny(s, globMeta) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(globMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Service) key(dictType string) string {
	return Key(s.Locale(), dictType)
}
