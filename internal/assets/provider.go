// Package assets provides the display assets of a card: its text fields and
// an image, fetched once and cached.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pbaille/synergy/internal/catalog"
	"github.com/pbaille/synergy/internal/domain"
	"github.com/pbaille/synergy/internal/store"
)

// ErrUnknownCard is returned for names absent from the catalog.
var ErrUnknownCard = errors.New("unknown card")

// Asset is what the display layer needs to render one card.
type Asset struct {
	Name      string   `json:"name"`
	TypeLine  string   `json:"type_line"`
	Text      string   `json:"text"`
	Power     *string  `json:"power,omitempty"`
	Toughness *string  `json:"toughness,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	Image       []byte `json:"-"`
	ContentType string `json:"content_type"`
	Placeholder bool   `json:"placeholder"`
}

// Provider returns the display asset of a card.
type Provider interface {
	Fetch(ctx context.Context, name string) (*Asset, error)
}

// ImageSource downloads images.
type ImageSource interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
	ImageFromPage(ctx context.Context, pageURL string) ([]byte, string, error)
}

// Cache stores downloaded images.
type Cache interface {
	GetAsset(name string) (*store.Asset, error)
	HasAsset(name string) (bool, error)
	PutAsset(a *store.Asset) error
}

// Service is the default Provider.
type Service struct {
	catalog *catalog.Catalog
	cache   Cache
	source  ImageSource
	logger  *zap.Logger
}

// New creates a Service. cache and source may be nil: without a source the
// service never touches the network, without a cache nothing is kept.
func New(cat *catalog.Catalog, cache Cache, source ImageSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: cat, cache: cache, source: source, logger: logger}
}

// Fetch resolves name and loads its image. Image failures are not errors:
// the asset then carries the placeholder image.
func (s *Service) Fetch(ctx context.Context, name string) (*Asset, error) {
	card, ok := s.catalog.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCard, name)
	}

	a := &Asset{
		Name:      card.Name,
		TypeLine:  card.TypeLine,
		Text:      card.OracleText,
		Power:     card.Power,
		Toughness: card.Toughness,
		Tags:      card.Tags,
	}

	img, contentType, err := s.image(ctx, card)
	if err != nil {
		s.logger.Debug("using placeholder image", zap.String("card", name), zap.Error(err))
		a.Image = Placeholder()
		a.ContentType = "image/png"
		a.Placeholder = true
		return a, nil
	}
	a.Image = img
	a.ContentType = contentType
	return a, nil
}

// Warm makes sure every named card has a cached image, downloading up to
// workers images at a time. It returns how many were downloaded and how many
// could not be.
func (s *Service) Warm(ctx context.Context, names []string, workers int) (fetched, failed int) {
	var nFetched, nFailed atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(workers, 1))
	for _, name := range names {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if s.cache != nil {
				if ok, err := s.cache.HasAsset(name); err == nil && ok {
					return nil
				}
			}
			card, ok := s.catalog.Resolve(name)
			if !ok {
				nFailed.Add(1)
				return nil
			}
			if _, _, err := s.download(egCtx, card); err != nil {
				s.logger.Warn("prefetch failed", zap.String("card", name), zap.Error(err))
				nFailed.Add(1)
				return nil
			}
			nFetched.Add(1)
			return nil
		})
	}
	_ = eg.Wait()
	return int(nFetched.Load()), int(nFailed.Load())
}

func (s *Service) image(ctx context.Context, card *domain.Card) ([]byte, string, error) {
	if s.cache != nil {
		cached, err := s.cache.GetAsset(card.Name)
		if err == nil {
			return cached.Data, cached.ContentType, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("image cache read failed", zap.String("card", card.Name), zap.Error(err))
		}
	}
	return s.download(ctx, card)
}

func (s *Service) download(ctx context.Context, card *domain.Card) ([]byte, string, error) {
	if s.source == nil {
		return nil, "", errors.New("offline")
	}

	var (
		data        []byte
		contentType string
		source      string
		err         error
	)
	switch {
	case card.ImageURL() != "":
		source = card.ImageURL()
		data, contentType, err = s.source.Fetch(ctx, source)
	case card.ScryfallURI != "":
		source = card.ScryfallURI
		data, contentType, err = s.source.ImageFromPage(ctx, source)
	default:
		return nil, "", errors.New("card has no image link")
	}
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", source, err)
	}

	if s.cache != nil {
		err := s.cache.PutAsset(&store.Asset{
			Name:        card.Name,
			ContentType: contentType,
			Data:        data,
			SourceURL:   source,
		})
		if err != nil {
			s.logger.Warn("image cache write failed", zap.String("card", card.Name), zap.Error(err))
		}
	}
	return data, contentType, nil
}
