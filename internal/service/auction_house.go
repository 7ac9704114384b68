package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"creditguild/internal/auction"
	"creditguild/internal/config"
)

type HouseReader interface {
	Read(ctx context.Context, address string) (auction.House, error)
}

// AuctionHouseService resolves auction house timing parameters. Houses are
// immutable once deployed, so every successful lookup is cached for the
// life of the process.
type AuctionHouseService struct {
	Reader HouseReader
	Logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]auction.House
	group singleflight.Group
}

// NewAuctionHouseService seeds the cache with houses pinned in config.
// Invalid static entries are skipped.
func NewAuctionHouseService(markets []config.MarketConfig, reader HouseReader, logger *zap.Logger) *AuctionHouseService {
	s := &AuctionHouseService{Reader: reader, Logger: logger, cache: map[string]auction.House{}}
	for _, m := range markets {
		for _, h := range m.AuctionHouses {
			house := auction.House{
				Address:  auction.NormalizeAddress(h.Address),
				Duration: h.Duration,
				MidPoint: h.MidPoint,
			}
			if house.Address == "" || !house.Valid() {
				if logger != nil {
					logger.Warn("ignoring invalid auction house config",
						zap.String("market", m.ID),
						zap.String("address", h.Address),
						zap.Int64("mid_point", h.MidPoint),
						zap.Int64("duration", h.Duration),
					)
				}
				continue
			}
			s.cache[house.Address] = house
		}
	}
	return s
}

func (s *AuctionHouseService) Get(ctx context.Context, address string) (auction.House, error) {
	if s == nil {
		return auction.House{}, fmt.Errorf("auction house service not initialised")
	}
	addr := auction.NormalizeAddress(address)
	if addr == "" {
		return auction.House{}, fmt.Errorf("auction house address required")
	}
	s.mu.RLock()
	house, ok := s.cache[addr]
	s.mu.RUnlock()
	if ok {
		return house, nil
	}
	if s.Reader == nil {
		return auction.House{}, fmt.Errorf("auction house %s unknown and no chain reader configured", addr)
	}

	v, err, _ := s.group.Do(addr, func() (any, error) {
		house, err := s.Reader.Read(ctx, addr)
		if err != nil {
			return auction.House{}, err
		}
		s.mu.Lock()
		if s.cache == nil {
			s.cache = map[string]auction.House{}
		}
		s.cache[addr] = house
		s.mu.Unlock()
		if s.Logger != nil {
			s.Logger.Info("auction house loaded",
				zap.String("address", addr),
				zap.Int64("duration", house.Duration),
				zap.Int64("mid_point", house.MidPoint),
			)
		}
		return house, nil
	})
	if err != nil {
		return auction.House{}, fmt.Errorf("read auction house %s: %w", addr, err)
	}
	return v.(auction.House), nil
}
