package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"second-level-cache/internal/management"
	"second-level-cache/internal/region"
	"second-level-cache/internal/regionfactory"
	repo "second-level-cache/internal/repository"
	"second-level-cache/internal/repository/cached"
	"second-level-cache/internal/repository/entity/order"
)

const ordersNumber = 50

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	// L2CACHE_CONFIG names a configuration file; empty uses the built-in one
	props := regionfactory.Properties{
		regionfactory.ConfigurationResourceNameProperty: os.Getenv("L2CACHE_CONFIG"),
	}

	factory := regionfactory.New()
	settings := region.Settings{MinimalPutsEnabled: factory.IsMinimalPutsEnabledByDefault()}
	if err := factory.Start(settings, props); err != nil {
		log.Fatal().Err(err).Msg("start region factory")
	}
	defer factory.Stop()

	orders, err := factory.BuildEntityRegion("order", props, region.CacheDataDescription{
		Mutable:   true,
		Versioned: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build order region")
	}
	access, err := orders.BuildAccessStrategy(factory.DefaultAccessType())
	if err != nil {
		log.Fatal().Err(err).Msg("build access strategy")
	}

	stats := management.New(factory.Manager())
	unsubscribe := stats.Subscribe(func(n management.Notification) {
		log.Info().Str("type", string(n.Type)).Str("region", n.Region).Int64("seq", n.Sequence).Msg("notification")
	})
	defer unsubscribe()

	registry := prometheus.NewRegistry()
	registry.MustRegister(management.NewCollector(stats))

	repository := repo.New()
	orderRepo := cached.New(repository, access)

	IDs := make([]uint64, 0, ordersNumber)
	for i := uint64(1); i <= ordersNumber; i++ {
		if err := orderRepo.Save(ctx, &order.Order{ID: i, Item: "pen", ExpiredAt: time.Now().Add(time.Hour)}); err != nil {
			log.Fatal().Err(err).Uint64("id", i).Msg("save order")
		}
		IDs = append(IDs, i)
	}

	for range 3 {
		start := time.Now()
		if _, err := orderRepo.Get(ctx, IDs); err != nil {
			log.Fatal().Err(err).Msg("get orders")
		}
		log.Info().Dur("took", time.Since(start)).Msg("orders read")
	}

	ord := &order.Order{ID: 1, Item: "marker", Version: 1}
	if err := orderRepo.Save(ctx, ord); err != nil {
		log.Fatal().Err(err).Msg("update order")
	}
	if err := orderRepo.Delete(ctx, 2); err != nil {
		log.Fatal().Err(err).Msg("delete order")
	}

	if err := stats.FlushRegionCaches(ctx); err != nil {
		log.Error().Err(err).Msg("flush")
	}

	log.Info().
		Int64("hits", stats.CacheHitCount()).
		Int64("misses", stats.CacheMissCount()).
		Int64("puts", stats.CachePutCount()).
		Int64("inMemory", stats.NumberOfElementsInMemory("order")).
		Float64("avgGetMs", stats.AverageGetTimeMillis("order")).
		Msg("cache statistics")

	families, err := registry.Gather()
	if err != nil {
		log.Error().Err(err).Msg("gather metrics")
	}
	for _, mf := range families {
		log.Debug().Str("metric", mf.GetName()).Int("series", len(mf.GetMetric())).Msg("exported")
	}

	if text, err := stats.GenerateActiveConfigDeclarationFor("order"); err == nil {
		log.Info().Msg("active configuration of order:\n" + text)
	}
}
