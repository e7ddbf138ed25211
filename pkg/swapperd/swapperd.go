package swapperd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/catalogfi/swapper/pkg/engine"
	"github.com/catalogfi/swapper/pkg/feed"
	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/rest"
	"github.com/catalogfi/swapper/pkg/store"
)

// Swapperd wires the lifecycle engine to its collaborators: the order feed,
// the chain indexers, the signer service, the snapshot store and the status
// feed server.
type Swapperd struct {
	config  Config
	logger  *zap.Logger
	engine  *engine.Engine
	tracker *order.Tracker
	storage store.Store
	server  *rest.Server
	dialer  func() feed.Client

	quit chan struct{}
	wg   *sync.WaitGroup
}

func New(config Config, logger *zap.Logger) (*Swapperd, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	storage, err := store.NewStore(dialector(config.DB), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	var claims engine.Store
	if config.Redis != "" {
		claims, err = engine.NewRedisStore(config.Redis)
	} else {
		claims, err = engine.NewInMemStore(engine.DefaultCacheCapacity)
	}
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.Config{
		Signer:    config.Signer,
		Resolver:  order.NewResolver(config.policies()),
		Storage:   claims,
		Submitter: newSignerSubmitter(config.SignerService),
		Indexer:   newRestIndexer(config.Chains),
		Snapshots: storage,
		ClaimTTL:  time.Duration(config.ClaimTTL),
	}, logger)
	if err != nil {
		return nil, err
	}

	tracker := order.NewTracker()
	return &Swapperd{
		config:  config,
		logger:  logger,
		engine:  eng,
		tracker: tracker,
		storage: storage,
		server:  rest.NewServer(tracker, eng, logger),
		dialer: func() feed.Client {
			return feed.NewWSClient(fmt.Sprintf("wss://%s/", config.Orderbook), logger)
		},
		quit: make(chan struct{}),
		wg:   new(sync.WaitGroup),
	}, nil
}

// dialector picks the database from the DB config value, a postgres URL or an
// sqlite path.
func dialector(db string) gorm.Dialector {
	if strings.HasPrefix(db, "postgres://") || strings.HasPrefix(db, "postgresql://") {
		return postgres.Open(db)
	}
	if db == "" {
		db = "swapper.db"
	}
	return sqlite.Open(db)
}

// Start spawns the feed, poll and status server loops. Not blocking.
func (s *Swapperd) Start() error {
	pending, err := s.storage.PendingOrderIDs()
	if err != nil {
		return err
	}
	s.logger.Info("resuming", zap.Int("pending orders", len(pending)))

	s.engine.Start()
	go s.watch()
	go s.poll()
	go func() {
		addr := s.config.Listen
		if addr == "" {
			addr = ":8080"
		}
		if err := s.server.Start(addr); err != nil {
			s.logger.Error("status server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts everything down, waiting for the inner goroutines.
func (s *Swapperd) Stop() {
	if s.quit != nil {
		close(s.quit)
		s.engine.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("failed to stop status server", zap.Error(err))
		}

		s.wg.Wait()
		s.quit = nil
	}
}

// watch subscribes to the order feed and queues every pushed observation,
// redialling with exponential backoff when the connection drops.
func (s *Swapperd) watch() {
	s.wg.Add(1)
	defer s.wg.Done()

	fallback := time.Second
	for {
		s.logger.Info("subscribing to the order feed", zap.String("signer", s.config.Signer))
		client := s.dialer()
		client.Subscribe(fmt.Sprintf("subscribe::%v", s.config.Signer))
		respChan := client.Listen()

	Responses:
		for {
			select {
			case resp, ok := <-respChan:
				if !ok {
					break Responses
				}
				switch response := resp.(type) {
				case feed.Error:
					s.logger.Error("order feed error", zap.Error(response.Err))
					break Responses
				case feed.UpdatedOrders:
					fallback = time.Second
					s.logger.Info("received orders from the order feed", zap.Int("count", len(response.Orders)))
					for _, ord := range response.Orders {
						s.engine.Process(s.tracker.Update(ord))
					}
				}
			case <-s.quit:
				client.Close()
				return
			}
		}
		client.Close()

		select {
		case <-time.After(fallback):
		case <-s.quit:
			return
		}
		if fallback < time.Minute {
			fallback *= 2
		}
	}
}

// poll re-queues every unfinished order on a fixed cadence, so timelock
// expiry is acted on even when the feed stays silent.
func (s *Swapperd) poll() {
	s.wg.Add(1)
	defer s.wg.Done()

	interval := time.Duration(s.config.PollInterval)
	if interval == 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, ord := range s.tracker.PendingOrders() {
				s.engine.Process(ord)
			}
		case <-s.quit:
			return
		}
	}
}
