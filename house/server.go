package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/auctionhouse/advisor"
	"github.com/cloudx-io/auctionhouse/feed"
	"github.com/cloudx-io/auctionhouse/notify"
	"github.com/cloudx-io/auctionhouse/store"
)

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (HouseAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// HouseServer owns the house's collaborators and its HTTP listener
type HouseServer struct {
	cfg     *Config
	closers []func() error
}

func NewHouseServer(cfg *Config) *HouseServer {
	return &HouseServer{cfg: cfg}
}

func (s *HouseServer) onClose(closer func() error) {
	s.closers = append(s.closers, closer)
}

func (s *HouseServer) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("ERROR: Failed to close resource: %v", err)
		}
	}
}

func (s *HouseServer) openStore(ctx context.Context) (store.Store, error) {
	if s.cfg.Database.URL == "" {
		log.Printf("WARNING: DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(s.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := pg.InitSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	log.Printf("INFO: Connected to PostgreSQL")
	return pg, nil
}

func (s *HouseServer) openNotifier(ctx context.Context) (notify.Notifier, error) {
	switch s.cfg.Notifications.Backend {
	case "nats":
		return notify.NewNATSNotifier(ctx, s.cfg.Notifications.NatsURL)
	case "amqp":
		return notify.NewAMQPNotifier(s.cfg.Notifications.AmqpURL)
	default:
		return notify.LogNotifier{}, nil
	}
}

// openFeed wires the live feed. With Redis, accepted bids go through pub/sub
// and come back to every instance's watchers; without it they are broadcast
// in-process.
func (s *HouseServer) openFeed(ctx context.Context, manager *feed.Manager) (feed.Publisher, error) {
	if s.cfg.Redis.Addr == "" {
		return manager, nil
	}

	publisher, err := feed.NewRedisPublisher(s.cfg.Redis.Addr, s.cfg.Redis.Password, s.cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	s.onClose(publisher.Close)

	subscriber, err := feed.NewSubscriber(ctx, s.cfg.Redis.Addr, s.cfg.Redis.Password, s.cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	s.onClose(subscriber.Close)

	go func() {
		if err := subscriber.Listen(ctx, manager); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ERROR: Bid feed subscriber stopped: %v", err)
		}
	}()

	log.Printf("INFO: Bid feed relayed through Redis at %s", s.cfg.Redis.Addr)
	return publisher, nil
}

func (s *HouseServer) listen() (net.Listener, error) {
	if s.cfg.Server.VsockPort != 0 {
		listener, err := vsock.Listen(s.cfg.Server.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		log.Printf("INFO: Auction house listening on vsock port %d", s.cfg.Server.VsockPort)
		return listener, nil
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP listener: %w", err)
	}
	log.Printf("INFO: Auction house listening on %s", s.cfg.Server.Addr)
	return listener, nil
}

// Build creates the AuctionHouse and its HTTP handler
func (s *HouseServer) Build(ctx context.Context) (http.Handler, error) {
	keyManager, err := NewKeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}
	log.Printf("INFO: KeyManager initialized")

	st, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}
	s.onClose(st.Close)

	notifier, err := s.openNotifier(ctx)
	if err != nil {
		return nil, err
	}
	s.onClose(notifier.Close)
	log.Printf("INFO: Winner notifications via %s", s.cfg.Notifications.Backend)

	manager := feed.NewManager()
	go manager.Run(ctx)

	publisher, err := s.openFeed(ctx, manager)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithFeed(publisher), WithNotifier(notifier)}

	if s.cfg.Advisor.URL != "" {
		opts = append(opts, WithAdvisor(advisor.NewHTTPAdvisor(s.cfg.Advisor.URL, s.cfg.Advisor.Timeout)))
		log.Printf("INFO: Sealed bids reviewed by advisor at %s", s.cfg.Advisor.URL)
	}

	if s.cfg.Enclave.Attest {
		attester, err := getEnclaveAttester()
		if err != nil {
			log.Printf("ERROR: NSM initialization failed: %v (keys served without attestation)", err)
		} else {
			opts = append(opts, WithAttester(attester))
		}
	}

	house := NewAuctionHouse(st, keyManager, opts...)
	handler := NewHandler(house, feed.NewHandler(manager))

	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.cfg.Server.MaxWorkers)
	return handler.SetupRoutes(s.cfg.Server.MaxWorkers), nil
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *HouseServer) Run(ctx context.Context) error {
	defer s.closeAll()

	handler, err := s.Build(ctx)
	if err != nil {
		return err
	}

	listener, err := s.listen()
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("INFO: Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Printf("INFO: Server stopped gracefully")
	return nil
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("ERROR: Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewHouseServer(cfg).Run(ctx); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}
