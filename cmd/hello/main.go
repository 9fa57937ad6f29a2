package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"powertools/config"
	"powertools/handler"
	"powertools/handler/platforms"
	infraobs "powertools/infrastructure/observability"
	"powertools/logger"
	"powertools/metrics"
	"powertools/tracer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	cfg := loadConfiguration()
	diag := newDiagnostics(cfg)
	defer diag.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, shutdown, err := infraobs.NewSinks(ctx, cfg, infraobs.WithDiagnostics(diag))
	if err != nil {
		log.Fatalf("Failed to create sinks: %v", err)
	}
	defer shutdownSinks(shutdown, cfg.Handler.FlushTimeout)

	bookings := &BookingService{}
	h, err := handler.NewFactory(handler.WorkerFunc("book_flight", handler.Typed(bookings.Book)), cfg, sinks).
		WithChainOptions(handler.WithDiagnostics(diag)).
		WithRecovery().
		Create()
	if err != nil {
		log.Fatalf("Failed to initialize handler: %v", err)
	}
	bookings.tracer = h.Chain().Tracer()

	if err := platforms.Run(ctx, h); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
}

// loadConfiguration loads and validates the application configuration
func loadConfiguration() *config.Config {
	return config.MustLoad()
}

// newDiagnostics logs the library's own warnings to stderr, in the
// console format on a developer machine.
func newDiagnostics(cfg *config.Config) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.IsLocal() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	diag, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return diag
}

func shutdownSinks(shutdown infraobs.ShutdownFunc, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("Failed to flush sinks: %v", err)
	}
}

// BookingRequest is the event the function accepts.
type BookingRequest struct {
	FlightID string `json:"flight_id"`
	Seats    int    `json:"seats"`
}

// BookingResponse is returned for a confirmed booking.
type BookingResponse struct {
	BookingID string `json:"booking_id"`
	FlightID  string `json:"flight_id"`
	Seats     int    `json:"seats"`
}

// ErrNoSeats is returned for a booking without seats.
var ErrNoSeats = errors.New("booking needs at least one seat")

// BookingService books flights.
type BookingService struct {
	tracer *tracer.Tracer
}

// Book reserves the requested seats.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (BookingResponse, error) {
	lg := logger.FromContext(ctx)
	m := metrics.FromContext(ctx)

	if req.Seats <= 0 {
		m.PutMetric("RejectedBooking", 1, metrics.Count)
		return BookingResponse{}, fmt.Errorf("flight %s: %w", req.FlightID, ErrNoSeats)
	}

	s.tracer.PutAnnotation(ctx, "flight_id", req.FlightID)
	lg.Info("booking flight", zap.String("flight_id", req.FlightID), zap.Int("seats", req.Seats))

	resp := BookingResponse{FlightID: req.FlightID, Seats: req.Seats}
	err := s.tracer.WithSegment(ctx, "reserve_seats", func(ctx context.Context) error {
		resp.BookingID = uuid.NewString()
		return nil
	})
	if err != nil {
		return BookingResponse{}, err
	}

	m.PutMetric("SuccessfulBooking", 1, metrics.Count)
	m.PutMetric("BookedSeats", float64(req.Seats), metrics.Count)
	return resp, nil
}
