// README: Direct request negotiation tests (transition table, guards, flow).
package request

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/apperrors"
	"carpool/internal/modules/ride"
	"carpool/internal/types"
)

// TestCanTransition verifies the negotiation transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusPending, StatusDriverQuoted, true},
		{StatusDriverQuoted, StatusConfirmed, true},
		{StatusConfirmed, StatusBooked, true},
		// declines and cancels while the negotiation is open
		{StatusPending, StatusDeclined, true},
		{StatusPending, StatusCancelled, true},
		{StatusDriverQuoted, StatusDeclined, true},
		{StatusDriverQuoted, StatusCancelled, true},
		// expiry from every non-terminal state
		{StatusPending, StatusExpired, true},
		{StatusDriverQuoted, StatusExpired, true},
		{StatusConfirmed, StatusExpired, true},
		// invalid: no skipping the quote
		{StatusPending, StatusConfirmed, false},
		{StatusPending, StatusBooked, false},
		{StatusDriverQuoted, StatusBooked, false},
		// invalid: confirmed requests cancel via the booking, not here
		{StatusConfirmed, StatusCancelled, false},
		{StatusConfirmed, StatusDeclined, false},
		// invalid: terminal states have no outgoing transitions
		{StatusBooked, StatusExpired, false},
		{StatusDeclined, StatusPending, false},
		{StatusCancelled, StatusDriverQuoted, false},
		{StatusExpired, StatusPending, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []Status{StatusDeclined, StatusCancelled, StatusExpired, StatusBooked}
	open := []Status{StatusPending, StatusDriverQuoted, StatusConfirmed}

	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
	for _, s := range open {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestCanQuote(t *testing.T) {
	r := &Request{Status: StatusPending, MaxPricePerSeat: types.USD(2000)}

	aboveMax, err := r.canQuote(types.USD(1800))
	if err != nil {
		t.Fatalf("quote within max: %v", err)
	}
	if aboveMax {
		t.Error("quote of 1800 against max 2000 flagged above max")
	}

	aboveMax, err = r.canQuote(types.USD(2500))
	if err != nil {
		t.Fatalf("quote above max should be legal: %v", err)
	}
	if !aboveMax {
		t.Error("quote of 2500 against max 2000 not flagged above max")
	}

	// boundary: exactly at max is not above
	aboveMax, err = r.canQuote(types.USD(2000))
	if err != nil {
		t.Fatalf("quote at max: %v", err)
	}
	if aboveMax {
		t.Error("quote equal to max flagged above max")
	}

	if _, err := r.canQuote(types.USD(0)); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero quote: got %v, want ErrInvalidInput", err)
	}

	r.Status = StatusDriverQuoted
	if _, err := r.canQuote(types.USD(1800)); !errors.Is(err, apperrors.ErrStaleState) {
		t.Errorf("re-quote on quoted request: got %v, want ErrStaleState", err)
	}
}

// TestGuardDistinguishesStaleFromTerminal checks that callers can tell
// "re-read and retry" apart from "give up".
func TestGuardDistinguishesStaleFromTerminal(t *testing.T) {
	r := &Request{Status: StatusConfirmed}
	if err := r.canAcceptQuote(); !errors.Is(err, apperrors.ErrStaleState) {
		t.Errorf("accept on confirmed: got %v, want ErrStaleState", err)
	}

	r.Status = StatusDeclined
	if err := r.canAcceptQuote(); !errors.Is(err, apperrors.ErrTerminalState) {
		t.Errorf("accept on declined: got %v, want ErrTerminalState", err)
	}
	if err := r.canBook(); !errors.Is(err, apperrors.ErrTerminalState) {
		t.Errorf("book on declined: got %v, want ErrTerminalState", err)
	}
}

func TestCanCancelConfirmedIsIneligible(t *testing.T) {
	r := &Request{Status: StatusConfirmed}
	if err := r.canCancel(); !errors.Is(err, apperrors.ErrIneligible) {
		t.Errorf("cancel confirmed request: got %v, want ErrIneligible", err)
	}

	r.Status = StatusPending
	if err := r.canCancel(); err != nil {
		t.Errorf("cancel pending request: %v", err)
	}
	r.Status = StatusDriverQuoted
	if err := r.canCancel(); err != nil {
		t.Errorf("cancel quoted request: %v", err)
	}
	r.Status = StatusBooked
	if err := r.canCancel(); !errors.Is(err, apperrors.ErrTerminalState) {
		t.Errorf("cancel booked request: got %v, want ErrTerminalState", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(nil, nil)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	base := CreateCommand{
		RequesterID:     "rider-1",
		DriverID:        "driver-1",
		DepartureTime:   now.Add(48 * time.Hour),
		SeatsRequested:  2,
		MaxPricePerSeat: types.USD(2000),
		Now:             now,
	}

	missing := base
	missing.DriverID = ""
	if _, err := svc.Create(ctx, missing); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("missing driver: got %v, want ErrInvalidInput", err)
	}

	zeroSeats := base
	zeroSeats.SeatsRequested = 0
	if _, err := svc.Create(ctx, zeroSeats); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero seats: got %v, want ErrInvalidInput", err)
	}

	freePrice := base
	freePrice.MaxPricePerSeat = types.USD(0)
	if _, err := svc.Create(ctx, freePrice); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero max price: got %v, want ErrInvalidInput", err)
	}
}

func TestNegotiationHappyPath(t *testing.T) {
	creator := &fakeBookingCreator{}
	svc := NewService(setupTestStore(t), creator)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id := mustCreateRequest(t, svc, now)
	assertStatus(t, svc, id, StatusPending)

	res, err := svc.Quote(ctx, QuoteCommand{RequestID: id, DriverID: "driver-1", Price: types.USD(1800), Now: now})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if res.AboveMax {
		t.Error("quote of 1800 against max 2000 flagged above max")
	}
	assertStatus(t, svc, id, StatusDriverQuoted)

	if err := svc.AcceptQuote(ctx, AcceptQuoteCommand{RequestID: id, RequesterID: "rider-1", Now: now}); err != nil {
		t.Fatalf("accept quote: %v", err)
	}
	assertStatus(t, svc, id, StatusConfirmed)

	b, err := svc.Book(ctx, BookCommand{RequestID: id, RequesterID: "rider-1", Now: now})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if b.PricePerSeat.Amount != 1800 {
		t.Errorf("booked price = %d, want frozen quote 1800", b.PricePerSeat.Amount)
	}
	if b.Seats != 2 {
		t.Errorf("booked seats = %d, want 2", b.Seats)
	}
	assertStatus(t, svc, id, StatusBooked)

	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.QuotedPrice == nil || got.QuotedPrice.Amount != 1800 {
		t.Errorf("quoted price not persisted: %+v", got.QuotedPrice)
	}
	if got.ResolvedAt == nil {
		t.Error("booked request has no resolved_at")
	}
}

func TestQuoteAboveMaxIsWarningNotError(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeBookingCreator{})
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id := mustCreateRequest(t, svc, now)
	res, err := svc.Quote(ctx, QuoteCommand{RequestID: id, DriverID: "driver-1", Price: types.USD(2600), Now: now})
	if err != nil {
		t.Fatalf("quote above max: %v", err)
	}
	if !res.AboveMax {
		t.Error("quote of 2600 against max 2000 not flagged above max")
	}
	assertStatus(t, svc, id, StatusDriverQuoted)
}

func TestQuoteWrongDriver(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeBookingCreator{})
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id := mustCreateRequest(t, svc, now)
	_, err := svc.Quote(ctx, QuoteCommand{RequestID: id, DriverID: "driver-9", Price: types.USD(1800), Now: now})
	if !errors.Is(err, apperrors.ErrIneligible) {
		t.Errorf("quote from wrong driver: got %v, want ErrIneligible", err)
	}
	assertStatus(t, svc, id, StatusPending)
}

func TestDeclineAndCancelResolve(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeBookingCreator{})
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	declined := mustCreateRequest(t, svc, now)
	if err := svc.Decline(ctx, DeclineCommand{RequestID: declined, DriverID: "driver-1", Now: now}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	assertStatus(t, svc, declined, StatusDeclined)

	cancelled := mustCreateRequest(t, svc, now)
	if err := svc.Cancel(ctx, CancelCommand{RequestID: cancelled, RequesterID: "rider-1", Now: now}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertStatus(t, svc, cancelled, StatusCancelled)

	// declining again hits a terminal request
	err := svc.Decline(ctx, DeclineCommand{RequestID: declined, DriverID: "driver-1", Now: now})
	if !errors.Is(err, apperrors.ErrTerminalState) {
		t.Errorf("double decline: got %v, want ErrTerminalState", err)
	}
}

func TestExpireUnresolvedRequest(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeBookingCreator{})
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id := mustCreateRequest(t, svc, now)
	if _, err := svc.Quote(ctx, QuoteCommand{RequestID: id, DriverID: "driver-1", Price: types.USD(1500), Now: now}); err != nil {
		t.Fatalf("quote: %v", err)
	}

	after := now.Add(72 * time.Hour)
	if err := svc.Expire(ctx, ExpireCommand{RequestID: id, Now: after}); err != nil {
		t.Fatalf("expire: %v", err)
	}
	assertStatus(t, svc, id, StatusExpired)

	// expired is terminal; the sweep skips it next round
	err := svc.Expire(ctx, ExpireCommand{RequestID: id, Now: after})
	if !errors.Is(err, apperrors.ErrTerminalState) {
		t.Errorf("re-expire: got %v, want ErrTerminalState", err)
	}
}

// TestBookExactlyOnce races concurrent Book calls on one confirmed
// request; the CAS on the confirmed row must let exactly one through.
func TestBookExactlyOnce(t *testing.T) {
	creator := &fakeBookingCreator{}
	svc := NewService(setupTestStore(t), creator)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id := mustCreateRequest(t, svc, now)
	if _, err := svc.Quote(ctx, QuoteCommand{RequestID: id, DriverID: "driver-1", Price: types.USD(1800), Now: now}); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if err := svc.AcceptQuote(ctx, AcceptQuoteCommand{RequestID: id, RequesterID: "rider-1", Now: now}); err != nil {
		t.Fatalf("accept quote: %v", err)
	}

	const attempts = 5
	errs := make(chan error, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Book(ctx, BookCommand{RequestID: id, RequesterID: "rider-1", Now: now})
			errs <- err
		}()
	}

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		}
	}
	if success != 1 {
		t.Errorf("concurrent book succeeded %d times, want exactly 1", success)
	}
	if got := creator.count(); got != 1 {
		t.Errorf("bookings created = %d, want 1", got)
	}
}

// TestBookRevertsWhenBookingInsertFails forces the booking insert to
// fail after the booked transition has committed; the request must be
// reopened as confirmed so a retry can still produce its one booking.
func TestBookRevertsWhenBookingInsertFails(t *testing.T) {
	creator := &fakeBookingCreator{err: errors.New("insert rejected")}
	svc := NewService(setupTestStore(t), creator)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id := mustCreateRequest(t, svc, now)
	if _, err := svc.Quote(ctx, QuoteCommand{RequestID: id, DriverID: "driver-1", Price: types.USD(1800), Now: now}); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if err := svc.AcceptQuote(ctx, AcceptQuoteCommand{RequestID: id, RequesterID: "rider-1", Now: now}); err != nil {
		t.Fatalf("accept quote: %v", err)
	}

	if _, err := svc.Book(ctx, BookCommand{RequestID: id, RequesterID: "rider-1", Now: now}); err == nil {
		t.Fatal("book with failing insert returned no error")
	}
	assertStatus(t, svc, id, StatusConfirmed)
	if got := creator.count(); got != 0 {
		t.Errorf("bookings created = %d, want 0", got)
	}

	creator.mu.Lock()
	creator.err = nil
	creator.mu.Unlock()

	b, err := svc.Book(ctx, BookCommand{RequestID: id, RequesterID: "rider-1", Now: now})
	if err != nil {
		t.Fatalf("retry book: %v", err)
	}
	if b == nil {
		t.Fatal("retry book returned nil booking")
	}
	assertStatus(t, svc, id, StatusBooked)
	if got := creator.count(); got != 1 {
		t.Errorf("bookings created after retry = %d, want 1", got)
	}
}

// TestRequesterMismatchRejected checks the requester-side commands the
// same way TestQuoteWrongDriver checks the driver side.
func TestRequesterMismatchRejected(t *testing.T) {
	svc := NewService(setupTestStore(t), &fakeBookingCreator{})
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id := mustCreateRequest(t, svc, now)
	if _, err := svc.Quote(ctx, QuoteCommand{RequestID: id, DriverID: "driver-1", Price: types.USD(1800), Now: now}); err != nil {
		t.Fatalf("quote: %v", err)
	}

	if err := svc.AcceptQuote(ctx, AcceptQuoteCommand{RequestID: id, RequesterID: "rider-2", Now: now}); !errors.Is(err, apperrors.ErrIneligible) {
		t.Errorf("accept quote by wrong requester: got %v, want ErrIneligible", err)
	}
	if err := svc.DeclineQuote(ctx, DeclineQuoteCommand{RequestID: id, RequesterID: "rider-2", Now: now}); !errors.Is(err, apperrors.ErrIneligible) {
		t.Errorf("decline quote by wrong requester: got %v, want ErrIneligible", err)
	}
	if err := svc.Cancel(ctx, CancelCommand{RequestID: id, RequesterID: "rider-2", Now: now}); !errors.Is(err, apperrors.ErrIneligible) {
		t.Errorf("cancel by wrong requester: got %v, want ErrIneligible", err)
	}
	assertStatus(t, svc, id, StatusDriverQuoted)

	if err := svc.AcceptQuote(ctx, AcceptQuoteCommand{RequestID: id, RequesterID: "rider-1", Now: now}); err != nil {
		t.Fatalf("accept quote by owner: %v", err)
	}
	if _, err := svc.Book(ctx, BookCommand{RequestID: id, RequesterID: "rider-2", Now: now}); !errors.Is(err, apperrors.ErrIneligible) {
		t.Errorf("book by wrong requester: got %v, want ErrIneligible", err)
	}
	assertStatus(t, svc, id, StatusConfirmed)
}

type fakeBookingCreator struct {
	mu      sync.Mutex
	created int
	err     error
}

func (f *fakeBookingCreator) CreateDirectBooking(_ context.Context, spec ride.DirectBookingSpec) (*ride.Booking, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	f.created++
	f.mu.Unlock()
	reqID := spec.RequestID
	return &ride.Booking{
		ID:           "booking-fake",
		RiderID:      spec.RiderID,
		RequestID:    &reqID,
		Seats:        spec.Seats,
		PricePerSeat: spec.PricePerSeat,
		Status:       ride.BookingPending,
		Approval:     ride.ApprovalApproved,
		CreatedAt:    spec.Now,
	}, nil
}

func (f *fakeBookingCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func mustCreateRequest(t *testing.T, svc *Service, now time.Time) types.ID {
	t.Helper()
	id, err := svc.Create(context.Background(), CreateCommand{
		RequesterID:     "rider-1",
		DriverID:        "driver-1",
		Origin:          types.Point{Lat: 37.7749, Lng: -122.4194},
		Destination:     types.Point{Lat: 37.3382, Lng: -121.8863},
		DepartureTime:   now.Add(48 * time.Hour),
		SeatsRequested:  2,
		MaxPricePerSeat: types.USD(2000),
		Now:             now,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return id
}

func assertStatus(t *testing.T, svc *Service, id types.ID, want Status) {
	t.Helper()
	r, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get request %s: %v", id, err)
	}
	if r.Status != want {
		t.Fatalf("request %s status = %s, want %s", id, r.Status, want)
	}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("CARPOOL_TEST_DSN")
	if dsn == "" {
		t.Skip("CARPOOL_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE direct_request_events, direct_requests"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
