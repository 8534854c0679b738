package store

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-venue-chat-backend/internal/domain"
	"github.com/tbourn/go-venue-chat-backend/internal/identity"
)

// ----- Fake nickname generator -----

type fakeNames struct {
	mu    sync.Mutex
	calls int
	name  string
}

func (f *fakeNames) Generate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.name != "" {
		return f.name
	}
	return "Witty Walrus"
}

func newTestRegistry(opts ...RegistryOption) (*SessionRegistry, *fakeNames) {
	names := &fakeNames{}
	return NewSessionRegistry(names, opts...), names
}

// ----- Tests -----

func TestCreateSession_AnonymousGeneratesNickname(t *testing.T) {
	r, names := newTestRegistry()

	s, err := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if names.calls != 1 {
		t.Fatalf("expected one generator call, got %d", names.calls)
	}
	if s.Identity.DisplayName() == "" || !s.Identity.IsAnonymous() {
		t.Fatalf("expected generated anonymous identity, got %+v", s.Identity)
	}
	if s.Identity.Avatar() != "" {
		t.Fatalf("anonymous sessions must not carry an avatar")
	}
	if s.Status != domain.SessionActive {
		t.Fatalf("new session status = %q, want active", s.Status)
	}
	if n := len(s.AccessCode); n < 6 || n > 8 {
		t.Fatalf("access code length = %d, want 6..8", n)
	}
	if s.ID == "" || s.VenueID != "v1" {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestCreateSession_AnonymousCustomNickname(t *testing.T) {
	r, names := newTestRegistry()

	s, err := r.CreateSession(CreateSessionParams{
		VenueID:     "v1",
		Anonymous:   true,
		DisplayName: "  Night Owl  ",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if names.calls != 0 {
		t.Fatalf("generator must not run when a nickname is supplied")
	}
	if got := s.Identity.DisplayName(); got != "Night Owl" {
		t.Fatalf("nickname = %q, want trimmed %q", got, "Night Owl")
	}
}

func TestCreateSession_NamedKeepsAvatar(t *testing.T) {
	r, _ := newTestRegistry()

	s, err := r.CreateSession(CreateSessionParams{
		VenueID:     "v1",
		DisplayName: "Alex",
		Avatar:      "https://cdn.example.com/a/alex.png",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Identity.IsAnonymous() {
		t.Fatalf("expected named identity")
	}
	if s.Identity.Avatar() == "" {
		t.Fatalf("named identity lost its avatar")
	}
}

func TestCreateSession_Validation(t *testing.T) {
	r, _ := newTestRegistry()

	cases := []struct {
		name string
		p    CreateSessionParams
		want error
	}{
		{"empty venue", CreateSessionParams{Anonymous: true}, ErrVenueRequired},
		{"blank venue", CreateSessionParams{VenueID: "   ", Anonymous: true}, ErrVenueRequired},
		{"blank nickname when anonymous", CreateSessionParams{VenueID: "v1", Anonymous: true, DisplayName: "   "}, ErrNicknameRequired},
		{"named without name", CreateSessionParams{VenueID: "v1"}, ErrDisplayNameRequired},
		{"over-length name", CreateSessionParams{VenueID: "v1", DisplayName: strings.Repeat("x", 21)}, ErrDisplayNameTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.CreateSession(tc.p); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateSession_NameBoundCountsRunes(t *testing.T) {
	r, _ := newTestRegistry(WithMaxDisplayNameRunes(5))

	// "ñandú" is 5 runes but 7 bytes; the bound counts runes.
	if _, err := r.CreateSession(CreateSessionParams{VenueID: "v1", DisplayName: "ñandú"}); err != nil {
		t.Fatalf("5-rune name rejected: %v", err)
	}
	if _, err := r.CreateSession(CreateSessionParams{VenueID: "v1", DisplayName: "abcdef"}); !errors.Is(err, ErrDisplayNameTooLong) {
		t.Fatalf("6-rune name accepted under 5-rune bound")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r, _ := newTestRegistry()
	created, _ := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})

	got, err := r.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Status = domain.SessionLeft // mutating the copy must not leak back

	again, _ := r.Get(created.ID)
	if again.Status != domain.SessionActive {
		t.Fatalf("registry state mutated through a returned copy")
	}
}

func TestGet_Unknown(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestInvalidate_OneWayAndIdempotent(t *testing.T) {
	r, _ := newTestRegistry()
	s, _ := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})

	if err := r.Invalidate(s.ID); err != nil {
		t.Fatalf("first Invalidate: %v", err)
	}
	got, _ := r.Get(s.ID)
	if got.Status != domain.SessionLeft {
		t.Fatalf("status = %q, want left", got.Status)
	}

	// Second call is a no-op success.
	if err := r.Invalidate(s.ID); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}

	if err := r.Invalidate("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown Invalidate err = %v, want ErrSessionNotFound", err)
	}
}

func TestInvalidate_FreesAccessCode(t *testing.T) {
	r, _ := newTestRegistry()
	s, _ := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})
	if err := r.Invalidate(s.ID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	r.mu.RLock()
	_, stillHeld := r.codes[s.AccessCode]
	r.mu.RUnlock()
	if stillHeld {
		t.Fatalf("left session still holds its access code")
	}
}

func TestCreateSession_ConcurrentAccessCodesUnique(t *testing.T) {
	r, _ := newTestRegistry()

	const n = 200
	var wg sync.WaitGroup
	codes := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})
			if err != nil {
				t.Errorf("CreateSession: %v", err)
				return
			}
			codes <- s.AccessCode
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]struct{}, n)
	for code := range codes {
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate access code issued: %q", code)
		}
		seen[code] = struct{}{}
	}
}

func TestCreateSession_ConcurrentNicknameGeneration(t *testing.T) {
	// Real generator: concurrent anonymous creations share its caser, which
	// must stay race-free behind the generator's lock.
	r := NewSessionRegistry(identity.NewGenerator())

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})
			if err != nil {
				t.Errorf("CreateSession: %v", err)
				return
			}
			if len(strings.Fields(s.Identity.DisplayName())) != 2 {
				t.Errorf("malformed nickname %q", s.Identity.DisplayName())
			}
		}()
	}
	wg.Wait()

	if got := r.ActiveCount(); got != n {
		t.Fatalf("ActiveCount = %d, want %d", got, n)
	}
}

func TestExpireIdle(t *testing.T) {
	r, _ := newTestRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	old, _ := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})
	now = now.Add(time.Hour)
	fresh, _ := r.CreateSession(CreateSessionParams{VenueID: "v2", Anonymous: true})

	expired := r.ExpireIdle(30 * time.Minute)
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expired = %+v, want exactly the old session", expired)
	}
	if got, _ := r.Get(old.ID); got.Status != domain.SessionLeft {
		t.Fatalf("expired session not marked left")
	}
	if got, _ := r.Get(fresh.ID); got.Status != domain.SessionActive {
		t.Fatalf("fresh session expired")
	}

	// Disabled TTL is a no-op.
	if got := r.ExpireIdle(0); got != nil {
		t.Fatalf("ExpireIdle(0) = %v, want nil", got)
	}
}

func TestTouch_DefersExpiry(t *testing.T) {
	r, _ := newTestRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	s, _ := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})
	now = now.Add(20 * time.Minute)
	r.Touch(s.ID)
	now = now.Add(20 * time.Minute)

	// 40 minutes since creation but only 20 since the touch.
	if expired := r.ExpireIdle(30 * time.Minute); len(expired) != 0 {
		t.Fatalf("touched session expired: %+v", expired)
	}
}

func TestActiveCount(t *testing.T) {
	r, _ := newTestRegistry()
	a, _ := r.CreateSession(CreateSessionParams{VenueID: "v1", Anonymous: true})
	r.CreateSession(CreateSessionParams{VenueID: "v2", Anonymous: true})
	if got := r.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}
	r.Invalidate(a.ID)
	if got := r.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount after leave = %d, want 1", got)
	}
}

func TestRandomCode_AlphabetAndLength(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := randomCode(8)
		if len(code) != 8 {
			t.Fatalf("len = %d, want 8", len(code))
		}
		for _, ch := range code {
			if !strings.ContainsRune(codeAlphabet, ch) {
				t.Fatalf("code %q contains %q outside the alphabet", code, ch)
			}
		}
	}
}
