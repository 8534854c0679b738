package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-venue-chat-backend/internal/domain"
)

func msg(sessionID, text string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        text + "-id",
		SessionID: sessionID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

func TestAppend_AssignsSequentialOrder(t *testing.T) {
	s := NewChatroomStore()
	s.Join("v1", "s1")

	first, err := s.Append("v1", msg("s1", "hello"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := s.Append("v1", msg("s1", "hi"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if first.Seq != 0 || second.Seq != 1 {
		t.Fatalf("seqs = %d, %d; want 0, 1", first.Seq, second.Seq)
	}

	snap := s.Snapshot("v1")
	if len(snap.Messages) != 2 {
		t.Fatalf("snapshot has %d messages, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Text != "hello" || snap.Messages[1].Text != "hi" {
		t.Fatalf("snapshot order = %q, %q", snap.Messages[0].Text, snap.Messages[1].Text)
	}
}

func TestAppend_RequiresMembership(t *testing.T) {
	s := NewChatroomStore()

	// Room does not exist yet.
	if _, err := s.Append("v1", msg("s1", "hello")); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err = %v, want ErrNotAMember", err)
	}

	// Room exists but the session never joined.
	s.Join("v1", "someone-else")
	if _, err := s.Append("v1", msg("s1", "hello")); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err = %v, want ErrNotAMember", err)
	}
}

func TestAppend_DeniedAfterLeave(t *testing.T) {
	s := NewChatroomStore()
	s.Join("v1", "s1")
	s.Leave("v1", "s1")

	if _, err := s.Append("v1", msg("s1", "hello")); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err = %v, want ErrNotAMember", err)
	}
}

func TestLeave_RetainsHistory(t *testing.T) {
	s := NewChatroomStore()
	s.Join("v1", "s1")
	s.Append("v1", msg("s1", "hello"))
	s.Leave("v1", "s1")

	snap := s.Snapshot("v1")
	if len(snap.Messages) != 1 {
		t.Fatalf("history lost on leave: %d messages", len(snap.Messages))
	}
	if len(snap.ActiveSessions) != 0 {
		t.Fatalf("left session still listed as active: %v", snap.ActiveSessions)
	}

	// Leaving again, or leaving a venue never joined, is a no-op.
	s.Leave("v1", "s1")
	s.Leave("v-unknown", "s1")
}

func TestSnapshot_UnknownVenueIsEmpty(t *testing.T) {
	s := NewChatroomStore()
	snap := s.Snapshot("v-unknown")
	if snap.VenueID != "v-unknown" || len(snap.Messages) != 0 || snap.ParticipantCount() != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := NewChatroomStore()
	s.Join("v1", "s1")
	s.Append("v1", msg("s1", "hello"))

	snap := s.Snapshot("v1")
	snap.Messages[0].Text = "tampered"

	if got := s.Snapshot("v1").Messages[0].Text; got != "hello" {
		t.Fatalf("store mutated through a snapshot: %q", got)
	}
}

func TestVenuesAreIsolated(t *testing.T) {
	s := NewChatroomStore()
	s.Join("v1", "s1")
	s.Join("v2", "s2")
	s.Append("v1", msg("s1", "only in v1"))

	if n := len(s.Snapshot("v2").Messages); n != 0 {
		t.Fatalf("v2 sees %d messages from v1", n)
	}

	// Membership in v1 confers nothing in v2.
	if _, err := s.Append("v2", msg("s1", "cross-venue")); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("cross-venue append err = %v, want ErrNotAMember", err)
	}
}

func TestAppend_ConcurrentWritersGetDistinctSeqs(t *testing.T) {
	s := NewChatroomStore()
	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		id := fmt.Sprintf("s%d", w)
		s.Join("v1", id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.Append("v1", msg(id, "x")); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot("v1")
	if len(snap.Messages) != writers*perWriter {
		t.Fatalf("got %d messages, want %d", len(snap.Messages), writers*perWriter)
	}
	for i, m := range snap.Messages {
		if m.Seq != int64(i) {
			t.Fatalf("message %d has seq %d", i, m.Seq)
		}
	}
}

func TestSubscribe_ReceivesInAcceptanceOrder(t *testing.T) {
	s := NewChatroomStore()
	s.Join("v1", "s1")

	ch, cancel := s.Subscribe("v1")
	defer cancel()

	s.Append("v1", msg("s1", "hello"))
	s.Append("v1", msg("s1", "hi"))

	for i, want := range []string{"hello", "hi"} {
		select {
		case got := <-ch:
			if got.Text != want {
				t.Fatalf("message %d = %q, want %q", i, got.Text, want)
			}
			if got.Seq != int64(i) {
				t.Fatalf("message %d seq = %d", i, got.Seq)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	s := NewChatroomStore()
	ch, cancel := s.Subscribe("v1")

	cancel()
	cancel() // second cancel is safe

	if _, open := <-ch; open {
		t.Fatalf("channel still open after cancel")
	}
}

func TestSubscribe_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	s := NewChatroomStore(WithStreamBuffer(1))
	s.Join("v1", "s1")

	_, cancel := s.Subscribe("v1")
	defer cancel()

	// Buffer holds one message; the rest must be dropped without stalling.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Append("v1", msg("s1", "x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Append blocked on a slow subscriber")
	}

	if got := len(s.Snapshot("v1").Messages); got != 10 {
		t.Fatalf("log has %d messages, want 10", got)
	}
}

func TestPruneIdle(t *testing.T) {
	s := NewChatroomStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Join("v-idle", "s1")
	s.Leave("v-idle", "s1")
	s.Join("v-busy", "s2")

	now = now.Add(time.Hour)

	if pruned := s.PruneIdle(30 * time.Minute); pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	s.mu.RLock()
	_, idleLeft := s.rooms["v-idle"]
	_, busyLeft := s.rooms["v-busy"]
	s.mu.RUnlock()
	if idleLeft {
		t.Fatalf("idle room survived prune")
	}
	if !busyLeft {
		t.Fatalf("room with members was pruned")
	}

	// A room with only a live subscriber is kept too.
	_, cancel := s.Subscribe("v-stream")
	defer cancel()
	now = now.Add(time.Hour)
	s.PruneIdle(30 * time.Minute)
	s.mu.RLock()
	_, streamLeft := s.rooms["v-stream"]
	s.mu.RUnlock()
	if !streamLeft {
		t.Fatalf("room with a subscriber was pruned")
	}

	if pruned := s.PruneIdle(0); pruned != 0 {
		t.Fatalf("PruneIdle(0) = %d, want 0", pruned)
	}
}
