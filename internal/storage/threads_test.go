package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInsertThreadRejectsSecondOpen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := Thread{Kind: ThreadKindTicket, GuildID: "g1", UserID: "u1", ChannelID: "c1", TicketNumber: 1, CreatedAt: time.Now()}
	if _, err := store.InsertThread(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	second := first
	second.ChannelID = "c2"
	second.TicketNumber = 2
	if _, err := store.InsertThread(ctx, second); !errors.Is(err, ErrThreadOpen) {
		t.Fatalf("expected ErrThreadOpen, got %v", err)
	}

	// A different kind for the same user is independent.
	modmail := Thread{Kind: ThreadKindModmail, GuildID: "g1", UserID: "u1", ChannelID: "c3", CreatedAt: time.Now()}
	if _, err := store.InsertThread(ctx, modmail); err != nil {
		t.Fatalf("modmail insert: %v", err)
	}
}

func TestCloseThreadAllowsReopen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertThread(ctx, Thread{Kind: ThreadKindTicket, GuildID: "g1", UserID: "u1", ChannelID: "c1", TicketNumber: 1, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.CloseThread(ctx, id, "staff1", "resolved", time.Now()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, found, err := store.FindOpenThread(ctx, ThreadKindTicket, "g1", "u1"); err != nil || found {
		t.Fatalf("expected no open thread, found=%t err=%v", found, err)
	}

	number, err := store.NextTicketNumber(ctx, "g1")
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if number != 2 {
		t.Fatalf("expected ticket number 2, got %d", number)
	}
	if _, err := store.InsertThread(ctx, Thread{Kind: ThreadKindTicket, GuildID: "g1", UserID: "u1", ChannelID: "c2", TicketNumber: number, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestThreadMessageLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertThread(ctx, Thread{Kind: ThreadKindModmail, GuildID: "g1", UserID: "u1", ChannelID: "c1", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	base := time.Now()
	messages := []ThreadMessage{
		{ThreadID: id, AuthorID: "u1", AuthorName: "user", Content: "hello", CreatedAt: base},
		{ThreadID: id, AuthorID: "s1", AuthorName: "staff", Content: "hi", FromStaff: true, CreatedAt: base.Add(time.Second)},
	}
	for _, msg := range messages {
		if err := store.AppendThreadMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.ListThreadMessages(ctx, id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Content != "hello" || got[1].FromStaff != true {
		t.Fatalf("unexpected order or flags: %+v", got)
	}
}
