package threads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sbmod/internal/modlog"
	"sbmod/internal/storage"

	"go.uber.org/zap"
)

type fakePlatform struct {
	mu       sync.Mutex
	nextID   int
	channels map[string][]string
	dms      map[string][]string
	deleted  []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: make(map[string][]string),
		dms:      make(map[string][]string),
	}
}

func (p *fakePlatform) createChannel() string {
	p.nextID++
	id := fmt.Sprintf("chan-%d", p.nextID)
	p.channels[id] = nil
	return id
}

func (p *fakePlatform) CreateTicketChannel(ctx context.Context, guildID, name, categoryID, userID string, supportRoles []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createChannel(), nil
}

func (p *fakePlatform) CreateModmailChannel(ctx context.Context, guildID, name, categoryID string, staffRoles []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createChannel(), nil
}

func (p *fakePlatform) SendChannelMessage(ctx context.Context, channelID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[channelID] = append(p.channels[channelID], content)
	return nil
}

func (p *fakePlatform) SendDM(ctx context.Context, userID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dms[userID] = append(p.dms[userID], content)
	return nil
}

func (p *fakePlatform) DeleteChannel(ctx context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, channelID)
	delete(p.channels, channelID)
	return nil
}

func (p *fakePlatform) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[channelID]
	return ok, nil
}

// dropChannel simulates an out-of-band deletion the manager never saw.
func (p *fakePlatform) dropChannel(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, channelID)
}

func (p *fakePlatform) channelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextID
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) fire() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, timer := range timers {
		if !timer.stopped {
			timer.fn()
		}
	}
}

func newTestManager(t *testing.T) (*Manager, *fakePlatform, *fakeClock, *storage.SettingsStore, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	settingsStore := storage.NewSettingsStore(store, "!", "en")
	platform := newFakePlatform()
	manager := NewManager(store, settingsStore, platform, modlog.NewLogger(store, zap.NewNop()), 10*time.Second, zap.NewNop())
	clock := &fakeClock{now: time.Now()}
	manager.WithClock(clock)
	return manager, platform, clock, settingsStore, store
}

func enableModmail(t *testing.T, settingsStore *storage.SettingsStore, anonymous bool) {
	t.Helper()
	ctx := context.Background()
	settings, err := settingsStore.Settings(ctx, "g1")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	settings.Modmail.Enabled = true
	settings.Modmail.AnonymousStaff = anonymous
	if err := settingsStore.UpdateModmail(ctx, "g1", settings.Modmail); err != nil {
		t.Fatalf("update modmail: %v", err)
	}
}

func TestOpenTicketNumbersSequentially(t *testing.T) {
	manager, platform, _, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := manager.OpenTicket(ctx, "g1", "u1", "help")
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if first.TicketNumber != 1 {
		t.Fatalf("expected ticket 1, got %d", first.TicketNumber)
	}

	second, err := manager.OpenTicket(ctx, "g1", "u2", "")
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if second.TicketNumber != 2 {
		t.Fatalf("expected ticket 2, got %d", second.TicketNumber)
	}

	intro := platform.channels[first.ChannelID][0]
	if !strings.Contains(intro, "ticket-0001") || !strings.Contains(intro, "help") {
		t.Fatalf("unexpected intro: %q", intro)
	}
}

func TestOpenTicketRejectsSecondOpen(t *testing.T) {
	manager, _, _, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.OpenTicket(ctx, "g1", "u1", ""); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := manager.OpenTicket(ctx, "g1", "u1", ""); !errors.Is(err, storage.ErrThreadOpen) {
		t.Fatalf("expected ErrThreadOpen, got %v", err)
	}
}

func TestConcurrentOpensCreateOneThread(t *testing.T) {
	manager, platform, _, _, _ := newTestManager(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var okCount, conflictCount int32
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.OpenTicket(ctx, "g1", "u1", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, storage.ErrThreadOpen):
				conflictCount++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if okCount != 1 || conflictCount != workers-1 {
		t.Fatalf("expected exactly one winner, got ok=%d conflict=%d", okCount, conflictCount)
	}
	live := platform.channelCount() - len(platform.deleted)
	if live != 1 {
		t.Fatalf("expected exactly one live channel, got %d", live)
	}
}

func TestModmailRelayBothWays(t *testing.T) {
	manager, platform, _, settingsStore, _ := newTestManager(t)
	enableModmail(t, settingsStore, false)
	ctx := context.Background()

	thread, err := manager.HandleDM(ctx, "g1", "u1", "alice", "hello staff", nil)
	if err != nil {
		t.Fatalf("dm: %v", err)
	}
	relayed := platform.channels[thread.ChannelID]
	if len(relayed) != 1 || !strings.Contains(relayed[0], "alice") || !strings.Contains(relayed[0], "hello staff") {
		t.Fatalf("unexpected relay: %v", relayed)
	}

	// Second DM reuses the same thread.
	again, err := manager.HandleDM(ctx, "g1", "u1", "alice", "anyone there?", nil)
	if err != nil {
		t.Fatalf("second dm: %v", err)
	}
	if again.ID != thread.ID {
		t.Fatalf("expected same thread, got %d and %d", thread.ID, again.ID)
	}

	handled, err := manager.HandleStaffMessage(ctx, thread.ChannelID, "s1", "bob", "how can we help?")
	if err != nil {
		t.Fatalf("staff message: %v", err)
	}
	if !handled {
		t.Fatal("expected staff message to be handled")
	}
	dms := platform.dms["u1"]
	if len(dms) != 1 || !strings.Contains(dms[0], "bob") {
		t.Fatalf("unexpected dm relay: %v", dms)
	}
}

func TestModmailAnonymousStaff(t *testing.T) {
	manager, platform, _, settingsStore, _ := newTestManager(t)
	enableModmail(t, settingsStore, true)
	ctx := context.Background()

	thread, err := manager.HandleDM(ctx, "g1", "u1", "alice", "hi", nil)
	if err != nil {
		t.Fatalf("dm: %v", err)
	}
	if _, err := manager.HandleStaffMessage(ctx, thread.ChannelID, "s1", "bob", "hello"); err != nil {
		t.Fatalf("staff message: %v", err)
	}
	dm := platform.dms["u1"][0]
	if strings.Contains(dm, "bob") || !strings.Contains(dm, "Staff") {
		t.Fatalf("staff name leaked: %q", dm)
	}
}

func TestCloseKeywordArchivesThread(t *testing.T) {
	manager, platform, clock, settingsStore, store := newTestManager(t)
	enableModmail(t, settingsStore, false)
	ctx := context.Background()

	thread, err := manager.HandleDM(ctx, "g1", "u1", "alice", "hello", nil)
	if err != nil {
		t.Fatalf("dm: %v", err)
	}

	handled, err := manager.HandleStaffMessage(ctx, thread.ChannelID, "s1", "bob", "Close")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !handled {
		t.Fatal("expected close to be handled")
	}

	// Channel survives until the grace timer fires.
	if len(platform.deleted) != 0 {
		t.Fatalf("channel deleted before grace: %v", platform.deleted)
	}
	clock.fire()
	if len(platform.deleted) != 1 || platform.deleted[0] != thread.ChannelID {
		t.Fatalf("expected channel deleted after grace, got %v", platform.deleted)
	}

	if _, found, err := store.FindOpenThread(ctx, storage.ThreadKindModmail, "g1", "u1"); err != nil || found {
		t.Fatalf("expected thread closed, found=%v err=%v", found, err)
	}

	// A new DM opens a fresh thread.
	fresh, err := manager.HandleDM(ctx, "g1", "u1", "alice", "one more thing", nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if fresh.ID == thread.ID {
		t.Fatal("expected a new thread after close")
	}
}

func TestDisabledFeatures(t *testing.T) {
	manager, _, _, settingsStore, _ := newTestManager(t)
	ctx := context.Background()

	// Modmail is off by default.
	if _, err := manager.HandleDM(ctx, "g1", "u1", "alice", "hi", nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled for modmail, got %v", err)
	}

	settings, err := settingsStore.Settings(ctx, "g1")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	settings.Tickets.Enabled = false
	if err := settingsStore.UpdateTickets(ctx, "g1", settings.Tickets); err != nil {
		t.Fatalf("update tickets: %v", err)
	}
	if _, err := manager.OpenTicket(ctx, "g1", "u1", ""); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled for tickets, got %v", err)
	}
}

func TestTranscriptWrittenOnClose(t *testing.T) {
	manager, _, _, settingsStore, store := newTestManager(t)
	enableModmail(t, settingsStore, false)
	ctx := context.Background()

	thread, err := manager.HandleDM(ctx, "g1", "u1", "alice", "first message", nil)
	if err != nil {
		t.Fatalf("dm: %v", err)
	}
	if _, err := manager.HandleStaffMessage(ctx, thread.ChannelID, "s1", "bob", "reply"); err != nil {
		t.Fatalf("staff: %v", err)
	}
	if err := manager.Close(ctx, thread.ChannelID, "s1", "resolved"); err != nil {
		t.Fatalf("close: %v", err)
	}

	messages, err := store.ListThreadMessages(ctx, thread.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	body := RenderTranscript(thread, messages, time.Now())
	if !strings.Contains(body, "first message") || !strings.Contains(body, "reply") {
		t.Fatalf("transcript missing messages:\n%s", body)
	}
	if !strings.Contains(body, "alice (user)") || !strings.Contains(body, "bob (staff)") {
		t.Fatalf("transcript missing roles:\n%s", body)
	}
}

func TestUserCloseKeywordClosesThread(t *testing.T) {
	manager, platform, clock, settingsStore, store := newTestManager(t)
	enableModmail(t, settingsStore, false)
	ctx := context.Background()

	thread, err := manager.HandleDM(ctx, "g1", "u1", "alice", "hello", nil)
	if err != nil {
		t.Fatalf("dm: %v", err)
	}

	// The owner's close keyword ends the thread instead of being relayed.
	if _, err := manager.HandleDM(ctx, "g1", "u1", "alice", " Close ", nil); err != nil {
		t.Fatalf("close dm: %v", err)
	}
	if _, found, err := store.FindOpenThread(ctx, storage.ThreadKindModmail, "g1", "u1"); err != nil || found {
		t.Fatalf("expected thread closed, found=%v err=%v", found, err)
	}
	// Only the first DM and the closing notice reached the channel.
	relayed := platform.channels[thread.ChannelID]
	if len(relayed) != 2 || !strings.Contains(relayed[1], "Closing") {
		t.Fatalf("close keyword was relayed: %v", relayed)
	}

	clock.fire()
	if len(platform.deleted) != 1 || platform.deleted[0] != thread.ChannelID {
		t.Fatalf("expected channel deleted after grace, got %v", platform.deleted)
	}
}

func TestStaleThreadSelfHeals(t *testing.T) {
	manager, platform, _, settingsStore, store := newTestManager(t)
	enableModmail(t, settingsStore, false)
	ctx := context.Background()

	thread, err := manager.HandleDM(ctx, "g1", "u1", "alice", "hello", nil)
	if err != nil {
		t.Fatalf("dm: %v", err)
	}

	// The channel disappears behind the manager's back.
	platform.dropChannel(thread.ChannelID)

	fresh, err := manager.HandleDM(ctx, "g1", "u1", "alice", "still there?", nil)
	if err != nil {
		t.Fatalf("dm after channel loss: %v", err)
	}
	if fresh.ID == thread.ID {
		t.Fatal("expected a new thread once the channel was gone")
	}
	if _, found, err := store.FindOpenThread(ctx, storage.ThreadKindModmail, "g1", "u1"); err != nil || !found {
		t.Fatalf("expected fresh thread open, found=%v err=%v", found, err)
	}

	// Tickets recover the same way.
	ticket, err := manager.OpenTicket(ctx, "g1", "u2", "")
	if err != nil {
		t.Fatalf("open ticket: %v", err)
	}
	platform.dropChannel(ticket.ChannelID)
	if _, err := manager.OpenTicket(ctx, "g1", "u2", ""); err != nil {
		t.Fatalf("expected reopen after channel loss, got %v", err)
	}
}

func TestAttachmentsForwarded(t *testing.T) {
	manager, platform, _, settingsStore, store := newTestManager(t)
	enableModmail(t, settingsStore, false)
	ctx := context.Background()

	thread, err := manager.HandleDM(ctx, "g1", "u1", "alice", "see attached",
		[]string{"crash.log https://cdn.example/crash.log"})
	if err != nil {
		t.Fatalf("dm: %v", err)
	}

	relayed := platform.channels[thread.ChannelID][0]
	if !strings.Contains(relayed, "see attached") || !strings.Contains(relayed, "crash.log") {
		t.Fatalf("attachment missing from relay: %q", relayed)
	}

	messages, err := store.ListThreadMessages(ctx, thread.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || !strings.Contains(messages[0].Content, "crash.log") {
		t.Fatalf("attachment missing from stored message: %+v", messages)
	}
}
