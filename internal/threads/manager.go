// Package threads runs the ticket and modmail lifecycles: one open
// thread per (kind, guild, user), a dedicated channel per thread, and a
// transcript written on close.
package threads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sbmod/internal/modlog"
	"sbmod/internal/storage"

	"go.uber.org/zap"
)

// CloseKeyword closes a thread when sent as a bare message, by staff in
// the thread channel or by the owner in the modmail DM.
const CloseKeyword = "close"

var ErrDisabled = errors.New("feature disabled for this guild")

// Platform is the slice of Discord the manager needs. The bot wires a
// session-backed implementation; tests wire a fake.
type Platform interface {
	CreateTicketChannel(ctx context.Context, guildID, name, categoryID, userID string, supportRoles []string) (string, error)
	CreateModmailChannel(ctx context.Context, guildID, name, categoryID string, staffRoles []string) (string, error)
	SendChannelMessage(ctx context.Context, channelID, content string) error
	SendDM(ctx context.Context, userID, content string) error
	DeleteChannel(ctx context.Context, channelID string) error
	ChannelExists(ctx context.Context, channelID string) (bool, error)
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type Manager struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	byChan   map[string]storage.Thread

	store    *storage.Store
	settings *storage.SettingsStore
	platform Platform
	modlog   *modlog.Logger
	clock    Clock
	grace    time.Duration
	logger   *zap.Logger
}

func NewManager(store *storage.Store, settingsStore *storage.SettingsStore, platform Platform, modLogger *modlog.Logger, grace time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		inflight: make(map[string]struct{}),
		byChan:   make(map[string]storage.Thread),
		store:    store,
		settings: settingsStore,
		platform: platform,
		modlog:   modLogger,
		clock:    realClock{},
		grace:    grace,
		logger:   logger,
	}
}

func (m *Manager) WithClock(clock Clock) {
	m.clock = clock
}

// OpenTicket creates a ticket thread and its channel. A second open
// attempt for the same user returns storage.ErrThreadOpen.
func (m *Manager) OpenTicket(ctx context.Context, guildID, userID, topic string) (storage.Thread, error) {
	guildSettings, err := m.settings.Settings(ctx, guildID)
	if err != nil {
		return storage.Thread{}, fmt.Errorf("load settings: %w", err)
	}
	settings := guildSettings.Tickets
	if !settings.Enabled {
		return storage.Thread{}, ErrDisabled
	}

	release, err := m.reserve(storage.ThreadKindTicket, guildID, userID)
	if err != nil {
		return storage.Thread{}, err
	}
	defer release()

	if existing, found, err := m.store.FindOpenThread(ctx, storage.ThreadKindTicket, guildID, userID); err != nil {
		return storage.Thread{}, fmt.Errorf("find open ticket: %w", err)
	} else if found && m.stillOpen(ctx, existing) {
		return storage.Thread{}, storage.ErrThreadOpen
	}

	number, err := m.store.NextTicketNumber(ctx, guildID)
	if err != nil {
		return storage.Thread{}, fmt.Errorf("ticket number: %w", err)
	}
	name := fmt.Sprintf("ticket-%04d", number)

	channelID, err := m.platform.CreateTicketChannel(ctx, guildID, name, settings.CategoryID, userID, settings.SupportRoles)
	if err != nil {
		return storage.Thread{}, fmt.Errorf("create channel: %w", err)
	}

	thread := storage.Thread{
		Kind:         storage.ThreadKindTicket,
		GuildID:      guildID,
		UserID:       userID,
		ChannelID:    channelID,
		TicketNumber: number,
		Status:       storage.ThreadStatusOpen,
		CreatedAt:    m.clock.Now(),
	}
	thread.ID, err = m.store.InsertThread(ctx, thread)
	if err != nil {
		// Lost the create race; the channel we made is orphaned.
		_ = m.platform.DeleteChannel(ctx, channelID)
		return storage.Thread{}, err
	}

	m.index(thread)
	intro := fmt.Sprintf("<@%s> opened ticket %s.", userID, name)
	if topic != "" {
		intro += " Topic: " + topic
	}
	_ = m.platform.SendChannelMessage(ctx, channelID, intro)
	m.modlog.Record(ctx, guildID, userID, userID, modlog.ActionTicket, "opened "+name)
	return thread, nil
}

// HandleDM routes a direct message into the user's modmail thread,
// opening one first if needed. The close keyword from the owner closes
// an open thread instead of being relayed.
func (m *Manager) HandleDM(ctx context.Context, guildID, userID, username, content string, attachments []string) (storage.Thread, error) {
	guildSettings, err := m.settings.Settings(ctx, guildID)
	if err != nil {
		return storage.Thread{}, fmt.Errorf("load settings: %w", err)
	}
	settings := guildSettings.Modmail
	if !settings.Enabled {
		return storage.Thread{}, ErrDisabled
	}

	thread, found, err := m.store.FindOpenThread(ctx, storage.ThreadKindModmail, guildID, userID)
	if err != nil {
		return storage.Thread{}, fmt.Errorf("find open modmail: %w", err)
	}
	if found && !m.stillOpen(ctx, thread) {
		found = false
	}
	if found && strings.TrimSpace(strings.ToLower(content)) == CloseKeyword {
		return thread, m.Close(ctx, thread.ChannelID, userID, "closed by user")
	}
	if !found {
		thread, err = m.openModmail(ctx, guildID, userID, settings)
		if err != nil {
			if errors.Is(err, storage.ErrThreadOpen) {
				// Concurrent DM already opened it.
				thread, found, err = m.store.FindOpenThread(ctx, storage.ThreadKindModmail, guildID, userID)
				if err != nil || !found {
					return storage.Thread{}, storage.ErrThreadOpen
				}
			} else {
				return storage.Thread{}, err
			}
		}
	}

	body := content
	for _, attachment := range attachments {
		body += "\nAttachment: " + attachment
	}
	_ = m.store.AppendThreadMessage(ctx, storage.ThreadMessage{
		ThreadID:   thread.ID,
		AuthorID:   userID,
		AuthorName: username,
		Content:    body,
		FromStaff:  false,
		CreatedAt:  m.clock.Now(),
	})
	err = m.platform.SendChannelMessage(ctx, thread.ChannelID, fmt.Sprintf("**%s**: %s", username, body))
	return thread, err
}

// HandleStaffMessage relays a staff message from a thread channel to the
// user, or closes the thread on the close keyword. It reports whether
// the channel belonged to a thread at all.
func (m *Manager) HandleStaffMessage(ctx context.Context, channelID, staffID, staffName, content string) (bool, error) {
	thread, found, err := m.lookup(ctx, channelID)
	if err != nil || !found {
		return false, err
	}

	if strings.TrimSpace(strings.ToLower(content)) == CloseKeyword {
		return true, m.Close(ctx, channelID, staffID, "closed by staff")
	}

	guildSettings, err := m.settings.Settings(ctx, thread.GuildID)
	if err != nil {
		return true, fmt.Errorf("load settings: %w", err)
	}

	display := staffName
	if thread.Kind == storage.ThreadKindModmail && guildSettings.Modmail.AnonymousStaff {
		display = "Staff"
	}

	_ = m.store.AppendThreadMessage(ctx, storage.ThreadMessage{
		ThreadID:   thread.ID,
		AuthorID:   staffID,
		AuthorName: staffName,
		Content:    content,
		FromStaff:  true,
		CreatedAt:  m.clock.Now(),
	})
	if thread.Kind == storage.ThreadKindModmail {
		return true, m.platform.SendDM(ctx, thread.UserID, fmt.Sprintf("**%s**: %s", display, content))
	}
	return true, nil
}

// Close archives the thread: a transcript is written, the user notified,
// and the channel deleted after the grace period.
func (m *Manager) Close(ctx context.Context, channelID, closedBy, reason string) error {
	thread, found, err := m.lookup(ctx, channelID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no thread for channel %s", channelID)
	}

	if err := m.store.CloseThread(ctx, thread.ID, closedBy, reason, m.clock.Now()); err != nil {
		return fmt.Errorf("close thread: %w", err)
	}
	m.mu.Lock()
	delete(m.byChan, channelID)
	m.mu.Unlock()

	messages, err := m.store.ListThreadMessages(ctx, thread.ID)
	if err == nil {
		body := RenderTranscript(thread, messages, m.clock.Now())
		_ = m.store.InsertTranscript(ctx, thread.GuildID, thread.ID, thread.TicketNumber, body)
	} else {
		m.logger.Warn("list thread messages", zap.Int64("thread_id", thread.ID), zap.Error(err))
	}

	_ = m.platform.SendChannelMessage(ctx, channelID, fmt.Sprintf("Closing in %s.", m.grace))
	_ = m.platform.SendDM(ctx, thread.UserID, fmt.Sprintf("Your %s in this server was closed: %s", thread.Kind, reason))
	m.modlog.Record(ctx, thread.GuildID, closedBy, thread.UserID, actionFor(thread.Kind), "closed: "+reason)

	m.clock.AfterFunc(m.grace, func() {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.platform.DeleteChannel(deleteCtx, channelID); err != nil {
			m.logger.Warn("delete thread channel", zap.String("channel_id", channelID), zap.Error(err))
		}
	})
	return nil
}

// IsThreadChannel reports whether the channel hosts an open thread.
func (m *Manager) IsThreadChannel(ctx context.Context, channelID string) bool {
	_, found, err := m.lookup(ctx, channelID)
	return err == nil && found
}

func (m *Manager) openModmail(ctx context.Context, guildID, userID string, settings storage.ModmailSettings) (storage.Thread, error) {
	release, err := m.reserve(storage.ThreadKindModmail, guildID, userID)
	if err != nil {
		return storage.Thread{}, err
	}
	defer release()

	name := "modmail-" + userID
	channelID, err := m.platform.CreateModmailChannel(ctx, guildID, name, settings.CategoryID, settings.StaffRoles)
	if err != nil {
		return storage.Thread{}, fmt.Errorf("create channel: %w", err)
	}

	thread := storage.Thread{
		Kind:      storage.ThreadKindModmail,
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		Status:    storage.ThreadStatusOpen,
		CreatedAt: m.clock.Now(),
	}
	thread.ID, err = m.store.InsertThread(ctx, thread)
	if err != nil {
		_ = m.platform.DeleteChannel(ctx, channelID)
		return storage.Thread{}, err
	}

	m.index(thread)
	m.modlog.Record(ctx, guildID, userID, userID, modlog.ActionModmail, "opened "+name)
	return thread, nil
}

// stillOpen verifies the thread's channel is still there. A row whose
// channel was deleted out of band is marked closed so the user is not
// stuck with a thread nobody can see.
func (m *Manager) stillOpen(ctx context.Context, thread storage.Thread) bool {
	exists, err := m.platform.ChannelExists(ctx, thread.ChannelID)
	if err != nil || exists {
		return true
	}

	m.logger.Warn("thread channel missing, closing stale thread",
		zap.Int64("thread_id", thread.ID), zap.String("channel_id", thread.ChannelID))
	_ = m.store.CloseThread(ctx, thread.ID, "system", "channel removed", m.clock.Now())
	m.mu.Lock()
	delete(m.byChan, thread.ChannelID)
	m.mu.Unlock()
	return false
}

// reserve takes the in-process create lock for a (kind, guild, user)
// triple so two handlers never race to make the same channel.
func (m *Manager) reserve(kind, guildID, userID string) (func(), error) {
	key := kind + ":" + guildID + ":" + userID
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return nil, storage.ErrThreadOpen
	}
	m.inflight[key] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}, nil
}

func (m *Manager) index(thread storage.Thread) {
	m.mu.Lock()
	m.byChan[thread.ChannelID] = thread
	m.mu.Unlock()
}

// lookup resolves a channel to its open thread, falling back to storage
// when the in-memory index is cold, e.g. after a restart.
func (m *Manager) lookup(ctx context.Context, channelID string) (storage.Thread, bool, error) {
	m.mu.Lock()
	thread, ok := m.byChan[channelID]
	m.mu.Unlock()
	if ok {
		return thread, true, nil
	}

	thread, found, err := m.store.FindThreadByChannel(ctx, channelID)
	if err != nil || !found {
		return storage.Thread{}, false, err
	}
	if thread.Status != storage.ThreadStatusOpen {
		return storage.Thread{}, false, nil
	}
	m.index(thread)
	return thread, true, nil
}

func actionFor(kind string) string {
	if kind == storage.ThreadKindModmail {
		return modlog.ActionModmail
	}
	return modlog.ActionTicket
}
