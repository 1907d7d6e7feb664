package discord

import (
	"sync"

	"github.com/f0rky/Chimp-GPT-sub004/internal/conversation"
)

// defaultWindowSize is how many recent messages each channel retains for
// context building.
const defaultWindowSize = 50

// ChannelMemory keeps a rolling window of recent messages per channel.
// Oldest messages fall off once a channel reaches capacity.
type ChannelMemory struct {
	mu       sync.Mutex
	capacity int
	channels map[string][]conversation.Message
}

// NewChannelMemory creates a memory with the given per-channel capacity;
// zero or negative selects the default of 50.
func NewChannelMemory(capacity int) *ChannelMemory {
	if capacity <= 0 {
		capacity = defaultWindowSize
	}
	return &ChannelMemory{
		capacity: capacity,
		channels: make(map[string][]conversation.Message),
	}
}

// Record appends one message to the channel's window.
func (m *ChannelMemory) Record(channelID string, msg conversation.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := append(m.channels[channelID], msg)
	if len(window) > m.capacity {
		window = append(window[:0:0], window[len(window)-m.capacity:]...)
	}
	m.channels[channelID] = window
}

// Window returns a copy of the channel's recent messages, oldest first.
func (m *ChannelMemory) Window(channelID string) []conversation.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.channels[channelID]
	out := make([]conversation.Message, len(window))
	copy(out, window)
	return out
}

// UserCounts tallies messages per user in the channel's window, the
// activity signal for relevance scoring.
func (m *ChannelMemory) UserCounts(channelID string) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, msg := range m.channels[channelID] {
		counts[msg.UserID]++
	}
	return counts
}

// Channels reports how many channels hold any messages.
func (m *ChannelMemory) Channels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}
