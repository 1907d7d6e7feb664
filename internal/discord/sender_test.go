package discord

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	channelID string
	content   string
}

// fakeSession captures outbound calls in place of a live gateway session.
type fakeSession struct {
	sent      []sentMessage
	typing    []string
	sendCalls int
	sendErr   error
}

func (f *fakeSession) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelTyping(channelID string, _ ...discordgo.RequestOption) error {
	f.typing = append(f.typing, channelID)
	return nil
}

func TestSplitMessageShortContent(t *testing.T) {
	chunks := splitMessage("hello world", 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitMessageBreaksAtLineBoundaries(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("line %02d %s", i, strings.Repeat("x", 32)))
	}
	content := strings.Join(lines, "\n")

	chunks := splitMessage(content, 100)

	require.Len(t, chunks, 5)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100, "chunk %d over limit", i)
	}
	assert.Equal(t, content, strings.Join(chunks, "\n"), "line splits must reassemble losslessly")
}

func TestSplitMessageKeepsCodeBlocksFenced(t *testing.T) {
	lines := []string{"intro text", "```go"}
	for i := 0; i < 8; i++ {
		lines = append(lines, fmt.Sprintf("fmt.Println(%02d)", i))
	}
	lines = append(lines, "```", "outro")
	content := strings.Join(lines, "\n")

	chunks := splitMessage(content, 100)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0], "\n```"), "split inside a block must close the fence")
	assert.True(t, strings.HasPrefix(chunks[1], "```go\n"), "next chunk must reopen with the language tag")
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100, "chunk %d over limit", i)
		assert.Zero(t, strings.Count(chunk, "```")%2, "chunk %d has an unpaired fence", i)
	}

	combined := strings.Join(chunks, "\n")
	for i := 0; i < 8; i++ {
		assert.Contains(t, combined, fmt.Sprintf("fmt.Println(%02d)", i))
	}
}

func TestSplitMessageCutsOversizedLines(t *testing.T) {
	content := strings.Repeat("a", 500)

	chunks := splitMessage(content, 100)

	require.Len(t, chunks, 6)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100, "chunk %d over limit", i)
	}
	assert.Equal(t, content, strings.Join(chunks, ""))
}

func TestSendLongMessageSingleSend(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	session := &fakeSession{}

	h.sendLongMessage(session, "chan-1", "short and sweet")

	require.Len(t, session.sent, 1)
	assert.Equal(t, "chan-1", session.sent[0].channelID)
	assert.Equal(t, "short and sweet", session.sent[0].content)
}

func TestSendLongMessageAddsPartIndicators(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	session := &fakeSession{}

	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, fmt.Sprintf("%02d %s", i, strings.Repeat("z", 47)))
	}
	content := strings.Join(lines, "\n")
	require.Greater(t, len(content), 2000, "fixture must exceed the platform limit")

	h.sendLongMessage(session, "chan-1", content)

	require.GreaterOrEqual(t, len(session.sent), 2)
	var rebuilt []string
	for i, msg := range session.sent {
		assert.LessOrEqual(t, len(msg.content), 2000, "part %d over platform limit", i+1)
		suffix := fmt.Sprintf("*(Part %d/%d)*", i+1, len(session.sent))
		require.True(t, strings.HasSuffix(msg.content, suffix), "part %d missing indicator", i+1)
		rebuilt = append(rebuilt, strings.TrimSuffix(msg.content, "\n"+suffix))
	}
	assert.Equal(t, content, strings.Join(rebuilt, "\n"))
}

func TestSendLongMessageStopsAfterSendFailure(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	session := &fakeSession{sendErr: errors.New("gateway down")}

	content := strings.Repeat("words words words\n", 200)
	require.Greater(t, len(content), 2000)

	h.sendLongMessage(session, "chan-1", content)

	assert.Equal(t, 1, session.sendCalls, "remaining chunks must not be attempted")
	assert.Empty(t, session.sent)
}
