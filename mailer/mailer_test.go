package mailer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMessageID(t *testing.T) {
	id := GenerateMessageID("outreach@sender.test")
	assert.True(t, strings.HasSuffix(id, "@sender.test"), "id %q should carry the sender domain", id)
	assert.NotContains(t, id, "<")

	other := GenerateMessageID("outreach@sender.test")
	assert.NotEqual(t, id, other, "every message gets a fresh id")
}

func TestGenerateMessageIDFallbackDomain(t *testing.T) {
	assert.True(t, strings.HasSuffix(GenerateMessageID("not-an-address"), "@localhost"))
	assert.True(t, strings.HasSuffix(GenerateMessageID("trailing@"), "@localhost"))
}

func TestBuildMessageHeaders(t *testing.T) {
	gm := buildMessage(Message{
		FromEmail: "outreach@sender.test",
		FromName:  "Outreach Team",
		To:        "lead@corp.test",
		Subject:   "Hello",
		HTMLBody:  "<p>Hi</p>",
		Headers:   map[string]string{"X-Campaign": "launch"},
	}, "abc-123@sender.test")

	from := gm.GetHeader("From")
	require.Len(t, from, 1)
	assert.Equal(t, "Outreach Team <outreach@sender.test>", from[0])
	assert.Equal(t, []string{"lead@corp.test"}, gm.GetHeader("To"))
	assert.Equal(t, []string{"Hello"}, gm.GetHeader("Subject"))
	assert.Equal(t, []string{"<abc-123@sender.test>"}, gm.GetHeader("Message-Id"))
	assert.Equal(t, []string{"launch"}, gm.GetHeader("X-Campaign"))
}

func TestBuildMessageBareFrom(t *testing.T) {
	gm := buildMessage(Message{
		FromEmail: "outreach@sender.test",
		To:        "lead@corp.test",
	}, "id@sender.test")

	assert.Equal(t, []string{"outreach@sender.test"}, gm.GetHeader("From"))
}
