// ABOUTME: Tests for invitation email rendering: content, expiry formatting, escaping.
// ABOUTME: HTML injection via org name must come out escaped.
package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderInvitation(t *testing.T) {
	t.Parallel()
	expires := time.Date(2026, 9, 6, 12, 30, 0, 0, time.UTC)
	subject, html, text, err := RenderInvitation(InvitationTemplateData{
		OrgName:     "Sailing Club Norway",
		Role:        "coach",
		InviterName: "Alice",
		AcceptURL:   "https://club.example.com/invitations/tok-123",
		ExpiresAt:   expires,
	})
	require.NoError(t, err)

	assert.Equal(t, "You have been invited to join Sailing Club Norway", subject)
	for _, body := range []string{html, text} {
		assert.Contains(t, body, "Sailing Club Norway")
		assert.Contains(t, body, "coach")
		assert.Contains(t, body, "https://club.example.com/invitations/tok-123")
		assert.Contains(t, body, "Sun, 06 Sep 2026 12:30:00 UTC")
	}
	assert.Contains(t, html, "Alice")
}

// Non-UTC inputs are normalized so the email always shows one timezone.
func TestRenderInvitationExpiryInUTC(t *testing.T) {
	t.Parallel()
	oslo := time.FixedZone("CEST", 2*60*60)
	_, _, text, err := RenderInvitation(InvitationTemplateData{
		OrgName:     "Sailing Club Norway",
		Role:        "member",
		InviterName: "Alice",
		AcceptURL:   "https://club.example.com/invitations/tok-789",
		ExpiresAt:   time.Date(2026, 9, 6, 14, 30, 0, 0, oslo),
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Sun, 06 Sep 2026 12:30:00 UTC")
}

func TestRenderInvitationEscapesHTML(t *testing.T) {
	t.Parallel()
	_, html, _, err := RenderInvitation(InvitationTemplateData{
		OrgName:     `<script>alert("x")</script>`,
		Role:        "member",
		InviterName: "Mallory",
		AcceptURL:   "https://club.example.com/invitations/tok-456",
		ExpiresAt:   time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.False(t, strings.Contains(html, "<script>"), "org name must be escaped in HTML body")
}
