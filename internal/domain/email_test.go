package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in       string
		expected Priority
		wantErr  bool
	}{
		{"", PriorityNormal, false},
		{"normal", PriorityNormal, false},
		{"LOW", PriorityLow, false},
		{" high ", PriorityHigh, false},
		{"urgent", PriorityUrgent, false},
		{"whenever", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPriority))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEmailMessage_Text(t *testing.T) {
	m := &EmailMessage{Snippet: "short", Body: "full body"}
	assert.Equal(t, "full body", m.Text())

	m.Body = "  "
	assert.Equal(t, "short", m.Text())
}

func TestValidateOutboundEmail(t *testing.T) {
	assert.NoError(t, ValidateOutboundEmail(&OutboundEmail{To: "a@b.com", Subject: "Hi"}))
	assert.ErrorContains(t, ValidateOutboundEmail(&OutboundEmail{Subject: "Hi"}), "to is required")
	assert.ErrorContains(t, ValidateOutboundEmail(&OutboundEmail{To: "a@b.com"}), "subject is required")
	assert.Error(t, ValidateOutboundEmail(nil))
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Refund request", ReplySubject("Refund request"))
	assert.Equal(t, "RE: Refund request", ReplySubject("RE: Refund request"))
	assert.Equal(t, "Re: ", ReplySubject(""))
}
