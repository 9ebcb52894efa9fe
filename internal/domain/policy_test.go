package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicy(t *testing.T) {
	now := time.Now()
	p := NewPolicy("policy_1", "Refund Policy", "Refunds within 30 days.", "billing",
		[]string{" refund ", "Refund", "", "money back"}, now)

	assert.Equal(t, "policy_1", p.ID)
	assert.Equal(t, "Refund Policy", p.Title)
	assert.Equal(t, "billing", p.Category)
	assert.Equal(t, []string{"refund", "money back"}, p.Keywords)
	assert.Equal(t, now, p.CreatedAt)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  *Policy
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid policy",
			policy:  &Policy{ID: "policy_1", Title: "Support Hours", Content: "9 to 5"},
			wantErr: false,
		},
		{
			name:    "nil policy",
			policy:  nil,
			wantErr: true,
			errMsg:  "missing required field",
		},
		{
			name:    "blank title",
			policy:  &Policy{Title: "   ", Content: "text"},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "blank content",
			policy:  &Policy{Title: "Title", Content: "\n\t"},
			wantErr: true,
			errMsg:  "content is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePolicy(tt.policy)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)

			var domainErr *DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, ErrCodeValidation, domainErr.Code)
		})
	}
}

func TestNormalizeKeywords_Empty(t *testing.T) {
	assert.Empty(t, NormalizeKeywords(nil))
	assert.Empty(t, NormalizeKeywords([]string{" ", ""}))
}

func TestDomainError_IsMatchesWrappedSentinel(t *testing.T) {
	err := NewDomainErrorWithCause(ErrCodeNotFound, "policy not found", errors.New("no rows"))

	assert.True(t, errors.Is(err, ErrPolicyNotFound))
	assert.False(t, errors.Is(err, ErrInvalidPriority))
	assert.Equal(t, "[NOT_FOUND] policy not found: no rows", err.Error())
}
