package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"sportsocial/db"
	"sportsocial/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSms struct {
	mu       sync.Mutex
	messages []string
	result   SmsResult
}

func (s *capturingSms) Send(ctx context.Context, phoneNumber, message string) SmsResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return s.result
}

func newTestOtpService(sms SmsSender, code string) *OtpService {
	svc := NewOtpService(sms)
	svc.generate = func() (string, error) { return code, nil }
	return svc
}

func TestIssueAndConfirmOtp(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	sms := &capturingSms{result: SmsResult{Success: true, Provider: "twilio"}}
	otp := newTestOtpService(sms, "482913")

	result, err := otp.IssueOtp(ctx, "+15550001111", "")
	require.NoError(t, err)
	assert.Equal(t, "twilio", result.Provider)
	require.Len(t, sms.messages, 1)
	assert.Contains(t, sms.messages[0], "482913")

	var stored models.OtpCode
	require.NoError(t, db.ORM.Where("phone_number = ?", "+15550001111").First(&stored).Error)
	assert.NotContains(t, stored.CodeHash, "482913")
	assert.Equal(t, OtpPurposeLogin, stored.Purpose)
	assert.WithinDuration(t, time.Now().Add(OTP_TTL), stored.ExpiresAt, 5*time.Second)

	assert.ErrorIs(t, otp.ConfirmOtp(ctx, "+15550001111", "login", "000000"), ErrUnauthorized)
	require.NoError(t, otp.ConfirmOtp(ctx, "+15550001111", "login", "482913"))
	assert.ErrorIs(t, otp.ConfirmOtp(ctx, "+15550001111", "login", "482913"), ErrNotFound)
}

func TestConfirmOtpBurnsCodeAfterTooManyMismatches(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	otp := newTestOtpService(&capturingSms{result: SmsResult{Success: true}}, "482913")
	_, err := otp.IssueOtp(ctx, "+15550002222", "")
	require.NoError(t, err)

	for i := 0; i < OTP_MAX_ATTEMPTS-1; i++ {
		assert.ErrorIs(t, otp.ConfirmOtp(ctx, "+15550002222", "", "000000"), ErrUnauthorized)
	}
	var stored models.OtpCode
	require.NoError(t, db.ORM.Where("phone_number = ?", "+15550002222").First(&stored).Error)
	assert.Equal(t, OTP_MAX_ATTEMPTS-1, stored.Attempts)
	assert.False(t, stored.IsUsed)

	assert.ErrorIs(t, otp.ConfirmOtp(ctx, "+15550002222", "", "111111"), ErrUnauthorized)
	assert.ErrorIs(t, otp.ConfirmOtp(ctx, "+15550002222", "", "482913"), ErrNotFound)

	// новый код выдается с чистым счетчиком
	_, err = otp.IssueOtp(ctx, "+15550002222", "")
	require.NoError(t, err)
	require.NoError(t, otp.ConfirmOtp(ctx, "+15550002222", "", "482913"))
}

func TestConfirmOtpRejectsExpiredCode(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	otp := newTestOtpService(&capturingSms{}, "111222")

	_, err := otp.IssueOtp(ctx, "+15550002222", "signup")
	require.NoError(t, err)
	require.NoError(t, db.ORM.Model(&models.OtpCode{}).Where("phone_number = ?", "+15550002222").
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	assert.ErrorIs(t, otp.ConfirmOtp(ctx, "+15550002222", "signup", "111222"), ErrNotFound)
}

func TestIssueOtpRequiresPhone(t *testing.T) {
	setupTestDB(t)
	_, err := NewOtpService(&capturingSms{}).IssueOtp(context.Background(), "  ", "login")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateOtpCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateOtpCode()
		require.NoError(t, err)
		assert.Len(t, code, OTP_DIGITS)
		assert.Empty(t, strings.Trim(code, "0123456789"))
	}
	hash, err := hashOtp("123456")
	require.NoError(t, err)
	assert.True(t, verifyOtp("123456", hash))
	assert.False(t, verifyOtp("654321", hash))
}
