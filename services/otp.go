package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"sportsocial/db"
	"sportsocial/models"
	"sportsocial/utils/log"

	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
)

const (
	OTP_TTL          = 5 * time.Minute
	OTP_DIGITS       = 6
	OTP_MAX_ATTEMPTS = 5

	OtpPurposeLogin = "login"
)

// SmsSender - то, что умеет доставить текст на телефон (SmsChain)
type SmsSender interface {
	Send(ctx context.Context, phoneNumber, message string) SmsResult
}

type OtpService struct {
	sms      SmsSender
	generate func() (string, error)
}

func NewOtpService(sms SmsSender) *OtpService {
	return &OtpService{sms: sms, generate: generateOtpCode}
}

func generateOtpCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTP_DIGITS, n.Int64()), nil
}

// hashOtp - соль и хеш argon2id в hex через "$"
func hashOtp(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(code), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

func verifyOtp(code, stored string) bool {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	hash := argon2.IDKey([]byte(code), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, expected) == 1
}

func normalizePurpose(purpose string) string {
	purpose = strings.ToLower(strings.TrimSpace(purpose))
	if purpose == "" {
		return OtpPurposeLogin
	}
	return purpose
}

// IssueOtp создает код, сохраняет его хеш и отправляет код через цепочку SMS провайдеров
func (s *OtpService) IssueOtp(ctx context.Context, phoneNumber, purpose string) (SmsResult, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return SmsResult{}, fmt.Errorf("phone number is required: %w", ErrValidation)
	}

	code, err := s.generate()
	if err != nil {
		return SmsResult{}, fmt.Errorf("failed to generate code: %w", err)
	}
	hash, err := hashOtp(code)
	if err != nil {
		return SmsResult{}, fmt.Errorf("failed to hash code: %w", err)
	}

	otp := &models.OtpCode{
		PhoneNumber: phoneNumber,
		CodeHash:    hash,
		Purpose:     normalizePurpose(purpose),
		ExpiresAt:   time.Now().Add(OTP_TTL),
	}
	if err := db.GetWriteDB(ctx).Create(otp).Error; err != nil {
		return SmsResult{}, fmt.Errorf("failed to save otp: %w", err)
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(OTP_TTL.Minutes()))
	result := s.sms.Send(ctx, phoneNumber, message)
	log.Log.WithField("phone", maskPhone(phoneNumber)).WithField("provider", result.Provider).Info("otp issued")
	return result, nil
}

// ConfirmOtp гасит самый свежий неиспользованный и непросроченный код
func (s *OtpService) ConfirmOtp(ctx context.Context, phoneNumber, purpose, code string) error {
	var otp models.OtpCode
	err := db.GetWriteDB(ctx).
		Where("phone_number = ? AND purpose = ? AND is_used = ? AND expires_at > ?",
			strings.TrimSpace(phoneNumber), normalizePurpose(purpose), false, time.Now()).
		Order("created_at DESC").
		First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no active code: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load otp: %w", err)
	}
	if !verifyOtp(strings.TrimSpace(code), otp.CodeHash) {
		s.registerFailedAttempt(ctx, otp.ID)
		return fmt.Errorf("code mismatch: %w", ErrUnauthorized)
	}

	res := db.GetWriteDB(ctx).Model(&models.OtpCode{}).
		Where("id = ? AND is_used = ?", otp.ID, false).
		Update("is_used", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark otp: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("code already used: %w", ErrConflict)
	}
	return nil
}

// registerFailedAttempt считает неверные вводы; после OTP_MAX_ATTEMPTS код гасится
func (s *OtpService) registerFailedAttempt(ctx context.Context, otpID string) {
	err := db.GetWriteDB(ctx).Model(&models.OtpCode{}).
		Where("id = ? AND is_used = ?", otpID, false).
		Updates(map[string]interface{}{
			"attempts": gorm.Expr("attempts + 1"),
			"is_used":  gorm.Expr("attempts + 1 >= ?", OTP_MAX_ATTEMPTS),
		}).Error
	if err != nil {
		log.Log.WithError(err).WithField("otp_id", otpID).Warn("failed to count otp attempt")
	}
}
