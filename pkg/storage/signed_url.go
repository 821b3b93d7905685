package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("malformed download token")
	ErrTokenSignature = errors.New("invalid download token signature")
	ErrTokenExpired   = errors.New("download token expired")
)

// DownloadToken is the decoded content of a signed download link.
type DownloadToken struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-SHA256 signed download tokens of the form
// jobID.expiry.base64(path).signature.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate signs a token for the stored file of jobID.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("job id and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	return strings.Join([]string{jobID, ts, encodedPath, s.sign(jobID, ts, encodedPath)}, "."), expiresAt, nil
}

// Parse verifies the signature and, unless allowExpired is set, the expiry.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (DownloadToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return DownloadToken{}, ErrTokenMalformed
	}
	jobID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(jobID, ts, encodedPath)), []byte(signature)) {
		return DownloadToken{}, ErrTokenSignature
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return DownloadToken{}, ErrTokenMalformed
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return DownloadToken{}, ErrTokenMalformed
	}

	parsed := DownloadToken{JobID: jobID, Path: string(rawPath), ExpiresAt: time.Unix(expUnix, 0)}
	if !allowExpired && s.now().After(parsed.ExpiresAt) {
		return DownloadToken{}, ErrTokenExpired
	}
	return parsed, nil
}

func (s *SignedURLSigner) sign(jobID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(jobID + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
