package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
)

const SignatureHeader = "Stripe-Signature"

// verifySignature checks a `t=<unix>,v1=<hex>[,v1=...]` header against the raw
// body. Any matching v1 signature is accepted, which lets the processor roll
// secrets.
func verifySignature(secret string, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%w: missing %s header", domain.ErrInvalidSignature, SignatureHeader)
	}

	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	if tolerance > 0 {
		signedAt := time.Unix(ts, 0)
		if now.Sub(signedAt) > tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrInvalidSignature)
		}
	}

	expected := computeSignature(secret, ts, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", domain.ErrInvalidSignature)
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  string
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		keyValue := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return 0, nil, errors.New("malformed signature header")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return 0, nil, errors.New("malformed signature timestamp")
	}
	return ts, signatures, nil
}

func computeSignature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign builds a header value the way the processor does. Used by the dev
// tooling and tests.
func Sign(secret string, at time.Time, payload []byte) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(secret, ts, payload))
}
