package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds how old a signed timestamp may be. Replays of a
// captured delivery outside this window are rejected even with a valid MAC.
const SignatureTolerance = 5 * time.Minute

// Sign produces the signature header for a payload: "t=<unix>,v1=<hex>",
// where v1 is HMAC-SHA256 over "<unix>.<payload>".
func Sign(ts time.Time, payload []byte, secret string) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, computeMAC(unix, payload, secret))
}

// VerifySignature checks a signature header against the raw request body.
// It runs on unparsed bytes: nothing in the payload is decoded before the
// MAC comparison, and the comparison itself is constant time.
func VerifySignature(payload []byte, header, secret string) error {
	ts, mac, err := splitHeader(header)
	if err != nil {
		return err
	}

	age := time.Since(time.Unix(ts, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	expected := computeMAC(ts, payload, secret)
	if !hmac.Equal([]byte(mac), []byte(expected)) {
		return ErrSignatureInvalid
	}
	return nil
}

func computeMAC(unix int64, payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", unix)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func splitHeader(header string) (ts int64, mac string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
			}
		case "v1":
			mac = v
		}
	}
	if ts == 0 || mac == "" {
		return 0, "", fmt.Errorf("%w: malformed header", ErrSignatureInvalid)
	}
	return ts, mac, nil
}
