package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func TestVerifySignature_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.completed","data":{}}`)
	header := Sign(time.Now(), payload, testSecret)

	err := VerifySignature(payload, header, testSecret)
	assert.NoError(t, err)
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount":100}`)
	header := Sign(time.Now(), payload, testSecret)

	tampered := []byte(`{"id":"evt_1","amount":999}`)
	err := VerifySignature(tampered, header, testSecret)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := Sign(time.Now(), payload, "whsec_other")

	err := VerifySignature(payload, header, testSecret)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := Sign(time.Now().Add(-SignatureTolerance-time.Minute), payload, testSecret)

	err := VerifySignature(payload, header, testSecret)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifySignature_FutureTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := Sign(time.Now().Add(SignatureTolerance+time.Minute), payload, testSecret)

	err := VerifySignature(payload, header, testSecret)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifySignature_MalformedHeaders(t *testing.T) {
	payload := []byte(`{}`)
	cases := []string{
		"",
		"garbage",
		"t=abc,v1=deadbeef",
		"v1=deadbeef",
		fmt.Sprintf("t=%d", time.Now().Unix()),
	}
	for _, header := range cases {
		t.Run(fmt.Sprintf("header=%q", header), func(t *testing.T) {
			err := VerifySignature(payload, header, testSecret)
			require.ErrorIs(t, err, ErrSignatureInvalid)
		})
	}
}

func TestSign_HeaderShape(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	header := Sign(ts, []byte("body"), testSecret)
	assert.Contains(t, header, "t=1700000000,v1=")
}
