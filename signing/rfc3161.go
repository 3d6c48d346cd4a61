package signing

import (
	"bytes"
	"context"
	"encoding/asn1"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Timestamp is a best-effort RFC 3161 attestation over a document digest.
// Token holds the raw DER TimeStampResp returned by the authority.
type Timestamp struct {
	Token     []byte
	Time      time.Time
	Authority string
}

// Timestamper obtains trusted timestamps. Failures are downgraded by the
// finalizer, never fatal.
type Timestamper interface {
	Timestamp(ctx context.Context, digest []byte) (Timestamp, error)
}

var oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type messageImprint struct {
	HashAlgorithm algorithmIdentifier
	HashedMessage []byte
}

type timeStampReq struct {
	Version        int
	MessageImprint messageImprint
	CertReq        bool `asn1:"optional"`
}

// TSAClient speaks the RFC 3161 HTTP binding to one timestamp authority.
type TSAClient struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewTSAClient(url string, httpClient *http.Client) *TSAClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &TSAClient{url: url, client: httpClient, now: time.Now}
}

// Timestamp posts a timestamp query for the SHA-256 digest. The attested
// time recorded is the response time observed by this client; consumers that
// need the authority's genTime parse it from the returned token.
func (c *TSAClient) Timestamp(ctx context.Context, digest []byte) (Timestamp, error) {
	if len(digest) != 32 {
		return Timestamp{}, fmt.Errorf("signing: digest must be 32 bytes, got %d", len(digest))
	}

	req := timeStampReq{
		Version: 1,
		MessageImprint: messageImprint{
			HashAlgorithm: algorithmIdentifier{
				Algorithm: oidSHA256,
				Parameters: asn1.RawValue{
					Class: asn1.ClassUniversal,
					Tag:   asn1.TagNull,
				},
			},
			HashedMessage: digest,
		},
		CertReq: true,
	}
	der, err := asn1.Marshal(req)
	if err != nil {
		return Timestamp{}, fmt.Errorf("signing: marshal timestamp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(der))
	if err != nil {
		return Timestamp{}, fmt.Errorf("signing: build timestamp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	httpReq.Header.Set("Accept", "application/timestamp-reply")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Timestamp{}, fmt.Errorf("signing: timestamp request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Timestamp{}, fmt.Errorf("signing: read timestamp response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Timestamp{}, fmt.Errorf("signing: tsa returned status %d", resp.StatusCode)
	}
	if len(body) == 0 {
		return Timestamp{}, fmt.Errorf("signing: tsa returned empty response")
	}

	return Timestamp{
		Token:     body,
		Time:      c.now().UTC(),
		Authority: c.url,
	}, nil
}
