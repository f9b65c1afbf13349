// Package archive keeps a PII-scrubbed copy of every post-call transcript the
// webhook receives in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const keyPrefix = "transcripts/v1"

// S3API is the part of the S3 client the store calls.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Transcript is one archived call.
type Transcript struct {
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id,omitempty"`
	CallEndedAt    time.Time `json:"call_ended_at,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
	Text           string    `json:"transcript"`
}

// Store writes transcripts to a bucket. A nil store or one without a bucket
// does nothing.
type Store struct {
	s3     S3API
	bucket string
	logger *logging.Logger
	now    func() time.Time
}

func NewStore(client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{s3: client, bucket: strings.TrimSpace(bucket), logger: logger, now: time.Now}
}

func (s *Store) Enabled() bool {
	return s != nil && s.s3 != nil && s.bucket != ""
}

// ArchiveTranscript scrubs t and stores it under
// transcripts/v1/YYYY/MM/DD/<conversation>.json, returning the key.
func (s *Store) ArchiveTranscript(ctx context.Context, t Transcript) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = s.now().UTC()
	}
	t.Text = ScrubPII(t.Text)

	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("archive: marshal transcript: %w", err)
	}
	key := objectKey(t)
	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	s.logger.Info("transcript archived", "conversation_id", t.ConversationID, "key", key, "bytes", len(body))
	return key, nil
}

func objectKey(t Transcript) string {
	day := t.ReceivedAt.UTC()
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(t.ConversationID))
	if id == "" {
		id = "unknown-" + uuid.NewString()
	}
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", keyPrefix, day.Year(), day.Month(), day.Day(), id)
}
