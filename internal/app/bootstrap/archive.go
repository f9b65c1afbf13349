package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/dental-voice-booking/internal/archive"
	appconfig "github.com/wolfman30/dental-voice-booking/internal/config"
	"github.com/wolfman30/dental-voice-booking/internal/http/handlers"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// BuildTranscriptArchive returns nil unless a bucket and AWS config exist.
func BuildTranscriptArchive(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) handlers.TranscriptArchiver {
	if cfg.TranscriptArchiveBucket == "" {
		return nil
	}
	if awsCfg == nil {
		logger.Warn("TRANSCRIPT_ARCHIVE_BUCKET set without AWS config; transcripts are not archived")
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		// LocalStack serves buckets by path.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	logger.Info("transcript archive enabled", "bucket", cfg.TranscriptArchiveBucket)
	return archive.NewStore(client, cfg.TranscriptArchiveBucket, logger)
}
