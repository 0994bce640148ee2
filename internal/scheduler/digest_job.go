package scheduler

import (
	"context"
	"fmt"
	"log"
)

// DigestSender is the slice of the notification service the digest job
// needs.
type DigestSender interface {
	SendDigests(ctx context.Context, frequencyKey string, dryRun bool) (int, error)
}

// DigestJob delivers all pending digests for one frequency. The
// scheduler submits one job per non-realtime frequency on each run; the
// service decides per user and type whether anything is due.
type DigestJob struct {
	sender       DigestSender
	frequencyKey string
}

func NewDigestJob(sender DigestSender, frequencyKey string) *DigestJob {
	return &DigestJob{sender: sender, frequencyKey: frequencyKey}
}

func (j *DigestJob) Execute(ctx context.Context) error {
	sent, err := j.sender.SendDigests(ctx, j.frequencyKey, false)
	if err != nil {
		return fmt.Errorf("failed to send %s digests: %w", j.frequencyKey, err)
	}
	log.Printf("Sent %d %s digest(s)", sent, j.frequencyKey)
	return nil
}

func (j *DigestJob) Name() string {
	return j.frequencyKey
}

func (j *DigestJob) Description() string {
	return "notification digest delivery"
}
