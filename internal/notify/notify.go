// Package notify delivers operator notifications about courses that were
// skipped during synchronization because of an active sync lock.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI defines the SES operations used by the notifier.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config holds the required configuration for creating an EmailNotifier.
type Config struct {
	// Client is the SES client.
	Client SESAPI

	// Recipients are the operator addresses to notify.
	Recipients []string

	// Sender is the verified from-address.
	Sender string
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Client == nil {
		errs = append(errs, errors.New("SES client is required"))
	}
	if len(c.Recipients) == 0 {
		errs = append(errs, errors.New("at least one recipient is required"))
	}
	if c.Sender == "" {
		errs = append(errs, errors.New("sender address is required"))
	}
	return errors.Join(errs...)
}

// EmailNotifier sends lock notifications by email through SES.
type EmailNotifier struct {
	client     SESAPI
	recipients []string
	sender     string
}

// NewEmailNotifier creates a new SES-backed notifier.
func NewEmailNotifier(cfg Config) (*EmailNotifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &EmailNotifier{
		client:     cfg.Client,
		recipients: cfg.Recipients,
		sender:     cfg.Sender,
	}, nil
}

// NotifyLockedCourses emails operators the realisation ids that were skipped
// because of an active sync lock. Locks are never released automatically, so
// each listed course stays out of synchronization until someone resolves it.
func (n *EmailNotifier) NotifyLockedCourses(ctx context.Context, realisationIDs []string) error {
	if len(realisationIDs) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Enrollment sync skipped %d locked course(s)", len(realisationIDs))
	body := lockedCoursesBody(realisationIDs)

	input := &sesv2.SendEmailInput{
		Content: &types.EmailContent{
			Simple: &types.Message{
				Body: &types.Body{
					Text: &types.Content{Data: &body},
				},
				Subject: &types.Content{Data: &subject},
			},
		},
		Destination: &types.Destination{
			ToAddresses: n.recipients,
		},
		FromEmailAddress: &n.sender,
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("sending lock notification email: %w", err)
	}

	return nil
}

func lockedCoursesBody(realisationIDs []string) string {
	var b strings.Builder
	b.WriteString("The following course realisations were skipped during enrollment synchronization because they have an active sync lock:\n\n")
	for _, id := range realisationIDs {
		fmt.Fprintf(&b, "  - %s\n", id)
	}
	b.WriteString("\nLocked courses are not synchronized until the lock is resolved manually.\n")
	return b.String()
}
