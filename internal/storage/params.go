package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI defines the SSM operations used by the runtime parameter store.
type SSMAPI interface {
	// GetParameter retrieves a parameter from SSM.
	GetParameter(
		ctx context.Context,
		params *ssm.GetParameterInput,
		optFns ...func(*ssm.Options),
	) (*ssm.GetParameterOutput, error)
}

// RuntimeParams reads operator-tunable parameters from SSM Parameter Store.
// Absent parameters fall back to the configured defaults, so the parameters
// only need to exist when an operator wants to override a value without a
// redeploy.
type RuntimeParams struct {
	// approvalCodesParameter is the parameter overriding approval status codes.
	approvalCodesParameter string

	// client is the SSM API client.
	client SSMAPI

	// recipientsParameter is the parameter overriding notification recipients.
	recipientsParameter string
}

// NewRuntimeParams creates a new SSM-backed runtime parameter store.
// Either parameter name may be empty, disabling that override.
func NewRuntimeParams(client SSMAPI, approvalCodesParameter string, recipientsParameter string) (*RuntimeParams, error) {
	if client == nil {
		return nil, errors.New("ssm client is required")
	}

	return &RuntimeParams{
		approvalCodesParameter: approvalCodesParameter,
		client:                 client,
		recipientsParameter:    recipientsParameter,
	}, nil
}

// ApprovalStatusCodes returns the approval status code whitelist, preferring
// the SSM override over the given defaults.
func (p *RuntimeParams) ApprovalStatusCodes(ctx context.Context, defaults []int) ([]int, error) {
	value, err := p.parameterValue(ctx, p.approvalCodesParameter)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return defaults, nil
	}

	var codes []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parsing approval status code %q: %w", part, err)
		}
		codes = append(codes, code)
	}

	if len(codes) == 0 {
		return defaults, nil
	}
	return codes, nil
}

// NotificationRecipients returns the notification recipient list, preferring
// the SSM override over the given defaults.
func (p *RuntimeParams) NotificationRecipients(ctx context.Context, defaults []string) ([]string, error) {
	value, err := p.parameterValue(ctx, p.recipientsParameter)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return defaults, nil
	}

	var recipients []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			recipients = append(recipients, part)
		}
	}

	if len(recipients) == 0 {
		return defaults, nil
	}
	return recipients, nil
}

// parameterValue reads one parameter. An unset name or a missing parameter
// yields an empty value, not an error.
func (p *RuntimeParams) parameterValue(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}

	output, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		var notFoundErr *types.ParameterNotFound
		if errors.As(err, &notFoundErr) {
			return "", nil
		}
		return "", fmt.Errorf("getting parameter from SSM: %w", err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", nil
	}
	return *output.Parameter.Value, nil
}
