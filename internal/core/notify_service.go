package core

import (
	"context"
	"fmt"

	"attendance.gateway/pkg/kst"
	"attendance.gateway/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier sends a late-arrival notice for one attendance record.
type Notifier interface {
	SendLateArrivalNotice(ctx context.Context, to, day string, clockIn string) error
}

type SESNotifier struct {
	client *ses.Client
	sender string
}

func NewSESNotifier(client *ses.Client, sender string) *SESNotifier {
	return &SESNotifier{client: client, sender: sender}
}

func (s *SESNotifier) SendLateArrivalNotice(ctx context.Context, to, day string, clockIn string) error {
	tracer := otel.Tracer("ses-notifier")
	ctx, span := tracer.Start(ctx, "send_email", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// Enrich span with employeeId if available in context
	if empID := telemetry.GetEmployeeIDFromContext(ctx); empID != "" {
		span.SetAttributes(attribute.String("app.employeeId", empID))
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Late Arrival Notice"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(fmt.Sprintf("Hello,\n\nA late clock-in was recorded on %s at %s (KST).", kst.DisplayDate(day), clockIn)),
				},
			},
		},
	}

	_, err := s.client.SendEmail(ctx, input)
	return err
}
