package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/entity"
)

// SendMessageAPI is the slice of the SQS client the notifier uses.
type SendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NewListingMessage is the body published for every notified listing.
type NewListingMessage struct {
	ListingID    string    `json:"listing_id"`
	CanonicalURL string    `json:"canonical_url"`
	Source       string    `json:"source"`
	ListingKind  string    `json:"listing_kind"`
	Title        string    `json:"title"`
	PriceMinor   int64     `json:"price_minor"`
	BedroomsNum  *int      `json:"bedrooms_num,omitempty"`
	AreaM2       *float64  `json:"area_m2,omitempty"`
	ParishID     *int      `json:"parish_id,omitempty"`
	CountyID     *int      `json:"county_id,omitempty"`
	DistrictID   *int      `json:"district_id,omitempty"`
	ImageURLs    []string  `json:"image_urls"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
}

type NotifierImpl struct {
	client   SendMessageAPI
	queueURL string
}

func NewNotifier(client SendMessageAPI, queueURL string) *NotifierImpl {
	return &NotifierImpl{client: client, queueURL: queueURL}
}

func (n *NotifierImpl) NotifyNew(ctx context.Context, l *entity.Listing) error {
	body, err := json.Marshal(NewListingMessage{
		ListingID:    l.ID,
		CanonicalURL: l.CanonicalURL,
		Source:       string(l.Source),
		ListingKind:  string(l.Kind),
		Title:        l.Title,
		PriceMinor:   l.PriceMinor,
		BedroomsNum:  l.BedroomsNum,
		AreaM2:       l.AreaM2,
		ParishID:     l.ParishID,
		CountyID:     l.CountyID,
		DistrictID:   l.DistrictID,
		ImageURLs:    l.ImageURLs,
		FirstSeenAt:  l.FirstSeenAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"source": {DataType: aws.String("String"), StringValue: aws.String(string(l.Source))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", n.queueURL, err)
	}
	return nil
}

// LogNotifier records notifications in the log when no queue is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) NotifyNew(_ context.Context, l *entity.Listing) error {
	n.logger.Info("new listing under price threshold",
		zap.String("source", string(l.Source)),
		zap.String("url", l.CanonicalURL),
		zap.Int64("price_minor", l.PriceMinor),
	)
	return nil
}
