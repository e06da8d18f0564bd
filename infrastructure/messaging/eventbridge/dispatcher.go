package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"carechat/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// DetailTypeExtractionRequested is the detail type matched by the profile
// worker's rule
const DetailTypeExtractionRequested = "profile.extraction.requested"

// Dispatcher hands extraction jobs to the profile worker Lambda through an
// EventBridge rule
type Dispatcher struct {
	client       PutEventsAPI
	eventBusName string
}

// NewDispatcher creates an EventBridge extraction dispatcher
func NewDispatcher(client PutEventsAPI, eventBusName string) *Dispatcher {
	return &Dispatcher{client: client, eventBusName: eventBusName}
}

// Dispatch implements ports.ExtractionDispatcher
func (d *Dispatcher) Dispatch(ctx context.Context, job ports.ExtractionJob) error {
	detail, err := json.Marshal(job)
	if err != nil {
		return err
	}

	out, err := d.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(d.eventBusName),
			Source:       aws.String(Source),
			DetailType:   aws.String(DetailTypeExtractionRequested),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(job.RequestedAt),
		}},
	})
	if err != nil {
		return fmt.Errorf("dispatch extraction: %w", err)
	}
	if out.FailedEntryCount > 0 && len(out.Entries) > 0 {
		return fmt.Errorf("dispatch extraction: %s", aws.ToString(out.Entries[0].ErrorMessage))
	}
	return nil
}

// DecodeJob reads a job from an event detail
func DecodeJob(detail json.RawMessage) (ports.ExtractionJob, error) {
	var job ports.ExtractionJob
	if err := json.Unmarshal(detail, &job); err != nil {
		return job, fmt.Errorf("decode extraction job: %w", err)
	}
	return job, nil
}
