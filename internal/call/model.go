package call

// CallJob is one outbound call request. It is not modified after it is queued.
type CallJob struct {
	ListingID   string   `json:"listing_id"`
	Destination *string  `json:"destination,omitempty"`
	Questions   []string `json:"questions"`
	SearchID    string   `json:"search_id"`
	// Attempt counts admissions denied by the rate limiter so far.
	Attempt int `json:"attempt"`
}

func (job CallJob) DestinationNumber() string {
	if job.Destination == nil {
		return ""
	}

	return *job.Destination
}

// Requeued returns a copy of the job with one more denied admission.
func (job CallJob) Requeued() CallJob {
	job.Attempt++
	return job
}
