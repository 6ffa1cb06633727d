package cache

// Set groups the three caches of a processing plant. On the repository only
// Tasks is populated.
type Set struct {
	Tasks        *TaskGrid
	JobCards     *JobCardCache
	Fulfillments *FulfillmentTaskCache
}

// NewSet creates a full set of empty caches
func NewSet() Set {
	return Set{
		Tasks:        NewTaskGrid(),
		JobCards:     NewJobCardCache(),
		Fulfillments: NewFulfillmentTaskCache(),
	}
}
