package model

// TriggerSource identifies the transport a trigger arrived on. All sources
// converge on the same Trigger message so the engine has a single decision
// point per repository.
type TriggerSource string

const (
	SourceManual  TriggerSource = "manual"
	SourceWebhook TriggerSource = "webhook"
	SourcePoll    TriggerSource = "poll"
)

// TriggerKind names the lifecycle action a trigger requests.
type TriggerKind string

const (
	TriggerTaskmaster TriggerKind = "taskmaster"
	TriggerWorkNext   TriggerKind = "work_next"
	TriggerReview     TriggerKind = "review"
	TriggerIntegrate  TriggerKind = "integrate"
)

// Trigger is the uniform message consumed by the orchestration engine.
// Transport adapters (HTTP webhook handler, poll loop, manual endpoints)
// translate inbound requests into this shape.
type Trigger struct {
	Source      TriggerSource
	Kind        TriggerKind
	RepoID      string
	DeliveryID  string // dedup key; "" for manual triggers, which are never deduplicated
	Fingerprint string // semantic event identity, recorded alongside the delivery
	PR          *PullRequest
}
