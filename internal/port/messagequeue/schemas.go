package messagequeue

// DispatchTimeoutSeconds is the fixed execution budget carried in every
// dispatched task message.
const DispatchTimeoutSeconds = 30 * 60

// ExecutionContext is the denormalized task payload a worker needs to run
// without further database reads.
type ExecutionContext struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	RunnerType     string `json:"runner_type"`
	Model          string `json:"model,omitempty"`
	KeySecretRef   string `json:"key_secret_ref,omitempty"`
	ProxyURL       string `json:"proxy_url,omitempty"`
	SpaceCloneURL  string `json:"space_clone_url,omitempty"`
	SpaceDir       string `json:"space_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// TaskDispatchPayload is the schema for tasks.dispatch messages.
type TaskDispatchPayload struct {
	TaskID    string           `json:"task_id"`
	SessionID string           `json:"session_id"`
	ProjectID string           `json:"project_id"`
	Context   ExecutionContext `json:"context"`
}

// TaskResultPayload is the schema for tasks.result messages.
type TaskResultPayload struct {
	TaskID    string  `json:"task_id"`
	SessionID string  `json:"session_id"`
	Status    string  `json:"status"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
}

// DeadLetterPayload wraps a message routed to the dead letter subject with
// the delivery history that exhausted its retry budget.
type DeadLetterPayload struct {
	Subject       string `json:"subject"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Attempts      int    `json:"attempts"`
	Data          []byte `json:"data"`
	Reason        string `json:"reason,omitempty"`
}
