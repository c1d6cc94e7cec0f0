package observability

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrRunID          = "orchestrator.run_id"
	AttrTaskID         = "orchestrator.task_id"
	AttrAgentID        = "orchestrator.agent_id"
	AttrEventID        = "orchestrator.event_id"
	AttrErrorType      = "error.type"

	SpanTaskRun     = "orchestrator.task_run"
	SpanAgentInvoke = "orchestrator.agent_invoke"

	DefaultServiceName  = "contentgraph-orchestrator"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
