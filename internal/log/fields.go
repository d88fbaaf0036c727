package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldUserName    = "user_name"
	FieldPeriodKind  = "period_kind"
	FieldPeriodLabel = "period_label"
	FieldDestination = "destination"
	FieldSent        = "sent"
	FieldTotal       = "total"
	FieldErrors      = "errors"
	FieldAmountCents = "amount_cents"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentDispatch = "dispatch"
	ComponentWhatsApp = "whatsapp"
	ComponentAMQP     = "amqp"
	ComponentStorage  = "storage"
	ComponentAuth     = "auth"
	ComponentWorker   = "worker"
)

// Operations defines standard operation names
const (
	OpBatchRun = "batch_run"
	OpSendNow  = "send_now"
	OpSend     = "send"
	OpAudit    = "audit"
	OpCreate   = "create"
	OpList     = "list"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithUser adds user identification fields
func (f LogFields) WithUser(id, name string) LogFields {
	f[FieldUserID] = id
	f[FieldUserName] = name
	return f
}

// WithPeriod adds report period fields
func (f LogFields) WithPeriod(kind, label string) LogFields {
	f[FieldPeriodKind] = kind
	f[FieldPeriodLabel] = label
	return f
}

// WithDelivery adds delivery outcome fields
func (f LogFields) WithDelivery(destination string, sent bool) LogFields {
	f[FieldDestination] = destination
	f[FieldSent] = sent
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
