package domain

// Phase names a WorkflowState variant.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSelectingFile  Phase = "selecting_file"
	PhaseTransferring   Phase = "transferring"
	PhaseAwaitingReview Phase = "awaiting_review"
	PhaseSubmitting     Phase = "submitting"
	PhasePolling        Phase = "polling"
	PhaseSettled        Phase = "settled"
)

type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// WorkflowState is the closed set of workflow variants. Only this package can
// add implementations.
type WorkflowState interface {
	Phase() Phase
	workflowState()
}

// Idle optionally keeps the document of a cancelled transfer so the user can
// retry without choosing the file again.
type Idle struct {
	Retained *Document
}

type SelectingFile struct {
	Document Document
}

type Transferring struct {
	Document Document
	Progress int
}

type AwaitingReview struct {
	Document      Document
	Preprocessing *PreprocessingResult
}

type Submitting struct {
	Document      Document
	Preprocessing *PreprocessingResult
}

type Polling struct {
	Document  Document
	SessionID string
	ResultURL string
	Attempts  int
	Result    *ProcessingResult
}

type Settled struct {
	Outcome   Outcome
	Document  Document
	ResultURL string
	Result    *ProcessingResult
}

func (Idle) Phase() Phase           { return PhaseIdle }
func (SelectingFile) Phase() Phase  { return PhaseSelectingFile }
func (Transferring) Phase() Phase   { return PhaseTransferring }
func (AwaitingReview) Phase() Phase { return PhaseAwaitingReview }
func (Submitting) Phase() Phase     { return PhaseSubmitting }
func (Polling) Phase() Phase        { return PhasePolling }
func (Settled) Phase() Phase        { return PhaseSettled }

func (Idle) workflowState()           {}
func (SelectingFile) workflowState()  {}
func (Transferring) workflowState()   {}
func (AwaitingReview) workflowState() {}
func (Submitting) workflowState()     {}
func (Polling) workflowState()        {}
func (Settled) workflowState()        {}

// ActiveResult names which result the rendering layer should display.
type ActiveResult string

const (
	ActiveNone          ActiveResult = ""
	ActivePreprocessing ActiveResult = "preprocessing"
	ActiveProcessing    ActiveResult = "processing"
)

// ActiveResultOf returns the result kind that is active for display in state.
func ActiveResultOf(state WorkflowState) ActiveResult {
	switch s := state.(type) {
	case AwaitingReview, Submitting:
		return ActivePreprocessing
	case Polling:
		if s.Result != nil {
			return ActiveProcessing
		}
		return ActiveNone
	case Settled:
		if s.Result != nil {
			return ActiveProcessing
		}
		return ActiveNone
	default:
		return ActiveNone
	}
}

// DocumentOf returns the document a state refers to, if any.
func DocumentOf(state WorkflowState) (Document, bool) {
	switch s := state.(type) {
	case Idle:
		if s.Retained != nil {
			return *s.Retained, true
		}
		return Document{}, false
	case SelectingFile:
		return s.Document, true
	case Transferring:
		return s.Document, true
	case AwaitingReview:
		return s.Document, true
	case Submitting:
		return s.Document, true
	case Polling:
		return s.Document, true
	case Settled:
		return s.Document, true
	default:
		return Document{}, false
	}
}

// View is the read model handed to the rendering layer.
type View struct {
	Phase         Phase                `json:"phase"`
	Outcome       Outcome              `json:"outcome,omitempty"`
	Document      *Document            `json:"document,omitempty"`
	Progress      int                  `json:"progress"`
	PollAttempts  int                  `json:"poll_attempts,omitempty"`
	ResultURL     string               `json:"result_url,omitempty"`
	Preprocessing *PreprocessingResult `json:"preprocessing,omitempty"`
	Processing    *ProcessingResult    `json:"processing,omitempty"`
	Active        ActiveResult         `json:"active,omitempty"`
	Status        string               `json:"status,omitempty"`
	Error         string               `json:"error,omitempty"`
	Generation    uint64               `json:"generation"`
	Revision      uint64               `json:"revision"`

	State WorkflowState `json:"-"`
}

// Page2ImagePath returns the page-2 image token of whichever result carries one.
func (v View) Page2ImagePath() string {
	if v.Preprocessing != nil && v.Preprocessing.Page2Image != "" {
		return v.Preprocessing.Page2Image
	}
	if v.Processing != nil {
		return v.Processing.Page2Image
	}
	return ""
}
