package model

// Request and response bodies of the evaluation service under /api/interview/.

type GenerateQuestionsRequest struct {
	Role       Role       `json:"role"`
	Count      int        `json:"count"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

type GenerateQuestionsResponse struct {
	Questions []Question `json:"questions"`
}

type EvaluateAnswerRequest struct {
	Question Question `json:"question"`
	Answer   string   `json:"answer"`
	Role     Role     `json:"role"`
}

type EvaluateAnswerResponse struct {
	Evaluation *Evaluation `json:"evaluation"`
}

type StartMockRequest struct {
	Role Role `json:"role"`
}

type ContinueMockRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	Role      Role   `json:"role"`
}

// ErrorResponse is the body of every non-2xx service reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /api/.
type HealthResponse struct {
	Message string `json:"message"`
}
