package httpapi

// CreateCandidateRequest is the body of POST /candidates.
type CreateCandidateRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email"`
}

// CreateAssignmentRequest is the body of POST /assignments.
type CreateAssignmentRequest struct {
	Title  string `json:"title" binding:"required"`
	Rubric any    `json:"rubric" binding:"required"`
}

// CreateSubmissionRequest is the body of POST /submissions: a submission
// whose content is already inline (no file upload).
type CreateSubmissionRequest struct {
	CandidateID  string `json:"candidate_id" binding:"required"`
	AssignmentID string `json:"assignment_id" binding:"required"`
	Content      string `json:"content" binding:"required"`
	Filename     string `json:"filename"`
}

// telegramUpdate mirrors the fields of a Telegram Bot API update this
// ingress cares about; everything else in the payload is ignored.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id" binding:"required"`
	Message  struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Document struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
		} `json:"document"`
	} `json:"message"`
}

// CreateExportRequest is the body of POST /exports: a CSV export of the
// scored evaluations for the listed submissions.
type CreateExportRequest struct {
	SubmissionIDs []string `json:"submission_ids" binding:"required,min=1"`
}
