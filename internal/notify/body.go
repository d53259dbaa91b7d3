package notify

import (
	"fmt"
	"strings"
)

func submissionRef(submissionID string) string {
	if submissionID == "" {
		return ""
	}
	return " (submission ID " + submissionID + ")"
}

func folderRef(folderID string) string {
	if folderID == "" {
		return ""
	}
	return " Your logs are available in folder " + folderID + "."
}

// CompleteBody tells the submitter their workflow finished.
func CompleteBody(submitter, submissionID, folderID string) string {
	return fmt.Sprintf("Dear %s,\n\nYour workflow%s has completed.%s\n",
		submitter, submissionRef(submissionID), folderRef(folderID))
}

// FailedBody tells the submitter their workflow failed. reason is shown
// verbatim and must not contain internal diagnostics.
func FailedBody(submitter, submissionID, reason, folderID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nYour workflow%s failed.", submitter, submissionRef(submissionID))
	if reason != "" {
		fmt.Fprintf(&b, " The message is:\n\n\t%s\n\n", reason)
	}
	b.WriteString(folderRef(folderID))
	b.WriteString("\n")
	return b.String()
}

// LogsAvailableBody tells the submitter where running logs can be found.
func LogsAvailableBody(submitter, submissionID, folderID string) string {
	return fmt.Sprintf("Dear %s,\n\nYour workflow%s is running. Logs will be uploaded periodically to folder %s.\n",
		submitter, submissionRef(submissionID), folderID)
}

// PipelineFailureBody reports a fault to the operator with full detail.
func PipelineFailureBody(submissionID, workflow, detail string) string {
	var b strings.Builder
	b.WriteString("The submission pipeline failed")
	if submissionID != "" {
		fmt.Fprintf(&b, " while processing submission %s", submissionID)
	}
	b.WriteString(".")
	if workflow != "" {
		fmt.Fprintf(&b, " The workflow description is: %s\n", workflow)
	}
	if detail != "" {
		fmt.Fprintf(&b, " The message is:\n\n\t%s\n\n", detail)
	}
	return b.String()
}
