package usecase

import (
	"fmt"
	"strings"
)

const (
	statusPreprocessed       = "Preprocessing complete. Review the extracted information before sending to the AI."
	statusSubmitting         = "Sending to AI..."
	statusAwaitingImage      = "Processing complete! (Waiting for image analysis...)"
	statusComplete           = "Processing complete!"
	statusImageReady         = "Processing complete! Image analysis available."
	statusImageTimedOut      = "Processing complete! (Image analysis did not return in time)"
	messageCancelledByUser   = "cancelled by user"
	messageTransferFailed    = "Error processing the PDF"
	messageSubmissionFailed  = "Error processing with AI"
	messagePollSessionFailed = "Could not follow the processing result"
)

func transferStatus(percent int) string {
	return fmt.Sprintf("Sending file... (%d%%)", percent)
}

func failureMessage(prefix string, err error) string {
	if err == nil {
		return prefix + "."
	}
	cause := strings.TrimSpace(err.Error())
	if cause == "" {
		return prefix + "."
	}
	return prefix + ": " + cause
}
