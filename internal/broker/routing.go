package broker

import "github.com/google/uuid"

// Insert notifications are published on one subject per viewer so a
// subscriber can filter to the viewers it serves.
var (
	StreamName          = "MESSAGES"
	SubjectViewerPrefix = StreamName + "." + "viewer."
	SubjectAllViewers   = SubjectViewerPrefix + "*"
)

// SubjectForViewer returns the subject carrying the inserts of viewerID.
func SubjectForViewer(viewerID uuid.UUID) string {
	return SubjectViewerPrefix + viewerID.String()
}
