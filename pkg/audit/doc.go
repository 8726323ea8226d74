// Package audit writes RFC5424 audit lines for security and data relevant
// trainer operations: authentication, document submission, model saves,
// annotation and deployment export or import, and metrics jobs.
//
// Lines go to stdout; when AUDIT_DATABASE_URL is set every event is also
// stored in the messages table. TRAINER_AUDIT_ENABLED=false turns auditing
// off.
//
//	audit.Log(audit.SubmitDocumentEvent{Username: "annotator", ProjectID: 1, DocumentID: 4, Success: true})
package audit
