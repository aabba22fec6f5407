// Package moderation reviews user-generated content and applies verdicts to it.
//
// Content reaches a review provider on one of two paths. The proactive path
// submits topics, comments, replies, profiles and images right after they are
// written. The reactive path submits a target once the number of abuse reports
// filed against it crosses the app's threshold. Either way the verdict comes
// back to the Processor, which resolves it to a severity and hands it to the
// Enforcer. Enforcement never lets a weaker verdict overwrite a stronger one:
// see Allowed.
//
// The package owns no storage. Stores, the job queue and the providers are
// supplied as interfaces.
package moderation
