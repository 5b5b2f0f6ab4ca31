// Package workflow holds the client-side payment and session-note flows
// driven by therapyctl: picking unpaid appointments, reconciling and
// submitting a payment, quick-paying one appointment, and linking notes to
// appointments.
package workflow
