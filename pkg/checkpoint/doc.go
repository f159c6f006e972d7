// Package checkpoint records the progress of a pipeline run so an
// interrupted run can resume.
//
// A run is identified by a UUID and bound to its fetch window. For every
// entity the run records which stages completed and the counts each stage
// reported:
//   - users, clips, chats, media, classify
//
// Run files live under <data root>/runs/<run id>.json and are saved
// atomically. Resuming a run skips entity stages already completed, but
// only when the requested window matches the recorded one.
package checkpoint
