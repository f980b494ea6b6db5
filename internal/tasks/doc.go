// Package tasks turns a stream of input rows into batch upserts against a Mailchimp list,
// with real-time progress reporting.
//
// # Pipeline
//
//  1. [SyncEngine.Run] looks the list up, validates the input schema and resolves metadata
//     through [BatchAssembler.Prepare], so configuration errors surface before any push.
//  2. Rows are handed to [BatchAssembler.Buffer]. When the batch reaches its maximum size
//     the assembler flushes: [Partition] splits it into unique rows and duplicates (same
//     email, compared exactly), the unique rows are pushed as one request and every
//     duplicate is pushed afterwards as its own single-member request.
//  3. [Transformer] builds each [models.Member]: status from double opt-in, FNAME/LNAME,
//     configured merge fields (address fields re-encoded in fixed key order) and interests
//     in merge or replace mode.
//  4. [ReportAggregator] parses every response, masks and logs member errors and keeps the
//     running totals. [BatchAssembler.Finish] flushes the residual batch and finalizes.
//
// Pushes are strictly sequential and spaced by a [Pacer].
//
// # Progress Reporting
//
// Operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data
// ([PushEvent], [models.RunReport]) for advanced UI rendering. Updates use select with
// default to prevent blocking.
//
// # Failure Model
//
//   - configuration errors ([shared.ErrListNotFound], [shared.ErrMissingColumn], [shared.ErrUnknownCategory]) abort before pushing
//   - transport errors are retried inside [services.HTTPTransport]; anything returned is fatal
//   - an unparseable response is [shared.ErrDataError] and aborts the run
//   - rejected members are counted; with atomic upsert the finished run returns [shared.ErrAtomicFailure]
package tasks
