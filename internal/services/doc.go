// Package services implements the HTTP side of a list sync: authentication, endpoint
// discovery, reference-data lookup and batch member upsert against the Mailchimp Marketing API.
//
// # Transport
//
// [Transport] is the single seam between the pipeline and the network. [HTTPTransport]
// retries HTTP 429, any 5xx and network failures with exponential backoff ([RetryPolicy]);
// other statuses come back as [*HTTPError] values that unwrap to a sentinel from shared:
//   - [shared.ErrTransient] : 429/5xx/network, retried; [shared.ErrRetriesExhausted] once the budget is spent
//   - [shared.ErrAuthFailed] : 401/403, never retried
//   - [shared.ErrPermanent] : any other 4xx, never retried
//
// # Endpoint Resolution
//
// [EndpointResolver] turns credentials into a [RunContext]. API keys carry their datacenter
// after the last "-" and are checked once with a GET on the API root. OAuth access tokens are
// exchanged for a datacenter through the login metadata endpoint. The resulting context is
// built once and passed to every component.
//
// # Reference Data
//
// [MetadataResolver] pages through interest categories, interests and merge fields
// (count=100, offset until total_items) and memoizes them for the run. Interests are only
// fetched for the categories named by grouping columns.
//
// # Lists
//
// [ListClient] looks the list up and pushes [models.BatchRequest] payloads. A 404 on the list
// resource becomes [shared.ErrListNotFound].
package services
