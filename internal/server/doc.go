// Package server provides the local HTTP endpoint that completes the Mailchimp OAuth login.
//
// # Router
//
// [NewRouter] builds a chi router with request IDs, panic recovery and debug request logging, and
// mounts every [Handler] on the GET routes it reports.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, exchanges the authorization code for an access
// token and sends the result through a channel. Only the first callback is processed.
//
// # Callback Server
//
// [CallbackServer] listens on the configured host and port (127.0.0.1:3000 by default), serves until
// one result arrives and then shuts down.
package server
