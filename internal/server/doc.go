// Package server provides HTTP routing, middleware, the chat webhook and OAuth handling.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] uses
// [http.ServeMux] method patterns, and middleware is bound to a handler when it is registered.
//
// # Webhook
//
// [NewWebhookRouter] serves:
//   - POST /events : a chat bridge posts {"channel","author","content"} and gets the reply
//     as JSON, or 204 when the bot ignores the message
//   - GET /shares : recent audit log entries
//   - GET /healthz : liveness, outside the bearer token check
//
// Every request gets an X-Request-ID (propagated or generated) that shows up in the logs.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback for the auth command.
// It checks the state parameter, exchanges the code and sends the token through a channel.
// It only processes one callback.
package server
