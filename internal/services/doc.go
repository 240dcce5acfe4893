// Package services implements the remote collaborators of the sync engine.
//
// # Catalog
//
// [CatalogService] resolves a playlist into a [models.Snapshot]. Two backends exist:
//   - [SpotifyWebService] (default): the partner GraphQL API used by the web player,
//     authenticated with an anonymous access token scraped from the embed page and a
//     client token. Both are cached by a [CredentialProvider] and refreshed on expiry or 401.
//   - [SpotifyAPIService]: the official Web API with app credentials (client id/secret).
//
// # Matching
//
// [Matcher] opens a [MatchSession] per cycle. [YouTubeMusicService] authenticates with the
// Netscape cookie file of a signed-in browser and searches through InnerTube. A session
// caches responses by lowercased query until Close.
//
// # Transport
//
// All requests go through [APIClient], which paces requests with a [rate.Limiter] and
// returns raw responses. Parsers ([ParsePlaylistPage], [ParseSearchResults],
// [ParseAccessToken], [ParseClientToken]) are pure and read JSON with gjson.
//
// # Error Handling
//
// Services use sentinel errors from the shared package:
//   - [shared.ErrAPIRequest] : non-2xx response or GraphQL errors
//   - [shared.ErrMalformedResponse] : response shape not recognized
//   - [shared.ErrPlaylistNotFound] : playlist missing or private
//   - [shared.ErrTrackNotFound] : search returned no playable candidate
//   - [shared.ErrMissingCookies] : cookie file absent or fully expired
package services
