// Package tidal is the client for the unofficial streaming-service API served by
// the mirror pool in internal/endpoints.
//
// Every call goes through Client.Get, which walks the Router's candidates for the
// operation until one mirror answers HTTP 200 with a JSON body. Rate-limited
// mirrors (429) cost a short backoff, broken ones (404/500, other statuses,
// transport errors) are skipped immediately, and running out of mirrors yields
// absence rather than an error. The successful mirror is recorded so the next
// call for the same operation tries it first.
//
// Responses differ in shape between mirrors and API versions, so each response
// type has one narrow gjson-based parser that returns typed results. The
// ExtractStreamURL helper pulls a playable URL out of a track response.
package tidal
