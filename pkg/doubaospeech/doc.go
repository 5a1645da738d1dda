// Package doubaospeech is a client for the Volcengine Doubao speech APIs used
// by the recognizer and speech packages.
//
// Two services are covered:
//
//   - Streaming recognition over the SAUC binary websocket protocol
//     (WSS /api/v3/sauc/bigmodel), see [Client.OpenStream].
//   - Classic text-to-speech over HTTP (POST /api/v1/tts), see
//     [Client.Synthesize].
//
// Authentication:
//
//	client := doubaospeech.NewClient(appID,
//		doubaospeech.WithToken(token),
//		doubaospeech.WithCluster("volcano_tts"),
//	)
//
// The v1 HTTP API sends "Authorization: Bearer;{token}" (note the semicolon).
// The v3 websocket API sends X-Api-App-Key, X-Api-Access-Key and
// X-Api-Resource-Id headers.
//
// Upstream failures are returned as *[Error]; use [AsError] and
// [Error.Retryable] to decide whether to retry.
package doubaospeech
