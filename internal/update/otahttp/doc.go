// Package otahttp implements the firmware-update listener over HTTP.
//
// An update is a single authenticated upload:
//
//	POST /update
//	Authorization: Bearer <HS256 JWT, sub = node hostname>
//	Content-Length: <image size>
//	<image bytes>
//
// The token is signed with the update secret. The image is streamed to an
// Installer. Progress events are queued and delivered to the update hooks
// from Service, so hook callbacks run on the supervisor goroutine.
package otahttp
